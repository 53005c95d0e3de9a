package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"strings"
	"testing"

	"github.com/sakif/snippetcms/internal/apperror"
	"github.com/sakif/snippetcms/internal/model"
	"github.com/sakif/snippetcms/internal/repository"
)

// =========================================================================
// MOCK REPOSITORY
// =========================================================================

// mockSnippetRepo implements repository.SnippetRepository in memory.
type mockSnippetRepo struct {
	snippets map[int64]*model.Snippet
	nextID   int64
	failList error
}

func newMockRepo() *mockSnippetRepo {
	return &mockSnippetRepo{snippets: make(map[int64]*model.Snippet)}
}

func (m *mockSnippetRepo) Create(_ context.Context, snippet *model.Snippet) error {
	m.nextID++
	snippet.ID = m.nextID
	stored := *snippet
	m.snippets[snippet.ID] = &stored
	return nil
}

func (m *mockSnippetRepo) CreateUniqueSlug(ctx context.Context, snippet *model.Snippet) error {
	if m.slugTaken(snippet) {
		return apperror.Conflict("snippet", "slug", snippet.Slug)
	}
	return m.Create(ctx, snippet)
}

func (m *mockSnippetRepo) slugTaken(snippet *model.Snippet) bool {
	for id, s := range m.snippets {
		if id != snippet.ID && s.Slug == snippet.Slug {
			return true
		}
	}
	return false
}

func (m *mockSnippetRepo) GetByID(_ context.Context, id int64) (*model.Snippet, error) {
	snippet, ok := m.snippets[id]
	if !ok {
		return nil, apperror.NotFound("snippet", "mock")
	}
	result := *snippet
	return &result, nil
}

func (m *mockSnippetRepo) GetBySlug(_ context.Context, slug string) (*model.Snippet, error) {
	for _, id := range m.sortedIDs() {
		if m.snippets[id].Slug == slug {
			result := *m.snippets[id]
			return &result, nil
		}
	}
	return nil, apperror.NotFound("snippet", slug)
}

func (m *mockSnippetRepo) GetByName(_ context.Context, name string) (*model.Snippet, error) {
	for _, id := range m.sortedIDs() {
		if m.snippets[id].Name == name {
			result := *m.snippets[id]
			return &result, nil
		}
	}
	return nil, apperror.NotFound("snippet", name)
}

func (m *mockSnippetRepo) List(_ context.Context, opts repository.ListOptions) ([]model.Snippet, error) {
	if m.failList != nil {
		return nil, m.failList
	}
	result := make([]model.Snippet, 0, len(m.snippets))
	for _, id := range m.sortedIDs() {
		s := m.snippets[id]
		if opts.Search == "" || strings.Contains(strings.ToLower(s.Name), strings.ToLower(opts.Search)) {
			result = append(result, *s)
		}
	}

	if opts.Offset >= len(result) {
		return []model.Snippet{}, nil
	}
	result = result[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(result) {
		result = result[:opts.Limit]
	}
	return result, nil
}

func (m *mockSnippetRepo) Count(ctx context.Context, opts repository.ListOptions) (int, error) {
	opts.Limit, opts.Offset = 0, 0
	all, err := m.List(ctx, opts)
	return len(all), err
}

func (m *mockSnippetRepo) Update(_ context.Context, snippet *model.Snippet) error {
	if _, ok := m.snippets[snippet.ID]; !ok {
		return apperror.NotFound("snippet", "mock")
	}
	stored := *snippet
	m.snippets[snippet.ID] = &stored
	return nil
}

func (m *mockSnippetRepo) UpdateUniqueSlug(ctx context.Context, snippet *model.Snippet) error {
	if _, ok := m.snippets[snippet.ID]; ok && m.slugTaken(snippet) {
		return apperror.Conflict("snippet", "slug", snippet.Slug)
	}
	return m.Update(ctx, snippet)
}

func (m *mockSnippetRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.snippets[id]; !ok {
		return apperror.NotFound("snippet", "mock")
	}
	delete(m.snippets, id)
	return nil
}

func (m *mockSnippetRepo) sortedIDs() []int64 {
	ids := make([]int64, 0, len(m.snippets))
	for id := range m.snippets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// =========================================================================
// TEST HELPERS
// =========================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestService returns a service with slug uniqueness on (no versioning).
func newTestService(t *testing.T) (*SnippetService, *mockSnippetRepo) {
	t.Helper()
	repo := newMockRepo()
	return NewSnippetService(repo, true, testLogger()), repo
}

// =========================================================================
// CREATE
// =========================================================================

func TestCreate_Valid(t *testing.T) {
	svc, repo := newTestService(t)

	snippet, err := svc.Create(context.Background(), "  Site Footer  ", "", "<footer>hi</footer>")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if snippet.Name != "Site Footer" {
		t.Errorf("Name = %q, want trimmed", snippet.Name)
	}
	if snippet.Slug != "site-footer" {
		t.Errorf("Slug = %q, want prepopulated from name", snippet.Slug)
	}
	if snippet.HTML != "<footer>hi</footer>" {
		t.Errorf("HTML = %q, want verbatim", snippet.HTML)
	}
	if len(repo.snippets) != 1 {
		t.Errorf("repo has %d snippets, want 1", len(repo.snippets))
	}
}

func TestCreate_ExplicitSlug(t *testing.T) {
	svc, _ := newTestService(t)

	snippet, err := svc.Create(context.Background(), "Footer", "main-footer", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if snippet.Slug != "main-footer" {
		t.Errorf("Slug = %q, want main-footer", snippet.Slug)
	}
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name      string
		inName    string
		inSlug    string
		inHTML    string
		wantField string
	}{
		{name: "empty name", inName: "", wantField: "name"},
		{name: "whitespace name", inName: "   ", wantField: "name"},
		{name: "name too long", inName: strings.Repeat("a", MaxSnippetNameLength+1), wantField: "name"},
		{name: "html too long", inName: "ok", inHTML: strings.Repeat("x", MaxHTMLLength+1), wantField: "html"},
		{name: "invalid slug", inName: "ok", inSlug: "Not A Slug", wantField: "slug"},
		{name: "name yields no slug", inName: "日本語", wantField: "slug"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t)

			_, err := svc.Create(context.Background(), tt.inName, tt.inSlug, tt.inHTML)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("Create() error = %v, want ErrValidation", err)
			}
			var appErr *apperror.AppError
			if errors.As(err, &appErr) && appErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", appErr.Field, tt.wantField)
			}
		})
	}
}

func TestCreate_DuplicateSlug(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "Footer", "footer", ""); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}

	_, err := svc.Create(ctx, "Another footer", "footer", "")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("Create() error = %v, want ErrConflict", err)
	}
}

// staleSlugRepo never finds a slug on lookup, as when another writer
// inserts between the check and the write.
type staleSlugRepo struct {
	*mockSnippetRepo
}

func (staleSlugRepo) GetBySlug(_ context.Context, slug string) (*model.Snippet, error) {
	return nil, apperror.NotFound("snippet", slug)
}

func TestCreate_DuplicateSlugCaughtOnWrite(t *testing.T) {
	repo := staleSlugRepo{newMockRepo()}
	svc := NewSnippetService(repo, true, testLogger())
	ctx := context.Background()

	first, err := svc.Create(ctx, "Footer", "footer", "")
	if err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	if _, err := svc.Create(ctx, "Footer", "footer", ""); !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("Create() error = %v, want ErrConflict", err)
	}

	other, err := svc.Create(ctx, "Header", "header", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.Update(ctx, other.ID, "Header", first.Slug, ""); !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("Update() error = %v, want ErrConflict", err)
	}
}

func TestCreate_DuplicateSlugAllowedWithVersioning(t *testing.T) {
	repo := newMockRepo()
	svc := NewSnippetService(repo, false, testLogger())
	ctx := context.Background()

	if _, err := svc.Create(ctx, "Footer", "footer", ""); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	if _, err := svc.Create(ctx, "Footer", "footer", ""); err != nil {
		t.Fatalf("second Create() error = %v, want nil", err)
	}

	// Non-ASCII names are fine too: the slug is not relied upon.
	snippet, err := svc.Create(ctx, "日本語", "", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if snippet.Slug != "" {
		t.Errorf("Slug = %q, want empty", snippet.Slug)
	}
}

// =========================================================================
// GET / LIST
// =========================================================================

func TestGetByID(t *testing.T) {
	svc, _ := newTestService(t)
	created, _ := svc.Create(context.Background(), "Footer", "", "<p>x</p>")

	found, err := svc.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.ID != created.ID {
		t.Errorf("ID = %d, want %d", found.ID, created.ID)
	}
}

func TestGetByID_Errors(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.GetByID(context.Background(), 0); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("GetByID(0) error = %v, want ErrValidation", err)
	}
	if _, err := svc.GetByID(context.Background(), 999); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID(999) error = %v, want ErrNotFound", err)
	}
}

func TestGetBySlug(t *testing.T) {
	svc, _ := newTestService(t)
	created, _ := svc.Create(context.Background(), "Footer", "", "")

	found, err := svc.GetBySlug(context.Background(), " footer ")
	if err != nil {
		t.Fatalf("GetBySlug() error = %v", err)
	}
	if found.ID != created.ID {
		t.Errorf("ID = %d, want %d", found.ID, created.ID)
	}

	if _, err := svc.GetBySlug(context.Background(), ""); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("GetBySlug(\"\") error = %v, want ErrValidation", err)
	}
}

func TestGetByName(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Create(ctx, "Footer links", "", ""); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	created, _ := svc.Create(ctx, "Footer", "", "")

	found, err := svc.GetByName(ctx, " Footer ")
	if err != nil {
		t.Fatalf("GetByName() error = %v", err)
	}
	if found.ID != created.ID {
		t.Errorf("ID = %d, want %d", found.ID, created.ID)
	}

	if _, err := svc.GetByName(ctx, "Foot"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByName(partial) error = %v, want ErrNotFound", err)
	}
	if _, err := svc.GetByName(ctx, " "); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("GetByName(blank) error = %v, want ErrValidation", err)
	}
}

func TestList_ClampsLimit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := svc.Create(ctx, "snippet", "s"+strings.Repeat("x", i), ""); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	all, err := svc.List(ctx, repository.ListOptions{Limit: 1000, Offset: -5})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List() returned %d, want 3", len(all))
	}

	n, err := svc.Count(ctx, repository.ListOptions{})
	if err != nil || n != 3 {
		t.Errorf("Count() = %d, %v; want 3, nil", n, err)
	}
}

func TestList_WrapsStorageErrors(t *testing.T) {
	svc, repo := newTestService(t)
	repo.failList = errors.New("disk on fire")

	_, err := svc.List(context.Background(), repository.ListOptions{})
	if err == nil || !strings.Contains(err.Error(), "listing snippets") {
		t.Errorf("List() error = %v, want wrapped storage error", err)
	}
}

// =========================================================================
// UPDATE / DELETE
// =========================================================================

func TestUpdate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	created, _ := svc.Create(ctx, "Footer", "footer", "<p>v1</p>")

	updated, err := svc.Update(ctx, created.ID, "Footer v2", "footer", "<p>v2</p>")
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Name != "Footer v2" || updated.HTML != "<p>v2</p>" {
		t.Errorf("Update() = %+v", updated)
	}
}

func TestUpdate_SlugTakenByAnother(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	svc.Create(ctx, "Header", "header", "")
	footer, _ := svc.Create(ctx, "Footer", "footer", "")

	_, err := svc.Update(ctx, footer.ID, "Footer", "header", "")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("Update() error = %v, want ErrConflict", err)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Update(context.Background(), 999, "x", "", "")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	created, _ := svc.Create(ctx, "Footer", "", "")

	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(repo.snippets) != 0 {
		t.Errorf("repo has %d snippets after delete, want 0", len(repo.snippets))
	}
	if err := svc.Delete(ctx, created.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
	if err := svc.Delete(ctx, -1); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Delete(-1) error = %v, want ErrValidation", err)
	}
}
