package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sakif/snippetcms/internal/apperror"
	"github.com/sakif/snippetcms/internal/model"
	"github.com/sakif/snippetcms/internal/repository"
)

// newTestDB returns a fresh in-memory database that is closed when the test ends.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestSnippet(t *testing.T, db *DB, name, slug, html string) *model.Snippet {
	t.Helper()
	snippet := &model.Snippet{Name: name, Slug: slug, HTML: html}
	if err := db.Create(context.Background(), snippet); err != nil {
		t.Fatalf("failed to create test snippet: %v", err)
	}
	return snippet
}

// =========================================================================
// CREATE / GET
// =========================================================================

func TestCreate(t *testing.T) {
	db := newTestDB(t)

	snippet := &model.Snippet{Name: "Footer", Slug: "footer", HTML: "<footer>hi</footer>"}
	if err := db.Create(context.Background(), snippet); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if snippet.ID == 0 {
		t.Error("Create() did not set snippet.ID")
	}
	if snippet.CreatedAt.IsZero() || snippet.UpdatedAt.IsZero() {
		t.Error("Create() did not set timestamps")
	}
}

func TestCreate_SequentialIDs(t *testing.T) {
	db := newTestDB(t)

	first := createTestSnippet(t, db, "a", "a", "")
	second := createTestSnippet(t, db, "b", "b", "")

	if second.ID <= first.ID {
		t.Errorf("second ID = %d, want > %d", second.ID, first.ID)
	}
}

func TestGetByID(t *testing.T) {
	db := newTestDB(t)
	created := createTestSnippet(t, db, "Banner", "banner", "<h1>Test Title</h1>")

	found, err := db.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	if found.Name != "Banner" || found.Slug != "banner" {
		t.Errorf("got %q/%q, want Banner/banner", found.Name, found.Slug)
	}
	if found.HTML != "<h1>Test Title</h1>" {
		t.Errorf("HTML = %q, want raw markup preserved", found.HTML)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetByID(context.Background(), 999)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestGetBySlug(t *testing.T) {
	db := newTestDB(t)
	created := createTestSnippet(t, db, "Banner", "banner", "")

	found, err := db.GetBySlug(context.Background(), "banner")
	if err != nil {
		t.Fatalf("GetBySlug() error = %v", err)
	}
	if found.ID != created.ID {
		t.Errorf("ID = %d, want %d", found.ID, created.ID)
	}

	if _, err := db.GetBySlug(context.Background(), "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetBySlug(missing) error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// LIST / COUNT
// =========================================================================

func TestList_Empty(t *testing.T) {
	db := newTestDB(t)

	snippets, err := db.List(context.Background(), repository.ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(snippets) != 0 {
		t.Errorf("List() returned %d snippets, want 0", len(snippets))
	}
}

func TestList_OrderByName(t *testing.T) {
	db := newTestDB(t)
	createTestSnippet(t, db, "charlie", "c", "")
	createTestSnippet(t, db, "alpha", "a", "")
	createTestSnippet(t, db, "bravo", "b", "")

	snippets, err := db.List(context.Background(), repository.ListOptions{OrderBy: []string{"name"}})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	want := []string{"alpha", "bravo", "charlie"}
	for i, s := range snippets {
		if s.Name != want[i] {
			t.Errorf("snippets[%d].Name = %q, want %q", i, s.Name, want[i])
		}
	}

	desc, err := db.List(context.Background(), repository.ListOptions{OrderBy: []string{"-name"}})
	if err != nil {
		t.Fatalf("List(-name) error = %v", err)
	}
	if desc[0].Name != "charlie" {
		t.Errorf("desc[0].Name = %q, want charlie", desc[0].Name)
	}
}

func TestList_UnknownOrderField(t *testing.T) {
	db := newTestDB(t)

	_, err := db.List(context.Background(), repository.ListOptions{OrderBy: []string{"name; DROP TABLE snippets"}})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("List() error = %v, want ErrValidation", err)
	}
}

func TestList_Search(t *testing.T) {
	db := newTestDB(t)
	createTestSnippet(t, db, "Site Footer", "footer", "")
	createTestSnippet(t, db, "Header", "top-banner", "")
	createTestSnippet(t, db, "Sidebar", "aside", "")

	tests := []struct {
		name   string
		search string
		fields []string
		want   int
	}{
		{name: "name only", search: "footer", fields: []string{"name"}, want: 1},
		{name: "case insensitive", search: "HEADER", fields: []string{"name"}, want: 1},
		{name: "slug not searched", search: "banner", fields: []string{"name"}, want: 0},
		{name: "slug searched", search: "banner", fields: []string{"name", "slug"}, want: 1},
		{name: "blank search returns all", search: "  ", fields: []string{"name"}, want: 3},
		{name: "percent is literal", search: "%", fields: []string{"name", "slug"}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := repository.ListOptions{Search: tt.search, SearchFields: tt.fields}

			got, err := db.List(context.Background(), opts)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("List() returned %d, want %d", len(got), tt.want)
			}

			n, err := db.Count(context.Background(), opts)
			if err != nil {
				t.Fatalf("Count() error = %v", err)
			}
			if n != tt.want {
				t.Errorf("Count() = %d, want %d", n, tt.want)
			}
		})
	}
}

func TestList_Pagination(t *testing.T) {
	db := newTestDB(t)
	for i := 0; i < 5; i++ {
		createTestSnippet(t, db, fmt.Sprintf("snippet-%d", i), fmt.Sprintf("s-%d", i), "")
	}

	order := []string{"name"}
	page1, err := db.List(context.Background(), repository.ListOptions{Limit: 2, Offset: 0, OrderBy: order})
	if err != nil {
		t.Fatalf("List() page 1 error = %v", err)
	}
	page3, err := db.List(context.Background(), repository.ListOptions{Limit: 2, Offset: 4, OrderBy: order})
	if err != nil {
		t.Fatalf("List() page 3 error = %v", err)
	}

	if len(page1) != 2 {
		t.Errorf("page 1: got %d items, want 2", len(page1))
	}
	if len(page3) != 1 {
		t.Errorf("page 3: got %d items, want 1", len(page3))
	}
	if page3[0].Name != "snippet-4" {
		t.Errorf("page 3 first = %q, want snippet-4", page3[0].Name)
	}
}

func TestList_DefaultLimit(t *testing.T) {
	db := newTestDB(t)
	for i := 0; i < 25; i++ {
		createTestSnippet(t, db, "snippet", "", "")
	}

	snippets, err := db.List(context.Background(), repository.ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(snippets) != 20 {
		t.Errorf("List() default returned %d items, want 20", len(snippets))
	}
}

// =========================================================================
// UPDATE / DELETE
// =========================================================================

func TestUpdate(t *testing.T) {
	db := newTestDB(t)
	original := createTestSnippet(t, db, "original", "original", "<p>v1</p>")

	original.Name = "renamed"
	original.HTML = "<p>v2</p>"
	if err := db.Update(context.Background(), original); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	found, err := db.GetByID(context.Background(), original.ID)
	if err != nil {
		t.Fatalf("GetByID() after update error = %v", err)
	}
	if found.Name != "renamed" || found.HTML != "<p>v2</p>" {
		t.Errorf("after update got %q/%q", found.Name, found.HTML)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	db := newTestDB(t)

	err := db.Update(context.Background(), &model.Snippet{ID: 999, Name: "x"})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	db := newTestDB(t)
	snippet := createTestSnippet(t, db, "to delete", "bye", "")

	if err := db.Delete(context.Background(), snippet.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	_, err := db.GetByID(context.Background(), snippet.ID)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() after delete: error = %v, want ErrNotFound", err)
	}
}

func TestDelete_NotFound(t *testing.T) {
	db := newTestDB(t)

	if err := db.Delete(context.Background(), 999); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// UNIQUE SLUGS / CONCURRENCY
// =========================================================================

func TestGetByName(t *testing.T) {
	db := newTestDB(t)
	createTestSnippet(t, db, "Footer links", "footer-links", "")
	want := createTestSnippet(t, db, "Footer", "footer", "")

	found, err := db.GetByName(context.Background(), "Footer")
	if err != nil {
		t.Fatalf("GetByName() error = %v", err)
	}
	if found.ID != want.ID {
		t.Errorf("GetByName() ID = %d, want %d", found.ID, want.ID)
	}

	if _, err := db.GetByName(context.Background(), "foot"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByName(partial) error = %v, want ErrNotFound", err)
	}
}

func TestCreateUniqueSlug(t *testing.T) {
	db := newTestDB(t)
	createTestSnippet(t, db, "Footer", "footer", "")

	dup := &model.Snippet{Name: "Other", Slug: "footer"}
	err := db.CreateUniqueSlug(context.Background(), dup)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("CreateUniqueSlug() error = %v, want ErrConflict", err)
	}
	if dup.ID != 0 {
		t.Errorf("CreateUniqueSlug() set ID %d on conflict", dup.ID)
	}

	fresh := &model.Snippet{Name: "Header", Slug: "header"}
	if err := db.CreateUniqueSlug(context.Background(), fresh); err != nil {
		t.Fatalf("CreateUniqueSlug() error = %v", err)
	}
	if fresh.ID == 0 {
		t.Error("CreateUniqueSlug() did not set ID")
	}
}

func TestUpdateUniqueSlug(t *testing.T) {
	db := newTestDB(t)
	createTestSnippet(t, db, "Footer", "footer", "")
	header := createTestSnippet(t, db, "Header", "header", "")

	header.Slug = "footer"
	if err := db.UpdateUniqueSlug(context.Background(), header); !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("UpdateUniqueSlug() error = %v, want ErrConflict", err)
	}

	// Keeping its own slug is not a conflict.
	header.Slug = "header"
	header.Name = "Site header"
	if err := db.UpdateUniqueSlug(context.Background(), header); err != nil {
		t.Fatalf("UpdateUniqueSlug() error = %v", err)
	}

	missing := &model.Snippet{ID: 999, Name: "x", Slug: "x"}
	if err := db.UpdateUniqueSlug(context.Background(), missing); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UpdateUniqueSlug() error = %v, want ErrNotFound", err)
	}
}

// newFileDB opens a file-backed database, which unlike ":memory:" uses a
// pool of connections.
func newFileDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "snippets.db"))
	if err != nil {
		t.Fatalf("failed to create file db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreate_ConcurrentWriters(t *testing.T) {
	db := newFileDB(t)

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snippet := &model.Snippet{Name: fmt.Sprintf("Snippet %d", i), Slug: fmt.Sprintf("s-%d", i)}
			errs <- db.Create(context.Background(), snippet)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent Create() error = %v", err)
		}
	}

	n, err := db.Count(context.Background(), repository.ListOptions{})
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != writers {
		t.Errorf("Count() = %d, want %d", n, writers)
	}
}

func TestCreateUniqueSlug_ConcurrentWriters(t *testing.T) {
	db := newFileDB(t)

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- db.CreateUniqueSlug(context.Background(), &model.Snippet{Name: "Footer", Slug: "footer"})
		}()
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, apperror.ErrConflict):
		default:
			t.Errorf("concurrent CreateUniqueSlug() error = %v", err)
		}
	}
	if created != 1 {
		t.Errorf("%d writers succeeded, want 1", created)
	}

	n, err := db.Count(context.Background(), repository.ListOptions{Search: "footer", SearchFields: []string{"slug"}})
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Errorf("%d rows with slug footer, want 1", n)
	}
}
