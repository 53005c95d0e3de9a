package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/snippetcms/internal/apperror"
	"github.com/sakif/snippetcms/internal/model"
	"github.com/sakif/snippetcms/internal/repository"
)

var _ repository.SnippetRepository = (*DB)(nil)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// snippetColumns maps the field names callers may search or sort on to
// their SQL columns. Anything outside this set is rejected, so the column
// names interpolated into queries below never come from user input.
var snippetColumns = map[string]string{
	"id":         "id",
	"name":       "name",
	"slug":       "slug",
	"html":       "html",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

const snippetSelect = `SELECT id, name, slug, html, created_at, updated_at FROM snippets`

// Create inserts a new snippet. The generated ID and timestamps are written
// back into snippet.
func (db *DB) Create(ctx context.Context, snippet *model.Snippet) error {
	return db.insert(ctx, snippet, false)
}

// CreateUniqueSlug inserts snippet unless another snippet already carries
// its slug, in which case it returns apperror.ErrConflict. The check and the
// insert are one statement, so concurrent callers cannot both succeed.
func (db *DB) CreateUniqueSlug(ctx context.Context, snippet *model.Snippet) error {
	return db.insert(ctx, snippet, true)
}

func (db *DB) insert(ctx context.Context, snippet *model.Snippet, uniqueSlug bool) error {
	now := time.Now().UTC()
	createdAt, updatedAt := snippet.CreatedAt, snippet.UpdatedAt
	snippet.CreatedAt = now
	snippet.UpdatedAt = now

	query := `INSERT INTO snippets (name, slug, html, created_at, updated_at)
		 SELECT ?, ?, ?, ?, ?`
	args := []any{snippet.Name, snippet.Slug, snippet.HTML, snippet.CreatedAt, snippet.UpdatedAt}
	if uniqueSlug {
		query += ` WHERE NOT EXISTS (SELECT 1 FROM snippets WHERE slug = ?)`
		args = append(args, snippet.Slug)
	}

	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: creating snippet: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		snippet.CreatedAt, snippet.UpdatedAt = createdAt, updatedAt
		return apperror.Conflict("snippet", "slug", snippet.Slug)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading snippet id: %w", err)
	}
	snippet.ID = id

	return nil
}

// GetByID retrieves a single snippet by its ID.
// Returns apperror.ErrNotFound when no row matches.
func (db *DB) GetByID(ctx context.Context, id int64) (*model.Snippet, error) {
	row := db.conn.QueryRowContext(ctx, snippetSelect+` WHERE id = ?`, id)

	snippet, err := scanSnippet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("snippet", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("sqlite: getting snippet %d: %w", id, err)
	}

	return snippet, nil
}

// GetBySlug retrieves the oldest snippet carrying slug.
func (db *DB) GetBySlug(ctx context.Context, slug string) (*model.Snippet, error) {
	row := db.conn.QueryRowContext(ctx, snippetSelect+` WHERE slug = ? ORDER BY id LIMIT 1`, slug)

	snippet, err := scanSnippet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("snippet", slug)
		}
		return nil, fmt.Errorf("sqlite: getting snippet by slug %q: %w", slug, err)
	}

	return snippet, nil
}

// GetByName retrieves the oldest snippet whose name is exactly name.
func (db *DB) GetByName(ctx context.Context, name string) (*model.Snippet, error) {
	row := db.conn.QueryRowContext(ctx, snippetSelect+` WHERE name = ? ORDER BY id LIMIT 1`, name)

	snippet, err := scanSnippet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("snippet", name)
		}
		return nil, fmt.Errorf("sqlite: getting snippet by name %q: %w", name, err)
	}

	return snippet, nil
}

// List retrieves snippets matching opts.
//
// Without OrderBy, rows come back newest first.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.Snippet, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	where, args, err := searchClause(opts)
	if err != nil {
		return nil, err
	}
	order, err := orderClause(opts.OrderBy)
	if err != nil {
		return nil, err
	}

	query := snippetSelect + where + order + ` LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing snippets: %w", err)
	}
	defer rows.Close()

	snippets := make([]model.Snippet, 0, limit)
	for rows.Next() {
		s, err := scanSnippet(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning snippet row: %w", err)
		}
		snippets = append(snippets, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating snippets: %w", err)
	}

	return snippets, nil
}

// Count returns how many snippets match the search part of opts.
// Limit, Offset and OrderBy are ignored.
func (db *DB) Count(ctx context.Context, opts repository.ListOptions) (int, error) {
	where, args, err := searchClause(opts)
	if err != nil {
		return 0, err
	}

	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM snippets`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting snippets: %w", err)
	}
	return n, nil
}

// Update writes name, slug and html of an existing snippet.
// Returns apperror.ErrNotFound when the ID does not exist.
func (db *DB) Update(ctx context.Context, snippet *model.Snippet) error {
	return db.update(ctx, snippet, false)
}

// UpdateUniqueSlug is Update, except that it returns apperror.ErrConflict
// instead of writing when a different snippet already carries the slug.
func (db *DB) UpdateUniqueSlug(ctx context.Context, snippet *model.Snippet) error {
	return db.update(ctx, snippet, true)
}

func (db *DB) update(ctx context.Context, snippet *model.Snippet, uniqueSlug bool) error {
	updatedAt := time.Now().UTC()

	query := `UPDATE snippets
		 SET name = ?, slug = ?, html = ?, updated_at = ?
		 WHERE id = ?`
	args := []any{snippet.Name, snippet.Slug, snippet.HTML, updatedAt, snippet.ID}
	if uniqueSlug {
		query += ` AND NOT EXISTS (SELECT 1 FROM snippets WHERE slug = ? AND id <> ?)`
		args = append(args, snippet.Slug, snippet.ID)
	}

	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: updating snippet %d: %w", snippet.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if !uniqueSlug {
			return apperror.NotFound("snippet", strconv.FormatInt(snippet.ID, 10))
		}
		// Either the row is gone or the slug is taken.
		if _, err := db.GetByID(ctx, snippet.ID); err != nil {
			return err
		}
		return apperror.Conflict("snippet", "slug", snippet.Slug)
	}

	snippet.UpdatedAt = updatedAt
	return nil
}

// Delete removes a snippet by its ID.
func (db *DB) Delete(ctx context.Context, id int64) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM snippets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting snippet %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("snippet", strconv.FormatInt(id, 10))
	}

	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnippet(row rowScanner) (*model.Snippet, error) {
	var s model.Snippet
	if err := row.Scan(&s.ID, &s.Name, &s.Slug, &s.HTML, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// searchClause builds " WHERE (a LIKE ? OR b LIKE ?)" for opts.Search.
// It returns an empty clause when there is nothing to search.
func searchClause(opts repository.ListOptions) (string, []any, error) {
	term := strings.TrimSpace(opts.Search)
	if term == "" || len(opts.SearchFields) == 0 {
		return "", nil, nil
	}

	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
	conds := make([]string, 0, len(opts.SearchFields))
	args := make([]any, 0, len(opts.SearchFields))
	for _, field := range opts.SearchFields {
		col, ok := snippetColumns[field]
		if !ok {
			return "", nil, apperror.ValidationFailed("search", fmt.Sprintf("cannot search on %q", field))
		}
		conds = append(conds, "LOWER("+col+`) LIKE ? ESCAPE '\'`)
		args = append(args, pattern)
	}

	return " WHERE (" + strings.Join(conds, " OR ") + ")", args, nil
}

func orderClause(orderBy []string) (string, error) {
	if len(orderBy) == 0 {
		return " ORDER BY created_at DESC, id DESC", nil
	}

	parts := make([]string, 0, len(orderBy)+1)
	for _, field := range orderBy {
		dir := "ASC"
		if strings.HasPrefix(field, "-") {
			dir = "DESC"
			field = field[1:]
		}
		col, ok := snippetColumns[field]
		if !ok {
			return "", apperror.ValidationFailed("ordering", fmt.Sprintf("cannot order by %q", field))
		}
		parts = append(parts, col+" "+dir)
	}
	// id breaks ties so paging is stable.
	parts = append(parts, "id ASC")

	return " ORDER BY " + strings.Join(parts, ", "), nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
