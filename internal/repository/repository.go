// Package repository declares the storage interfaces the service layer
// depends on. Implementations live in subpackages (see repository/sqlite).
package repository

import (
	"context"

	"github.com/sakif/snippetcms/internal/model"
)

// ListOptions controls paging and filtering of snippet listings.
//
// Search is matched case-insensitively against every column named in
// SearchFields; a row matches when any of them contains it. OrderBy names the
// sort columns, a leading "-" sorts descending. Unknown column names are
// rejected by the implementation.
type ListOptions struct {
	Limit        int
	Offset       int
	Search       string
	SearchFields []string
	OrderBy      []string
}

// SnippetRepository stores snippets.
//
// The UniqueSlug variants of Create and Update fail with apperror.ErrConflict
// when another snippet holds the slug. They check and write atomically, so
// they stay correct under concurrent writers.
type SnippetRepository interface {
	Create(ctx context.Context, snippet *model.Snippet) error
	CreateUniqueSlug(ctx context.Context, snippet *model.Snippet) error
	GetByID(ctx context.Context, id int64) (*model.Snippet, error)
	GetBySlug(ctx context.Context, slug string) (*model.Snippet, error)
	GetByName(ctx context.Context, name string) (*model.Snippet, error)
	List(ctx context.Context, opts ListOptions) ([]model.Snippet, error)
	Count(ctx context.Context, opts ListOptions) (int, error)
	Update(ctx context.Context, snippet *model.Snippet) error
	UpdateUniqueSlug(ctx context.Context, snippet *model.Snippet) error
	Delete(ctx context.Context, id int64) error
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	UpsertGitHubUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	SetPermissions(ctx context.Context, userID string, codenames []string) error
	SetStaff(ctx context.Context, userID string, staff bool) error
}
