// Package admin holds the snippet admin configuration: which columns the
// changelist shows, what it searches, which form fields are prepopulated and
// who may delete.
//
// Most of that depends on one question answered at startup: is a versioning
// extension installed and switched on? When it is, the extension owns how
// snippets are listed, identified and deleted, and the admin stops relying on
// slugs. When it is not, snippets are browsed and linked by slug.
package admin

import (
	"context"
	"log/slog"
	"slices"
	"strconv"

	"github.com/sakif/snippetcms/internal/model"
)

// Extension is the contract a versioning add-on implements to take over
// snippet listing and lifecycle.
type Extension interface {
	// Name identifies the extension in logs.
	Name() string
	// ListDisplay returns the columns the extension appends to the changelist,
	// including its own action column.
	ListDisplay() []string
	// Column renders one of the extension's columns for a snippet.
	Column(ctx context.Context, column string, snippet *model.Snippet) string
	// SnippetSaved is called after a snippet is created or changed in the admin.
	SnippetSaved(ctx context.Context, snippet *model.Snippet, user *model.User, created bool) error
}

// Options configures New.
type Options struct {
	// VersioningEnabled is the configuration switch. It has no effect
	// unless Versioning is also set.
	VersioningEnabled bool
	// Versioning is the installed extension, nil when none is installed.
	Versioning Extension
	// EditorMode and EditorTheme end up as data-mode / data-theme on the
	// HTML textarea for the client-side code editor.
	EditorMode  string
	EditorTheme string
	Logger      *slog.Logger
}

const (
	DefaultEditorMode  = "html"
	DefaultEditorTheme = "github"

	// TextAreaRows is the height of the HTML field in the change form.
	TextAreaRows = 20
)

// SnippetAdmin is the admin configuration for snippets. It is immutable
// after New and safe for concurrent use.
type SnippetAdmin struct {
	versioning  Extension
	editorMode  string
	editorTheme string
}

// New resolves the versioning state once and returns the configuration.
func New(opts Options) *SnippetAdmin {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &SnippetAdmin{
		editorMode:  opts.EditorMode,
		editorTheme: opts.EditorTheme,
	}
	if a.editorMode == "" {
		a.editorMode = DefaultEditorMode
	}
	if a.editorTheme == "" {
		a.editorTheme = DefaultEditorTheme
	}

	switch {
	case opts.Versioning != nil && opts.VersioningEnabled:
		a.versioning = opts.Versioning
		logger.Info("snippet versioning enabled", slog.String("extension", opts.Versioning.Name()))
	case opts.VersioningEnabled:
		logger.Warn("snippet versioning requested but no versioning extension is installed; falling back to slugs")
	case opts.Versioning != nil:
		logger.Info("snippet versioning extension installed but disabled",
			slog.String("extension", opts.Versioning.Name()))
	}

	return a
}

// VersioningEnabled reports whether a versioning extension is active.
func (a *SnippetAdmin) VersioningEnabled() bool {
	return a.versioning != nil
}

// Versioning returns the active extension, or nil.
func (a *SnippetAdmin) Versioning() Extension {
	return a.versioning
}

// ListDisplay returns the changelist columns.
func (a *SnippetAdmin) ListDisplay() []string {
	if a.versioning == nil {
		return []string{"slug", "name"}
	}
	return append([]string{"name"}, a.versioning.ListDisplay()...)
}

// SearchFields returns the fields the changelist search box matches.
func (a *SnippetAdmin) SearchFields() []string {
	if a.versioning == nil {
		return []string{"name", "slug"}
	}
	return []string{"name"}
}

// PrepopulatedFields maps a form field to the fields it is filled from.
func (a *SnippetAdmin) PrepopulatedFields() map[string][]string {
	if a.versioning == nil {
		return map[string][]string{"slug": {"name"}}
	}
	return map[string][]string{}
}

// ListDisplayLinks returns which of listDisplay link to the change form.
// With versioning the extension renders its own action links, so none do.
func (a *SnippetAdmin) ListDisplayLinks(listDisplay []string) []string {
	if a.versioning != nil || len(listDisplay) == 0 {
		return nil
	}
	return listDisplay[:1]
}

// IsLink reports whether column links to the change form.
func (a *SnippetAdmin) IsLink(column string) bool {
	return slices.Contains(a.ListDisplayLinks(a.ListDisplay()), column)
}

// Ordering is the changelist sort order.
func (a *SnippetAdmin) Ordering() []string {
	return []string{"name"}
}

// ShowSlugField reports whether the change form edits the slug.
func (a *SnippetAdmin) ShowSlugField() bool {
	return a.versioning == nil
}

// TextAreaAttrs returns the attributes of the HTML textarea.
func (a *SnippetAdmin) TextAreaAttrs() map[string]string {
	return map[string]string{
		"rows":        strconv.Itoa(TextAreaRows),
		"data-editor": "true",
		"data-mode":   a.editorMode,
		"data-theme":  a.editorTheme,
	}
}

// HasViewPermission reports whether user may open the changelist and
// read-only change pages.
func (a *SnippetAdmin) HasViewPermission(user *model.User) bool {
	return user.HasPerm(model.PermissionCodename(model.ActionView)) ||
		a.HasChangePermission(user)
}

// HasAddPermission reports whether user may create snippets.
func (a *SnippetAdmin) HasAddPermission(user *model.User) bool {
	return user.HasPerm(model.PermissionCodename(model.ActionAdd))
}

// HasChangePermission reports whether user may edit snippets.
func (a *SnippetAdmin) HasChangePermission(user *model.User) bool {
	return user.HasPerm(model.PermissionCodename(model.ActionChange))
}

// HasDeletePermission reports whether user may delete snippet.
//
// Deleting is never offered while versioning is enabled. Otherwise it is
// allowed for a specific snippet when the user holds the add permission;
// the delete permission itself is not consulted.
func (a *SnippetAdmin) HasDeletePermission(user *model.User, snippet *model.Snippet) bool {
	if snippet == nil || a.versioning != nil {
		return false
	}
	return user.HasPerm(model.PermissionCodename(model.ActionAdd))
}

// Column renders a changelist cell. Unknown columns are delegated to the
// versioning extension when one is active and render empty otherwise.
func (a *SnippetAdmin) Column(ctx context.Context, column string, snippet *model.Snippet) string {
	switch column {
	case "name":
		return snippet.Name
	case "slug":
		return snippet.Slug
	case "id":
		return strconv.FormatInt(snippet.ID, 10)
	}
	if a.versioning != nil {
		return a.versioning.Column(ctx, column, snippet)
	}
	return ""
}

// SnippetSaved notifies the versioning extension of an admin save.
func (a *SnippetAdmin) SnippetSaved(ctx context.Context, snippet *model.Snippet, user *model.User, created bool) error {
	if a.versioning == nil {
		return nil
	}
	return a.versioning.SnippetSaved(ctx, snippet, user, created)
}
