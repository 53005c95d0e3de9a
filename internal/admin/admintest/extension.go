// Package admintest provides a stand-in versioning extension for tests.
package admintest

import (
	"context"
	"sync"

	"github.com/sakif/snippetcms/internal/admin"
	"github.com/sakif/snippetcms/internal/model"
)

var _ admin.Extension = (*Extension)(nil)

// Saved records one SnippetSaved call.
type Saved struct {
	SnippetID int64
	UserID    string
	Created   bool
}

// Extension adds "author", "state" and "actions" columns and records saves.
type Extension struct {
	mu    sync.Mutex
	saves []Saved
	// SaveErr, when set, is returned from SnippetSaved.
	SaveErr error
}

func (e *Extension) Name() string { return "admintest" }

func (e *Extension) ListDisplay() []string {
	return []string{"author", "state", "actions"}
}

func (e *Extension) Column(_ context.Context, column string, snippet *model.Snippet) string {
	switch column {
	case "author":
		return "admin"
	case "state":
		return "draft"
	case "actions":
		return "preview"
	}
	return ""
}

func (e *Extension) SnippetSaved(_ context.Context, snippet *model.Snippet, user *model.User, created bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var userID string
	if user != nil {
		userID = user.ID
	}
	e.saves = append(e.saves, Saved{SnippetID: snippet.ID, UserID: userID, Created: created})
	return e.SaveErr
}

// Saves returns a copy of the recorded SnippetSaved calls.
func (e *Extension) Saves() []Saved {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Saved(nil), e.saves...)
}
