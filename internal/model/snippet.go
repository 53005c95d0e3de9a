// Package model defines the data structures used throughout the application.
package model

import "time"

// Snippet is a named block of raw HTML that editors manage in the admin and
// embed into pages.
//
// ID is the numeric primary key used in admin URLs (/admin/snippets/42/preview/).
// Slug identifies the snippet for humans and templates; it is only unique while
// no versioning extension is active.
type Snippet struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	HTML      string    `json:"html"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
