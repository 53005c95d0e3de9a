package model

import (
	"slices"
	"time"
)

// User is an account that can sign in to the admin.
//
// Users come from two places: the bootstrap superuser created from
// configuration (username + bcrypt hash) and GitHub OAuth logins, which are
// matched on GitHubID. A GitHub user starts inactive-for-admin: IsStaff is
// false and Permissions is empty until a superuser grants them.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	GitHubID     *int64    `json:"githubId,omitempty"`
	Email        string    `json:"email"`
	AvatarURL    string    `json:"avatarUrl"`
	IsActive     bool      `json:"isActive"`
	IsStaff      bool      `json:"isStaff"`
	IsSuperuser  bool      `json:"isSuperuser"`
	Permissions  []string  `json:"permissions"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasPerm reports whether the user holds the given permission codename.
// Active superusers hold every permission; inactive users hold none.
func (u *User) HasPerm(codename string) bool {
	if u == nil || !u.IsActive {
		return false
	}
	if u.IsSuperuser {
		return true
	}
	return slices.Contains(u.Permissions, codename)
}

// CanUseAdmin reports whether the user may open admin pages at all.
func (u *User) CanUseAdmin() bool {
	return u != nil && u.IsActive && u.IsStaff
}
