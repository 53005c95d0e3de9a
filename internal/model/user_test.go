package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermissionCodename(t *testing.T) {
	assert.Equal(t, "snippet.add_snippet", PermissionCodename(ActionAdd))
	assert.Equal(t, "snippet.view_snippet", PermissionCodename(ActionView))
	assert.Len(t, AllPermissions(), 4)
}

func TestUserHasPerm(t *testing.T) {
	add := PermissionCodename(ActionAdd)

	tests := []struct {
		name string
		user *User
		want bool
	}{
		{name: "nil user", user: nil, want: false},
		{name: "active superuser", user: &User{IsActive: true, IsSuperuser: true}, want: true},
		{name: "inactive superuser", user: &User{IsSuperuser: true}, want: false},
		{name: "granted", user: &User{IsActive: true, Permissions: []string{add}}, want: true},
		{name: "other permission only", user: &User{IsActive: true, Permissions: []string{PermissionCodename(ActionDelete)}}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.HasPerm(add))
		})
	}
}

func TestUserCanUseAdmin(t *testing.T) {
	assert.False(t, (*User)(nil).CanUseAdmin())
	assert.False(t, (&User{IsActive: true}).CanUseAdmin())
	assert.False(t, (&User{IsStaff: true}).CanUseAdmin())
	assert.True(t, (&User{IsActive: true, IsStaff: true}).CanUseAdmin())
}
