package model

// AppLabel namespaces the snippet permission codenames.
const AppLabel = "snippet"

// Permission actions understood by the admin.
const (
	ActionAdd    = "add"
	ActionChange = "change"
	ActionDelete = "delete"
	ActionView   = "view"
)

// PermissionCodename returns the codename for an action on snippets,
// e.g. PermissionCodename(ActionAdd) == "snippet.add_snippet".
func PermissionCodename(action string) string {
	return AppLabel + "." + action + "_snippet"
}

// AllPermissions lists every snippet permission codename.
func AllPermissions() []string {
	return []string{
		PermissionCodename(ActionAdd),
		PermissionCodename(ActionChange),
		PermissionCodename(ActionDelete),
		PermissionCodename(ActionView),
	}
}
