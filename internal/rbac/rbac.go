// Package rbac decides what a user may do with a chat and its trip data.
package rbac

type Role string
type Action string

const (
	RoleNone   Role = "none"
	RoleViewer Role = "viewer"
	RoleOwner  Role = "owner"
)

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
	ActionAdmin Action = "admin"
)

// Can reports whether role permits action. Owners may do anything; viewers of
// a public chat may only read.
func Can(role Role, action Action) bool {
	switch role {
	case RoleOwner:
		return true
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

// ChatRole resolves the caller's role for a chat owned by ownerID.
func ChatRole(ownerID, visibility, userID string) Role {
	if userID != "" && userID == ownerID {
		return RoleOwner
	}
	if visibility == "public" && userID != "" {
		return RoleViewer
	}
	return RoleNone
}

