// Package rbac decides which operator roles may read reports, start runs and
// administer the service.
package rbac

type Role string
type Action string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

const (
	ActionRead  Action = "read"
	ActionRun   Action = "run"
	ActionAdmin Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleOperator:
		return action == ActionRead || action == ActionRun
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

// Normalize maps unknown role names to the least privileged role.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleOperator, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}
