// Package rbac maps account types to what they may do in the review
// workflow.
package rbac

type Role string
type Action string

const (
	RoleStudent Role = "student"
	RoleStaff   Role = "staff"
	RoleAdmin   Role = "admin"
)

const (
	// ActionRead covers viewing a project, its stages and notifications.
	ActionRead Action = "read"
	// ActionSubmit covers title and stage submissions.
	ActionSubmit Action = "submit"
	// ActionReview covers approving and rejecting submitted stages.
	ActionReview Action = "review"
	ActionAdmin  Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleStaff:
		return action == ActionRead || action == ActionReview
	case RoleStudent:
		return action == ActionRead || action == ActionSubmit
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleStudent, RoleStaff, RoleAdmin:
		return Role(role)
	default:
		return RoleStudent
	}
}

// FromUserType maps the stored account type (Student, Staff, Admin) to its
// role.
func FromUserType(userType string) Role {
	switch userType {
	case "Staff":
		return RoleStaff
	case "Admin":
		return RoleAdmin
	default:
		return RoleStudent
	}
}
