package domain

import "time"

type Role string

const (
	RoleAdmin Role = "admin"
	RoleAgent Role = "agent"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleAgent
}

// User represents an admin or agent working for a business.
type User struct {
	ID           string    `json:"id"`
	BusinessID   string    `json:"businessId"`
	DepartmentID string    `json:"departmentId,omitempty"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Identity returns the resolved caller identity for this user.
func (u *User) Identity() Identity {
	if u == nil {
		return Identity{}
	}
	return Identity{
		UserID:       u.ID,
		BusinessID:   u.BusinessID,
		DepartmentID: u.DepartmentID,
		Role:         u.Role,
	}
}

// Identity is the caller identity resolved out-of-band by whatever credential
// scheme sits in front of the API. Scoping only ever looks at these fields.
type Identity struct {
	UserID       string
	BusinessID   string
	DepartmentID string
	Role         Role
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

func (i Identity) IsAgent() bool { return i.Role == RoleAgent }
