package domain

import "time"

// DefaultFallbackDepartment is the department every business must carry so
// routing always has a destination.
const DefaultFallbackDepartment = "General"

// Business is the root tenant owning departments, users and conversations.
type Business struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Department is a routing destination inside a business.
type Department struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"businessId"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"createdAt"`
}

// DepartmentSummary is the admin listing view of a department.
type DepartmentSummary struct {
	Department
	ConversationCount int `json:"conversationCount"`
}
