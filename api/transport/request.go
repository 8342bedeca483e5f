package transport

type InboundMessageRequest struct {
	BusinessID string `json:"businessId"`
	Content    string `json:"content"`
	Sender     string `json:"sender"`
}

type LoginRequest struct {
	Email string `json:"email"`
}

type ReassignRequest struct {
	DepartmentID string `json:"departmentId"`
}

type ReplyRequest struct {
	Content string `json:"content"`
}
