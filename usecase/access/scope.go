package access

import (
	"github.com/fastygo/helpdesk/domain"
	"github.com/fastygo/helpdesk/repository"
)

// ListScope returns the filter bounding what the caller may list. ok is
// false when the identity can see nothing at all, such as an agent with no
// department.
func ListScope(id domain.Identity) (filter repository.ConversationFilter, ok bool) {
	if id.BusinessID == "" {
		return repository.ConversationFilter{}, false
	}
	switch id.Role {
	case domain.RoleAdmin:
		return repository.ConversationFilter{BusinessID: id.BusinessID}, true
	case domain.RoleAgent:
		if id.DepartmentID == "" {
			return repository.ConversationFilter{}, false
		}
		return repository.ConversationFilter{BusinessID: id.BusinessID, DepartmentID: id.DepartmentID}, true
	}
	return repository.ConversationFilter{}, false
}

// FetchScope returns the filter a single record must satisfy before the
// caller may read or mutate it. Agents are pinned to both their business
// and their department.
func FetchScope(id domain.Identity) (repository.ConversationFilter, bool) {
	return ListScope(id)
}
