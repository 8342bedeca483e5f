package access

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/helpdesk/domain"
	"github.com/fastygo/helpdesk/repository"
	"github.com/fastygo/helpdesk/repository/memory"
)

type world struct {
	store   *memory.Store
	svc     *Service
	acme    *domain.Business
	globex  *domain.Business
	billing *domain.Department
	sales   *domain.Department
	gxSales *domain.Department

	admin        domain.Identity
	billingAgent domain.Identity
	salesAgent   domain.Identity
	globexAdmin  domain.Identity
	globexAgent  domain.Identity

	billingConv *domain.Conversation
	salesConv   *domain.Conversation
	globexConv  *domain.Conversation
	unassigned  *domain.Conversation
}

func newWorld(t *testing.T) *world {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	w := &world{store: store}

	w.acme = &domain.Business{Name: "Acme"}
	w.globex = &domain.Business{Name: "Globex"}
	require.NoError(t, store.Businesses().Create(ctx, w.acme))
	require.NoError(t, store.Businesses().Create(ctx, w.globex))

	w.billing = &domain.Department{BusinessID: w.acme.ID, Name: "Billing"}
	w.sales = &domain.Department{BusinessID: w.acme.ID, Name: "Sales"}
	w.gxSales = &domain.Department{BusinessID: w.globex.ID, Name: "Sales"}
	for _, d := range []*domain.Department{w.billing, w.sales, w.gxSales} {
		require.NoError(t, store.Departments().Create(ctx, d))
	}

	user := func(b *domain.Business, d *domain.Department, role domain.Role, email string) domain.Identity {
		u := &domain.User{BusinessID: b.ID, Name: email, Email: email, Role: role}
		if d != nil {
			u.DepartmentID = d.ID
		}
		require.NoError(t, store.Users().Create(ctx, u))
		return u.Identity()
	}
	w.admin = user(w.acme, nil, domain.RoleAdmin, "admin@acme.test")
	w.billingAgent = user(w.acme, w.billing, domain.RoleAgent, "billing@acme.test")
	w.salesAgent = user(w.acme, w.sales, domain.RoleAgent, "sales@acme.test")
	w.globexAdmin = user(w.globex, nil, domain.RoleAdmin, "admin@globex.test")
	w.globexAgent = user(w.globex, w.gxSales, domain.RoleAgent, "sales@globex.test")

	conv := func(b *domain.Business, d *domain.Department, status domain.ConversationStatus) *domain.Conversation {
		c := &domain.Conversation{BusinessID: b.ID, Status: status}
		if d != nil {
			c.DepartmentID = d.ID
		}
		require.NoError(t, store.Conversations().Create(ctx, c))
		require.NoError(t, store.Messages().Create(ctx, &domain.Message{ConversationID: c.ID, Sender: domain.SenderCustomer, Content: "hello"}))
		return c
	}
	w.billingConv = conv(w.acme, w.billing, domain.StatusInProgress)
	w.salesConv = conv(w.acme, w.sales, domain.StatusInProgress)
	w.globexConv = conv(w.globex, w.gxSales, domain.StatusInProgress)
	w.unassigned = conv(w.acme, nil, domain.StatusOpen)

	w.svc = New(store.Conversations(), store.Messages(), store.Departments(), store.Users(), nil)
	return w
}

func ids(convs []domain.Conversation) []string {
	out := make([]string, 0, len(convs))
	for _, c := range convs {
		out = append(out, c.ID)
	}
	return out
}

func TestScope(t *testing.T) {
	f, ok := ListScope(domain.Identity{UserID: "u", BusinessID: "b", Role: domain.RoleAdmin})
	assert.True(t, ok)
	assert.Equal(t, repository.ConversationFilter{BusinessID: "b"}, f)

	f, ok = FetchScope(domain.Identity{UserID: "u", BusinessID: "b", DepartmentID: "d", Role: domain.RoleAgent})
	assert.True(t, ok)
	assert.Equal(t, repository.ConversationFilter{BusinessID: "b", DepartmentID: "d"}, f)

	_, ok = ListScope(domain.Identity{UserID: "u", BusinessID: "b", Role: domain.RoleAgent})
	assert.False(t, ok, "agent without department")
	_, ok = ListScope(domain.Identity{UserID: "u", Role: domain.RoleAdmin})
	assert.False(t, ok, "no business")
	_, ok = ListScope(domain.Identity{UserID: "u", BusinessID: "b", Role: "owner"})
	assert.False(t, ok, "unknown role")
}

func TestAdmin_ListConversations(t *testing.T) {
	w := newWorld(t)

	convs, err := w.svc.ListConversations(context.Background(), w.admin, Page{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{w.billingConv.ID, w.salesConv.ID, w.unassigned.ID}, ids(convs))

	// newest first
	assert.Equal(t, w.unassigned.ID, convs[0].ID)
	assert.Equal(t, UnassignedDepartment, convs[0].DepartmentName)
	for _, c := range convs {
		assert.Equal(t, w.acme.ID, c.BusinessID)
		assert.Empty(t, c.Messages)
	}

	convs, err = w.svc.ListConversations(context.Background(), w.admin, Page{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, w.salesConv.ID, convs[0].ID)
}

func TestAdmin_GetConversation(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	conv, err := w.svc.GetConversation(ctx, w.admin, w.billingConv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Billing", conv.DepartmentName)
	require.Len(t, conv.Messages, 1)

	_, err = w.svc.GetConversation(ctx, w.admin, w.globexConv.ID)
	assert.ErrorIs(t, err, domain.ErrNotFoundOrForbidden)

	_, err = w.svc.GetConversation(ctx, w.admin, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFoundOrForbidden)
}

func TestAdmin_Reassign(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	updated, err := w.svc.Reassign(ctx, w.admin, w.billingConv.ID, w.sales.ID)
	require.NoError(t, err)
	assert.Equal(t, w.sales.ID, updated.DepartmentID)
	assert.Equal(t, "Sales", updated.DepartmentName)
	assert.Equal(t, domain.StatusInProgress, updated.Status)

	// the billing agent loses sight of it, the sales agent gains it
	_, err = w.svc.GetChat(ctx, w.billingAgent, w.billingConv.ID)
	assert.ErrorIs(t, err, domain.ErrNotFoundOrForbidden)
	_, err = w.svc.GetChat(ctx, w.salesAgent, w.billingConv.ID)
	assert.NoError(t, err)
}

func TestAdmin_ReassignScoping(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	_, err := w.svc.Reassign(ctx, w.admin, w.globexConv.ID, w.sales.ID)
	assert.ErrorIs(t, err, domain.ErrNotFoundOrForbidden, "conversation of another business")

	_, err = w.svc.Reassign(ctx, w.admin, w.billingConv.ID, w.gxSales.ID)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid), "department of another business")

	_, err = w.svc.Reassign(ctx, w.admin, w.billingConv.ID, "nope")
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	_, err = w.svc.Reassign(ctx, w.admin, w.billingConv.ID, "")
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	conv, err := w.store.Conversations().Find(ctx, w.globexConv.ID, repository.ConversationFilter{})
	require.NoError(t, err)
	assert.Equal(t, w.gxSales.ID, conv.DepartmentID)

	_, err = w.svc.Close(ctx, w.billingAgent, w.billingConv.ID)
	require.NoError(t, err)
	_, err = w.svc.Reassign(ctx, w.admin, w.billingConv.ID, w.sales.ID)
	assert.ErrorIs(t, err, domain.ErrConversationClosed)
}

func TestAdmin_ListAgentsAndDepartments(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	agents, err := w.svc.ListAgents(ctx, w.admin)
	require.NoError(t, err)
	require.Len(t, agents, 2)
	for _, a := range agents {
		assert.Equal(t, domain.RoleAgent, a.Role)
		assert.Equal(t, w.acme.ID, a.BusinessID)
	}

	depts, err := w.svc.ListDepartments(ctx, w.admin)
	require.NoError(t, err)
	require.Len(t, depts, 2)
	counts := map[string]int{}
	for _, d := range depts {
		counts[d.Name] = d.ConversationCount
	}
	assert.Equal(t, map[string]int{"Billing": 1, "Sales": 1}, counts)
}

func TestAgent_ListChatsSeesOwnDepartmentOnly(t *testing.T) {
	w := newWorld(t)

	chats, err := w.svc.ListChats(context.Background(), w.billingAgent, Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{w.billingConv.ID}, ids(chats))
	require.Len(t, chats[0].Messages, 1)

	noDept := domain.Identity{UserID: "x", BusinessID: w.acme.ID, Role: domain.RoleAgent}
	chats, err = w.svc.ListChats(context.Background(), noDept, Page{})
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func TestAgent_CannotTouchOtherDepartment(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	for _, target := range []*domain.Conversation{w.salesConv, w.globexConv, w.unassigned} {
		_, err := w.svc.GetChat(ctx, w.billingAgent, target.ID)
		assert.ErrorIs(t, err, domain.ErrNotFoundOrForbidden)

		_, err = w.svc.Reply(ctx, w.billingAgent, target.ID, "hi there")
		assert.ErrorIs(t, err, domain.ErrNotFoundOrForbidden)

		_, err = w.svc.Close(ctx, w.billingAgent, target.ID)
		assert.ErrorIs(t, err, domain.ErrNotFoundOrForbidden)
	}

	conv, err := w.store.Conversations().Find(ctx, w.salesConv.ID, repository.ConversationFilter{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, conv.Status)
	msgs, err := w.store.Messages().ListByConversation(ctx, w.salesConv.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestAgent_Reply(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	msg, err := w.svc.Reply(ctx, w.billingAgent, w.billingConv.ID, "We refunded you.")
	require.NoError(t, err)
	assert.Equal(t, domain.SenderAgent, msg.Sender)

	chat, err := w.svc.GetChat(ctx, w.billingAgent, w.billingConv.ID)
	require.NoError(t, err)
	require.Len(t, chat.Messages, 2)
	assert.Equal(t, "We refunded you.", chat.Messages[1].Content)

	_, err = w.svc.Reply(ctx, w.billingAgent, w.billingConv.ID, "  ")
	assert.ErrorIs(t, err, domain.ErrEmptyContent)

	_, err = w.svc.Close(ctx, w.billingAgent, w.billingConv.ID)
	require.NoError(t, err)
	_, err = w.svc.Reply(ctx, w.billingAgent, w.billingConv.ID, "one more thing")
	assert.ErrorIs(t, err, domain.ErrConversationClosed)
}

func TestAgent_CloseIsIdempotent(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	first, err := w.svc.Close(ctx, w.billingAgent, w.billingConv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, first.Status)

	second, err := w.svc.Close(ctx, w.billingAgent, w.billingConv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, second.Status)
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt)
}

func TestAgent_ConcurrentCloses(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conv, err := w.svc.Close(ctx, w.billingAgent, w.billingConv.ID)
			if assert.NoError(t, err) {
				assert.Equal(t, domain.StatusClosed, conv.Status)
			}
		}()
	}
	wg.Wait()
}

func TestRoleMismatchIsForbidden(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	_, err := w.svc.ListConversations(ctx, w.billingAgent, Page{})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = w.svc.Reassign(ctx, w.billingAgent, w.billingConv.ID, w.sales.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = w.svc.ListChats(ctx, w.admin, Page{})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = w.svc.Close(ctx, w.admin, w.billingConv.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = w.svc.ListAgents(ctx, domain.Identity{})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestOtherTenantIsInvisible(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	convs, err := w.svc.ListConversations(ctx, w.globexAdmin, Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{w.globexConv.ID}, ids(convs))

	chats, err := w.svc.ListChats(ctx, w.globexAgent, Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{w.globexConv.ID}, ids(chats))
}
