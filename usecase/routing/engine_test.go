package routing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/helpdesk/domain"
	"github.com/fastygo/helpdesk/repository"
	"github.com/fastygo/helpdesk/repository/memory"
	"github.com/fastygo/helpdesk/usecase"
	"github.com/fastygo/helpdesk/usecase/classify"
)

type tenant struct {
	business *domain.Business
	depts    map[string]*domain.Department
}

func seedTenant(t *testing.T, store *memory.Store, name string) tenant {
	t.Helper()
	ctx := context.Background()
	b := &domain.Business{Name: name}
	require.NoError(t, store.Businesses().Create(ctx, b))
	depts := make(map[string]*domain.Department)
	for _, dn := range []string{"Sales", "Support", "Billing", "General"} {
		d := &domain.Department{BusinessID: b.ID, Name: dn}
		require.NoError(t, store.Departments().Create(ctx, d))
		depts[dn] = d
	}
	return tenant{business: b, depts: depts}
}

func fixedModel(raw string) classify.Model {
	return classify.ModelFunc(func(context.Context, string) (string, error) { return raw, nil })
}

func newEngine(store *memory.Store, model classify.Model, cfg classify.Config, policy Policy) *Engine {
	gw := classify.New(model, store.Departments(), cfg, nil)
	return New(store.Businesses(), store.Conversations(), store.Messages(), gw, nil, policy, nil)
}

func TestEngine_EndToEndBillingThenReuse(t *testing.T) {
	store := memory.NewStore()
	acme := seedTenant(t, store, "Acme")
	engine := newEngine(store, fixedModel(`{"department":"Billing","confidence":0.92}`), classify.Config{}, PolicyReuseActive)
	ctx := context.Background()

	first, err := engine.RouteInboundMessage(ctx, InboundMessage{BusinessID: acme.business.ID, Content: "I was charged twice"})
	require.NoError(t, err)
	assert.Equal(t, "Billing", first.RoutedTo)
	assert.Equal(t, acme.depts["Billing"].ID, first.DepartmentID)
	assert.True(t, first.Created)
	assert.False(t, first.Fallback)

	conv, err := store.Conversations().Find(ctx, first.ConversationID, repository.ConversationFilter{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, conv.Status)
	assert.Equal(t, acme.depts["Billing"].ID, conv.DepartmentID)

	second, err := engine.RouteInboundMessage(ctx, InboundMessage{BusinessID: acme.business.ID, Content: "any update?", Sender: domain.SenderCustomer})
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)
	assert.False(t, second.Created)

	msgs, err := store.Messages().ListByConversation(ctx, first.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "I was charged twice", msgs[0].Content)
	assert.Equal(t, "any update?", msgs[1].Content)
	assert.Equal(t, domain.SenderCustomer, msgs[0].Sender)
}

func TestEngine_AlwaysCreatePolicy(t *testing.T) {
	store := memory.NewStore()
	acme := seedTenant(t, store, "Acme")
	engine := newEngine(store, fixedModel(`{"department":"Sales","confidence":0.8}`), classify.Config{}, PolicyAlwaysCreate)
	ctx := context.Background()

	a, err := engine.RouteInboundMessage(ctx, InboundMessage{BusinessID: acme.business.ID, Content: "quote please"})
	require.NoError(t, err)
	b, err := engine.RouteInboundMessage(ctx, InboundMessage{BusinessID: acme.business.ID, Content: "another quote"})
	require.NoError(t, err)

	assert.NotEqual(t, a.ConversationID, b.ConversationID)
	assert.True(t, a.Created)
	assert.True(t, b.Created)
}

func TestEngine_NewConversationAfterClose(t *testing.T) {
	store := memory.NewStore()
	acme := seedTenant(t, store, "Acme")
	engine := newEngine(store, fixedModel(`{"department":"Support","confidence":0.7}`), classify.Config{}, PolicyReuseActive)
	ctx := context.Background()

	first, err := engine.RouteInboundMessage(ctx, InboundMessage{BusinessID: acme.business.ID, Content: "broken"})
	require.NoError(t, err)

	closed := domain.StatusClosed
	_, err = store.Conversations().Update(ctx, first.ConversationID, repository.ConversationUpdate{Status: &closed})
	require.NoError(t, err)

	second, err := engine.RouteInboundMessage(ctx, InboundMessage{BusinessID: acme.business.ID, Content: "still broken"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ConversationID, second.ConversationID)

	conv, err := store.Conversations().Find(ctx, first.ConversationID, repository.ConversationFilter{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, conv.Status)
}

func TestEngine_ClassifierTimeoutFallsBack(t *testing.T) {
	store := memory.NewStore()
	acme := seedTenant(t, store, "Acme")
	hang := classify.ModelFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	engine := newEngine(store, hang, classify.Config{Timeout: 20 * time.Millisecond}, PolicyReuseActive)
	ctx := context.Background()

	res, err := engine.RouteInboundMessage(ctx, InboundMessage{BusinessID: acme.business.ID, Content: "hello?"})
	require.NoError(t, err)
	assert.Equal(t, "General", res.RoutedTo)
	assert.True(t, res.Fallback)

	conv, err := store.Conversations().Find(ctx, res.ConversationID, repository.ConversationFilter{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, conv.Status)
	assert.Equal(t, acme.depts["General"].ID, conv.DepartmentID)
}

func TestEngine_RoutesWithinOwnBusiness(t *testing.T) {
	store := memory.NewStore()
	acme := seedTenant(t, store, "Acme")
	globex := seedTenant(t, store, "Globex")
	engine := newEngine(store, fixedModel(`{"department":"Billing","confidence":0.99}`), classify.Config{}, PolicyReuseActive)
	ctx := context.Background()

	for _, tn := range []tenant{acme, globex} {
		res, err := engine.RouteInboundMessage(ctx, InboundMessage{BusinessID: tn.business.ID, Content: "refund"})
		require.NoError(t, err)
		assert.Equal(t, tn.depts["Billing"].ID, res.DepartmentID)

		dept, err := store.Departments().GetByID(ctx, res.DepartmentID)
		require.NoError(t, err)
		assert.Equal(t, tn.business.ID, dept.BusinessID)
	}
}

func TestEngine_RejectsInvalidInput(t *testing.T) {
	store := memory.NewStore()
	acme := seedTenant(t, store, "Acme")
	engine := newEngine(store, fixedModel(`{"department":"Sales","confidence":0.9}`), classify.Config{}, PolicyReuseActive)
	ctx := context.Background()

	tests := []struct {
		name string
		in   InboundMessage
		code domain.ErrorCode
	}{
		{"blank content", InboundMessage{BusinessID: acme.business.ID, Content: "   "}, domain.ErrCodeInvalid},
		{"missing business id", InboundMessage{Content: "hi"}, domain.ErrCodeInvalid},
		{"unknown sender", InboundMessage{BusinessID: acme.business.ID, Content: "hi", Sender: "bot"}, domain.ErrCodeInvalid},
		{"unknown business", InboundMessage{BusinessID: "missing", Content: "hi"}, domain.ErrCodeNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.RouteInboundMessage(ctx, tc.in)
			assert.True(t, domain.IsDomainError(err, tc.code), "got %v", err)
		})
	}

	convs, err := store.Conversations().List(ctx, repository.ConversationFilter{BusinessID: acme.business.ID})
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestEngine_MissingFallbackIsConfigurationError(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	b := &domain.Business{Name: "Bare"}
	require.NoError(t, store.Businesses().Create(ctx, b))

	engine := newEngine(store, fixedModel("nonsense"), classify.Config{}, PolicyReuseActive)
	_, err := engine.RouteInboundMessage(ctx, InboundMessage{BusinessID: b.ID, Content: "hi"})
	assert.ErrorIs(t, err, domain.ErrFallbackMissing)
}

func TestEngine_ConcurrentFirstMessagesShareConversation(t *testing.T) {
	store := memory.NewStore()
	acme := seedTenant(t, store, "Acme")
	engine := newEngine(store, fixedModel(`{"department":"Support","confidence":0.9}`), classify.Config{}, PolicyReuseActive)
	ctx := context.Background()

	const workers = 8
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := engine.RouteInboundMessage(ctx, InboundMessage{BusinessID: acme.business.ID, Content: "hello"})
			if assert.NoError(t, err) {
				ids[i] = res.ConversationID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	msgs, err := store.Messages().ListByConversation(ctx, ids[0])
	require.NoError(t, err)
	assert.Len(t, msgs, workers)
}

type failingUpdates struct {
	repository.ConversationRepository
	err error
}

func (f failingUpdates) Update(context.Context, string, repository.ConversationUpdate) (*domain.Conversation, error) {
	return nil, f.err
}

type recordingBuffer struct {
	mu          sync.Mutex
	transitions []usecase.Transition
	outcome     usecase.TransitionOutcome
	err         error
}

func (r *recordingBuffer) BufferTransition(_ context.Context, tr usecase.Transition) (usecase.TransitionOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	r.transitions = append(r.transitions, tr)
	if r.outcome == 0 {
		return usecase.TransitionEnqueued, nil
	}
	return r.outcome, nil
}

func TestEngine_StorageFailureOnAssignIsBuffered(t *testing.T) {
	store := memory.NewStore()
	acme := seedTenant(t, store, "Acme")
	gw := classify.New(fixedModel(`{"department":"Billing","confidence":0.9}`), store.Departments(), classify.Config{}, nil)
	convs := failingUpdates{ConversationRepository: store.Conversations(), err: errors.New("connection reset")}
	buf := &recordingBuffer{}

	engine := New(store.Businesses(), convs, store.Messages(), gw, buf, PolicyReuseActive, nil)
	res, err := engine.RouteInboundMessage(context.Background(), InboundMessage{BusinessID: acme.business.ID, Content: "invoice"})
	require.NoError(t, err)
	assert.True(t, res.Buffered)
	assert.Equal(t, "Billing", res.RoutedTo)

	require.Len(t, buf.transitions, 1)
	assert.Equal(t, usecase.Transition{
		ConversationID: res.ConversationID,
		DepartmentID:   acme.depts["Billing"].ID,
		Status:         domain.StatusInProgress,
	}, buf.transitions[0])
}

func TestEngine_StorageFailureWithoutBufferIsInternal(t *testing.T) {
	store := memory.NewStore()
	acme := seedTenant(t, store, "Acme")
	gw := classify.New(fixedModel(`{"department":"Billing","confidence":0.9}`), store.Departments(), classify.Config{}, nil)
	convs := failingUpdates{ConversationRepository: store.Conversations(), err: errors.New("connection reset")}

	for name, buf := range map[string]usecase.TransitionBuffer{
		"no buffer":     nil,
		"buffer failed": &recordingBuffer{err: errors.New("disk full")},
	} {
		t.Run(name, func(t *testing.T) {
			engine := New(store.Businesses(), convs, store.Messages(), gw, buf, PolicyReuseActive, nil)
			_, err := engine.RouteInboundMessage(context.Background(), InboundMessage{BusinessID: acme.business.ID, Content: "invoice"})
			assert.True(t, domain.IsDomainError(err, domain.ErrCodeInternal), "got %v", err)
		})
	}
}

func TestEngine_ClosedDuringRoutingIsLeftAlone(t *testing.T) {
	store := memory.NewStore()
	acme := seedTenant(t, store, "Acme")
	gw := classify.New(fixedModel(`{"department":"Sales","confidence":0.9}`), store.Departments(), classify.Config{}, nil)
	convs := failingUpdates{ConversationRepository: store.Conversations(), err: domain.ErrConversationClosed}
	buf := &recordingBuffer{}

	engine := New(store.Businesses(), convs, store.Messages(), gw, buf, PolicyReuseActive, nil)
	res, err := engine.RouteInboundMessage(context.Background(), InboundMessage{BusinessID: acme.business.ID, Content: "hi"})
	require.NoError(t, err)
	assert.False(t, res.Buffered)
	assert.Empty(t, buf.transitions)
}

func TestEngine_BufferedOnlyWhenTransitionIsStored(t *testing.T) {
	store := memory.NewStore()
	acme := seedTenant(t, store, "Acme")
	gw := classify.New(fixedModel(`{"department":"Billing","confidence":0.9}`), store.Departments(), classify.Config{}, nil)
	convs := failingUpdates{ConversationRepository: store.Conversations(), err: errors.New("connection reset")}

	for _, outcome := range []usecase.TransitionOutcome{usecase.TransitionApplied, usecase.TransitionDropped} {
		t.Run(outcome.String(), func(t *testing.T) {
			buf := &recordingBuffer{outcome: outcome}
			engine := New(store.Businesses(), convs, store.Messages(), gw, buf, PolicyAlwaysCreate, nil)
			res, err := engine.RouteInboundMessage(context.Background(), InboundMessage{BusinessID: acme.business.ID, Content: "invoice"})
			require.NoError(t, err)
			assert.False(t, res.Buffered)
			assert.Len(t, buf.transitions, 1)
		})
	}
}

func TestEngine_TransitionCarriesPreviousDepartment(t *testing.T) {
	store := memory.NewStore()
	acme := seedTenant(t, store, "Acme")
	ctx := context.Background()

	first := newEngine(store, fixedModel(`{"department":"Sales","confidence":0.9}`), classify.Config{}, PolicyReuseActive)
	res, err := first.RouteInboundMessage(ctx, InboundMessage{BusinessID: acme.business.ID, Content: "pricing"})
	require.NoError(t, err)

	gw := classify.New(fixedModel(`{"department":"Billing","confidence":0.9}`), store.Departments(), classify.Config{}, nil)
	convs := failingUpdates{ConversationRepository: store.Conversations(), err: errors.New("connection reset")}
	buf := &recordingBuffer{}
	engine := New(store.Businesses(), convs, store.Messages(), gw, buf, PolicyReuseActive, nil)

	_, err = engine.RouteInboundMessage(ctx, InboundMessage{BusinessID: acme.business.ID, Content: "and the invoice"})
	require.NoError(t, err)
	require.Len(t, buf.transitions, 1)
	assert.Equal(t, res.ConversationID, buf.transitions[0].ConversationID)
	assert.Equal(t, acme.depts["Sales"].ID, buf.transitions[0].PreviousDepartmentID)
	assert.Equal(t, acme.depts["Billing"].ID, buf.transitions[0].DepartmentID)
}
