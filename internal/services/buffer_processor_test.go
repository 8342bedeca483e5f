package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/helpdesk/domain"
	"github.com/fastygo/helpdesk/internal/infrastructure/buffer"
	"github.com/fastygo/helpdesk/repository"
	"github.com/fastygo/helpdesk/repository/memory"
	"github.com/fastygo/helpdesk/usecase"
)

type toggle struct{ online atomic.Bool }

func (t *toggle) IsOnline() bool { return t.online.Load() }

// flakyConversations fails updates while down is set.
type flakyConversations struct {
	repository.ConversationRepository
	down atomic.Bool
}

func (f *flakyConversations) Update(ctx context.Context, id string, upd repository.ConversationUpdate) (*domain.Conversation, error) {
	if f.down.Load() {
		return nil, errors.New("connection refused")
	}
	return f.ConversationRepository.Update(ctx, id, upd)
}

type harness struct {
	store     *memory.Store
	buf       *buffer.Store
	convs     *flakyConversations
	monitor   *toggle
	processor *BufferProcessor
	conv      *domain.Conversation
	dept      *domain.Department
}

func newHarness(t *testing.T, maxRetries int) *harness {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	b := &domain.Business{Name: "Acme"}
	require.NoError(t, store.Businesses().Create(ctx, b))
	d := &domain.Department{BusinessID: b.ID, Name: "Billing"}
	require.NoError(t, store.Departments().Create(ctx, d))
	conv := &domain.Conversation{BusinessID: b.ID}
	require.NoError(t, store.Conversations().Create(ctx, conv))

	buf, err := buffer.Open(filepath.Join(t.TempDir(), "buffer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = buf.Close() })

	h := &harness{
		store:   store,
		buf:     buf,
		convs:   &flakyConversations{ConversationRepository: store.Conversations()},
		monitor: &toggle{},
		conv:    conv,
		dept:    d,
	}
	h.monitor.online.Store(true)
	h.processor = NewBufferProcessor(buf, h.monitor, h.convs, nil, ProcessorConfig{
		Interval:   time.Hour,
		MaxRetries: maxRetries,
	})
	return h
}

func (h *harness) transition() usecase.Transition {
	return usecase.Transition{ConversationID: h.conv.ID, DepartmentID: h.dept.ID, Status: domain.StatusInProgress}
}

func (h *harness) size(t *testing.T) int {
	t.Helper()
	n, err := h.buf.Size()
	require.NoError(t, err)
	return n
}

func TestBridge_AppliesImmediatelyWhenHealthy(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()

	outcome, err := NewBufferBridge(h.processor).BufferTransition(ctx, h.transition())
	require.NoError(t, err)
	assert.Equal(t, usecase.TransitionApplied, outcome)
	assert.Zero(t, h.size(t))

	conv, err := h.store.Conversations().Find(ctx, h.conv.ID, repository.ConversationFilter{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, conv.Status)
	assert.Equal(t, h.dept.ID, conv.DepartmentID)
}

func TestBridge_BuffersThenDrainsAfterRecovery(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()
	h.convs.down.Store(true)
	h.monitor.online.Store(false)

	outcome, err := NewBufferBridge(h.processor).BufferTransition(ctx, h.transition())
	require.NoError(t, err)
	assert.Equal(t, usecase.TransitionEnqueued, outcome)
	assert.Equal(t, 1, h.size(t))

	// offline: drain is a no-op
	require.NoError(t, h.processor.Drain(ctx))
	assert.Equal(t, 1, h.size(t))

	h.convs.down.Store(false)
	h.monitor.online.Store(true)
	require.NoError(t, h.processor.Drain(ctx))
	assert.Zero(t, h.size(t))

	conv, err := h.store.Conversations().Find(ctx, h.conv.ID, repository.ConversationFilter{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, conv.Status)
	assert.Equal(t, "Billing", conv.DepartmentName)
}

func TestDrain_RequeuesThenDropsAfterMaxRetries(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()
	h.convs.down.Store(true)

	require.NoError(t, h.buf.Enqueue(buffer.Item{ConversationID: h.conv.ID, Status: string(domain.StatusInProgress)}))

	require.NoError(t, h.processor.Drain(ctx))
	pending, ok, err := h.buf.Pending(h.conv.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, pending.Retries)
	assert.Equal(t, "connection refused", pending.LastError)

	require.NoError(t, h.processor.Drain(ctx))
	assert.Zero(t, h.size(t))
}

func TestDrain_DropsTransitionForClosedConversation(t *testing.T) {
	h := newHarness(t, 5)
	ctx := context.Background()

	closed := domain.StatusClosed
	_, err := h.store.Conversations().Update(ctx, h.conv.ID, repository.ConversationUpdate{Status: &closed})
	require.NoError(t, err)

	require.NoError(t, h.buf.Enqueue(buffer.Item{ConversationID: h.conv.ID, DepartmentID: h.dept.ID, Status: string(domain.StatusInProgress)}))
	require.NoError(t, h.processor.Drain(ctx))
	assert.Zero(t, h.size(t))

	conv, err := h.store.Conversations().Find(ctx, h.conv.ID, repository.ConversationFilter{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, conv.Status)
	assert.Empty(t, conv.DepartmentID)
}

func TestBridge_RejectsEmptyTransition(t *testing.T) {
	h := newHarness(t, 3)
	_, err := NewBufferBridge(h.processor).BufferTransition(context.Background(), usecase.Transition{})
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestProcessor_StartStop(t *testing.T) {
	h := newHarness(t, 3)
	h.processor.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, h.processor.Stop(ctx))
}

func TestDrain_KeepsDepartmentReassignedSinceBuffering(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()
	sales := &domain.Department{BusinessID: h.conv.BusinessID, Name: "Sales"}
	require.NoError(t, h.store.Departments().Create(ctx, sales))

	h.convs.down.Store(true)
	h.monitor.online.Store(false)
	outcome, err := NewBufferBridge(h.processor).BufferTransition(ctx, h.transition())
	require.NoError(t, err)
	require.Equal(t, usecase.TransitionEnqueued, outcome)

	// store recovers and an admin reassigns before the next drain
	h.convs.down.Store(false)
	_, err = h.store.Conversations().Update(ctx, h.conv.ID, repository.ConversationUpdate{DepartmentID: &sales.ID})
	require.NoError(t, err)

	h.monitor.online.Store(true)
	require.NoError(t, h.processor.Drain(ctx))
	assert.Zero(t, h.size(t))

	conv, err := h.store.Conversations().Find(ctx, h.conv.ID, repository.ConversationFilter{})
	require.NoError(t, err)
	assert.Equal(t, sales.ID, conv.DepartmentID)
	assert.Equal(t, domain.StatusInProgress, conv.Status)
}

func TestBridge_ReportsDroppedTransitionForClosedConversation(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()

	closed := domain.StatusClosed
	_, err := h.store.Conversations().Update(ctx, h.conv.ID, repository.ConversationUpdate{Status: &closed})
	require.NoError(t, err)

	outcome, err := NewBufferBridge(h.processor).BufferTransition(ctx, h.transition())
	require.NoError(t, err)
	assert.Equal(t, usecase.TransitionDropped, outcome)
	assert.Zero(t, h.size(t))
}
