package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/helpdesk/domain"
	"github.com/fastygo/helpdesk/internal/infrastructure/buffer"
	"github.com/fastygo/helpdesk/repository"
	"github.com/fastygo/helpdesk/usecase"
)

// ConnectionHealth abstracts the connection monitor functionality.
type ConnectionHealth interface {
	IsOnline() bool
}

// ProcessorConfig controls how frequently the buffer is drained.
type ProcessorConfig struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
	Retention  time.Duration
}

// BufferProcessor replays buffered conversation transitions once the
// primary store is reachable again.
type BufferProcessor struct {
	store         *buffer.Store
	monitor       ConnectionHealth
	conversations repository.ConversationRepository
	logger        *zap.Logger
	cron          *cron.Cron
	cfg           ProcessorConfig
}

func NewBufferProcessor(
	store *buffer.Store,
	monitor ConnectionHealth,
	conversations repository.ConversationRepository,
	logger *zap.Logger,
	cfg ProcessorConfig,
) *BufferProcessor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	bp := &BufferProcessor{
		store:         store,
		monitor:       monitor,
		conversations: conversations,
		logger:        logger,
		cfg:           cfg,
		cron:          cron.New(cron.WithSeconds()),
	}

	drainSchedule := fmt.Sprintf("@every %ds", max(1, int(cfg.Interval.Seconds())))
	_, _ = bp.cron.AddFunc(drainSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Interval)
		defer cancel()
		if err := bp.Drain(ctx); err != nil {
			bp.logger.Error("buffer drain failed", zap.Error(err))
		}
	})
	_, _ = bp.cron.AddFunc("@hourly", func() {
		removed, err := bp.store.Cleanup(time.Now().Add(-cfg.Retention))
		if err != nil {
			bp.logger.Error("buffer cleanup failed", zap.Error(err))
			return
		}
		if removed > 0 {
			bp.logger.Warn("expired buffered transitions dropped", zap.Int("count", removed))
		}
	})

	return bp
}

// Start launches the cron scheduler.
func (bp *BufferProcessor) Start() {
	if bp == nil || bp.cron == nil {
		return
	}
	bp.cron.Start()
	bp.logger.Info("buffer processor started", zap.Duration("interval", bp.cfg.Interval))
}

// Stop waits for a running drain to finish or ctx to expire.
func (bp *BufferProcessor) Stop(ctx context.Context) error {
	if bp == nil || bp.cron == nil {
		return nil
	}
	stopCtx := bp.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	bp.logger.Info("buffer processor stopped")
	return nil
}

// Drain replays one batch synchronously. Nothing happens while the monitor
// reports the store offline.
func (bp *BufferProcessor) Drain(ctx context.Context) error {
	if bp == nil || bp.store == nil {
		return nil
	}
	if bp.monitor != nil && !bp.monitor.IsOnline() {
		bp.logger.Debug("skipping buffer drain (offline)")
		return nil
	}

	items, err := bp.store.GetBatch(bp.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, item := range items {
		logger := bp.logger.With(
			zap.String("item_id", item.ID),
			zap.String("conversation_id", item.ConversationID),
		)

		err := bp.apply(ctx, logger, item)
		switch {
		case err == nil:
			logger.Info("buffered transition applied")
		case isPermanent(err):
			logger.Warn("dropping buffered transition", zap.Error(err))
		case item.Retries+1 >= bp.cfg.MaxRetries:
			logger.Error("dropping buffered transition (max retries reached)", zap.Error(err))
		default:
			logger.Warn("buffered transition failed, requeueing", zap.Error(err))
			if err := bp.store.Requeue(item, err); err != nil {
				logger.Error("failed to requeue buffered transition", zap.Error(err))
			}
			continue
		}

		if err := bp.store.Remove(item); err != nil {
			logger.Warn("failed to purge buffered transition", zap.Error(err))
		}
	}
	return nil
}

// BufferTransition tries the transition once more when the store looks
// healthy and persists it otherwise. The outcome says which happened.
func (bp *BufferProcessor) BufferTransition(ctx context.Context, item buffer.Item) (usecase.TransitionOutcome, error) {
	if bp == nil || bp.store == nil {
		return 0, errors.New("buffer processor not configured")
	}
	logger := bp.logger.With(zap.String("conversation_id", item.ConversationID))

	if bp.monitor == nil || bp.monitor.IsOnline() {
		err := bp.apply(ctx, logger, item)
		switch {
		case err == nil:
			return usecase.TransitionApplied, nil
		case isPermanent(err):
			logger.Warn("transition can no longer apply, dropping", zap.Error(err))
			return usecase.TransitionDropped, nil
		}
		logger.Warn("immediate transition failed, buffering", zap.Error(err))
	}
	if err := bp.store.Enqueue(item); err != nil {
		return 0, err
	}
	return usecase.TransitionEnqueued, nil
}

// Size returns the number of buffered items.
func (bp *BufferProcessor) Size() (int, error) {
	if bp == nil || bp.store == nil {
		return 0, nil
	}
	return bp.store.Size()
}

// apply writes the transition. A guarded department is kept when the
// conversation was reassigned since the transition was recorded.
func (bp *BufferProcessor) apply(ctx context.Context, logger *zap.Logger, item buffer.Item) error {
	update := repository.ConversationUpdate{IfDepartmentID: item.PreviousDepartmentID}
	if item.Status != "" {
		status := domain.ConversationStatus(item.Status)
		update.Status = &status
	}
	if item.DepartmentID != "" {
		department := item.DepartmentID
		update.DepartmentID = &department
	}
	if update.Status == nil && update.DepartmentID == nil {
		return domain.ErrInvalidPayload
	}
	conv, err := bp.conversations.Update(ctx, item.ConversationID, update)
	if err != nil {
		return err
	}
	if update.DepartmentID != nil && conv.DepartmentID != item.DepartmentID {
		logger.Info("conversation reassigned since transition was recorded, keeping current department",
			zap.String("buffered_department_id", item.DepartmentID),
			zap.String("current_department_id", conv.DepartmentID),
		)
	}
	return nil
}

// isPermanent reports errors that replaying can never fix: the conversation
// is gone, already closed, or the item is malformed.
func isPermanent(err error) bool {
	var dErr *domain.Error
	return errors.As(err, &dErr)
}
