package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/helpdesk/domain"
	appLogger "github.com/fastygo/helpdesk/pkg/logger"
	"github.com/fastygo/helpdesk/repository"
)

const (
	DefaultThreshold = 0.5
	DefaultTimeout   = 10 * time.Second
)

// Model is the language-model boundary: one prompt in, raw text out.
type Model interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ModelFunc adapts a plain function to Model.
type ModelFunc func(ctx context.Context, prompt string) (string, error)

func (f ModelFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Disabled is a Model that always fails, so every message lands in the
// fallback department.
var Disabled Model = ModelFunc(func(context.Context, string) (string, error) {
	return "", errors.New("classifier disabled")
})

type Config struct {
	Threshold          float64
	Timeout            time.Duration
	FallbackDepartment string
}

// Decision is the department a message was routed to.
type Decision struct {
	DepartmentID   string
	DepartmentName string
	Label          Label
	Confidence     float64
	Fallback       bool
	Reason         string
}

type Gateway struct {
	model       Model
	departments repository.DepartmentRepository
	cfg         Config
	logger      *zap.Logger
}

func New(model Model, departments repository.DepartmentRepository, cfg Config, logger *zap.Logger) *Gateway {
	if model == nil {
		model = Disabled
	}
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if strings.TrimSpace(cfg.FallbackDepartment) == "" {
		cfg.FallbackDepartment = domain.DefaultFallbackDepartment
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		model:       model,
		departments: departments,
		cfg:         cfg,
		logger:      logger,
	}
}

// Classify picks the department of businessID that should handle text.
// Classifier problems never surface: they route to the fallback department.
// The only errors returned are domain.ErrFallbackMissing and storage
// failures while looking the fallback up.
func (g *Gateway) Classify(ctx context.Context, businessID, text string) (Decision, error) {
	logger := appLogger.WithRequestID(ctx, g.logger).With(zap.String("business_id", businessID))

	decision, err := g.ask(ctx, text)
	if err != nil {
		logger.Warn("classification failed, using fallback department", zap.Error(err))
		decision = Decision{Fallback: true, Reason: err.Error()}
	}

	name := g.cfg.FallbackDepartment
	if !decision.Fallback {
		name = string(decision.Label)
	}

	dept, err := g.departments.FindByName(ctx, businessID, name)
	if err != nil && !decision.Fallback {
		err = fmt.Errorf("%w: resolve %q: %v", ErrClassification, name, err)
		logger.Warn("classified label not mapped, using fallback department", zap.Error(err))
		decision.Fallback = true
		decision.Reason = err.Error()
		dept, err = g.departments.FindByName(ctx, businessID, g.cfg.FallbackDepartment)
	}
	if err != nil {
		if errors.Is(err, domain.ErrDepartmentNotFound) {
			logger.Error("fallback department missing", zap.String("department", g.cfg.FallbackDepartment))
			return Decision{}, domain.ErrFallbackMissing
		}
		return Decision{}, domain.Storage("lookup fallback department", err)
	}

	decision.DepartmentID = dept.ID
	decision.DepartmentName = dept.Name
	logger.Info("message classified",
		zap.String("department", decision.DepartmentName),
		zap.String("label", string(decision.Label)),
		zap.Float64("confidence", decision.Confidence),
		zap.Bool("fallback", decision.Fallback),
		zap.String("reason", decision.Reason),
	)
	return decision, nil
}

// ask runs the single, time-boxed model call and applies the threshold.
func (g *Gateway) ask(ctx context.Context, text string) (Decision, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	raw, err := g.model.Complete(callCtx, BuildPrompt(text))
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return Decision{}, fmt.Errorf("%w: timed out after %s", ErrClassification, g.cfg.Timeout)
		}
		return Decision{}, fmt.Errorf("%w: %v", ErrClassification, err)
	}

	answer, err := Parse(raw)
	if err != nil {
		return Decision{}, err
	}

	decision := Decision{Label: answer.Label, Confidence: answer.Confidence, Reason: "classified"}
	if answer.Confidence < g.cfg.Threshold {
		decision.Fallback = true
		decision.Reason = fmt.Sprintf("confidence %.2f below threshold %.2f", answer.Confidence, g.cfg.Threshold)
	}
	return decision, nil
}
