package monitor

import (
	"context"
	"time"
)

// ProbeFunc returns nil when the dependency is reachable.
type ProbeFunc func(ctx context.Context) error

// Check is a single named dependency probe. Only critical checks decide
// whether the service is online.
type Check struct {
	Name     string
	Critical bool
	Timeout  time.Duration
	Probe    ProbeFunc
}

type CheckResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type Status struct {
	Online     bool                   `json:"online"`
	Checks     map[string]CheckResult `json:"checks"`
	BufferSize int                    `json:"buffer_size"`
	LastCheck  time.Time              `json:"last_check"`
}
