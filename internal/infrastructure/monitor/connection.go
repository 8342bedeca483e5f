package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultProbeTimeout = 3 * time.Second

// Sizer reports the number of pending buffered transitions.
type Sizer interface {
	Size() (int, error)
}

// Monitor periodically probes the configured dependencies and caches the
// last result for the health endpoint and the buffer processor.
type Monitor struct {
	checks []Check
	buffer Sizer

	status   Status
	mu       sync.RWMutex
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

func New(interval time.Duration, buf Sizer, logger *zap.Logger, checks ...Check) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		checks:   checks,
		buffer:   buf,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   logger,
		status:   Status{Online: true, Checks: map[string]CheckResult{}},
	}
}

// Start runs one refresh synchronously so the first health read is
// meaningful, then keeps probing in the background.
func (m *Monitor) Start() {
	m.Refresh(context.Background())
	go m.loop()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Online
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.status
	out.Checks = make(map[string]CheckResult, len(m.status.Checks))
	for k, v := range m.status.Checks {
		out.Checks[k] = v
	}
	return out
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Refresh(context.Background())
		case <-m.stopCh:
			return
		}
	}
}

// Refresh probes every check once and stores the result.
func (m *Monitor) Refresh(ctx context.Context) Status {
	status := Status{
		Online:    true,
		Checks:    make(map[string]CheckResult, len(m.checks)),
		LastCheck: time.Now(),
	}

	for _, check := range m.checks {
		result := m.run(ctx, check)
		status.Checks[check.Name] = result
		if check.Critical && !result.OK {
			status.Online = false
		}
	}

	if m.buffer != nil {
		size, err := m.buffer.Size()
		if err != nil {
			m.logger.Warn("buffer size check failed", zap.Error(err))
			status.Checks["buffer"] = CheckResult{OK: false, Error: err.Error()}
		} else {
			status.Checks["buffer"] = CheckResult{OK: true}
		}
		status.BufferSize = size
	}

	m.mu.Lock()
	previous := m.status.Online
	m.status = status
	m.mu.Unlock()

	if previous != status.Online {
		m.logger.Info("dependency status changed", zap.Bool("online", status.Online))
	}
	return status
}

func (m *Monitor) run(ctx context.Context, check Check) CheckResult {
	if check.Probe == nil {
		return CheckResult{OK: false, Error: "not configured"}
	}
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := check.Probe(probeCtx); err != nil {
		m.logger.Debug("probe failed", zap.String("check", check.Name), zap.Error(err))
		return CheckResult{OK: false, Error: err.Error()}
	}
	return CheckResult{OK: true}
}
