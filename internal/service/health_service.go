package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pinger is implemented by each dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a plain function to the Pinger interface.
type PingerFunc func(ctx context.Context) error

// Ping calls the function.
func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthService probes dependencies on a fixed interval and keeps the latest
// verdict for the readiness endpoint. Liveness stays unconditional; readiness
// flips as dependencies come and go.
type HealthService struct {
	deps     map[string]Pinger
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	mu     sync.RWMutex
	status map[string]string
	ready  bool
}

// NewHealthService constructs the probe loop over named dependencies.
func NewHealthService(deps map[string]Pinger, interval, timeout time.Duration, logger *zap.Logger) *HealthService {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthService{
		deps:     deps,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		status:   map[string]string{},
	}
}

// Start runs an immediate probe, then re-probes on the interval until the
// context is cancelled.
func (s *HealthService) Start(ctx context.Context) {
	s.probe(ctx)
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.probe(ctx)
			}
		}
	}()
}

// Ready reports the latest probe verdict.
func (s *HealthService) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Status returns the per-dependency outcome of the latest probe.
func (s *HealthService) Status() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.status))
	for name, state := range s.status {
		out[name] = state
	}
	return out
}

func (s *HealthService) probe(ctx context.Context) {
	status := make(map[string]string, len(s.deps))
	ready := true
	for name, dep := range s.deps {
		probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err := dep.Ping(probeCtx)
		cancel()
		if err != nil {
			status[name] = "down"
			ready = false
			s.logger.Warn("dependency probe failed", zap.String("dependency", name), zap.Error(err))
			continue
		}
		status[name] = "up"
	}

	s.mu.Lock()
	s.status = status
	s.ready = ready
	s.mu.Unlock()
}
