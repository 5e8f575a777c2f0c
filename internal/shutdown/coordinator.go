// Package shutdown sequences graceful teardown: stop taking work, drain
// what is in flight, stop background workers, then release resources.
// Phases run in order; everything inside a phase runs concurrently.
package shutdown

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Service is anything that can be torn down gracefully.
type Service interface {
	// Name identifies the service in shutdown logs.
	Name() string
	// Shutdown returns once teardown is complete or ctx expires.
	Shutdown(ctx context.Context) error
}

// ServiceFunc adapts a plain function to Service.
type ServiceFunc struct {
	ServiceName string
	ShutdownFn  func(ctx context.Context) error
}

func (s ServiceFunc) Name() string                       { return s.ServiceName }
func (s ServiceFunc) Shutdown(ctx context.Context) error { return s.ShutdownFn(ctx) }

// Phase orders teardown. Lower phases run first.
type Phase int

const (
	// PhasePreDrain stops intake of new work (listeners, consumers).
	PhasePreDrain Phase = iota
	// PhaseDrain waits out in-flight HTTP requests and calls.
	PhaseDrain
	// PhaseShutdown stops background workers (enricher, pollers).
	PhaseShutdown
	// PhaseCleanup releases resources (DB pools, flushes).
	PhaseCleanup
)

func (p Phase) String() string {
	switch p {
	case PhasePreDrain:
		return "pre-drain"
	case PhaseDrain:
		return "drain"
	case PhaseShutdown:
		return "shutdown"
	case PhaseCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

var allPhases = []Phase{PhasePreDrain, PhaseDrain, PhaseShutdown, PhaseCleanup}

// Config holds coordinator settings.
type Config struct {
	// Timeout bounds the entire shutdown sequence across all phases.
	Timeout time.Duration
}

// DefaultConfig allows 30 seconds for the whole sequence.
func DefaultConfig() *Config {
	return &Config{Timeout: 30 * time.Second}
}

// Coordinator runs registered services through the phase sequence once.
type Coordinator struct {
	mu       sync.Mutex
	byPhase  map[Phase][]Service
	timeout  time.Duration
	logger   *zap.Logger
	started  chan struct{}
	finished chan struct{}
	once     sync.Once
}

// NewCoordinator creates a coordinator. A nil config gets DefaultConfig.
func NewCoordinator(cfg *Config, logger *zap.Logger) *Coordinator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Coordinator{
		byPhase:  make(map[Phase][]Service),
		timeout:  cfg.Timeout,
		logger:   logger,
		started:  make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// Register adds a service to a phase.
func (c *Coordinator) Register(phase Phase, svc Service) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byPhase[phase] = append(c.byPhase[phase], svc)
}

// RegisterFunc registers a bare function under a name.
func (c *Coordinator) RegisterFunc(phase Phase, name string, fn func(ctx context.Context) error) {
	c.Register(phase, ServiceFunc{ServiceName: name, ShutdownFn: fn})
}

// Shutdown starts the sequence on first call and waits for it to finish.
// Subsequent callers join the same run. Returns ctx.Err if the caller's
// context expires first; the sequence itself keeps its own timeout.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.once.Do(func() {
		close(c.started)
		go c.run()
	})

	select {
	case <-c.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ShutdownCh is closed the moment shutdown begins; readiness probes
// watch it to start failing before the listener closes.
func (c *Coordinator) ShutdownCh() <-chan struct{} {
	return c.started
}

func (c *Coordinator) run() {
	defer close(c.finished)

	// The sequence gets its full budget even if the triggering caller's
	// context is already cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	c.logger.Info("graceful shutdown started", zap.Duration("timeout", c.timeout))

	var failed []error
	for _, phase := range allPhases {
		c.mu.Lock()
		services := c.byPhase[phase]
		c.mu.Unlock()
		if len(services) == 0 {
			continue
		}

		c.logger.Info("shutdown phase",
			zap.String("phase", phase.String()),
			zap.Int("services", len(services)),
		)
		failed = append(failed, c.runPhase(ctx, phase, services)...)

		if ctx.Err() != nil {
			c.logger.Error("shutdown budget exhausted",
				zap.String("phase", phase.String()),
				zap.Error(ctx.Err()),
			)
			break
		}
	}

	if len(failed) > 0 {
		c.logger.Error("shutdown finished with errors", zap.Int("failures", len(failed)))
		return
	}
	c.logger.Info("graceful shutdown complete")
}

func (c *Coordinator) runPhase(ctx context.Context, phase Phase, services []Service) []error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(services))

	for _, svc := range services {
		wg.Add(1)
		go func(s Service) {
			defer wg.Done()
			start := time.Now()
			if err := s.Shutdown(ctx); err != nil {
				c.logger.Error("service shutdown failed",
					zap.String("service", s.Name()),
					zap.String("phase", phase.String()),
					zap.Duration("took", time.Since(start)),
					zap.Error(err),
				)
				errCh <- fmt.Errorf("%s: %w", s.Name(), err)
				return
			}
			c.logger.Debug("service shut down",
				zap.String("service", s.Name()),
				zap.Duration("took", time.Since(start)),
			)
		}(svc)
	}

	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	return errs
}
