package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wizmogmbh/ivy-gateway/internal/ports"
)

const checkTimeout = 5 * time.Second

// CheckResult is the outcome of one dependency probe.
type CheckResult struct {
	Healthy   bool   `json:"healthy"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Report aggregates all probes for the readiness endpoint.
type Report struct {
	Ready     bool                   `json:"ready"`
	Version   string                 `json:"version,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker probes one dependency within the given context deadline.
type Checker func(ctx context.Context) error

// Service answers liveness and readiness probes. Liveness is unconditional;
// readiness runs every registered dependency probe concurrently and fails
// when any of them does.
type Service struct {
	started  time.Time
	version  string
	log      *zap.Logger
	mu       sync.RWMutex
	checkers map[string]Checker
}

func NewService(version string, log *zap.Logger) *Service {
	return &Service{
		started:  time.Now(),
		version:  version,
		log:      log,
		checkers: make(map[string]Checker),
	}
}

// RegisterChecker adds a named dependency probe.
func (s *Service) RegisterChecker(name string, check Checker) {
	s.mu.Lock()
	s.checkers[name] = check
	s.mu.Unlock()
	s.log.Info("Registered health checker", zap.String("name", name))
}

// RegisterDatabase probes the Postgres pool behind the gorm handle.
func (s *Service) RegisterDatabase(db *gorm.DB) {
	s.RegisterChecker("database", func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
}

// RegisterCache probes the tenant config cache backend.
func (s *Service) RegisterCache(cache ports.Cache) {
	s.RegisterChecker("cache", func(ctx context.Context) error {
		return cache.Ping()
	})
}

// RegisterQueue probes the event transport via its connection state.
func (s *Service) RegisterQueue(connected func() bool) {
	s.RegisterChecker("queue", func(ctx context.Context) error {
		if !connected() {
			return errors.New("not connected")
		}
		return nil
	})
}

// Health is the liveness report: alive as long as the process answers.
func (s *Service) Health(ctx context.Context) *Report {
	return &Report{
		Ready:     true,
		Version:   s.version,
		Uptime:    time.Since(s.started).String(),
		Timestamp: time.Now(),
	}
}

// Ready runs every registered probe concurrently and aggregates the outcome.
func (s *Service) Ready(ctx context.Context) *Report {
	s.mu.RLock()
	checkers := make(map[string]Checker, len(s.checkers))
	for name, check := range s.checkers {
		checkers[name] = check
	}
	s.mu.RUnlock()

	var (
		wg      sync.WaitGroup
		resMu   sync.Mutex
		results = make(map[string]CheckResult, len(checkers))
	)
	for name, check := range checkers {
		wg.Add(1)
		go func(name string, check Checker) {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()

			start := time.Now()
			err := check(probeCtx)

			result := CheckResult{
				Healthy:   err == nil,
				LatencyMS: time.Since(start).Milliseconds(),
			}
			if err != nil {
				result.Error = err.Error()
			}

			resMu.Lock()
			results[name] = result
			resMu.Unlock()
		}(name, check)
	}
	wg.Wait()

	ready := true
	for name, result := range results {
		if !result.Healthy {
			ready = false
			s.log.Warn("readiness probe failed",
				zap.String("check", name),
				zap.String("error", result.Error),
			)
		}
	}

	return &Report{
		Ready:     ready,
		Version:   s.version,
		Uptime:    time.Since(s.started).String(),
		Timestamp: time.Now(),
		Checks:    results,
	}
}
