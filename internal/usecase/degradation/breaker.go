package degradation

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/aegisreview/aegis/internal/config"
	"github.com/aegisreview/aegis/internal/platform/logging"
)

// Manager owns one gobreaker.CircuitBreaker per named remote
// dependency (llm, queue, knowledge, constraint) and keeps a
// Controller's health flags in sync with each breaker's state,
// grounded on the pack's BR-NOT-055 circuit-breaker-with-gobreaker
// usage: gobreaker.Settings{MaxRequests, Interval, Timeout, ReadyToTrip,
// OnStateChange} wrapping every per-channel remote call.
type Manager struct {
	mu         sync.Mutex
	breakers   map[string]*gobreaker.CircuitBreaker
	controller *Controller
	settings   gobreaker.Settings
	logger     logging.Logger
}

// NewManager builds a Manager whose breakers trip after cfg's
// consecutive-failure threshold and half-open after its configured
// timeout, falling back to a 30s open-state timeout and a threshold of
// 5 when cfg's fields are left zero.
func NewManager(controller *Controller, cfg config.DegradationConfig, logger logging.Logger) *Manager {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	maxRequests := cfg.HalfOpenMaxCalls
	if maxRequests == 0 {
		maxRequests = 2
	}
	timeout, err := time.ParseDuration(cfg.OpenStateTimeout)
	if err != nil || timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Manager{
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
		controller: controller,
		logger:     logger,
		settings: gobreaker.Settings{
			MaxRequests: maxRequests,
			Interval:    0, // never reset failure counts while closed
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		},
	}
}

// dependencyNames the orchestrator/gateway call sites name when
// wrapping a remote call; kept here so SetHealth callers and Execute
// callers agree on the vocabulary.
const (
	DependencyLLM        = "llm"
	DependencyQueue      = "queue"
	DependencyKnowledge  = "knowledge"
	DependencyConstraint = "constraint"
)

func (m *Manager) breaker(name string) *gobreaker.CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := m.breakers[name]; ok {
		return cb
	}
	settings := m.settings
	settings.Name = name
	settings.OnStateChange = func(breakerName string, from, to gobreaker.State) {
		m.onStateChange(breakerName, to)
	}
	cb := gobreaker.NewCircuitBreaker(settings)
	m.breakers[name] = cb
	return cb
}

func (m *Manager) onStateChange(name string, to gobreaker.State) {
	healthy := to != gobreaker.StateOpen
	switch name {
	case DependencyLLM:
		m.controller.SetLLM(Health(healthy))
	case DependencyQueue:
		m.controller.SetQueue(Health(healthy))
	case DependencyKnowledge:
		m.controller.SetKnowledge(Health(healthy))
	case DependencyConstraint:
		m.controller.SetConstraint(Health(healthy))
	}
	if m.logger != nil {
		m.logger.Warn("degradation: breaker state changed", logging.Fields{
			"dependency": name,
			"healthy":    healthy,
		})
	}
}

// Execute runs fn through name's breaker. On trip (the breaker is open)
// or fn's own error, Execute logs the failure and returns fallback
// instead of propagating — the "caller-provided fallback value" spec.md
// §4.8 describes (empty RAG context, empty constraint list, etc).
func Execute[T any](ctx context.Context, m *Manager, name string, fallback T, fn func(ctx context.Context) (T, error)) T {
	cb := m.breaker(name)
	result, err := cb.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		if m.logger != nil {
			m.logger.Warn("degradation: dependency call failed, returning fallback", logging.Fields{
				"dependency": name,
				"error":      err.Error(),
			})
		}
		return fallback
	}
	return result.(T)
}
