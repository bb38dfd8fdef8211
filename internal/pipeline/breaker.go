package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kalambet/askweb/internal/apperr"
	"github.com/kalambet/askweb/internal/completion"
	"github.com/kalambet/askweb/internal/storage"
)

const (
	defaultBreakerMaxFailures uint32 = 5
	defaultBreakerTimeout            = 30 * time.Second
	defaultBreakerInterval           = 60 * time.Second
)

// BreakerConfig configures provider circuit breakers.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before a half-open probe.
	Timeout time.Duration
	// Interval clears failure counts while closed. Zero uses the default.
	Interval time.Duration
}

func newBreaker[T any](name string, cfg BreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker[T] {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultBreakerTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultBreakerInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// A missing key is the operator's problem, not the provider's.
		IsSuccessful: func(err error) bool {
			return err == nil || apperr.Is(err, apperr.Configuration)
		},
	})
}

func breakerError(provider string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperr.NewUpstream(provider, 0, err, "circuit open")
	}
	return err
}

// GuardedSearcher is a Searcher behind a circuit breaker.
type GuardedSearcher struct {
	inner   Searcher
	breaker *gobreaker.CircuitBreaker[[]storage.Result]
}

// GuardSearcher wraps s so repeated failures fail fast without reaching
// the provider.
func GuardSearcher(s Searcher, cfg BreakerConfig, logger *slog.Logger) *GuardedSearcher {
	return &GuardedSearcher{
		inner:   s,
		breaker: newBreaker[[]storage.Result]("search:"+s.Name(), cfg, logger),
	}
}

func (g *GuardedSearcher) Name() string { return g.inner.Name() }

func (g *GuardedSearcher) Search(ctx context.Context, query string) ([]storage.Result, error) {
	results, err := g.breaker.Execute(func() ([]storage.Result, error) {
		return g.inner.Search(ctx, query)
	})
	if err != nil {
		return nil, breakerError(g.inner.Name(), err)
	}
	return results, nil
}

// State reports the breaker state.
func (g *GuardedSearcher) State() gobreaker.State { return g.breaker.State() }

// GuardedCompleter is a Completer behind a circuit breaker.
type GuardedCompleter struct {
	inner   Completer
	breaker *gobreaker.CircuitBreaker[completion.Answer]
}

// GuardCompleter wraps c with a circuit breaker. A degraded answer counts
// as success.
func GuardCompleter(c Completer, cfg BreakerConfig, logger *slog.Logger) *GuardedCompleter {
	return &GuardedCompleter{
		inner:   c,
		breaker: newBreaker[completion.Answer]("completion:"+c.Name(), cfg, logger),
	}
}

func (g *GuardedCompleter) Name() string { return g.inner.Name() }

func (g *GuardedCompleter) Complete(ctx context.Context, query, searchContext string) (completion.Answer, error) {
	ans, err := g.breaker.Execute(func() (completion.Answer, error) {
		return g.inner.Complete(ctx, query, searchContext)
	})
	if err != nil {
		return completion.Answer{}, breakerError(g.inner.Name(), err)
	}
	return ans, nil
}

// State reports the breaker state.
func (g *GuardedCompleter) State() gobreaker.State { return g.breaker.State() }

var (
	_ Searcher  = (*GuardedSearcher)(nil)
	_ Completer = (*GuardedCompleter)(nil)
)
