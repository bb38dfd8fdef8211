// Package pipeline runs one search-and-summarize request end to end:
// validate, create a pending record, search, assemble context, complete,
// persist.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/kalambet/askweb/internal/apperr"
	"github.com/kalambet/askweb/internal/completion"
	"github.com/kalambet/askweb/internal/composer"
	"github.com/kalambet/askweb/internal/storage"
)

// MaxRecentLimit caps how many records Recent returns.
const MaxRecentLimit = 100

// Searcher fetches web results for a query.
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string) ([]storage.Result, error)
}

// Completer produces an answer for a query from an assembled context.
type Completer interface {
	Name() string
	Complete(ctx context.Context, query, searchContext string) (completion.Answer, error)
}

// Pipeline wires the store and both providers together.
type Pipeline struct {
	store     storage.Store
	searcher  Searcher
	completer Completer
	logger    *slog.Logger
}

// New creates a Pipeline. A nil logger uses slog.Default().
func New(store storage.Store, searcher Searcher, completer Completer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:     store,
		searcher:  searcher,
		completer: completer,
		logger:    logger,
	}
}

type searchInput struct {
	Query string
}

func (in searchInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Query, validation.Required.Error("query is required")),
	)
}

// Run executes the pipeline for query and returns the completed record.
//
// Failures after the record is created leave it pending. The caller's
// cancellation is ignored once Run starts so a dropped client connection
// never interrupts a provider call halfway.
func (p *Pipeline) Run(ctx context.Context, query string) (storage.Record, error) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	in := searchInput{Query: strings.TrimSpace(query)}
	if err := in.Validate(); err != nil {
		return storage.Record{}, apperr.NewValidation("%s", validationMessage(err))
	}

	log := p.logger.With("run_id", uuid.NewString())

	rec, err := p.store.Create(ctx, in.Query)
	if err != nil {
		log.Error("creating search record", "error", err)
		return storage.Record{}, apperr.NewStorage(err, "creating search record")
	}
	log = log.With("search_id", rec.ID)
	log.Debug("search record created", "query", in.Query)

	results, err := p.searcher.Search(ctx, in.Query)
	if err != nil {
		err = classifyProviderError(p.searcher.Name(), err)
		p.logProviderError(log, "web search failed", err)
		return storage.Record{}, err
	}
	log.Debug("web search complete", "results", len(results))

	searchContext := composer.Assemble(results)
	log.Debug("context assembled", "bytes", len(searchContext), "est_tokens", composer.EstimateTokens(searchContext))

	answer, err := p.completer.Complete(ctx, in.Query, searchContext)
	if err != nil {
		err = classifyProviderError(p.completer.Name(), err)
		p.logProviderError(log, "completion failed", err)
		return storage.Record{}, err
	}
	if answer.Degraded {
		log.Warn("completion returned no content, storing fallback answer", "provider", p.completer.Name())
	}

	updated, err := p.store.Update(ctx, rec.ID, storage.Outcome{
		Answer:   answer.Text,
		Results:  results,
		Degraded: answer.Degraded,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Error("search record vanished before update")
			return storage.Record{}, apperr.NewInternal(err, "search record %d disappeared before it could be updated", rec.ID)
		}
		log.Error("updating search record", "error", err)
		return storage.Record{}, apperr.NewStorage(err, "updating search record")
	}

	log.Info("search complete",
		"results", len(results),
		"degraded", answer.Degraded,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return updated, nil
}

// Get returns one record. A missing record is reported as storage.ErrNotFound.
func (p *Pipeline) Get(ctx context.Context, id int64) (storage.Record, error) {
	rec, err := p.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Record{}, err
		}
		return storage.Record{}, apperr.NewStorage(err, "reading search %d", id)
	}
	return rec, nil
}

// Recent returns the newest records. limit <= 0 selects the default and
// values above MaxRecentLimit are clamped.
func (p *Pipeline) Recent(ctx context.Context, limit int) ([]storage.Record, error) {
	if limit <= 0 {
		limit = storage.DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}
	recs, err := p.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, apperr.NewStorage(err, "listing searches")
	}
	if recs == nil {
		recs = []storage.Record{}
	}
	return recs, nil
}

// classifyProviderError keeps classified errors as they are and treats
// anything else coming out of a provider as an upstream failure.
func classifyProviderError(provider string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.NewUpstream(provider, 0, err, "request failed")
}

func (p *Pipeline) logProviderError(log *slog.Logger, msg string, err error) {
	attrs := []any{"kind", apperr.KindOf(err).String(), "error", err}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		if ae.Provider != "" {
			attrs = append(attrs, "provider", ae.Provider)
		}
		if ae.Status != 0 {
			attrs = append(attrs, "status", ae.Status)
		}
	}
	log.Error(msg, attrs...)
}

// validationMessage flattens ozzo's field error map into one sentence.
func validationMessage(err error) string {
	var errs validation.Errors
	if errors.As(err, &errs) {
		for _, fe := range errs {
			return fe.Error()
		}
	}
	return err.Error()
}
