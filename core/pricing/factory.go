package pricing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/honeybadger-technologies/finopsguard/core/crm"
	apperrors "github.com/honeybadger-technologies/finopsguard/internal/errors"
	"github.com/honeybadger-technologies/finopsguard/internal/metrics"
)

// Options configures price resolution.
type Options struct {
	// LiveEnabled turns the live tier on globally.
	LiveEnabled bool

	// FallbackToStatic falls through to the catalog when live fails.
	// When false, a live failure surfaces as pricing_unavailable.
	FallbackToStatic bool

	// Timeout is the per-attempt deadline for live calls.
	Timeout time.Duration

	// MaxRetries bounds live retries after the first attempt.
	MaxRetries int

	// RetryBaseDelay seeds the full-jitter backoff.
	RetryBaseDelay time.Duration

	// ProviderParallelism caps concurrent lookups within one provider group.
	ProviderParallelism int
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = 100 * time.Millisecond
	}
	if o.ProviderParallelism < 1 {
		o.ProviderParallelism = 8
	}
	return o
}

// Factory is the two-tier price resolver. It consults registered live
// sources first when enabled and normalizes everything to PriceRecord.
type Factory struct {
	catalog *Catalog
	sources *SourceRegistry
	opts    Options
	log     *zap.Logger

	mu      sync.Mutex
	wrapped map[string]*RetrySource
}

// NewFactory creates a resolver over the given catalog and live sources.
// A nil registry disables the live tier regardless of options.
func NewFactory(catalog *Catalog, sources *SourceRegistry, opts Options, log *zap.Logger) *Factory {
	if log == nil {
		log = zap.NewNop()
	}
	return &Factory{
		catalog: catalog,
		sources: sources,
		opts:    opts.withDefaults(),
		log:     log,
		wrapped: make(map[string]*RetrySource),
	}
}

// liveSource returns the retry-wrapped live source for a provider.
func (f *Factory) liveSource(provider string) (*RetrySource, bool) {
	if !f.opts.LiveEnabled || f.sources == nil {
		return nil, false
	}
	src, ok := f.sources.Get(provider)
	if !ok {
		return nil, false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.wrapped[provider]; ok {
		return w, true
	}
	w := NewRetrySource(src, f.opts.Timeout, f.opts.MaxRetries, f.opts.RetryBaseDelay)
	f.wrapped[provider] = w
	return w, true
}

// PriceResource resolves one resource. It is total when the static fallback
// is enabled: every resource gets a PriceRecord, unpriceable ones the
// zero-cost unknown record. With fallback disabled a live failure returns a
// pricing_unavailable error instead.
func (f *Factory) PriceResource(ctx context.Context, res *crm.CanonicalResource) (PriceRecord, error) {
	if err := ctx.Err(); err != nil {
		return PriceRecord{}, err
	}

	provider := res.Provider()

	if src, ok := f.liveSource(provider); ok {
		rec, err := src.Price(ctx, res)
		if err == nil {
			rec.Source = PriceSourceLive
			rec.Confidence = ConfidenceHigh
			metrics.PricingLookupsTotal.WithLabelValues(provider, string(PriceSourceLive)).Inc()
			return rec, nil
		}
		if ctx.Err() != nil {
			return PriceRecord{}, ctx.Err()
		}
		if !f.opts.FallbackToStatic {
			return PriceRecord{}, apperrors.PricingUnavailable(provider, err)
		}
		metrics.PricingFallbacksTotal.WithLabelValues(provider).Inc()
		f.log.Debug("live pricing failed, using static catalog",
			zap.String("resource", res.ID),
			zap.String("provider", provider),
			zap.Error(err))
	}

	rec := f.catalog.PriceResource(res)
	metrics.PricingLookupsTotal.WithLabelValues(provider, string(PriceSourceStatic)).Inc()
	return rec, nil
}

// PriceModel resolves every resource in a model. Provider groups run
// concurrently and each group fans out up to ProviderParallelism lookups.
// The result maps resource id to its record; on error (cancellation or
// pricing_unavailable) no partial result is returned.
func (f *Factory) PriceModel(ctx context.Context, model *crm.Model) (map[string]PriceRecord, error) {
	records := make(map[string]PriceRecord, len(model.Resources))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for _, group := range model.ResourcesByProvider() {
		group := group
		g.Go(func() error {
			pg, pctx := errgroup.WithContext(ctx)
			pg.SetLimit(f.opts.ProviderParallelism)
			for _, res := range group {
				res := res
				pg.Go(func() error {
					rec, err := f.PriceResource(pctx, res)
					if err != nil {
						return err
					}
					mu.Lock()
					records[res.ID] = rec
					mu.Unlock()
					return nil
				})
			}
			return pg.Wait()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}
