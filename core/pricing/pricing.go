// Package pricing resolves unit prices for canonical resources.
// Resolution is two-tier: live provider APIs when enabled, with a
// deterministic static catalog as the fallback. Both tiers normalize to the
// same PriceRecord shape.
package pricing

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/honeybadger-technologies/finopsguard/core/crm"
)

// Unit is the billing unit a price is quoted in.
type Unit string

const (
	UnitHour    Unit = "hour"
	UnitMonth   Unit = "month"
	UnitGBMonth Unit = "gb-month"
	UnitRequest Unit = "request"
	UnitOther   Unit = "other"
)

// Confidence labels how trustworthy a price is. Live success is high, a
// known static SKU is medium, any static approximation is low.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

var confidenceRank = map[Confidence]int{
	ConfidenceLow:    0,
	ConfidenceMedium: 1,
	ConfidenceHigh:   2,
}

// Rank orders confidences: low < medium < high. Unknown labels rank lowest.
func (c Confidence) Rank() int {
	return confidenceRank[c]
}

// MinConfidence returns the lower of two confidence labels.
func MinConfidence(a, b Confidence) Confidence {
	if a.Rank() <= b.Rank() {
		return a
	}
	return b
}

// PriceSource records which tier produced a price.
type PriceSource string

const (
	PriceSourceLive   PriceSource = "live"
	PriceSourceStatic PriceSource = "static"
)

// SKUUnknown marks a resource the catalog cannot price.
const SKUUnknown = "unknown"

// PriceRecord is the normalized output of price resolution. Amount is the
// price per Unit for one instance of the resource, with shape quantities
// (shards, nodes, workers) already folded in.
type PriceRecord struct {
	Unit       Unit            `json:"unit"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Confidence Confidence      `json:"confidence"`
	Source     PriceSource     `json:"source"`
	SKU        string          `json:"sku"`
	Region     string          `json:"region"`

	// Notes explains approximations (reference-region fallback, family
	// defaults, usage-based pricing). Carried into the cost breakdown.
	Notes string `json:"notes,omitempty"`
}

// Unpriced reports whether the record is the zero-cost placeholder for a
// resource the resolver could not price.
func (p PriceRecord) Unpriced() bool {
	return p.SKU == SKUUnknown
}

// ErrUnsupportedResource is returned by a live source when it has no pricing
// coverage for a resource type. The factory falls through to the static
// catalog without retrying.
var ErrUnsupportedResource = errors.New("resource type not supported by live pricing")

// LiveSource fetches unit prices from a provider pricing API.
type LiveSource interface {
	// Provider returns the provider namespace the source covers, e.g. "aws".
	Provider() string

	// Price returns the live unit price for a resource. Implementations
	// return ErrUnsupportedResource for types they do not cover.
	Price(ctx context.Context, res *crm.CanonicalResource) (PriceRecord, error)

	// Healthy verifies connectivity to the upstream API.
	Healthy(ctx context.Context) error
}

// SourceRegistry manages live source registration by provider.
type SourceRegistry struct {
	mu      sync.RWMutex
	sources map[string]LiveSource
}

// NewSourceRegistry creates an empty registry.
func NewSourceRegistry() *SourceRegistry {
	return &SourceRegistry{sources: make(map[string]LiveSource)}
}

// Register adds a source, replacing any prior source for the same provider.
func (r *SourceRegistry) Register(src LiveSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[src.Provider()] = src
}

// Get returns the source for a provider.
func (r *SourceRegistry) Get(provider string) (LiveSource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[provider]
	return src, ok
}

// Providers returns all registered provider namespaces.
func (r *SourceRegistry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	providers := make([]string, 0, len(r.sources))
	for p := range r.sources {
		providers = append(providers, p)
	}
	return providers
}

// RetrySource wraps a live source with a per-attempt deadline and bounded
// retries using exponential backoff with full jitter: the n-th retry sleeps
// a uniform random duration in [0, base×2ⁿ).
type RetrySource struct {
	inner      LiveSource
	timeout    time.Duration
	maxRetries int
	baseDelay  time.Duration
}

// NewRetrySource creates a retrying wrapper around a live source.
func NewRetrySource(inner LiveSource, timeout time.Duration, maxRetries int, baseDelay time.Duration) *RetrySource {
	return &RetrySource{
		inner:      inner,
		timeout:    timeout,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
}

func (s *RetrySource) Provider() string {
	return s.inner.Provider()
}

func (s *RetrySource) Price(ctx context.Context, res *crm.CanonicalResource) (PriceRecord, error) {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, attempt-1); err != nil {
				return PriceRecord{}, err
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		rec, err := s.inner.Price(attemptCtx, res)
		cancel()
		if err == nil {
			return rec, nil
		}
		if errors.Is(err, ErrUnsupportedResource) {
			return PriceRecord{}, err
		}
		if ctx.Err() != nil {
			return PriceRecord{}, ctx.Err()
		}
		lastErr = err
	}
	return PriceRecord{}, lastErr
}

func (s *RetrySource) Healthy(ctx context.Context) error {
	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.inner.Healthy(attemptCtx)
}

// sleep blocks for a full-jitter backoff delay or until the context is done.
func (s *RetrySource) sleep(ctx context.Context, retry int) error {
	ceiling := s.baseDelay << uint(retry)
	if ceiling <= 0 {
		ceiling = s.baseDelay
	}
	delay := time.Duration(rand.Int63n(int64(ceiling) + 1))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
