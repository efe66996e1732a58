package pricing

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/honeybadger-technologies/finopsguard/core/crm"
	apperrors "github.com/honeybadger-technologies/finopsguard/internal/errors"
)

// stubSource answers every Price call the same way and counts calls.
type stubSource struct {
	provider string
	record   PriceRecord
	err      error
	calls    atomic.Int64
	delay    time.Duration
}

func (s *stubSource) Provider() string { return s.provider }

func (s *stubSource) Price(ctx context.Context, res *crm.CanonicalResource) (PriceRecord, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return PriceRecord{}, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	if s.err != nil {
		return PriceRecord{}, s.err
	}
	return s.record, nil
}

func (s *stubSource) Healthy(ctx context.Context) error { return nil }

func testResource() *crm.CanonicalResource {
	return &crm.CanonicalResource{
		ID:     "aws_instance.web",
		Type:   "aws_instance",
		Region: "us-east-1",
		Size:   "t3.medium",
		Count:  1,
	}
}

func fastOptions() Options {
	return Options{
		LiveEnabled:      true,
		FallbackToStatic: true,
		Timeout:          time.Second,
		MaxRetries:       2,
		RetryBaseDelay:   time.Millisecond,
	}
}

// TestFactoryStaticOnly verifies static resolution when live is disabled.
func TestFactoryStaticOnly(t *testing.T) {
	src := &stubSource{provider: "aws", record: PriceRecord{SKU: "live"}}
	reg := NewSourceRegistry()
	reg.Register(src)

	f := NewFactory(NewCatalog(), reg, Options{LiveEnabled: false, FallbackToStatic: true}, nil)
	rec, err := f.PriceResource(context.Background(), testResource())
	if err != nil {
		t.Fatalf("PriceResource() error: %v", err)
	}
	if rec.Source != PriceSourceStatic {
		t.Errorf("Expected static source, got %s", rec.Source)
	}
	if got := src.calls.Load(); got != 0 {
		t.Errorf("Expected live source untouched, got %d calls", got)
	}
}

// TestFactoryPrefersLive verifies a live success wins and is labeled high
// confidence.
func TestFactoryPrefersLive(t *testing.T) {
	src := &stubSource{
		provider: "aws",
		record: PriceRecord{
			Unit:   UnitHour,
			Amount: decimal.RequireFromString("0.0418"),
			SKU:    "t3.medium",
			Region: "us-east-1",
		},
	}
	reg := NewSourceRegistry()
	reg.Register(src)

	f := NewFactory(NewCatalog(), reg, fastOptions(), nil)
	rec, err := f.PriceResource(context.Background(), testResource())
	if err != nil {
		t.Fatalf("PriceResource() error: %v", err)
	}
	if rec.Source != PriceSourceLive {
		t.Errorf("Expected live source, got %s", rec.Source)
	}
	if rec.Confidence != ConfidenceHigh {
		t.Errorf("Expected high confidence for live price, got %s", rec.Confidence)
	}
	if !rec.Amount.Equal(decimal.RequireFromString("0.0418")) {
		t.Errorf("Expected live amount 0.0418, got %s", rec.Amount)
	}
}

// TestFactoryFallsBackToStatic verifies a live failure retries and then
// falls through to the catalog.
func TestFactoryFallsBackToStatic(t *testing.T) {
	src := &stubSource{provider: "aws", err: errors.New("throttled")}
	reg := NewSourceRegistry()
	reg.Register(src)

	f := NewFactory(NewCatalog(), reg, fastOptions(), nil)
	rec, err := f.PriceResource(context.Background(), testResource())
	if err != nil {
		t.Fatalf("PriceResource() error: %v", err)
	}
	if rec.Source != PriceSourceStatic {
		t.Errorf("Expected static fallback, got %s", rec.Source)
	}
	if !rec.Amount.Equal(decimal.RequireFromString("0.0416")) {
		t.Errorf("Expected catalog amount 0.0416, got %s", rec.Amount)
	}
	if got := src.calls.Load(); got != 3 {
		t.Errorf("Expected 3 live attempts (1 + 2 retries), got %d", got)
	}
}

// TestFactoryUnsupportedResourceFallsBackWithoutRetry verifies unsupported
// types go straight to the catalog.
func TestFactoryUnsupportedResourceFallsBackWithoutRetry(t *testing.T) {
	src := &stubSource{provider: "aws", err: ErrUnsupportedResource}
	reg := NewSourceRegistry()
	reg.Register(src)

	f := NewFactory(NewCatalog(), reg, fastOptions(), nil)
	rec, err := f.PriceResource(context.Background(), testResource())
	if err != nil {
		t.Fatalf("PriceResource() error: %v", err)
	}
	if rec.Source != PriceSourceStatic {
		t.Errorf("Expected static fallback, got %s", rec.Source)
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("Expected 1 live attempt, got %d", got)
	}
}

// TestFactoryFallbackDisabled verifies pricing_unavailable surfaces when
// live fails and the catalog is off limits.
func TestFactoryFallbackDisabled(t *testing.T) {
	src := &stubSource{provider: "aws", err: errors.New("auth failed")}
	reg := NewSourceRegistry()
	reg.Register(src)

	opts := fastOptions()
	opts.FallbackToStatic = false
	f := NewFactory(NewCatalog(), reg, opts, nil)

	_, err := f.PriceResource(context.Background(), testResource())
	if err == nil {
		t.Fatal("Expected pricing_unavailable error, got nil")
	}
	if !apperrors.IsKind(err, apperrors.KindPricingUnavailable) {
		t.Errorf("Expected kind pricing_unavailable, got %v", err)
	}
}

// TestFactoryNoAdapterUsesStatic verifies providers without a live source
// resolve statically even with live enabled.
func TestFactoryNoAdapterUsesStatic(t *testing.T) {
	f := NewFactory(NewCatalog(), NewSourceRegistry(), fastOptions(), nil)
	rec, err := f.PriceResource(context.Background(), testResource())
	if err != nil {
		t.Fatalf("PriceResource() error: %v", err)
	}
	if rec.Source != PriceSourceStatic {
		t.Errorf("Expected static source, got %s", rec.Source)
	}
}

// TestFactoryCancellation verifies a cancelled context aborts resolution.
func TestFactoryCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewFactory(NewCatalog(), nil, Options{FallbackToStatic: true}, nil)
	_, err := f.PriceResource(ctx, testResource())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

// TestPriceModelPricesEveryResource verifies the fan-out prices all
// resources across providers, including unknown ones.
func TestPriceModelPricesEveryResource(t *testing.T) {
	model := &crm.Model{
		Resources: []*crm.CanonicalResource{
			{ID: "aws_instance.web", Type: "aws_instance", Region: "us-east-1", Size: "t3.medium", Count: 2},
			{ID: "gcp_spanner_instance.main", Type: "gcp_spanner_instance", Region: "us-central1", Size: "2nodes", Count: 1,
				Metadata: map[string]interface{}{"num_nodes": float64(2)}},
			{ID: "aws_quantum_widget.q", Type: "aws_quantum_widget", Region: "us-east-1", Size: "unknown", Count: 1},
		},
		SourceIaCType: "terraform",
	}

	f := NewFactory(NewCatalog(), nil, Options{FallbackToStatic: true}, nil)
	records, err := f.PriceModel(context.Background(), model)
	if err != nil {
		t.Fatalf("PriceModel() error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 price records, got %d", len(records))
	}
	if records["aws_instance.web"].Unpriced() {
		t.Error("Expected aws_instance.web to be priced")
	}
	if !records["aws_quantum_widget.q"].Unpriced() {
		t.Error("Expected aws_quantum_widget.q to be unpriced")
	}
	if !records["gcp_spanner_instance.main"].Amount.Equal(decimal.RequireFromString("1.80")) {
		t.Errorf("Expected spanner amount 1.80, got %s", records["gcp_spanner_instance.main"].Amount)
	}
}

// trackingSource records the high-water mark of concurrent Price calls.
type trackingSource struct {
	stubSource
	inflight atomic.Int64
	peak     atomic.Int64
}

func (s *trackingSource) Price(ctx context.Context, res *crm.CanonicalResource) (PriceRecord, error) {
	cur := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		peak := s.peak.Load()
		if cur <= peak || s.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	return s.stubSource.Price(ctx, res)
}

// TestPriceModelParallelismBound verifies the per-provider fan-out never
// exceeds the configured limit.
func TestPriceModelParallelismBound(t *testing.T) {
	src := &trackingSource{stubSource: stubSource{
		provider: "aws",
		record:   PriceRecord{Unit: UnitHour, Amount: decimal.RequireFromString("0.01"), SKU: "t3.medium"},
		delay:    10 * time.Millisecond,
	}}
	reg := NewSourceRegistry()
	reg.Register(src)

	opts := fastOptions()
	opts.ProviderParallelism = 2
	f := NewFactory(NewCatalog(), reg, opts, nil)

	resources := make([]*crm.CanonicalResource, 6)
	for i := range resources {
		resources[i] = &crm.CanonicalResource{
			ID:     fmt.Sprintf("aws_instance.r%d", i),
			Type:   "aws_instance",
			Region: "us-east-1",
			Size:   "t3.medium",
			Count:  1,
		}
	}

	records, err := f.PriceModel(context.Background(), &crm.Model{Resources: resources})
	if err != nil {
		t.Fatalf("PriceModel() error: %v", err)
	}
	if len(records) != 6 {
		t.Errorf("Expected 6 records, got %d", len(records))
	}
	if peak := src.peak.Load(); peak > 2 {
		t.Errorf("Expected at most 2 concurrent lookups, got %d", peak)
	}
}

// TestPriceModelPropagatesCancellation verifies no partial result is
// returned once the context is cancelled mid-flight.
func TestPriceModelPropagatesCancellation(t *testing.T) {
	src := &stubSource{provider: "aws", delay: 200 * time.Millisecond}
	reg := NewSourceRegistry()
	reg.Register(src)

	opts := fastOptions()
	opts.MaxRetries = 0
	f := NewFactory(NewCatalog(), reg, opts, nil)

	model := &crm.Model{
		Resources: []*crm.CanonicalResource{
			{ID: "aws_instance.a", Type: "aws_instance", Region: "us-east-1", Size: "t3.medium", Count: 1},
			{ID: "aws_instance.b", Type: "aws_instance", Region: "us-east-1", Size: "t3.large", Count: 1},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	records, err := f.PriceModel(ctx, model)
	if err == nil {
		t.Fatal("Expected cancellation error, got nil")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if records != nil {
		t.Errorf("Expected nil records on cancellation, got %d entries", len(records))
	}
}
