package aws

import (
	"context"
	"errors"
	"testing"

	awspricing "github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/shopspring/decimal"

	"github.com/honeybadger-technologies/finopsguard/core/crm"
	"github.com/honeybadger-technologies/finopsguard/core/pricing"
)

// fakePricingAPI records the last request and plays back a canned response.
type fakePricingAPI struct {
	lastInput *awspricing.GetProductsInput
	priceList []string
	err       error
}

func (f *fakePricingAPI) GetProducts(ctx context.Context, params *awspricing.GetProductsInput, optFns ...func(*awspricing.Options)) (*awspricing.GetProductsOutput, error) {
	f.lastInput = params
	if f.err != nil {
		return nil, f.err
	}
	return &awspricing.GetProductsOutput{PriceList: f.priceList}, nil
}

const t3MediumDocument = `{
  "product": {"sku": "ABCDEF123456", "attributes": {"instanceType": "t3.medium", "location": "US East (N. Virginia)"}},
  "terms": {
    "OnDemand": {
      "ABCDEF123456.JRTCKXETXF": {
        "priceDimensions": {
          "ABCDEF123456.JRTCKXETXF.6YS6EN2CT7": {
            "unit": "Hrs",
            "pricePerUnit": {"USD": "0.0416000000"}
          }
        }
      }
    }
  }
}`

// TestPriceInstance verifies the EC2 query path end to end against a canned
// price document.
func TestPriceInstance(t *testing.T) {
	api := &fakePricingAPI{priceList: []string{t3MediumDocument}}
	src := NewWithClient(api, nil)

	rec, err := src.Price(context.Background(), &crm.CanonicalResource{
		ID:     "aws_instance.web",
		Type:   "aws_instance",
		Region: "us-east-1",
		Size:   "t3.medium",
		Count:  1,
	})
	if err != nil {
		t.Fatalf("Price() error: %v", err)
	}
	if !rec.Amount.Equal(decimal.RequireFromString("0.0416")) {
		t.Errorf("Expected amount 0.0416, got %s", rec.Amount)
	}
	if rec.Unit != pricing.UnitHour {
		t.Errorf("Expected unit hour, got %s", rec.Unit)
	}
	if rec.Source != pricing.PriceSourceLive {
		t.Errorf("Expected live source, got %s", rec.Source)
	}

	// The query must filter by the human-readable location name.
	foundLocation := false
	for _, f := range api.lastInput.Filters {
		if f.Field != nil && *f.Field == "location" && f.Value != nil && *f.Value == "US East (N. Virginia)" {
			foundLocation = true
		}
	}
	if !foundLocation {
		t.Error("Expected a location filter with the Pricing API location name")
	}
}

// TestPriceUnsupportedType verifies non-EC2 types report no live coverage.
func TestPriceUnsupportedType(t *testing.T) {
	src := NewWithClient(&fakePricingAPI{}, nil)
	_, err := src.Price(context.Background(), &crm.CanonicalResource{
		ID: "aws_sqs_queue.q", Type: "aws_sqs_queue", Region: "us-east-1", Size: "standard", Count: 1,
	})
	if !errors.Is(err, pricing.ErrUnsupportedResource) {
		t.Fatalf("Expected ErrUnsupportedResource, got %v", err)
	}
}

// TestPriceInterpolatedInstanceType verifies unresolved interpolations are
// not sent to the API.
func TestPriceInterpolatedInstanceType(t *testing.T) {
	api := &fakePricingAPI{}
	src := NewWithClient(api, nil)
	_, err := src.Price(context.Background(), &crm.CanonicalResource{
		ID: "aws_instance.dyn", Type: "aws_instance", Region: "us-east-1", Size: "${var.instance_type}", Count: 1,
	})
	if !errors.Is(err, pricing.ErrUnsupportedResource) {
		t.Fatalf("Expected ErrUnsupportedResource, got %v", err)
	}
	if api.lastInput != nil {
		t.Error("Expected no API call for interpolated instance type")
	}
}

// TestPriceInstanceNoResults verifies an empty price list surfaces as an
// error the factory can fall back on.
func TestPriceInstanceNoResults(t *testing.T) {
	src := NewWithClient(&fakePricingAPI{priceList: nil}, nil)
	_, err := src.Price(context.Background(), &crm.CanonicalResource{
		ID: "aws_instance.web", Type: "aws_instance", Region: "us-east-1", Size: "t9.gigantic", Count: 1,
	})
	if err == nil {
		t.Fatal("Expected error for empty price list, got nil")
	}
}

// TestPriceInstanceUpstreamError verifies transport errors propagate.
func TestPriceInstanceUpstreamError(t *testing.T) {
	src := NewWithClient(&fakePricingAPI{err: errors.New("throttled")}, nil)
	_, err := src.Price(context.Background(), &crm.CanonicalResource{
		ID: "aws_instance.web", Type: "aws_instance", Region: "us-east-1", Size: "t3.medium", Count: 1,
	})
	if err == nil {
		t.Fatal("Expected upstream error, got nil")
	}
}

// TestOnDemandHourlyPriceSkipsZeroRates verifies zero-rate dimensions are
// skipped in favor of the billable one.
func TestOnDemandHourlyPriceSkipsZeroRates(t *testing.T) {
	doc := `{
	  "product": {"sku": "X"},
	  "terms": {"OnDemand": {
	    "X.A": {"priceDimensions": {"X.A.1": {"unit": "Hrs", "pricePerUnit": {"USD": "0.0000000000"}}}},
	    "X.B": {"priceDimensions": {"X.B.1": {"unit": "Hrs", "pricePerUnit": {"USD": "0.0960000000"}}}}
	  }}
	}`
	amount, err := onDemandHourlyPrice(doc)
	if err != nil {
		t.Fatalf("onDemandHourlyPrice() error: %v", err)
	}
	if !amount.Equal(decimal.RequireFromString("0.096")) {
		t.Errorf("Expected 0.096, got %s", amount)
	}
}
