// Package aws implements the live AWS pricing source on top of the
// AWS Price List Query API.
package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awspricing "github.com/aws/aws-sdk-go-v2/service/pricing"
	pricingtypes "github.com/aws/aws-sdk-go-v2/service/pricing/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/honeybadger-technologies/finopsguard/core/crm"
	"github.com/honeybadger-technologies/finopsguard/core/pricing"
)

// The Price List Query API is only served out of us-east-1.
const pricingAPIRegion = "us-east-1"

// PricingAPI is the slice of the SDK pricing client the source uses.
type PricingAPI interface {
	GetProducts(ctx context.Context, params *awspricing.GetProductsInput, optFns ...func(*awspricing.Options)) (*awspricing.GetProductsOutput, error)
}

// Source resolves on-demand EC2 prices live. Resource types without live
// coverage return pricing.ErrUnsupportedResource so the factory can fall
// back to the static catalog.
type Source struct {
	client PricingAPI
	log    *zap.Logger
}

// New builds a source using the ambient AWS credential chain.
func New(ctx context.Context, log *zap.Logger) (*Source, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(pricingAPIRegion))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return NewWithClient(awspricing.NewFromConfig(cfg), log), nil
}

// NewWithClient builds a source over an explicit client.
func NewWithClient(client PricingAPI, log *zap.Logger) *Source {
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{client: client, log: log}
}

func (s *Source) Provider() string {
	return crm.ProviderAWS
}

// Price resolves a live price for a resource.
func (s *Source) Price(ctx context.Context, res *crm.CanonicalResource) (pricing.PriceRecord, error) {
	switch res.Type {
	case "aws_instance":
		return s.priceInstance(ctx, res)
	default:
		return pricing.PriceRecord{}, pricing.ErrUnsupportedResource
	}
}

// Healthy issues a minimal catalog query to verify API reachability.
func (s *Source) Healthy(ctx context.Context) error {
	_, err := s.client.GetProducts(ctx, &awspricing.GetProductsInput{
		ServiceCode: awssdk.String("AmazonEC2"),
		MaxResults:  awssdk.Int32(1),
	})
	return err
}

func (s *Source) priceInstance(ctx context.Context, res *crm.CanonicalResource) (pricing.PriceRecord, error) {
	instanceType := res.MetadataString("instance_type")
	if instanceType == "" {
		instanceType = res.Size
	}
	// Interpolations are preserved verbatim by the parser and cannot be
	// queried.
	if instanceType == "" || strings.Contains(instanceType, "${") {
		return pricing.PriceRecord{}, pricing.ErrUnsupportedResource
	}

	region := res.Region
	if region == "" {
		region = pricingAPIRegion
	}

	out, err := s.client.GetProducts(ctx, &awspricing.GetProductsInput{
		ServiceCode: awssdk.String("AmazonEC2"),
		Filters: []pricingtypes.Filter{
			termMatch("instanceType", instanceType),
			termMatch("location", LocationForRegion(region)),
			termMatch("operatingSystem", "Linux"),
			termMatch("tenancy", "Shared"),
			termMatch("preInstalledSw", "NA"),
			termMatch("capacitystatus", "Used"),
		},
		MaxResults: awssdk.Int32(1),
	})
	if err != nil {
		return pricing.PriceRecord{}, fmt.Errorf("querying ec2 price for %s in %s: %w", instanceType, region, err)
	}
	if len(out.PriceList) == 0 {
		return pricing.PriceRecord{}, fmt.Errorf("no ec2 price found for %s in %s", instanceType, region)
	}

	amount, err := onDemandHourlyPrice(out.PriceList[0])
	if err != nil {
		return pricing.PriceRecord{}, fmt.Errorf("parsing ec2 price for %s: %w", instanceType, err)
	}

	s.log.Debug("resolved live ec2 price",
		zap.String("instance_type", instanceType),
		zap.String("region", region),
		zap.String("amount", amount.String()))

	return pricing.PriceRecord{
		Unit:       pricing.UnitHour,
		Amount:     amount,
		Currency:   "USD",
		Confidence: pricing.ConfidenceHigh,
		Source:     pricing.PriceSourceLive,
		SKU:        instanceType,
		Region:     region,
	}, nil
}

func termMatch(field, value string) pricingtypes.Filter {
	return pricingtypes.Filter{
		Type:  pricingtypes.FilterTypeTermMatch,
		Field: awssdk.String(field),
		Value: awssdk.String(value),
	}
}

// priceDocument is the slice of a Price List product entry needed to pull
// the on-demand USD rate.
type priceDocument struct {
	Product struct {
		SKU string `json:"sku"`
	} `json:"product"`
	Terms struct {
		OnDemand map[string]struct {
			PriceDimensions map[string]struct {
				Unit         string            `json:"unit"`
				PricePerUnit map[string]string `json:"pricePerUnit"`
			} `json:"priceDimensions"`
		} `json:"OnDemand"`
	} `json:"terms"`
}

// onDemandHourlyPrice extracts the first non-zero on-demand USD rate from a
// Price List JSON document.
func onDemandHourlyPrice(doc string) (decimal.Decimal, error) {
	var parsed priceDocument
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		return decimal.Zero, fmt.Errorf("decoding price document: %w", err)
	}

	for _, term := range parsed.Terms.OnDemand {
		for _, dim := range term.PriceDimensions {
			usd, ok := dim.PricePerUnit["USD"]
			if !ok {
				continue
			}
			amount, err := decimal.NewFromString(usd)
			if err != nil {
				continue
			}
			if amount.IsPositive() {
				return amount, nil
			}
		}
	}
	return decimal.Zero, fmt.Errorf("no on-demand USD rate in price document")
}
