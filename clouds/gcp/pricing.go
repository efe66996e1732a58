// Package gcp implements the live GCP pricing source on top of the Cloud
// Billing Catalog API.
package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/honeybadger-technologies/finopsguard/core/crm"
	"github.com/honeybadger-technologies/finopsguard/core/pricing"
)

const (
	defaultBaseURL = "https://cloudbilling.googleapis.com/v1"

	// Catalog service id for Compute Engine, which carries the
	// persistent disk SKUs.
	computeEngineService = "services/6F81-5844-456A"

	defaultRegion = "us-central1"

	// maxCatalogPages bounds pagination on the SKU listing.
	maxCatalogPages = 20
)

// diskDescriptions maps disk types to the catalog descriptions of their
// zonal capacity SKUs.
var diskDescriptions = map[string]string{
	"pd-ssd":      "SSD backed PD Capacity",
	"pd-balanced": "Balanced PD Capacity",
	"pd-standard": "Storage PD Capacity",
}

// Source resolves persistent disk prices live from the Billing Catalog.
// Types without live coverage return pricing.ErrUnsupportedResource so the
// factory can fall back to the static catalog.
type Source struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	log        *zap.Logger
}

// New builds a source authenticated by API key.
func New(apiKey string, log *zap.Logger) *Source {
	return NewWithBaseURL(apiKey, defaultBaseURL, nil, log)
}

// NewWithBaseURL builds a source against an explicit endpoint and client.
func NewWithBaseURL(apiKey, baseURL string, client *http.Client, log *zap.Logger) *Source {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{
		httpClient: client,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		log:        log,
	}
}

func (s *Source) Provider() string {
	return crm.ProviderGCP
}

// Price resolves a live price for a resource.
func (s *Source) Price(ctx context.Context, res *crm.CanonicalResource) (pricing.PriceRecord, error) {
	switch res.Type {
	case "gcp_compute_disk":
		return s.priceDisk(ctx, res)
	default:
		return pricing.PriceRecord{}, pricing.ErrUnsupportedResource
	}
}

// Healthy fetches the first catalog page to verify API reachability.
func (s *Source) Healthy(ctx context.Context) error {
	_, err := s.fetchSKUPage(ctx, "")
	return err
}

func (s *Source) priceDisk(ctx context.Context, res *crm.CanonicalResource) (pricing.PriceRecord, error) {
	diskType := res.MetadataString("disk_type")
	if diskType == "" {
		diskType, _, _ = strings.Cut(res.Size, "/")
	}
	description, ok := diskDescriptions[diskType]
	if !ok {
		return pricing.PriceRecord{}, pricing.ErrUnsupportedResource
	}

	region := res.Region
	if region == "" {
		region = defaultRegion
	}

	pageToken := ""
	for page := 0; page < maxCatalogPages; page++ {
		resp, err := s.fetchSKUPage(ctx, pageToken)
		if err != nil {
			return pricing.PriceRecord{}, err
		}

		for _, sku := range resp.SKUs {
			if sku.Description != description {
				continue
			}
			if sku.Category.UsageType != "OnDemand" {
				continue
			}
			if !containsRegion(sku.ServiceRegions, region) {
				continue
			}
			amount, err := sku.unitPrice()
			if err != nil {
				continue
			}
			s.log.Debug("resolved live disk price",
				zap.String("disk_type", diskType),
				zap.String("region", region),
				zap.String("location", LocationForRegion(region)),
				zap.String("amount", amount.String()))
			return pricing.PriceRecord{
				Unit:       unitFromUsage(sku.usageUnit()),
				Amount:     amount,
				Currency:   "USD",
				Confidence: pricing.ConfidenceHigh,
				Source:     pricing.PriceSourceLive,
				SKU:        diskType,
				Region:     region,
			}, nil
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	return pricing.PriceRecord{}, fmt.Errorf("no catalog sku for %s in %s", diskType, region)
}

func (s *Source) fetchSKUPage(ctx context.Context, pageToken string) (*skuListResponse, error) {
	endpoint := fmt.Sprintf("%s/%s/skus", s.baseURL, computeEngineService)

	q := url.Values{}
	q.Set("key", s.apiKey)
	q.Set("currencyCode", "USD")
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building catalog request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching billing catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("billing catalog returned status %d", resp.StatusCode)
	}

	var parsed skuListResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding billing catalog: %w", err)
	}
	return &parsed, nil
}

func containsRegion(regions []string, region string) bool {
	for _, r := range regions {
		if r == region {
			return true
		}
	}
	return false
}

func unitFromUsage(usageUnit string) pricing.Unit {
	switch usageUnit {
	case "GiBy.mo", "GBy.mo":
		return pricing.UnitGBMonth
	case "h":
		return pricing.UnitHour
	default:
		return pricing.UnitOther
	}
}

// skuListResponse mirrors the catalog SKU listing.
type skuListResponse struct {
	SKUs          []skuEntry `json:"skus"`
	NextPageToken string     `json:"nextPageToken"`
}

type skuEntry struct {
	SKUID       string `json:"skuId"`
	Description string `json:"description"`
	Category    struct {
		ResourceFamily string `json:"resourceFamily"`
		ResourceGroup  string `json:"resourceGroup"`
		UsageType      string `json:"usageType"`
	} `json:"category"`
	ServiceRegions []string `json:"serviceRegions"`
	PricingInfo    []struct {
		PricingExpression struct {
			UsageUnit   string `json:"usageUnit"`
			TieredRates []struct {
				StartUsageAmount float64 `json:"startUsageAmount"`
				UnitPrice        struct {
					CurrencyCode string `json:"currencyCode"`
					Units        string `json:"units"`
					Nanos        int64  `json:"nanos"`
				} `json:"unitPrice"`
			} `json:"tieredRates"`
		} `json:"pricingExpression"`
	} `json:"pricingInfo"`
}

func (s skuEntry) usageUnit() string {
	if len(s.PricingInfo) == 0 {
		return ""
	}
	return s.PricingInfo[0].PricingExpression.UsageUnit
}

// unitPrice returns the first positive tiered rate as a decimal, combining
// the whole-currency units with the nano fraction.
func (s skuEntry) unitPrice() (decimal.Decimal, error) {
	for _, info := range s.PricingInfo {
		for _, rate := range info.PricingExpression.TieredRates {
			if rate.UnitPrice.CurrencyCode != "USD" {
				continue
			}
			units := decimal.Zero
			if rate.UnitPrice.Units != "" {
				parsed, err := decimal.NewFromString(rate.UnitPrice.Units)
				if err != nil {
					continue
				}
				units = parsed
			}
			amount := units.Add(decimal.New(rate.UnitPrice.Nanos, -9))
			if amount.IsPositive() {
				return amount, nil
			}
		}
	}
	return decimal.Zero, fmt.Errorf("no positive USD rate for sku %s", s.SKUID)
}
