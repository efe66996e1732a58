package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/honeybadger-technologies/finopsguard/core/crm"
)

type catalogKey struct {
	provider string
	sku      string
	region   string
}

type catalogEntry struct {
	unit   Unit
	amount decimal.Decimal
}

// Catalog is the deterministic static pricing table, keyed by
// (provider, sku, region). It is immutable after construction.
//
// Lookup ladder: exact region → provider reference region (confidence
// downgraded to low) → instance-family default (low) → miss.
type Catalog struct {
	prices          map[catalogKey]catalogEntry
	familyDefaults  map[catalogKey]catalogEntry // region field left empty
	referenceRegion map[string]string
}

// NewCatalog builds the catalog from the built-in price table.
func NewCatalog() *Catalog {
	c := &Catalog{
		prices:          make(map[catalogKey]catalogEntry, len(staticPrices)),
		familyDefaults:  make(map[catalogKey]catalogEntry, len(staticFamilyDefaults)),
		referenceRegion: staticReferenceRegions,
	}
	for _, p := range staticPrices {
		c.prices[catalogKey{p.provider, p.sku, p.region}] = catalogEntry{
			unit:   p.unit,
			amount: decimal.RequireFromString(p.amount),
		}
	}
	for _, p := range staticFamilyDefaults {
		c.familyDefaults[catalogKey{provider: p.provider, sku: p.sku}] = catalogEntry{
			unit:   p.unit,
			amount: decimal.RequireFromString(p.amount),
		}
	}
	return c
}

// ReferenceRegion returns the provider's fallback region, e.g. "us-east-1"
// for aws.
func (c *Catalog) ReferenceRegion(provider string) string {
	return c.referenceRegion[provider]
}

// Lookup resolves a price through the ladder. The returned record carries
// the confidence and an explanatory note for any approximation taken.
func (c *Catalog) Lookup(provider, sku, region string) (PriceRecord, bool) {
	ref := c.referenceRegion[provider]

	lookupRegion := region
	var notes []string
	if lookupRegion == "" {
		// No region declared anywhere in the input; price at the
		// provider default without a confidence penalty.
		lookupRegion = ref
		notes = append(notes, fmt.Sprintf("no region declared, priced at %s", ref))
	}

	if entry, ok := c.prices[catalogKey{provider, sku, lookupRegion}]; ok {
		return PriceRecord{
			Unit:       entry.unit,
			Amount:     entry.amount,
			Currency:   currencyUSD,
			Confidence: ConfidenceMedium,
			Source:     PriceSourceStatic,
			SKU:        sku,
			Region:     lookupRegion,
			Notes:      strings.Join(notes, "; "),
		}, true
	}

	if ref != "" && lookupRegion != ref {
		if entry, ok := c.prices[catalogKey{provider, sku, ref}]; ok {
			notes = append(notes, fmt.Sprintf("no %s entry, priced at reference region %s", lookupRegion, ref))
			return PriceRecord{
				Unit:       entry.unit,
				Amount:     entry.amount,
				Currency:   currencyUSD,
				Confidence: ConfidenceLow,
				Source:     PriceSourceStatic,
				SKU:        sku,
				Region:     ref,
				Notes:      strings.Join(notes, "; "),
			}, true
		}
	}

	if family := familyOf(provider, sku); family != "" {
		if entry, ok := c.familyDefaults[catalogKey{provider: provider, sku: family}]; ok {
			notes = append(notes, fmt.Sprintf("no %s entry, approximated from %s family default", sku, family))
			return PriceRecord{
				Unit:       entry.unit,
				Amount:     entry.amount,
				Currency:   currencyUSD,
				Confidence: ConfidenceLow,
				Source:     PriceSourceStatic,
				SKU:        sku,
				Region:     lookupRegion,
				Notes:      strings.Join(notes, "; "),
			}, true
		}
	}

	return PriceRecord{}, false
}

// PriceResource resolves a static price for a resource. Total function: a
// resource the catalog cannot price gets the zero-cost unknown record.
func (c *Catalog) PriceResource(res *crm.CanonicalResource) PriceRecord {
	provider := res.Provider()
	if provider == "" {
		return UnknownPrice(res)
	}

	if res.Type == "aws_ecs_task_definition" {
		if rec, ok := c.priceFargateTaskDefinition(res); ok {
			return rec
		}
		return UnknownPrice(res)
	}

	d := deriveResource(res)
	if d.sku == "" {
		return UnknownPrice(res)
	}

	rec, ok := c.Lookup(provider, d.sku, res.Region)
	if !ok {
		return UnknownPrice(res)
	}

	if !d.qty.Equal(decimal.NewFromInt(1)) {
		rec.Amount = rec.Amount.Mul(d.qty)
		qtyNote := fmt.Sprintf("%s × %s", d.qty.String(), d.sku)
		if rec.Notes == "" {
			rec.Notes = qtyNote
		} else {
			rec.Notes = qtyNote + "; " + rec.Notes
		}
	}
	if d.notes != "" {
		if rec.Notes == "" {
			rec.Notes = d.notes
		} else {
			rec.Notes = rec.Notes + "; " + d.notes
		}
	}
	return rec
}

// priceFargateTaskDefinition composes the per-hour price from the Fargate
// vCPU and memory rates. ECS task definitions declare cpu in 1/1024 vCPU
// units and memory in MiB.
func (c *Catalog) priceFargateTaskDefinition(res *crm.CanonicalResource) (PriceRecord, bool) {
	cpuUnits, okCPU := res.MetadataNumber("cpu")
	memoryMB, okMem := res.MetadataNumber("memory_mb")
	if !okCPU && !okMem {
		return PriceRecord{}, false
	}

	vcpuRate, ok1 := c.Lookup(crm.ProviderAWS, "fargate-vcpu-hour", res.Region)
	gbRate, ok2 := c.Lookup(crm.ProviderAWS, "fargate-gb-hour", res.Region)
	if !ok1 || !ok2 {
		return PriceRecord{}, false
	}

	vcpus := decimal.NewFromFloat(cpuUnits).Div(decimal.NewFromInt(1024))
	gb := decimal.NewFromFloat(memoryMB).Div(decimal.NewFromInt(1024))
	amount := vcpuRate.Amount.Mul(vcpus).Add(gbRate.Amount.Mul(gb))

	return PriceRecord{
		Unit:       UnitHour,
		Amount:     amount,
		Currency:   currencyUSD,
		Confidence: MinConfidence(vcpuRate.Confidence, gbRate.Confidence),
		Source:     PriceSourceStatic,
		SKU:        "fargate-compute",
		Region:     vcpuRate.Region,
		Notes:      fmt.Sprintf("fargate task (%s vCPU, %s GB)", vcpus.String(), gb.String()),
	}, true
}

// UnknownPrice is the zero-cost placeholder for an unpriceable resource.
func UnknownPrice(res *crm.CanonicalResource) PriceRecord {
	return PriceRecord{
		Unit:       UnitOther,
		Amount:     decimal.Zero,
		Currency:   currencyUSD,
		Confidence: ConfidenceLow,
		Source:     PriceSourceStatic,
		SKU:        SKUUnknown,
		Region:     res.Region,
		Notes:      fmt.Sprintf("no price data for %s", res.Type),
	}
}

// familyOf extracts the instance family a SKU belongs to, for the
// family-default rung of the ladder.
func familyOf(provider, sku string) string {
	if sku == "" || strings.Contains(sku, "${") {
		return ""
	}
	switch provider {
	case crm.ProviderAWS:
		// t3.medium → t3, db.t3.micro → db.t3
		if i := strings.LastIndex(sku, "."); i > 0 {
			return sku[:i]
		}
	case crm.ProviderGCP:
		// pd-ssd → pd; n1-standard-2 → n1-standard
		if strings.HasPrefix(sku, "pd-") {
			return "pd"
		}
		if i := strings.LastIndex(sku, "-"); i > 0 {
			if isDigits(sku[i+1:]) {
				return sku[:i]
			}
		}
	}
	return ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
