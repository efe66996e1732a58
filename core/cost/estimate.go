// Package cost aggregates priced resources into monthly and first-week
// forecasts with per-resource breakdowns, risk flags, and advisory
// recommendations.
package cost

import (
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/honeybadger-technologies/finopsguard/core/crm"
	"github.com/honeybadger-technologies/finopsguard/core/pricing"
)

// hoursPerMonth normalizes hourly rates to a 730-hour month.
var hoursPerMonth = decimal.NewFromInt(730)

// RiskFlagUnpricedPrefix prefixes the risk flag raised for every
// resource type the resolver could not price.
const RiskFlagUnpricedPrefix = "unpriced_resource:"

// RiskFlagUnresolvedCountPrefix prefixes the risk flag raised when a
// count meta-argument did not evaluate and the estimate assumed one.
const RiskFlagUnresolvedCountPrefix = "unresolved_count:"

// BreakdownItem is the cost contribution of a single resource.
type BreakdownItem struct {
	ResourceID  string             `json:"resource_id"`
	MonthlyCost decimal.Decimal    `json:"monthly_cost"`
	Notes       string             `json:"notes,omitempty"`
	Confidence  pricing.Confidence `json:"confidence"`
}

// Result is the aggregate cost forecast for one model. The sum of
// breakdown monthly costs equals EstimatedMonthlyCost exactly.
type Result struct {
	EstimatedMonthlyCost   decimal.Decimal    `json:"estimated_monthly_cost"`
	EstimatedFirstWeekCost decimal.Decimal    `json:"estimated_first_week_cost"`
	Breakdown              []BreakdownItem    `json:"breakdown"`
	PricingConfidence      pricing.Confidence `json:"pricing_confidence"`
	ResourceCount          int                `json:"resource_count"`
	RiskFlags              []string           `json:"risk_flags,omitempty"`
	Recommendations        []string           `json:"recommendations,omitempty"`
}

// Estimator turns priced canonical models into cost results.
type Estimator struct {
	log *zap.Logger
}

// NewEstimator creates a cost estimator.
func NewEstimator(log *zap.Logger) *Estimator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Estimator{log: log}
}

// Estimate aggregates per-resource prices into a cost result. Breakdown
// items follow model declaration order. prices is keyed by resource id;
// a resource without an entry is treated as unpriced.
func (e *Estimator) Estimate(model *crm.Model, prices map[string]pricing.PriceRecord, environment string) *Result {
	result := &Result{
		EstimatedMonthlyCost:   decimal.Zero,
		EstimatedFirstWeekCost: decimal.Zero,
		Breakdown:              make([]BreakdownItem, 0, len(model.Resources)),
		PricingConfidence:      pricing.ConfidenceHigh,
		ResourceCount:          len(model.Resources),
	}

	unpriced := false
	for _, res := range model.Resources {
		rec, ok := prices[res.ID]
		if !ok {
			rec = pricing.UnknownPrice(res)
		}

		monthly, notes := monthlyCost(res, rec)
		result.Breakdown = append(result.Breakdown, BreakdownItem{
			ResourceID:  res.ID,
			MonthlyCost: monthly,
			Notes:       strings.Join(notes, "; "),
			Confidence:  rec.Confidence,
		})
		result.EstimatedMonthlyCost = result.EstimatedMonthlyCost.Add(monthly)
		result.EstimatedFirstWeekCost = result.EstimatedFirstWeekCost.Add(firstWeekCost(res, monthly))
		result.PricingConfidence = pricing.MinConfidence(result.PricingConfidence, rec.Confidence)

		if rec.Unpriced() {
			unpriced = true
			result.RiskFlags = append(result.RiskFlags, RiskFlagUnpricedPrefix+res.Type)
		}
		if res.MetadataString("count_expression") != "" {
			result.RiskFlags = append(result.RiskFlags, RiskFlagUnresolvedCountPrefix+res.ID)
		}
	}
	if unpriced {
		result.PricingConfidence = pricing.ConfidenceLow
	}

	result.Recommendations = recommendations(model, environment, unpriced)

	e.log.Debug("estimated model cost",
		zap.String("monthly", result.EstimatedMonthlyCost.String()),
		zap.String("confidence", string(result.PricingConfidence)),
		zap.Int("resources", result.ResourceCount))
	return result
}

// monthlyCost projects one price record to a monthly figure. Hourly
// rates already carry shape quantities folded into the amount, so only
// the 730-hour normalization and the declared count apply. Per-GB and
// per-request rates pick up their usage factor from resource metadata.
func monthlyCost(res *crm.CanonicalResource, rec pricing.PriceRecord) (decimal.Decimal, []string) {
	var notes []string
	if rec.Notes != "" {
		notes = append(notes, rec.Notes)
	}

	base := rec.Amount.Mul(decimal.NewFromInt(int64(res.Count)))
	var monthly decimal.Decimal
	switch rec.Unit {
	case pricing.UnitHour:
		monthly = base.Mul(hoursPerMonth)
	case pricing.UnitMonth:
		monthly = base
	case pricing.UnitGBMonth:
		if gb, ok := res.MetadataNumber("size_gb"); ok {
			monthly = base.Mul(decimal.NewFromFloat(gb))
		} else {
			monthly = decimal.Zero
			notes = append(notes, "per-gb rate with no size_gb metadata")
		}
	case pricing.UnitRequest:
		if reqs, ok := res.MetadataNumber("monthly_requests"); ok {
			monthly = base.Mul(decimal.NewFromFloat(reqs))
		} else {
			monthly = decimal.Zero
			notes = append(notes, "per-request rate with no monthly_requests usage estimate")
		}
	default:
		monthly = base
	}
	return monthly, notes
}

// firstWeekCost assumes a linear ramp over the month. A resource billed
// at period boundaries can declare metadata.ramp_profile = "none" to
// contribute nothing in its first week.
func firstWeekCost(res *crm.CanonicalResource, monthly decimal.Decimal) decimal.Decimal {
	if res.MetadataString("ramp_profile") == "none" {
		return decimal.Zero
	}
	return monthly.Mul(decimal.NewFromInt(7)).Div(decimal.NewFromInt(30))
}
