package policy

import (
	"github.com/honeybadger-technologies/finopsguard/core/cost"
	"github.com/honeybadger-technologies/finopsguard/core/crm"
)

// NewContext merges the canonical model, the cost result, and the
// environment into the document rule paths resolve against:
//
//	crm.resources.*.type        resource fields
//	crm.provider_defaults.aws   declared default regions
//	cost.estimated_monthly_cost aggregate figures
//	env                         environment string
func NewContext(model *crm.Model, result *cost.Result, environment string) Value {
	return Object(map[string]Value{
		"crm":  crmValue(model),
		"cost": costValue(result),
		"env":  String(environment),
	})
}

func crmValue(model *crm.Model) Value {
	if model == nil {
		return Object(map[string]Value{
			"resources":         List(),
			"provider_defaults": Object(map[string]Value{}),
		})
	}
	resources := make([]Value, 0, len(model.Resources))
	for _, res := range model.Resources {
		resources = append(resources, resourceValue(res))
	}
	defaults := make(map[string]Value, len(model.ProviderDefaults))
	for provider, region := range model.ProviderDefaults {
		defaults[provider] = String(region)
	}
	return Object(map[string]Value{
		"resources":         List(resources...),
		"provider_defaults": Object(defaults),
	})
}

func resourceValue(res *crm.CanonicalResource) Value {
	fields := map[string]Value{
		"id":       String(res.ID),
		"type":     String(res.Type),
		"name":     String(res.Name),
		"region":   String(res.Region),
		"size":     String(res.Size),
		"count":    Number(float64(res.Count)),
		"provider": String(res.Provider()),
	}
	if res.Tags != nil {
		fields["tags"] = FromGo(res.Tags)
	} else {
		fields["tags"] = Object(map[string]Value{})
	}
	if res.Metadata != nil {
		fields["metadata"] = FromGo(res.Metadata)
	} else {
		fields["metadata"] = Object(map[string]Value{})
	}
	return Object(fields)
}

func costValue(result *cost.Result) Value {
	if result == nil {
		return Object(map[string]Value{})
	}
	flags := make([]Value, 0, len(result.RiskFlags))
	for _, f := range result.RiskFlags {
		flags = append(flags, String(f))
	}
	return Object(map[string]Value{
		"estimated_monthly_cost":    Number(result.EstimatedMonthlyCost.InexactFloat64()),
		"estimated_first_week_cost": Number(result.EstimatedFirstWeekCost.InexactFloat64()),
		"resource_count":            Number(float64(result.ResourceCount)),
		"pricing_confidence":        String(string(result.PricingConfidence)),
		"risk_flags":                List(flags...),
	})
}
