package aws

// The AWS Pricing API filters by human-readable location names rather than
// region codes. The two maps below are kept bidirectional; the rest of the
// system only ever sees region codes.

var regionToLocation = map[string]string{
	"us-east-1":      "US East (N. Virginia)",
	"us-east-2":      "US East (Ohio)",
	"us-west-1":      "US West (N. California)",
	"us-west-2":      "US West (Oregon)",
	"eu-west-1":      "EU (Ireland)",
	"eu-west-2":      "EU (London)",
	"eu-west-3":      "EU (Paris)",
	"eu-central-1":   "EU (Frankfurt)",
	"eu-north-1":     "EU (Stockholm)",
	"eu-south-1":     "EU (Milan)",
	"ap-northeast-1": "Asia Pacific (Tokyo)",
	"ap-northeast-2": "Asia Pacific (Seoul)",
	"ap-northeast-3": "Asia Pacific (Osaka)",
	"ap-southeast-1": "Asia Pacific (Singapore)",
	"ap-southeast-2": "Asia Pacific (Sydney)",
	"ap-south-1":     "Asia Pacific (Mumbai)",
	"ap-east-1":      "Asia Pacific (Hong Kong)",
	"sa-east-1":      "South America (Sao Paulo)",
	"ca-central-1":   "Canada (Central)",
	"me-south-1":     "Middle East (Bahrain)",
	"af-south-1":     "Africa (Cape Town)",
}

var locationToRegion = func() map[string]string {
	m := make(map[string]string, len(regionToLocation))
	for region, location := range regionToLocation {
		m[location] = region
	}
	return m
}()

// LocationForRegion maps a region code to the Pricing API location name.
// Unknown regions map to themselves so the API miss surfaces upstream.
func LocationForRegion(region string) string {
	if loc, ok := regionToLocation[region]; ok {
		return loc
	}
	return region
}

// RegionForLocation maps a Pricing API location name back to a region code.
func RegionForLocation(location string) string {
	if region, ok := locationToRegion[location]; ok {
		return region
	}
	return location
}

// SupportedRegions lists the regions the live source can price.
func SupportedRegions() []string {
	regions := make([]string, 0, len(regionToLocation))
	for region := range regionToLocation {
		regions = append(regions, region)
	}
	return regions
}
