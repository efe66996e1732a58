package gcp

// Console display names for GCP regions, kept bidirectional. The Billing
// Catalog API matches on region codes directly; the names are used for
// logging and display.

var regionToLocation = map[string]string{
	"us-central1":          "Iowa",
	"us-east1":             "South Carolina",
	"us-east4":             "Northern Virginia",
	"us-west1":             "Oregon",
	"us-west2":             "Los Angeles",
	"europe-west1":         "Belgium",
	"europe-west2":         "London",
	"europe-west3":         "Frankfurt",
	"europe-west4":         "Netherlands",
	"europe-north1":        "Finland",
	"asia-east1":           "Taiwan",
	"asia-northeast1":      "Tokyo",
	"asia-south1":          "Mumbai",
	"asia-southeast1":      "Singapore",
	"australia-southeast1": "Sydney",
	"southamerica-east1":   "Sao Paulo",
}

var locationToRegion = func() map[string]string {
	m := make(map[string]string, len(regionToLocation))
	for region, location := range regionToLocation {
		m[location] = region
	}
	return m
}()

// LocationForRegion maps a region code to its console display name.
func LocationForRegion(region string) string {
	if loc, ok := regionToLocation[region]; ok {
		return loc
	}
	return region
}

// RegionForLocation maps a display name back to the region code.
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
