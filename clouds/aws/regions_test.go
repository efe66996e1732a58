package aws

import "testing"

// TestRegionLocationRoundTrip verifies the two maps stay bidirectional.
func TestRegionLocationRoundTrip(t *testing.T) {
	for region := range regionToLocation {
		loc := LocationForRegion(region)
		if got := RegionForLocation(loc); got != region {
			t.Errorf("Round trip %s → %q → %s", region, loc, got)
		}
	}
}

// TestLocationForRegion verifies known and unknown lookups.
func TestLocationForRegion(t *testing.T) {
	if got := LocationForRegion("us-east-1"); got != "US East (N. Virginia)" {
		t.Errorf("LocationForRegion(us-east-1) = %q", got)
	}
	if got := LocationForRegion("xx-fake-9"); got != "xx-fake-9" {
		t.Errorf("Expected unknown region to map to itself, got %q", got)
	}
}

// TestSupportedRegionsNonEmpty verifies the advertised region set.
func TestSupportedRegionsNonEmpty(t *testing.T) {
	regions := SupportedRegions()
	if len(regions) != len(regionToLocation) {
		t.Errorf("Expected %d regions, got %d", len(regionToLocation), len(regions))
	}
}
