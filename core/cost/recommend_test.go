package cost

import (
	"strings"
	"testing"
)

func hasRecommendationContaining(recs []string, substr string) bool {
	for _, r := range recs {
		if strings.Contains(r, substr) {
			return true
		}
	}
	return false
}

// TestRecommendOversizedDevInstance verifies large general-purpose
// instances are flagged in development environments only.
func TestRecommendOversizedDevInstance(t *testing.T) {
	model := modelOf(makeResource("aws_instance.big", "aws_instance", "m5.large", 1, nil))

	if recs := recommendations(model, "dev", false); !hasRecommendationContaining(recs, "smaller instance") {
		t.Errorf("Expected oversized instance recommendation in dev, got %v", recs)
	}
	if recs := recommendations(model, "production", false); len(recs) != 0 {
		t.Errorf("Expected no recommendations in production, got %v", recs)
	}
}

// TestRecommendIgnoresRightSizedInstances verifies burstable and small
// sizes pass without advice.
func TestRecommendIgnoresRightSizedInstances(t *testing.T) {
	model := modelOf(
		makeResource("aws_instance.a", "aws_instance", "t3.medium", 1, nil),
		makeResource("aws_instance.b", "aws_instance", "m5.medium", 1, nil),
	)
	if recs := recommendations(model, "dev", false); len(recs) != 0 {
		t.Errorf("Expected no recommendations, got %v", recs)
	}
}

// TestRecommendOversizedVariants verifies the size ladder above large
// is covered.
func TestRecommendOversizedVariants(t *testing.T) {
	for _, size := range []string{"m5.large", "m5.xlarge", "r5.2xlarge", "c5.metal", "m6i.4xlarge"} {
		model := modelOf(makeResource("aws_instance.big", "aws_instance", size, 1, nil))
		if recs := recommendations(model, "development", false); len(recs) != 1 {
			t.Errorf("Expected recommendation for %s, got %v", size, recs)
		}
	}
}

// TestRecommendLargeDevDisk verifies terabyte-scale disks are flagged
// in development.
func TestRecommendLargeDevDisk(t *testing.T) {
	model := modelOf(makeResource("gcp_compute_disk.huge", "gcp_compute_disk", "pd-ssd/2000GB", 1,
		map[string]interface{}{"size_gb": 2000.0}))

	if recs := recommendations(model, "dev", false); !hasRecommendationContaining(recs, "smaller disk") {
		t.Errorf("Expected disk recommendation, got %v", recs)
	}
	if recs := recommendations(model, "prod", false); len(recs) != 0 {
		t.Errorf("Expected no disk recommendation in prod, got %v", recs)
	}
}

// TestRecommendUnencryptedStorage verifies explicit encrypted = false
// is flagged in every environment.
func TestRecommendUnencryptedStorage(t *testing.T) {
	model := modelOf(makeResource("aws_ebs_volume.data", "aws_ebs_volume", "unknown", 1,
		map[string]interface{}{"encrypted": false}))

	if recs := recommendations(model, "production", false); !hasRecommendationContaining(recs, "encryption") {
		t.Errorf("Expected encryption recommendation, got %v", recs)
	}
}

// TestRecommendPublicExposure verifies publicly_accessible = true is
// flagged.
func TestRecommendPublicExposure(t *testing.T) {
	model := modelOf(makeResource("aws_db_instance.main", "aws_db_instance", "unknown", 1,
		map[string]interface{}{"publicly_accessible": true}))

	if recs := recommendations(model, "prod", false); !hasRecommendationContaining(recs, "publicly accessible") {
		t.Errorf("Expected exposure recommendation, got %v", recs)
	}
}

// TestRecommendUnpricedReview verifies the manual-review advisory rides
// along with unpriced resources.
func TestRecommendUnpricedReview(t *testing.T) {
	model := modelOf(makeResource("aws_quantum_widget.x", "aws_quantum_widget", "unknown", 1, nil))

	if recs := recommendations(model, "prod", true); !hasRecommendationContaining(recs, "no price data") {
		t.Errorf("Expected manual review recommendation, got %v", recs)
	}
}

// TestSplitInstanceType exercises the family/variant split.
func TestSplitInstanceType(t *testing.T) {
	tests := []struct {
		size    string
		family  string
		variant string
		ok      bool
	}{
		{"m5.large", "m5", "large", true},
		{"db.t3.micro", "db.t3", "micro", true},
		{"${var.instance_type}", "", "", false},
		{"unknown", "", "", false},
	}
	for _, tt := range tests {
		family, variant, ok := splitInstanceType(tt.size)
		if family != tt.family || variant != tt.variant || ok != tt.ok {
			t.Errorf("splitInstanceType(%q): expected (%q,%q,%v), got (%q,%q,%v)",
				tt.size, tt.family, tt.variant, tt.ok, family, variant, ok)
		}
	}
}
