package cost

import (
	"fmt"
	"strings"

	"github.com/honeybadger-technologies/finopsguard/core/crm"
)

// oversizedFamilies are the instance families flagged when provisioned
// at large or above in a development environment.
var oversizedFamilies = map[string]bool{
	"m5":  true,
	"m6i": true,
	"r5":  true,
	"c5":  true,
}

// recommendations builds the closed advisory set. Recommendations never
// change cost or policy status.
func recommendations(model *crm.Model, environment string, unpriced bool) []string {
	var recs []string
	dev := isDevEnvironment(environment)

	for _, res := range model.Resources {
		if dev && res.Type == "aws_instance" {
			if family, variant, ok := splitInstanceType(res.Size); ok &&
				oversizedFamilies[family] && isLargeOrBigger(variant) {
				recs = append(recs, fmt.Sprintf(
					"%s uses %s in a %s environment; consider a smaller instance type",
					res.ID, res.Size, environment))
			}
		}
		if dev && res.Type == "gcp_compute_disk" {
			if gb, ok := res.MetadataNumber("size_gb"); ok && gb >= 1000 {
				recs = append(recs, fmt.Sprintf(
					"%s provisions %.0fGB in a %s environment; consider a smaller disk",
					res.ID, gb, environment))
			}
		}
		if enc, ok := res.MetadataBool("encrypted"); ok && !enc {
			recs = append(recs, fmt.Sprintf(
				"%s is not encrypted at rest; enable encryption", res.ID))
		}
		if pub, ok := res.MetadataBool("publicly_accessible"); ok && pub {
			recs = append(recs, fmt.Sprintf(
				"%s is publicly accessible; restrict network exposure", res.ID))
		}
	}

	if unpriced {
		recs = append(recs, "some resources have no price data; review the unpriced_resource risk flags manually")
	}
	return recs
}

func isDevEnvironment(environment string) bool {
	switch strings.ToLower(environment) {
	case "dev", "development":
		return true
	}
	return false
}

// splitInstanceType splits "m5.large" into family and size variant.
// Verbatim interpolations report false.
func splitInstanceType(size string) (family, variant string, ok bool) {
	if strings.Contains(size, "${") {
		return "", "", false
	}
	i := strings.LastIndex(size, ".")
	if i <= 0 || i == len(size)-1 {
		return "", "", false
	}
	return size[:i], size[i+1:], true
}

// isLargeOrBigger covers large and every multiple of it, plus metal.
func isLargeOrBigger(variant string) bool {
	return strings.HasSuffix(variant, "large") || variant == "metal"
}
