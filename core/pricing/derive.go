package pricing

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/honeybadger-technologies/finopsguard/core/crm"
)

// derived is the billing shape of a resource: the catalog SKU plus the
// quantity multiplier folded into the final amount (shards, nodes, tasks,
// workers).
type derived struct {
	sku   string
	qty   decimal.Decimal
	notes string
}

func one() decimal.Decimal { return decimal.NewFromInt(1) }

// deriveResource maps a canonical resource onto a catalog SKU. Parsers
// preserve interpolation expressions verbatim, so a derived SKU may contain
// "${...}"; those simply miss in the catalog and surface as unpriced.
func deriveResource(res *crm.CanonicalResource) derived {
	switch res.Type {
	case "aws_instance":
		sku := res.MetadataString("instance_type")
		if sku == "" {
			sku = res.Size
		}
		return derived{sku: sku, qty: one()}

	case "aws_lambda_function":
		// Invocation-driven; the monthly request volume comes from
		// resource metadata at estimation time.
		return derived{sku: "lambda-request", qty: one()}

	case "aws_ecs_service":
		launch, tasks := splitShape(res.Size)
		if n, ok := res.MetadataNumber("desired_count"); ok {
			tasks = decimal.NewFromFloat(n)
		}
		if strings.EqualFold(launch, "FARGATE") {
			return derived{sku: "fargate-task", qty: tasks}
		}
		return derived{sku: "ecs-ec2-service", qty: one(), notes: "EC2 launch type, compute billed via instances"}

	case "aws_kinesis_stream":
		qty := quantityFrom(res, "shard_count", res.Size, "shards")
		return derived{sku: "kinesis-shard", qty: qty}

	case "aws_sqs_queue":
		if res.Size == "fifo" {
			return derived{sku: "sqs-request-fifo", qty: one()}
		}
		return derived{sku: "sqs-request-standard", qty: one()}

	case "aws_cloudfront_distribution":
		return derived{sku: "cloudfront-request", qty: one()}

	case "gcp_compute_disk":
		sku := res.MetadataString("disk_type")
		if sku == "" {
			sku, _ = splitSlash(res.Size)
		}
		return derived{sku: sku, qty: one()}

	case "gcp_spanner_instance":
		if pu, ok := res.MetadataNumber("processing_units"); ok && pu > 0 {
			return derived{sku: "spanner-processing-unit", qty: decimal.NewFromFloat(pu)}
		}
		qty := quantityFrom(res, "num_nodes", res.Size, "nodes")
		return derived{sku: "spanner-node", qty: qty}

	case "gcp_dataflow_job":
		machine, workers := splitShape(res.Size)
		if m := res.MetadataString("machine_type"); m != "" {
			machine = m
		}
		if n, ok := res.MetadataNumber("max_workers"); ok {
			workers = decimal.NewFromFloat(n)
		}
		return derived{sku: machine, qty: workers}
	}

	return derived{}
}

// quantityFrom reads a count from metadata, falling back to the numeric
// prefix of the size string (e.g. "2shards"). Interpolated or missing
// values default to 1.
func quantityFrom(res *crm.CanonicalResource, metaKey, size, suffix string) decimal.Decimal {
	if n, ok := res.MetadataNumber(metaKey); ok && n > 0 {
		return decimal.NewFromFloat(n)
	}
	if s, found := strings.CutSuffix(size, suffix); found {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return decimal.NewFromInt(int64(n))
		}
	}
	return one()
}

// splitSlash splits a "left/right" size string.
func splitSlash(size string) (string, string) {
	left, right, found := strings.Cut(size, "/")
	if !found {
		return size, ""
	}
	return left, right
}

// splitShape splits sizes of the form "{sku}/{N}{suffix}", e.g.
// "FARGATE/3tasks" or "n1-standard-2/5workers", returning the sku and N.
func splitShape(size string) (string, decimal.Decimal) {
	left, right := splitSlash(size)
	qty := one()
	digits := strings.TrimRightFunc(right, func(r rune) bool {
		return r < '0' || r > '9'
	})
	if n, err := strconv.Atoi(digits); err == nil && n > 0 {
		qty = decimal.NewFromInt(int64(n))
	}
	return left, qty
}
