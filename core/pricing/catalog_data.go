package pricing

const currencyUSD = "USD"

type seedPrice struct {
	provider string
	sku      string
	region   string
	unit     Unit
	amount   string
}

// staticReferenceRegions are the fallback regions for the region-miss rung.
var staticReferenceRegions = map[string]string{
	"aws": "us-east-1",
	"gcp": "us-central1",
}

// staticPrices is the built-in price table. Amounts are on-demand list
// prices in USD. Request-unit amounts are per single request.
var staticPrices = []seedPrice{
	// AWS EC2 on-demand, us-east-1
	{"aws", "t3.micro", "us-east-1", UnitHour, "0.0104"},
	{"aws", "t3.small", "us-east-1", UnitHour, "0.0208"},
	{"aws", "t3.medium", "us-east-1", UnitHour, "0.0416"},
	{"aws", "t3.large", "us-east-1", UnitHour, "0.0832"},
	{"aws", "t3.xlarge", "us-east-1", UnitHour, "0.1664"},
	{"aws", "t3.2xlarge", "us-east-1", UnitHour, "0.3328"},
	{"aws", "t2.micro", "us-east-1", UnitHour, "0.0116"},
	{"aws", "t2.medium", "us-east-1", UnitHour, "0.0464"},
	{"aws", "m5.large", "us-east-1", UnitHour, "0.096"},
	{"aws", "m5.xlarge", "us-east-1", UnitHour, "0.192"},
	{"aws", "m5.2xlarge", "us-east-1", UnitHour, "0.384"},
	{"aws", "m6i.large", "us-east-1", UnitHour, "0.096"},
	{"aws", "m6i.xlarge", "us-east-1", UnitHour, "0.192"},
	{"aws", "c5.large", "us-east-1", UnitHour, "0.085"},
	{"aws", "c5.xlarge", "us-east-1", UnitHour, "0.17"},
	{"aws", "r5.large", "us-east-1", UnitHour, "0.126"},
	{"aws", "r5.xlarge", "us-east-1", UnitHour, "0.252"},

	// AWS EC2 on-demand, eu-west-1
	{"aws", "t3.medium", "eu-west-1", UnitHour, "0.0456"},
	{"aws", "t3.large", "eu-west-1", UnitHour, "0.0912"},
	{"aws", "m5.large", "eu-west-1", UnitHour, "0.107"},
	{"aws", "c5.large", "eu-west-1", UnitHour, "0.096"},
	{"aws", "r5.large", "eu-west-1", UnitHour, "0.141"},

	// AWS Kinesis provisioned shards
	{"aws", "kinesis-shard", "us-east-1", UnitHour, "0.015"},
	{"aws", "kinesis-shard", "eu-west-1", UnitHour, "0.0165"},

	// AWS Fargate
	{"aws", "fargate-vcpu-hour", "us-east-1", UnitHour, "0.04048"},
	{"aws", "fargate-gb-hour", "us-east-1", UnitHour, "0.004445"},
	{"aws", "fargate-task", "us-east-1", UnitHour, "0.012342"},

	// AWS request-billed services
	{"aws", "sqs-request-standard", "us-east-1", UnitRequest, "0.0000004"},
	{"aws", "sqs-request-fifo", "us-east-1", UnitRequest, "0.0000005"},
	{"aws", "lambda-request", "us-east-1", UnitRequest, "0.0000002"},
	{"aws", "cloudfront-request", "global", UnitRequest, "0.000001"},

	// ECS services on EC2 carry no service-level charge.
	{"aws", "ecs-ec2-service", "us-east-1", UnitMonth, "0"},

	// GCP Compute Engine, us-central1
	{"gcp", "e2-medium", "us-central1", UnitHour, "0.03351"},
	{"gcp", "e2-standard-2", "us-central1", UnitHour, "0.06701"},
	{"gcp", "e2-standard-4", "us-central1", UnitHour, "0.13402"},
	{"gcp", "n1-standard-1", "us-central1", UnitHour, "0.0475"},
	{"gcp", "n1-standard-2", "us-central1", UnitHour, "0.095"},
	{"gcp", "n1-standard-4", "us-central1", UnitHour, "0.19"},
	{"gcp", "n1-standard-8", "us-central1", UnitHour, "0.38"},

	// GCP Compute Engine, europe-west1
	{"gcp", "n1-standard-2", "europe-west1", UnitHour, "0.1046"},

	// GCP persistent disks (per GB provisioned)
	{"gcp", "pd-standard", "us-central1", UnitGBMonth, "0.04"},
	{"gcp", "pd-balanced", "us-central1", UnitGBMonth, "0.10"},
	{"gcp", "pd-ssd", "us-central1", UnitGBMonth, "0.17"},
	{"gcp", "pd-ssd", "europe-west1", UnitGBMonth, "0.187"},

	// GCP Spanner
	{"gcp", "spanner-node", "us-central1", UnitHour, "0.90"},
	{"gcp", "spanner-node", "europe-west1", UnitHour, "0.99"},
	{"gcp", "spanner-processing-unit", "us-central1", UnitHour, "0.0009"},
}

// staticFamilyDefaults approximate unknown SKUs by their instance family at
// the reference region. Matches here always carry low confidence.
var staticFamilyDefaults = []seedPrice{
	{provider: "aws", sku: "t2", unit: UnitHour, amount: "0.0464"},
	{provider: "aws", sku: "t3", unit: UnitHour, amount: "0.0416"},
	{provider: "aws", sku: "m5", unit: UnitHour, amount: "0.096"},
	{provider: "aws", sku: "m6i", unit: UnitHour, amount: "0.096"},
	{provider: "aws", sku: "c5", unit: UnitHour, amount: "0.085"},
	{provider: "aws", sku: "r5", unit: UnitHour, amount: "0.126"},
	{provider: "gcp", sku: "pd", unit: UnitGBMonth, amount: "0.10"},
	{provider: "gcp", sku: "n1-standard", unit: UnitHour, amount: "0.095"},
	{provider: "gcp", sku: "e2-standard", unit: UnitHour, amount: "0.06701"},
}
