package terraform

import (
	"strconv"
	"strings"

	"github.com/honeybadger-technologies/finopsguard/core/crm"
)

// extractorFunc fills in the billing-salient shape of one resource
// type: the size string and the metadata the estimator reads.
type extractorFunc func(res *crm.CanonicalResource, attrs blockAttrs)

// extractors is the closed registry of resource types with dedicated
// shape extraction. Anything else is recorded as-seen with size
// "unknown" so it still flows through pricing and policy evaluation.
var extractors = map[string]extractorFunc{
	"aws_instance":                extractInstance,
	"aws_lambda_function":         extractLambda,
	"aws_ecs_service":             extractECSService,
	"aws_ecs_task_definition":     extractECSTaskDefinition,
	"aws_kinesis_stream":          extractKinesisStream,
	"aws_sqs_queue":               extractSQSQueue,
	"aws_cloudfront_distribution": extractCloudFront,
	"gcp_compute_disk":            extractComputeDisk,
	"gcp_spanner_instance":        extractSpanner,
	"gcp_dataflow_job":            extractDataflow,
}

// canonicalType maps the google_* resource namespace onto the gcp_*
// names the registry uses. Types without a dedicated extractor keep
// their declared name.
func canonicalType(rtype string) string {
	if rest, ok := strings.CutPrefix(rtype, "google_"); ok {
		alias := "gcp_" + rest
		if _, known := extractors[alias]; known {
			return alias
		}
	}
	return rtype
}

func extractInstance(res *crm.CanonicalResource, attrs blockAttrs) {
	itype := strField(attrs, "instance_type", "")
	if itype == "" {
		res.Size = "unknown"
		return
	}
	res.Size = itype
	res.Metadata["instance_type"] = itype
}

func extractLambda(res *crm.CanonicalResource, attrs blockAttrs) {
	memText, mem, memKnown := numField(attrs, "memory_size", 128)
	res.Size = memText + "MB"
	if memKnown {
		res.Metadata["memory_mb"] = mem
	}
	if runtime := strField(attrs, "runtime", ""); runtime != "" {
		res.Size += "/" + runtime
		res.Metadata["runtime"] = runtime
	}
}

func extractECSService(res *crm.CanonicalResource, attrs blockAttrs) {
	launch := strField(attrs, "launch_type", "EC2")
	countText, count, known := numField(attrs, "desired_count", 1)
	res.Size = launch + "/" + countText + "tasks"
	res.Metadata["launch_type"] = launch
	if known {
		res.Metadata["desired_count"] = count
	}
}

func extractECSTaskDefinition(res *crm.CanonicalResource, attrs blockAttrs) {
	cpuText, cpu, cpuKnown := numField(attrs, "cpu", 256)
	memText, mem, memKnown := numField(attrs, "memory", 512)
	res.Size = cpuText + "cpu/" + memText + "mb"
	if cpuKnown {
		res.Metadata["cpu"] = cpu
	}
	if memKnown {
		res.Metadata["memory_mb"] = mem
	}
}

func extractKinesisStream(res *crm.CanonicalResource, attrs blockAttrs) {
	shardText, shards, known := numField(attrs, "shard_count", 1)
	res.Size = shardText + "shards"
	if known {
		res.Metadata["shard_count"] = shards
	}
}

func extractSQSQueue(res *crm.CanonicalResource, attrs blockAttrs) {
	fifo, _ := attrs.boolean("fifo_queue")
	if fifo {
		res.Size = "fifo"
	} else {
		res.Size = "standard"
	}
	res.Metadata["fifo"] = fifo
}

func extractCloudFront(res *crm.CanonicalResource, attrs blockAttrs) {
	// distributions are billed globally regardless of provider region
	res.Region = crm.RegionGlobal
	res.Size = strField(attrs, "price_class", "PriceClass_All")
}

func extractComputeDisk(res *crm.CanonicalResource, attrs blockAttrs) {
	dtype := strField(attrs, "type", "pd-standard")
	res.Size = dtype
	res.Metadata["disk_type"] = dtype
	if gb, ok := attrs.numOrString("size"); ok {
		res.Size = dtype + "/" + formatNum(gb) + "GB"
		res.Metadata["size_gb"] = gb
	} else if raw, ok := attrs.rawOf("size"); ok {
		res.Size = dtype + "/" + raw + "GB"
	}
}

func extractSpanner(res *crm.CanonicalResource, attrs blockAttrs) {
	if pu, ok := attrs.num("processing_units"); ok && pu > 0 {
		res.Size = formatNum(pu) + "PU"
		res.Metadata["processing_units"] = pu
		return
	}
	nodeText, nodes, known := numField(attrs, "num_nodes", 1)
	res.Size = nodeText + "nodes"
	if known {
		res.Metadata["num_nodes"] = nodes
	}
}

func extractDataflow(res *crm.CanonicalResource, attrs blockAttrs) {
	machine := strField(attrs, "machine_type", "n1-standard-1")
	workerText, workers, known := numField(attrs, "max_workers", 1)
	res.Size = machine + "/" + workerText + "workers"
	res.Metadata["machine_type"] = machine
	if known {
		res.Metadata["max_workers"] = workers
	}
}

// strField returns the attribute value, the verbatim expression when
// unevaluable, or the default when absent.
func strField(attrs blockAttrs, name, def string) string {
	if s, ok := attrs.strOrRaw(name); ok && s != "" {
		return s
	}
	return def
}

// numField renders a numeric attribute for size composition. Known
// values (including the default for absent attributes) come back with
// known = true; unevaluable expressions come back as verbatim text.
func numField(attrs blockAttrs, name string, def float64) (text string, val float64, known bool) {
	if f, ok := attrs.numOrString(name); ok {
		return formatNum(f), f, true
	}
	if raw, ok := attrs.rawOf(name); ok {
		return raw, 0, false
	}
	return formatNum(def), def, true
}

func formatNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
