// Package terraform converts Terraform configuration text into the
// canonical resource model. Parsing is purely syntactic: only literal
// expressions are evaluated, and anything that references variables,
// locals, or provider data is preserved verbatim as an opaque string.
package terraform

import (
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"go.uber.org/zap"

	"github.com/honeybadger-technologies/finopsguard/core/crm"
	apperrors "github.com/honeybadger-technologies/finopsguard/internal/errors"
)

// IaCType identifies the payload format this parser accepts.
const IaCType = "terraform"

// Parser builds canonical resource models from Terraform HCL.
type Parser struct {
	log *zap.Logger
}

// NewParser creates a Terraform parser.
func NewParser(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log}
}

// IaCType reports the input format this parser handles.
func (p *Parser) IaCType() string {
	return IaCType
}

// rawBlock is the syntactic form of a top-level block: its kind, its
// labels, and its evaluated body attributes. Resource semantics are
// applied in a second pass.
type rawBlock struct {
	kind   string
	labels []string
	attrs  blockAttrs
	line   int
}

// Parse converts Terraform configuration text into a canonical model.
// Empty input is an invalid_request; syntactically broken HCL is a
// parse_error carrying the line and column of the first diagnostic.
func (p *Parser) Parse(text string) (*crm.Model, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.InvalidRequest("iac payload is empty")
	}

	src := []byte(text)
	file, diags := hclparse.NewParser().ParseHCL(src, "payload.tf")
	if diags.HasErrors() {
		return nil, parseError(diags)
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, apperrors.Parse("terraform payload has no parseable body", nil)
	}

	model := &crm.Model{
		SourceIaCType:    IaCType,
		ProviderDefaults: make(map[string]string),
	}
	for _, blk := range collectBlocks(body, src) {
		switch blk.kind {
		case "provider":
			applyProviderDefault(model, blk)
		case "resource":
			if res := p.buildResource(blk, model.ProviderDefaults); res != nil {
				model.Resources = append(model.Resources, res)
			}
		}
	}
	if len(model.ProviderDefaults) == 0 {
		model.ProviderDefaults = nil
	}
	if err := model.Validate(); err != nil {
		return nil, apperrors.Parse("terraform configuration produced an invalid resource model", err)
	}

	p.log.Debug("parsed terraform payload",
		zap.Int("resources", len(model.Resources)),
		zap.Int("provider_defaults", len(model.ProviderDefaults)))
	return model, nil
}

// collectBlocks walks every top-level block and evaluates its body
// attributes against an empty context.
func collectBlocks(body *hclsyntax.Body, src []byte) []rawBlock {
	out := make([]rawBlock, 0, len(body.Blocks))
	for _, blk := range body.Blocks {
		out = append(out, rawBlock{
			kind:   blk.Type,
			labels: blk.Labels,
			attrs:  evalAttributes(blk.Body, src),
			line:   blk.DefRange().Start.Line,
		})
	}
	return out
}

func evalAttributes(body *hclsyntax.Body, src []byte) blockAttrs {
	attrs := make(blockAttrs, len(body.Attributes))
	for name, attr := range body.Attributes {
		attrs[name] = evalExpression(attr.Expr, src)
	}
	return attrs
}

// evalExpression evaluates an expression with no variables in scope.
// Expressions that cannot resolve keep their verbatim source text.
func evalExpression(expr hclsyntax.Expression, src []byte) attrValue {
	val, diags := expr.Value(nil)
	if diags.HasErrors() || !val.IsKnown() || val.IsNull() {
		return attrValue{raw: exprSource(expr, src)}
	}
	return attrValue{value: ctyToGo(val), known: true}
}

// exprSource slices the verbatim expression text out of the input.
// Quoted templates keep their surrounding quotes in source, so one
// layer of quotes is stripped and "${var.x}" round-trips as ${var.x}.
func exprSource(expr hclsyntax.Expression, src []byte) string {
	rng := expr.Range()
	if rng.Start.Byte < 0 || rng.End.Byte > len(src) || rng.Start.Byte >= rng.End.Byte {
		return ""
	}
	text := strings.TrimSpace(string(src[rng.Start.Byte:rng.End.Byte]))
	if len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"' {
		text = text[1 : len(text)-1]
	}
	return text
}

// applyProviderDefault records the default region of an unaliased
// provider block. The first declaration for a provider wins.
func applyProviderDefault(model *crm.Model, blk rawBlock) {
	if len(blk.labels) == 0 {
		return
	}
	name := blk.labels[0]
	if name == "google" || name == "google-beta" {
		name = crm.ProviderGCP
	}
	if blk.attrs.has("alias") {
		return
	}
	region, ok := blk.attrs.str("region")
	if !ok || region == "" {
		return
	}
	if _, exists := model.ProviderDefaults[name]; !exists {
		model.ProviderDefaults[name] = region
	}
}

// buildResource turns a resource block into a canonical resource.
// Blocks with count = 0 are not created in Terraform and are dropped
// here the same way. Malformed blocks with fewer than two labels are
// skipped rather than failing the whole payload.
func (p *Parser) buildResource(blk rawBlock, defaults map[string]string) *crm.CanonicalResource {
	if len(blk.labels) < 2 {
		p.log.Debug("skipping resource block without type and name labels",
			zap.Int("line", blk.line))
		return nil
	}
	rtype := canonicalType(blk.labels[0])
	name := blk.labels[1]

	count := 1
	if n, ok := blk.attrs.num("count"); ok {
		if n < 1 {
			return nil
		}
		count = int(n)
	}

	res := &crm.CanonicalResource{
		ID:       rtype + "." + name,
		Type:     rtype,
		Name:     name,
		Count:    count,
		Metadata: make(map[string]interface{}),
	}
	if raw, ok := blk.attrs.rawOf("count"); ok {
		res.Metadata["count_expression"] = raw
	}

	res.Region = resolveRegion(blk.attrs, defaults[crm.ProviderOf(rtype)])

	if tags := blk.attrs.strMap("tags"); tags != nil {
		res.Tags = tags
	} else if labels := blk.attrs.strMap("labels"); labels != nil {
		res.Tags = labels
	}

	// risk-salient attributes any resource type may carry
	if enc, ok := blk.attrs.boolean("encrypted"); ok {
		res.Metadata["encrypted"] = enc
	}
	if pub, ok := blk.attrs.boolean("publicly_accessible"); ok {
		res.Metadata["publicly_accessible"] = pub
	}

	if extract, ok := extractors[rtype]; ok {
		extract(res, blk.attrs)
	} else {
		res.Size = "unknown"
	}
	if len(res.Metadata) == 0 {
		res.Metadata = nil
	}
	return res
}

// resolveRegion prefers an explicit region attribute, then derives the
// region from a zone, then falls back to the provider default.
func resolveRegion(attrs blockAttrs, providerDefault string) string {
	if r, ok := attrs.str("region"); ok && r != "" {
		return r
	}
	if z, ok := attrs.str("zone"); ok && z != "" {
		return regionFromZone(z)
	}
	if z, ok := attrs.str("availability_zone"); ok && z != "" {
		return regionFromZone(z)
	}
	return providerDefault
}

// regionFromZone strips the zone suffix from a zone name. GCP zones
// append a dash and a letter (us-central1-a); AWS availability zones
// append a bare letter (us-east-1a).
func regionFromZone(zone string) string {
	if i := strings.LastIndex(zone, "-"); i > 0 {
		tail := zone[i+1:]
		if len(tail) == 1 && tail[0] >= 'a' && tail[0] <= 'z' {
			return zone[:i]
		}
	}
	if n := len(zone); n > 1 {
		if zone[n-1] >= 'a' && zone[n-1] <= 'z' && zone[n-2] >= '0' && zone[n-2] <= '9' {
			return zone[:n-1]
		}
	}
	return zone
}

// parseError maps HCL diagnostics onto a parse_error with the position
// of the first error attached.
func parseError(diags hcl.Diagnostics) error {
	for _, d := range diags {
		if d.Severity != hcl.DiagError {
			continue
		}
		msg := d.Summary
		if d.Detail != "" {
			msg += ": " + d.Detail
		}
		err := apperrors.Parse("terraform configuration is not valid HCL: "+msg, nil)
		if d.Subject != nil {
			err = err.WithContext("line", d.Subject.Start.Line).
				WithContext("column", d.Subject.Start.Column)
		}
		return err
	}
	return apperrors.Parse("terraform configuration is not valid HCL", diags)
}
