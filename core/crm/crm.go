// Package crm defines the Canonical Resource Model: the provider-agnostic
// resource graph every analysis runs against. A model is immutable once the
// parser produces it.
package crm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Provider identifiers used across the pipeline.
const (
	ProviderAWS = "aws"
	ProviderGCP = "gcp"
)

// RegionGlobal marks resources billed independently of region,
// e.g. CDN distributions.
const RegionGlobal = "global"

// CanonicalResource is the unit of analysis.
type CanonicalResource struct {
	// ID is unique within a model, e.g. "aws_instance.web"
	ID string `json:"id"`

	// Type is the namespaced resource type, e.g. "aws_instance"
	Type string `json:"type"`

	// Name is the declared resource name
	Name string `json:"name"`

	// Region is the cloud-native region code; "global" is allowed
	Region string `json:"region"`

	// Size is an opaque human-readable string capturing the billing-salient
	// shape, e.g. "m5.large", "pd-ssd/500GB", "FARGATE/3tasks"
	Size string `json:"size"`

	// Count is the number of instances of this resource, at least 1
	Count int `json:"count"`

	// Tags carries the declared resource tags
	Tags map[string]string `json:"tags,omitempty"`

	// Metadata carries extracted billing-salient attributes
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Provider returns the provider namespace of the resource type.
func (r *CanonicalResource) Provider() string {
	return ProviderOf(r.Type)
}

// MetadataString returns a string metadata value, or "" when absent.
func (r *CanonicalResource) MetadataString(key string) string {
	if r.Metadata == nil {
		return ""
	}
	if s, ok := r.Metadata[key].(string); ok {
		return s
	}
	return ""
}

// MetadataNumber returns a numeric metadata value, or (0, false) when the key
// is absent or not numeric.
func (r *CanonicalResource) MetadataNumber(key string) (float64, bool) {
	if r.Metadata == nil {
		return 0, false
	}
	switch v := r.Metadata[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// MetadataBool returns a boolean metadata value, or (false, false) when absent.
func (r *CanonicalResource) MetadataBool(key string) (bool, bool) {
	if r.Metadata == nil {
		return false, false
	}
	b, ok := r.Metadata[key].(bool)
	return b, ok
}

// Model is the canonical resource model produced by the parser.
type Model struct {
	// Resources lists all parsed resources
	Resources []*CanonicalResource `json:"resources"`

	// ProviderDefaults maps provider → declared default region
	ProviderDefaults map[string]string `json:"provider_defaults,omitempty"`

	// SourceIaCType records the input format, e.g. "terraform"
	SourceIaCType string `json:"source_iac_type"`
}

// Validate enforces the model invariants: unique non-empty resource ids,
// non-empty types, and count at least 1.
func (m *Model) Validate() error {
	seen := make(map[string]struct{}, len(m.Resources))
	for _, r := range m.Resources {
		if r.ID == "" {
			return fmt.Errorf("resource with empty id (type %q)", r.Type)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("duplicate resource id %q", r.ID)
		}
		seen[r.ID] = struct{}{}
		if r.Type == "" {
			return fmt.Errorf("resource %q has empty type", r.ID)
		}
		if r.Count < 1 {
			return fmt.Errorf("resource %q has count %d, want at least 1", r.ID, r.Count)
		}
	}
	return nil
}

// Resource returns the resource with the given id, or nil.
func (m *Model) Resource(id string) *CanonicalResource {
	for _, r := range m.Resources {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// ResourcesByProvider groups resources by provider namespace for the
// per-provider pricing fan-out. Resources with an unrecognized namespace
// group under "".
func (m *Model) ResourcesByProvider() map[string][]*CanonicalResource {
	groups := make(map[string][]*CanonicalResource)
	for _, r := range m.Resources {
		p := r.Provider()
		groups[p] = append(groups[p], r)
	}
	return groups
}

// CanonicalJSON serializes the model deterministically: resources ordered by
// id, map keys ordered by encoding/json. The output feeds cache keys and the
// serialize/parse round-trip law.
func (m *Model) CanonicalJSON() ([]byte, error) {
	clone := Model{
		Resources:        make([]*CanonicalResource, len(m.Resources)),
		ProviderDefaults: m.ProviderDefaults,
		SourceIaCType:    m.SourceIaCType,
	}
	copy(clone.Resources, m.Resources)
	sort.Slice(clone.Resources, func(i, j int) bool {
		return clone.Resources[i].ID < clone.Resources[j].ID
	})
	return json.Marshal(&clone)
}

// ParseModelJSON decodes a canonical serialization back into a model and
// validates it.
func ParseModelJSON(data []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding model: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// ProviderOf returns the provider namespace for a resource type:
// "aws" for aws_*, "gcp" for gcp_* and google_*, "" otherwise.
func ProviderOf(resourceType string) string {
	switch {
	case strings.HasPrefix(resourceType, "aws_"):
		return ProviderAWS
	case strings.HasPrefix(resourceType, "gcp_"), strings.HasPrefix(resourceType, "google_"):
		return ProviderGCP
	default:
		return ""
	}
}
