// Package store defines the analysis audit log: every successful check
// is persisted exactly once and never mutated.
package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/honeybadger-technologies/finopsguard/internal/errors"
)

// AnalysisRecord is the persisted summary of one completed check.
// ResultJSON carries the full response document and must round-trip
// byte-for-byte through any store implementation.
type AnalysisRecord struct {
	RequestID              string          `json:"request_id"`
	StartedAt              time.Time       `json:"started_at"`
	CompletedAt            time.Time       `json:"completed_at"`
	DurationMS             int64           `json:"duration_ms"`
	IaCType                string          `json:"iac_type"`
	Environment            string          `json:"environment"`
	EstimatedMonthlyCost   decimal.Decimal `json:"estimated_monthly_cost"`
	EstimatedFirstWeekCost decimal.Decimal `json:"estimated_first_week_cost"`
	ResourceCount          int             `json:"resource_count"`
	PolicyStatus           string          `json:"policy_status,omitempty"`
	PolicyID               string          `json:"policy_id,omitempty"`
	RiskFlags              []string        `json:"risk_flags,omitempty"`
	RecommendationsCount   int             `json:"recommendations_count"`
	ResultJSON             json.RawMessage `json:"result_json"`
	CreatedAt              time.Time       `json:"created_at"`
}

// Validate checks the fields every implementation relies on.
func (r *AnalysisRecord) Validate() error {
	if r.RequestID == "" {
		return apperrors.InvalidRequest("analysis record needs a request_id")
	}
	if r.StartedAt.IsZero() {
		return apperrors.InvalidRequest("analysis record needs a started_at timestamp")
	}
	return nil
}

// Clone copies the record including its slices, so stored records stay
// independent of caller mutations.
func (r *AnalysisRecord) Clone() *AnalysisRecord {
	clone := *r
	if r.RiskFlags != nil {
		clone.RiskFlags = append([]string(nil), r.RiskFlags...)
	}
	if r.ResultJSON != nil {
		clone.ResultJSON = append(json.RawMessage(nil), r.ResultJSON...)
	}
	return &clone
}

// ListQuery selects a window of records. Limit defaults to 20 when
// unset; Cursor is the opaque token from a previous page.
type ListQuery struct {
	Since  *time.Time
	Until  *time.Time
	Limit  int
	Cursor string
}

// ListPage is one page of records ordered by started_at descending.
// NextCursor is empty on the last page.
type ListPage struct {
	Items      []*AnalysisRecord `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

// AnalysisStore is the persistence contract. Put is idempotent on
// RequestID: a second write with the same id succeeds without effect.
type AnalysisStore interface {
	Put(ctx context.Context, rec *AnalysisRecord) error
	Get(ctx context.Context, requestID string) (*AnalysisRecord, error)
	List(ctx context.Context, q ListQuery) (*ListPage, error)
	Healthy(ctx context.Context) error
}

// DefaultListLimit applies when a query does not set a limit.
const DefaultListLimit = 20

// EncodeCursor builds the opaque forward cursor for a record: the
// caller resumes strictly after (startedAt, requestID) in descending
// order.
func EncodeCursor(startedAt time.Time, requestID string) string {
	raw := strconv.FormatInt(startedAt.UnixNano(), 10) + "|" + requestID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a cursor produced by EncodeCursor. Malformed
// cursors report invalid_request.
func DecodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", apperrors.InvalidRequest("malformed list cursor")
	}
	nanos, requestID, ok := strings.Cut(string(raw), "|")
	if !ok || requestID == "" {
		return time.Time{}, "", apperrors.InvalidRequest("malformed list cursor")
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return time.Time{}, "", apperrors.InvalidRequest("malformed list cursor")
	}
	return time.Unix(0, n).UTC(), requestID, nil
}
