package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/honeybadger-technologies/finopsguard/core/store"
	apperrors "github.com/honeybadger-technologies/finopsguard/internal/errors"
)

var _ store.AnalysisStore = (*Store)(nil)

const analysisColumns = `request_id, started_at, completed_at, duration_ms, iac_type, environment,
       estimated_monthly_cost::text, estimated_first_week_cost::text, resource_count,
       policy_status, policy_id, risk_flags, recommendations_count, result_json, created_at`

// rowScanner abstracts pgx.Row and pgx.Rows for the scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

// Put stores one analysis record. Replays of the same request_id are
// ignored so a retried check never duplicates history.
func (s *Store) Put(ctx context.Context, rec *store.AnalysisRecord) error {
	if rec == nil {
		return apperrors.InvalidRequest("analysis record is nil")
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	riskFlags := rec.RiskFlags
	if riskFlags == nil {
		riskFlags = []string{}
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO analyses (
			request_id, started_at, completed_at, duration_ms, iac_type, environment,
			estimated_monthly_cost, estimated_first_week_cost, resource_count,
			policy_status, policy_id, risk_flags, recommendations_count, result_json, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (request_id) DO NOTHING
	`,
		rec.RequestID, rec.StartedAt, rec.CompletedAt, rec.DurationMS, rec.IaCType, rec.Environment,
		rec.EstimatedMonthlyCost.String(), rec.EstimatedFirstWeekCost.String(), rec.ResourceCount,
		rec.PolicyStatus, rec.PolicyID, riskFlags, rec.RecommendationsCount, []byte(rec.ResultJSON), createdAt,
	)
	if err != nil {
		return apperrors.Internal("failed to persist analysis record", err)
	}
	if tag.RowsAffected() == 0 {
		s.log.Debug("analysis record already stored", zap.String("request_id", rec.RequestID))
	}
	return nil
}

// Get retrieves one analysis record by request id.
func (s *Store) Get(ctx context.Context, requestID string) (*store.AnalysisRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE request_id = $1`, requestID)

	rec, err := scanAnalysis(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("analysis", requestID)
	}
	if err != nil {
		return nil, apperrors.Internal("failed to load analysis record", err)
	}
	return rec, nil
}

// List returns records newest first with keyset pagination. One extra row
// is fetched to decide whether a next page exists.
func (s *Store) List(ctx context.Context, q store.ListQuery) (*store.ListPage, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = store.DefaultListLimit
	}

	var cursorAt *time.Time
	var cursorID *string
	if q.Cursor != "" {
		at, id, err := store.DecodeCursor(q.Cursor)
		if err != nil {
			return nil, err
		}
		cursorAt, cursorID = &at, &id
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+analysisColumns+`
		FROM analyses
		WHERE ($1::timestamptz IS NULL OR started_at >= $1)
		  AND ($2::timestamptz IS NULL OR started_at <= $2)
		  AND ($3::timestamptz IS NULL OR (started_at, request_id) < ($3, $4::text))
		ORDER BY started_at DESC, request_id DESC
		LIMIT $5
	`, q.Since, q.Until, cursorAt, cursorID, limit+1)
	if err != nil {
		return nil, apperrors.Internal("failed to list analysis records", err)
	}
	defer rows.Close()

	var items []*store.AnalysisRecord
	for rows.Next() {
		rec, err := scanAnalysis(rows)
		if err != nil {
			return nil, apperrors.Internal("failed to scan analysis record", err)
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Internal("failed to list analysis records", err)
	}

	page := &store.ListPage{}
	if len(items) > limit {
		items = items[:limit]
		last := items[len(items)-1]
		page.NextCursor = store.EncodeCursor(last.StartedAt, last.RequestID)
	}
	page.Items = items
	return page, nil
}

func scanAnalysis(row rowScanner) (*store.AnalysisRecord, error) {
	var (
		rec       store.AnalysisRecord
		monthly   string
		firstWeek string
		result    []byte
	)
	if err := row.Scan(
		&rec.RequestID, &rec.StartedAt, &rec.CompletedAt, &rec.DurationMS, &rec.IaCType, &rec.Environment,
		&monthly, &firstWeek, &rec.ResourceCount,
		&rec.PolicyStatus, &rec.PolicyID, &rec.RiskFlags, &rec.RecommendationsCount, &result, &rec.CreatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if rec.EstimatedMonthlyCost, err = decimal.NewFromString(monthly); err != nil {
		return nil, fmt.Errorf("invalid monthly cost %q: %w", monthly, err)
	}
	if rec.EstimatedFirstWeekCost, err = decimal.NewFromString(firstWeek); err != nil {
		return nil, fmt.Errorf("invalid first week cost %q: %w", firstWeek, err)
	}
	rec.ResultJSON = json.RawMessage(result)
	return &rec, nil
}
