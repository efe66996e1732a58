package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/honeybadger-technologies/finopsguard/core/policy"
	apperrors "github.com/honeybadger-technologies/finopsguard/internal/errors"
)

var _ policy.Persister = (*Store)(nil)

const policyColumns = `id, name, description, budget::text, expression,
       on_violation, enabled, created_by, created_at, updated_at`

// SavePolicy upserts a policy document. The registry is the source of
// truth for uniqueness; here the write is a plain last-write-wins upsert
// so registry retries stay safe.
func (s *Store) SavePolicy(ctx context.Context, p *policy.Policy) error {
	if p == nil {
		return apperrors.InvalidRequest("policy is nil")
	}

	var budget any
	if p.Budget != nil {
		budget = p.Budget.String()
	}
	var expression []byte
	if p.Expression != nil {
		data, err := json.Marshal(p.Expression)
		if err != nil {
			return apperrors.Internal("failed to encode policy expression", err)
		}
		expression = data
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO policies (
			id, name, description, budget, expression,
			on_violation, enabled, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name         = EXCLUDED.name,
			description  = EXCLUDED.description,
			budget       = EXCLUDED.budget,
			expression   = EXCLUDED.expression,
			on_violation = EXCLUDED.on_violation,
			enabled      = EXCLUDED.enabled,
			created_by   = EXCLUDED.created_by,
			updated_at   = EXCLUDED.updated_at
	`,
		p.ID, p.Name, p.Description, budget, expression,
		string(p.OnViolation), p.Enabled, p.CreatedBy, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return apperrors.Internal("failed to persist policy", err)
	}
	return nil
}

// DeletePolicy removes a policy document. Deleting an absent row is not
// an error; the registry has already decided the policy existed.
func (s *Store) DeletePolicy(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM policies WHERE id = $1`, id); err != nil {
		return apperrors.Internal("failed to delete policy", err)
	}
	return nil
}

// LoadPolicies reads all stored policies for registry hydration at
// startup.
func (s *Store) LoadPolicies(ctx context.Context) ([]*policy.Policy, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+policyColumns+` FROM policies ORDER BY created_at, id`)
	if err != nil {
		return nil, apperrors.Internal("failed to load policies", err)
	}
	defer rows.Close()

	var policies []*policy.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, apperrors.Internal("failed to scan policy", err)
		}
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Internal("failed to load policies", err)
	}
	return policies, nil
}

func scanPolicy(row rowScanner) (*policy.Policy, error) {
	var (
		p           policy.Policy
		budget      *string
		expression  []byte
		onViolation string
	)
	if err := row.Scan(
		&p.ID, &p.Name, &p.Description, &budget, &expression,
		&onViolation, &p.Enabled, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if budget != nil {
		d, err := decimal.NewFromString(*budget)
		if err != nil {
			return nil, fmt.Errorf("invalid budget %q: %w", *budget, err)
		}
		p.Budget = &d
	}
	if len(expression) > 0 {
		var expr policy.Expression
		if err := json.Unmarshal(expression, &expr); err != nil {
			return nil, fmt.Errorf("invalid expression for policy %s: %w", p.ID, err)
		}
		p.Expression = &expr
	}
	p.OnViolation = policy.OnViolation(onViolation)
	return &p, nil
}
