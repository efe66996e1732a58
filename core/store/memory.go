package store

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "github.com/honeybadger-technologies/finopsguard/internal/errors"
)

// MemoryStore keeps analysis records in process. It backs tests and
// deployments without a database DSN.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*AnalysisRecord

	// order holds the records sorted by started_at descending with
	// request_id descending as the tiebreaker.
	order []*AnalysisRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*AnalysisRecord),
	}
}

// Put stores a record. A record with a known request_id is silently
// ignored, which makes retries idempotent.
func (s *MemoryStore) Put(ctx context.Context, rec *AnalysisRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.RequestID]; exists {
		return nil
	}
	stored := rec.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.records[stored.RequestID] = stored

	idx := sort.Search(len(s.order), func(i int) bool {
		return descLess(s.order[i], stored)
	})
	s.order = append(s.order, nil)
	copy(s.order[idx+1:], s.order[idx:])
	s.order[idx] = stored
	return nil
}

// Get returns one record by request id.
func (s *MemoryStore) Get(ctx context.Context, requestID string) (*AnalysisRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[requestID]
	if !ok {
		return nil, apperrors.NotFound("analysis", requestID)
	}
	return rec.Clone(), nil
}

// List returns a page of records ordered by started_at descending.
func (s *MemoryStore) List(ctx context.Context, q ListQuery) (*ListPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var afterTime time.Time
	var afterID string
	usingCursor := q.Cursor != ""
	if usingCursor {
		t, id, err := DecodeCursor(q.Cursor)
		if err != nil {
			return nil, err
		}
		afterTime, afterID = t, id
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	page := &ListPage{Items: make([]*AnalysisRecord, 0, limit)}
	for _, rec := range s.order {
		if usingCursor && !afterCursor(rec, afterTime, afterID) {
			continue
		}
		if q.Since != nil && rec.StartedAt.Before(*q.Since) {
			continue
		}
		if q.Until != nil && rec.StartedAt.After(*q.Until) {
			continue
		}
		if len(page.Items) == limit {
			last := page.Items[len(page.Items)-1]
			page.NextCursor = EncodeCursor(last.StartedAt, last.RequestID)
			return page, nil
		}
		page.Items = append(page.Items, rec.Clone())
	}
	return page, nil
}

// Healthy reports whether the store can serve requests.
func (s *MemoryStore) Healthy(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// descLess orders records by started_at descending, then request_id
// descending. It reports whether a sorts after b in that order.
func descLess(a, b *AnalysisRecord) bool {
	if !a.StartedAt.Equal(b.StartedAt) {
		return a.StartedAt.Before(b.StartedAt)
	}
	return a.RequestID < b.RequestID
}

// afterCursor reports whether rec comes strictly after the cursor
// position in descending order.
func afterCursor(rec *AnalysisRecord, t time.Time, id string) bool {
	if rec.StartedAt.Before(t) {
		return true
	}
	return rec.StartedAt.Equal(t) && rec.RequestID < id
}
