package certmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"bloodlink/internal/domain"
)

// Repository is the in-memory certificate store used in no-db mode and tests.
type Repository struct {
	mu      sync.RWMutex
	records map[string]domain.CertificateRecord
	clock   func() time.Time
}

func New() *Repository {
	return &Repository{
		records: make(map[string]domain.CertificateRecord),
		clock:   time.Now,
	}
}

func NewWithClock(clock func() time.Time) *Repository {
	r := New()
	if clock != nil {
		r.clock = clock
	}
	return r
}

func (r *Repository) Insert(ctx context.Context, rec domain.CertificateRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	r.records[rec.ID] = rec
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.CertificateRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := rec
	return &out, nil
}

func (r *Repository) UpdateDecision(ctx context.Context, id string, upd domain.DecisionUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	decidedAt := upd.DecidedAt
	if decidedAt.IsZero() {
		decidedAt = r.clock().UTC()
	}
	rec.ContentHash = upd.ContentHash
	rec.Eligibility = upd.Eligibility
	rec.LedgerTxRef = upd.LedgerTxRef
	rec.ReviewerID = upd.ReviewerID
	rec.Notes = upd.Notes
	rec.DecidedAt = &decidedAt
	rec.UpdatedAt = r.clock().UTC()
	r.records[id] = rec
	return nil
}

func (r *Repository) ListPending(ctx context.Context) ([]domain.CertificateRecord, error) {
	return r.list(ctx, false)
}

func (r *Repository) ListDecided(ctx context.Context) ([]domain.CertificateRecord, error) {
	return r.list(ctx, true)
}

func (r *Repository) list(ctx context.Context, decided bool) ([]domain.CertificateRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.CertificateRecord, 0, len(r.records))
	for _, rec := range r.records {
		if rec.Eligibility.Decided() == decided {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
