package recalc

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/store"
)

// SnapshotStore is the read side of snapshot persistence.
type SnapshotStore interface {
	GetSnapshot(ctx context.Context, id string) (*model.ValuationSnapshot, error)
	LatestSnapshot(ctx context.Context, companyID string) (*model.ValuationSnapshot, error)
	ListSnapshots(ctx context.Context, companyID string, f store.SnapshotFilter) ([]model.ValuationSnapshot, error)
}

// Reader serves stored snapshots.
type Reader struct {
	store SnapshotStore
}

// NewReader creates a Reader.
func NewReader(st SnapshotStore) *Reader {
	return &Reader{store: st}
}

// Latest returns the company's most recent snapshot, or store.ErrNotFound.
func (r *Reader) Latest(ctx context.Context, companyID string) (*model.ValuationSnapshot, error) {
	s, err := r.store.LatestSnapshot(ctx, companyID)
	if err != nil {
		return nil, eris.Wrapf(err, "recalc: latest snapshot %s", companyID)
	}
	return s, nil
}

// Get returns one snapshot. A snapshot belonging to another company is
// reported as not found.
func (r *Reader) Get(ctx context.Context, companyID, snapshotID string) (*model.ValuationSnapshot, error) {
	s, err := r.store.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return nil, eris.Wrapf(err, "recalc: get snapshot %s", snapshotID)
	}
	if s.CompanyID != companyID {
		return nil, eris.Wrapf(store.ErrNotFound, "recalc: snapshot %s not owned by %s", snapshotID, companyID)
	}
	return s, nil
}

// List returns the company's snapshot history, newest first.
func (r *Reader) List(ctx context.Context, companyID string, f store.SnapshotFilter) ([]model.ValuationSnapshot, error) {
	out, err := r.store.ListSnapshots(ctx, companyID, f)
	if err != nil {
		return nil, eris.Wrapf(err, "recalc: list snapshots %s", companyID)
	}
	return out, nil
}
