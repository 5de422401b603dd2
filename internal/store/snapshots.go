package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sells-group/valuation-cli/internal/model"
)

// categoryColumns maps each category to its nullable score column.
var categoryColumns = map[model.Category]string{
	model.CategoryFinancial:       "score_financial",
	model.CategoryTransferability: "score_transferability",
	model.CategoryOperational:     "score_operational",
	model.CategoryMarket:          "score_market",
	model.CategoryLegalTax:        "score_legal_tax",
	model.CategoryPersonal:        "score_personal",
}

var snapshotInsertColumns = func() []string {
	cols := []string{
		"id", "company_id", "created_at", "snapshot_reason", "actor_user_id",
		"adjusted_ebitda", "ebitda_estimated", "industry_multiple_id",
		"multiple_low", "multiple_high", "core_score",
	}
	for _, c := range model.Categories {
		cols = append(cols, categoryColumns[c])
	}
	return append(cols,
		"bri_score", "alpha", "base_multiple", "discount_fraction",
		"final_multiple", "current_value", "potential_value", "value_gap",
	)
}()

var snapshotColumns = func() string {
	cols := []string{
		"id", "company_id", "created_at", "snapshot_reason", "actor_user_id",
		"CAST(adjusted_ebitda AS TEXT)", "ebitda_estimated", "industry_multiple_id",
		"CAST(multiple_low AS TEXT)", "CAST(multiple_high AS TEXT)", "CAST(core_score AS TEXT)",
	}
	for _, c := range model.Categories {
		cols = append(cols, "CAST("+categoryColumns[c]+" AS TEXT)")
	}
	for _, c := range []string{
		"bri_score", "alpha", "base_multiple", "discount_fraction",
		"final_multiple", "current_value", "potential_value", "value_gap",
	} {
		cols = append(cols, "CAST("+c+" AS TEXT)")
	}
	return strings.Join(cols, ", ")
}()

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// InsertSnapshot appends a snapshot. Snapshots are never updated.
func (s *sqlStore) InsertSnapshot(ctx context.Context, snap *model.ValuationSnapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}

	var actor any
	if snap.ActorUserID != nil {
		actor = *snap.ActorUserID
	}
	args := []any{
		snap.ID, snap.CompanyID, snap.CreatedAt.UTC(), snap.Reason, actor,
		decArg(snap.AdjustedEBITDA), snap.EBITDAEstimated, snap.IndustryMultipleID,
		decArg(snap.MultipleLow), decArg(snap.MultipleHigh), decArg(snap.CoreScore),
	}
	for _, c := range model.Categories {
		args = append(args, nullDecArg(snap.CategoryScores[c]))
	}
	args = append(args,
		decArg(snap.BRIScore), decArg(snap.Alpha), decArg(snap.BaseMultiple),
		decArg(snap.DiscountFraction), decArg(snap.FinalMultiple),
		decArg(snap.CurrentValue), decArg(snap.PotentialValue), decArg(snap.ValueGap),
	)

	_, err := s.q.exec(ctx,
		`INSERT INTO valuation_snapshots (`+strings.Join(snapshotInsertColumns, ", ")+`)
		VALUES (`+placeholders(len(snapshotInsertColumns))+`)`,
		args...,
	)
	return s.wrap(err, "insert snapshot "+snap.ID)
}

func scanSnapshot(row rowScanner) (*model.ValuationSnapshot, error) {
	var (
		snap                  model.ValuationSnapshot
		ebitda, low, high     string
		core, bri, alpha      string
		base, discount, final string
		current, potential    string
		gap                   string
	)
	scores := make([]*string, len(model.Categories))
	dest := []any{
		&snap.ID, &snap.CompanyID, &snap.CreatedAt, &snap.Reason, &snap.ActorUserID,
		&ebitda, &snap.EBITDAEstimated, &snap.IndustryMultipleID, &low, &high, &core,
	}
	for i := range scores {
		dest = append(dest, &scores[i])
	}
	dest = append(dest, &bri, &alpha, &base, &discount, &final, &current, &potential, &gap)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if err := decs(
		&snap.AdjustedEBITDA, ebitda, &snap.MultipleLow, low, &snap.MultipleHigh, high,
		&snap.CoreScore, core, &snap.BRIScore, bri, &snap.Alpha, alpha,
		&snap.BaseMultiple, base, &snap.DiscountFraction, discount, &snap.FinalMultiple, final,
		&snap.CurrentValue, current, &snap.PotentialValue, potential, &snap.ValueGap, gap,
	); err != nil {
		return nil, err
	}

	snap.CategoryScores = make(map[model.Category]decimal.NullDecimal, len(model.Categories))
	for i, c := range model.Categories {
		v, err := parseNullDec(scores[i])
		if err != nil {
			return nil, err
		}
		snap.CategoryScores[c] = v
	}
	return &snap, nil
}

func (s *sqlStore) oneSnapshot(ctx context.Context, action, where string, args ...any) (*model.ValuationSnapshot, error) {
	snap, err := scanSnapshot(s.q.queryRow(ctx,
		`SELECT `+snapshotColumns+` FROM valuation_snapshots WHERE `+where, args...))
	if err != nil {
		return nil, s.wrap(err, action)
	}
	return snap, nil
}

func (s *sqlStore) GetSnapshot(ctx context.Context, id string) (*model.ValuationSnapshot, error) {
	return s.oneSnapshot(ctx, "get snapshot "+id, `id = ?`, id)
}

func (s *sqlStore) LatestSnapshot(ctx context.Context, companyID string) (*model.ValuationSnapshot, error) {
	return s.oneSnapshot(ctx, "latest snapshot",
		`company_id = ? ORDER BY created_at DESC LIMIT 1`, companyID)
}

// SnapshotAtOrBefore returns the newest snapshot created at or before t.
func (s *sqlStore) SnapshotAtOrBefore(ctx context.Context, companyID string, t time.Time) (*model.ValuationSnapshot, error) {
	return s.oneSnapshot(ctx, "snapshot at or before",
		`company_id = ? AND created_at <= ? ORDER BY created_at DESC LIMIT 1`, companyID, t.UTC())
}

// EarliestSnapshotBetween returns the oldest snapshot created in [start, end].
func (s *sqlStore) EarliestSnapshotBetween(ctx context.Context, companyID string, start, end time.Time) (*model.ValuationSnapshot, error) {
	return s.oneSnapshot(ctx, "earliest snapshot between",
		`company_id = ? AND created_at >= ? AND created_at <= ? ORDER BY created_at ASC LIMIT 1`,
		companyID, start.UTC(), end.UTC())
}

// ListSnapshots returns a company's snapshots, newest first.
func (s *sqlStore) ListSnapshots(ctx context.Context, companyID string, f SnapshotFilter) ([]model.ValuationSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM valuation_snapshots WHERE company_id = ?`
	args := []any{companyID}
	if !f.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, f.Since.UTC())
	}
	if !f.Until.IsZero() {
		query += ` AND created_at <= ?`
		args = append(args, f.Until.UTC())
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.q.query(ctx, query, args...)
	if err != nil {
		return nil, s.wrap(err, "list snapshots")
	}
	defer rows.Close()

	var out []model.ValuationSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, s.wrap(err, "scan snapshot")
		}
		out = append(out, *snap)
	}
	return out, s.wrap(rows.Err(), "list snapshots")
}
