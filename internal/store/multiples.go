package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/valuation-cli/internal/model"
)

const multipleColumns = `id, industry, super_sector, sector, sub_sector, effective_date,
	CAST(revenue_low AS TEXT), CAST(revenue_high AS TEXT),
	CAST(ebitda_low AS TEXT), CAST(ebitda_high AS TEXT), created_at`

// multipleCopyColumns is the column order used by multipleRow.
var multipleCopyColumns = []string{
	"id", "industry", "super_sector", "sector", "sub_sector", "effective_date",
	"revenue_low", "revenue_high", "ebitda_low", "ebitda_high", "created_at",
}

var upsertMultipleSQL = func() string {
	set := make([]string, 0, len(multipleCopyColumns)-1)
	for _, c := range multipleCopyColumns[1:] {
		set = append(set, c+" = excluded."+c)
	}
	return `INSERT INTO industry_multiples (` + strings.Join(multipleCopyColumns, ", ") + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET ` + strings.Join(set, ", ")
}()

// prepareMultiple fills generated fields and validates m.
func prepareMultiple(m *model.IndustryMultiple) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return nil
}

func multipleRow(m *model.IndustryMultiple) []any {
	return []any{
		m.ID, m.Classification.Industry, m.Classification.SuperSector,
		m.Classification.Sector, m.Classification.SubSector, m.EffectiveDate.UTC(),
		decArg(m.RevenueLow), decArg(m.RevenueHigh),
		decArg(m.EBITDALow), decArg(m.EBITDAHigh), m.CreatedAt.UTC(),
	}
}

func scanMultiple(row rowScanner) (*model.IndustryMultiple, error) {
	var m model.IndustryMultiple
	var rl, rh, el, eh string
	if err := row.Scan(&m.ID, &m.Classification.Industry, &m.Classification.SuperSector,
		&m.Classification.Sector, &m.Classification.SubSector, &m.EffectiveDate,
		&rl, &rh, &el, &eh, &m.CreatedAt); err != nil {
		return nil, err
	}
	if err := decs(&m.RevenueLow, rl, &m.RevenueHigh, rh, &m.EBITDALow, el, &m.EBITDAHigh, eh); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *sqlStore) InsertMultiple(ctx context.Context, m *model.IndustryMultiple) error {
	if err := prepareMultiple(m); err != nil {
		return err
	}
	_, err := s.q.exec(ctx,
		`INSERT INTO industry_multiples (`+strings.Join(multipleCopyColumns, ", ")+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		multipleRow(m)...,
	)
	return s.wrap(err, "insert multiple "+m.ID)
}

func (s *sqlStore) getMultiple(ctx context.Context, id string) (*model.IndustryMultiple, error) {
	m, err := scanMultiple(s.q.queryRow(ctx,
		`SELECT `+multipleColumns+` FROM industry_multiples WHERE id = ?`, id))
	if err != nil {
		return nil, s.wrap(err, "get multiple "+id)
	}
	return m, nil
}

// DeleteMultiple removes a multiple and returns the deleted row so callers
// can find the companies it affected.
func (s *sqlStore) DeleteMultiple(ctx context.Context, id string) (*model.IndustryMultiple, error) {
	m, err := s.getMultiple(ctx, id)
	if err != nil {
		return nil, err
	}
	n, err := s.q.exec(ctx, `DELETE FROM industry_multiples WHERE id = ?`, id)
	if err != nil {
		return nil, s.wrap(err, "delete multiple "+id)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return m, nil
}

// LatestMultiple returns the most recent multiple effective on or before
// asOf whose key stops exactly at level with the given code.
func (s *sqlStore) LatestMultiple(ctx context.Context, level model.Level, code string, asOf time.Time) (*model.IndustryMultiple, error) {
	col, err := levelColumn(level)
	if err != nil {
		return nil, err
	}
	var finer []string
	for _, l := range model.Levels {
		if l == level {
			break
		}
		finer = append(finer, levelColumns[l]+` = ''`)
	}
	where := col + ` = ?`
	if len(finer) > 0 {
		where += ` AND ` + strings.Join(finer, ` AND `)
	}

	m, err := scanMultiple(s.q.queryRow(ctx,
		`SELECT `+multipleColumns+` FROM industry_multiples
		WHERE `+where+` AND effective_date <= ?
		ORDER BY effective_date DESC, created_at DESC LIMIT 1`, code, asOf.UTC()))
	if err != nil {
		return nil, s.wrap(err, "latest multiple for "+col)
	}
	return m, nil
}

func (s *sqlStore) ListMultiples(ctx context.Context) ([]model.IndustryMultiple, error) {
	rows, err := s.q.query(ctx,
		`SELECT `+multipleColumns+` FROM industry_multiples
		ORDER BY industry, super_sector, sector, sub_sector, effective_date DESC`)
	if err != nil {
		return nil, s.wrap(err, "list multiples")
	}
	defer rows.Close()

	var out []model.IndustryMultiple
	for rows.Next() {
		m, err := scanMultiple(rows)
		if err != nil {
			return nil, s.wrap(err, "scan multiple")
		}
		out = append(out, *m)
	}
	return out, s.wrap(rows.Err(), "list multiples")
}

func (s *sqlStore) deleteAllMultiples(ctx context.Context) error {
	_, err := s.q.exec(ctx, `DELETE FROM industry_multiples`)
	return s.wrap(err, "delete all multiples")
}
