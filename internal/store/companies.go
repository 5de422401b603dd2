package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/valuation-cli/internal/model"
)

// levelColumns maps a classification level to its column. Values are fixed
// identifiers and safe to interpolate.
var levelColumns = map[model.Level]string{
	model.LevelSubSector:   "sub_sector",
	model.LevelSector:      "sector",
	model.LevelSuperSector: "super_sector",
	model.LevelIndustry:    "industry",
}

func levelColumn(l model.Level) (string, error) {
	col, ok := levelColumns[l]
	if !ok {
		return "", eris.Errorf("store: unknown classification level %q", l)
	}
	return col, nil
}

const companyColumns = `id, name, industry, super_sector, sector, sub_sector,
	CAST(annual_revenue AS TEXT), revenue_model, gross_margin, labor_intensity,
	asset_intensity, owner_involvement, created_at, updated_at`

func (s *sqlStore) UpsertCompany(ctx context.Context, c *model.Company) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	_, err := s.q.exec(ctx,
		`INSERT INTO companies (id, name, industry, super_sector, sector, sub_sector,
			annual_revenue, revenue_model, gross_margin, labor_intensity,
			asset_intensity, owner_involvement, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			industry = excluded.industry,
			super_sector = excluded.super_sector,
			sector = excluded.sector,
			sub_sector = excluded.sub_sector,
			annual_revenue = excluded.annual_revenue,
			revenue_model = excluded.revenue_model,
			gross_margin = excluded.gross_margin,
			labor_intensity = excluded.labor_intensity,
			asset_intensity = excluded.asset_intensity,
			owner_involvement = excluded.owner_involvement,
			updated_at = excluded.updated_at`,
		c.ID, c.Name,
		c.Classification.Industry, c.Classification.SuperSector,
		c.Classification.Sector, c.Classification.SubSector,
		decArg(c.Core.AnnualRevenue), string(c.Core.RevenueModel), string(c.Core.GrossMargin),
		string(c.Core.LaborIntensity), string(c.Core.AssetIntensity), string(c.Core.OwnerInvolvement),
		c.CreatedAt, c.UpdatedAt,
	)
	return s.wrap(err, "upsert company "+c.ID)
}

func (s *sqlStore) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	var c model.Company
	var revenue, rm, gm, li, ai, oi string
	err := s.q.queryRow(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name,
		&c.Classification.Industry, &c.Classification.SuperSector,
		&c.Classification.Sector, &c.Classification.SubSector,
		&revenue, &rm, &gm, &li, &ai, &oi, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, s.wrap(err, "get company "+id)
	}
	if c.Core.AnnualRevenue, err = parseDec(revenue); err != nil {
		return nil, s.wrap(err, "get company "+id)
	}
	c.Core.RevenueModel = model.RevenueModel(rm)
	c.Core.GrossMargin = model.GrossMargin(gm)
	c.Core.LaborIntensity = model.LaborIntensity(li)
	c.Core.AssetIntensity = model.AssetIntensity(ai)
	c.Core.OwnerInvolvement = model.OwnerInvolvement(oi)
	return &c, nil
}

func (s *sqlStore) ListCompanyIDs(ctx context.Context) ([]string, error) {
	return s.listStrings(ctx, "list company ids", `SELECT id FROM companies ORDER BY id`)
}

// ListCompanyIDsByClassification returns companies whose code at level
// equals code.
func (s *sqlStore) ListCompanyIDsByClassification(ctx context.Context, level model.Level, code string) ([]string, error) {
	col, err := levelColumn(level)
	if err != nil {
		return nil, err
	}
	return s.listStrings(ctx, "list companies by "+col,
		`SELECT id FROM companies WHERE `+col+` = ? ORDER BY id`, code)
}

func (s *sqlStore) UpsertFinancialPeriod(ctx context.Context, p *model.FinancialPeriod) error {
	_, err := s.q.exec(ctx,
		`INSERT INTO financial_periods (company_id, period_end, adjusted_ebitda, free_cash_flow)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (company_id, period_end) DO UPDATE SET
			adjusted_ebitda = excluded.adjusted_ebitda,
			free_cash_flow = excluded.free_cash_flow`,
		p.CompanyID, p.PeriodEnd.UTC(), nullDecArg(p.AdjustedEBITDA), nullDecArg(p.FreeCashFlow),
	)
	return s.wrap(err, "upsert financial period for "+p.CompanyID)
}

func (s *sqlStore) ListFinancialPeriods(ctx context.Context, companyID string) ([]model.FinancialPeriod, error) {
	rows, err := s.q.query(ctx,
		`SELECT company_id, period_end, CAST(adjusted_ebitda AS TEXT), CAST(free_cash_flow AS TEXT)
		FROM financial_periods WHERE company_id = ? ORDER BY period_end DESC`, companyID)
	if err != nil {
		return nil, s.wrap(err, "list financial periods")
	}
	defer rows.Close()

	var out []model.FinancialPeriod
	for rows.Next() {
		var (
			p        model.FinancialPeriod
			ebitda   *string
			freeCash *string
		)
		if err := rows.Scan(&p.CompanyID, &p.PeriodEnd, &ebitda, &freeCash); err != nil {
			return nil, s.wrap(err, "scan financial period")
		}
		if p.AdjustedEBITDA, err = parseNullDec(ebitda); err != nil {
			return nil, s.wrap(err, "scan financial period")
		}
		if p.FreeCashFlow, err = parseNullDec(freeCash); err != nil {
			return nil, s.wrap(err, "scan financial period")
		}
		out = append(out, p)
	}
	return out, s.wrap(rows.Err(), "list financial periods")
}
