package export

import (
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/valuation-cli/internal/model"
)

var multipleHeader = []string{
	"industry", "super_sector", "sector", "sub_sector", "effective_date",
	"revenue_low", "revenue_high", "ebitda_low", "ebitda_high",
}

// WriteMultiples writes multiples in the layout ReadMultiples accepts.
func WriteMultiples(out io.Writer, ms []model.IndustryMultiple) error {
	f := xlsx.NewFile()
	w, err := addSheet(f, SheetMultiples, multipleHeader)
	if err != nil {
		return err
	}
	for _, m := range ms {
		w.strings(
			m.Classification.Industry,
			m.Classification.SuperSector,
			m.Classification.Sector,
			m.Classification.SubSector,
			m.EffectiveDate.UTC().Format("2006-01-02"),
			m.RevenueLow.String(),
			m.RevenueHigh.String(),
			m.EBITDALow.String(),
			m.EBITDAHigh.String(),
		)
	}
	return save(f, out)
}

// ReadMultiples reads multiples from the first sheet of an XLSX file.
// Columns are located by header name, so their order is free. Every row is
// validated.
func ReadMultiples(path string) ([]model.IndustryMultiple, error) {
	rows, err := ReadRows(path, ReadOptions{})
	if err != nil {
		return nil, err
	}
	return parseMultiples(rows)
}

func parseMultiples(rows [][]string) ([]model.IndustryMultiple, error) {
	if len(rows) < 2 {
		return nil, eris.New("export: multiples sheet has no data rows")
	}

	idx := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		idx[strings.ToLower(h)] = i
	}
	for _, col := range multipleHeader {
		if _, ok := idx[col]; !ok {
			return nil, eris.Errorf("export: multiples sheet is missing column %q", col)
		}
	}
	get := func(record []string, col string) string {
		i := idx[col]
		if i >= len(record) {
			return ""
		}
		return record[i]
	}

	var out []model.IndustryMultiple
	for n, record := range rows[1:] {
		line := n + 2
		if strings.Join(record, "") == "" {
			continue
		}
		eff, err := time.Parse("2006-01-02", get(record, "effective_date"))
		if err != nil {
			return nil, eris.Wrapf(err, "export: row %d: effective_date", line)
		}
		m := model.IndustryMultiple{
			Classification: model.Classification{
				Industry:    get(record, "industry"),
				SuperSector: get(record, "super_sector"),
				Sector:      get(record, "sector"),
				SubSector:   get(record, "sub_sector"),
			},
			EffectiveDate: eff,
		}
		for _, fld := range []struct {
			col string
			dst *decimal.Decimal
		}{
			{"revenue_low", &m.RevenueLow},
			{"revenue_high", &m.RevenueHigh},
			{"ebitda_low", &m.EBITDALow},
			{"ebitda_high", &m.EBITDAHigh},
		} {
			d, err := decimal.NewFromString(get(record, fld.col))
			if err != nil {
				return nil, eris.Wrapf(err, "export: row %d: %s", line, fld.col)
			}
			*fld.dst = d
		}
		if err := m.Validate(); err != nil {
			return nil, eris.Wrapf(err, "export: row %d", line)
		}
		out = append(out, m)
	}
	return out, nil
}
