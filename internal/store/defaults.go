package store

import (
	_ "embed"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/valuation-cli/internal/model"
)

//go:embed defaults/industry_multiples.yaml
var defaultMultiplesYAML []byte

type multiplesFile struct {
	Multiples []multipleEntry `yaml:"multiples"`
}

type multipleEntry struct {
	Industry      string `yaml:"industry"`
	SuperSector   string `yaml:"super_sector"`
	Sector        string `yaml:"sector"`
	SubSector     string `yaml:"sub_sector"`
	EffectiveDate string `yaml:"effective_date"`
	RevenueLow    string `yaml:"revenue_low"`
	RevenueHigh   string `yaml:"revenue_high"`
	EBITDALow     string `yaml:"ebitda_low"`
	EBITDAHigh    string `yaml:"ebitda_high"`
}

// DefaultMultiples returns the embedded default multiples.
func DefaultMultiples() ([]model.IndustryMultiple, error) {
	return parseMultiples(defaultMultiplesYAML)
}

// LoadMultiples reads multiples from a YAML file. An empty path yields the
// embedded defaults.
func LoadMultiples(path string) ([]model.IndustryMultiple, error) {
	if path == "" {
		return DefaultMultiples()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: read multiples file %s", path)
	}
	return parseMultiples(data)
}

func parseMultiples(data []byte) ([]model.IndustryMultiple, error) {
	var file multiplesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrap(err, "store: parse multiples yaml")
	}

	out := make([]model.IndustryMultiple, 0, len(file.Multiples))
	for i, e := range file.Multiples {
		eff, err := time.Parse("2006-01-02", e.EffectiveDate)
		if err != nil {
			return nil, eris.Wrapf(err, "store: multiples[%d]: effective_date", i)
		}
		m := model.IndustryMultiple{
			Classification: model.Classification{
				Industry:    e.Industry,
				SuperSector: e.SuperSector,
				Sector:      e.Sector,
				SubSector:   e.SubSector,
			},
			EffectiveDate: eff,
		}
		for _, f := range []struct {
			dst *decimal.Decimal
			src string
		}{
			{&m.RevenueLow, e.RevenueLow},
			{&m.RevenueHigh, e.RevenueHigh},
			{&m.EBITDALow, e.EBITDALow},
			{&m.EBITDAHigh, e.EBITDAHigh},
		} {
			d, err := decimal.NewFromString(f.src)
			if err != nil {
				return nil, eris.Wrapf(err, "store: multiples[%d]: %q", i, f.src)
			}
			*f.dst = d
		}
		if err := m.Validate(); err != nil {
			return nil, eris.Wrapf(err, "store: multiples[%d]", i)
		}
		out = append(out, m)
	}
	return out, nil
}
