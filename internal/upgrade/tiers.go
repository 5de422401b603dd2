package upgrade

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// TaskTemplate describes a task that becomes relevant once a company
// reaches a given answer option.
type TaskTemplate struct {
	Key                  string          `json:"key"`
	Title                string          `json:"title"`
	RawImpact            decimal.Decimal `json:"raw_impact"`
	LinkedQuestionID     string          `json:"linked_question_id,omitempty"`
	UpgradesFromOptionID string          `json:"upgrades_from_option_id,omitempty"`
	UpgradesToOptionID   string          `json:"upgrades_to_option_id,omitempty"`
}

// TierMap maps an option id to the task templates reaching it unlocks.
type TierMap map[string][]TaskTemplate

// Unlocks returns the templates unlocked by optionID.
func (m TierMap) Unlocks(optionID string) []TaskTemplate {
	return m[optionID]
}

type tierFile struct {
	Tiers []struct {
		OptionID string `yaml:"option_id"`
		Tasks    []struct {
			Key                  string `yaml:"key"`
			Title                string `yaml:"title"`
			RawImpact            string `yaml:"raw_impact"`
			LinkedQuestionID     string `yaml:"linked_question_id"`
			UpgradesFromOptionID string `yaml:"upgrades_from_option_id"`
			UpgradesToOptionID   string `yaml:"upgrades_to_option_id"`
		} `yaml:"tasks"`
	} `yaml:"tiers"`
}

// LoadTierMap reads the unlock graph from a YAML file. An empty path yields
// an empty map.
func LoadTierMap(path string) (TierMap, error) {
	if path == "" {
		return TierMap{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "upgrade: read tier file %s", path)
	}
	return ParseTierMap(data)
}

// ParseTierMap parses the YAML unlock graph. Template keys must be unique
// across the whole file.
func ParseTierMap(data []byte) (TierMap, error) {
	var f tierFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "upgrade: parse tier file")
	}

	out := make(TierMap, len(f.Tiers))
	seen := make(map[string]bool)
	for i, tier := range f.Tiers {
		if tier.OptionID == "" {
			return nil, eris.Errorf("upgrade: tiers[%d]: option_id is required", i)
		}
		for j, task := range tier.Tasks {
			if task.Key == "" || task.Title == "" {
				return nil, eris.Errorf("upgrade: tiers[%d].tasks[%d]: key and title are required", i, j)
			}
			if seen[task.Key] {
				return nil, eris.Errorf("upgrade: duplicate template key %q", task.Key)
			}
			seen[task.Key] = true

			impact := decimal.Zero
			if task.RawImpact != "" {
				d, err := decimal.NewFromString(task.RawImpact)
				if err != nil {
					return nil, eris.Wrapf(err, "upgrade: template %s: raw_impact", task.Key)
				}
				if d.IsNegative() {
					return nil, eris.Errorf("upgrade: template %s: raw_impact %s is negative", task.Key, d)
				}
				impact = d
			}
			out[tier.OptionID] = append(out[tier.OptionID], TaskTemplate{
				Key:                  task.Key,
				Title:                task.Title,
				RawImpact:            impact,
				LinkedQuestionID:     task.LinkedQuestionID,
				UpgradesFromOptionID: task.UpgradesFromOptionID,
				UpgradesToOptionID:   task.UpgradesToOptionID,
			})
		}
	}
	return out, nil
}
