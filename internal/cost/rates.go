package cost

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rates.yaml
var embeddedRates []byte

// ProviderRate prices one provider. Models override Per1K for specific model
// names.
type ProviderRate struct {
	Per1K      float64            `yaml:"per_1k"`
	Adjustment float64            `yaml:"adjustment"`
	Models     map[string]float64 `yaml:"models"`
}

// RateTable maps provider names to prices.
type RateTable struct {
	Providers map[string]ProviderRate `yaml:"providers"`
}

// DefaultRates returns the embedded rate table.
func DefaultRates() RateTable {
	table, err := parseRates(embeddedRates)
	if err != nil {
		panic(fmt.Sprintf("embedded rate table is invalid: %v", err))
	}
	return table
}

// LoadRates reads a YAML rate file. Providers missing from the file keep
// their embedded prices.
func LoadRates(path string) (RateTable, error) {
	table := DefaultRates()
	path = strings.TrimSpace(path)
	if path == "" {
		return table, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return RateTable{}, fmt.Errorf("read rate file: %w", err)
	}
	overrides, err := parseRates(raw)
	if err != nil {
		return RateTable{}, fmt.Errorf("parse rate file %s: %w", path, err)
	}
	for name, rate := range overrides.Providers {
		table.Providers[name] = rate
	}
	return table, nil
}

func parseRates(raw []byte) (RateTable, error) {
	var table RateTable
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return RateTable{}, err
	}
	normalized := make(map[string]ProviderRate, len(table.Providers))
	for name, rate := range table.Providers {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			return RateTable{}, fmt.Errorf("provider name is required")
		}
		if rate.Per1K < 0 || rate.Adjustment < 0 {
			return RateTable{}, fmt.Errorf("provider %s: prices must be >= 0", key)
		}
		for model, price := range rate.Models {
			if price < 0 {
				return RateTable{}, fmt.Errorf("provider %s model %s: price must be >= 0", key, model)
			}
		}
		normalized[key] = rate
	}
	table.Providers = normalized
	return table, nil
}

// Cost prices characters for provider/model. The second result is false when
// the provider has no rate.
func (t RateTable) Cost(provider, model string, characters int) (float64, bool) {
	rate, ok := t.Providers[strings.ToLower(strings.TrimSpace(provider))]
	if !ok {
		return 0, false
	}
	per1K := rate.Per1K
	if price, ok := rate.Models[strings.TrimSpace(model)]; ok {
		per1K = price
	}
	adjustment := rate.Adjustment
	if adjustment == 0 {
		adjustment = 1
	}
	return float64(characters) / 1000 * per1K * adjustment, true
}
