package pricing

import (
	_ "embed"
	"fmt"
	"os"

	"earnings-service/internal/apperr"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed default_table.yaml
var defaultTableYAML []byte

// CategoryRule prices one furniture category
type CategoryRule struct {
	Multiplier   float64 `yaml:"multiplier" json:"multiplier" validate:"gt=0"`
	MinimumPrice int64   `yaml:"minimum_price" json:"minimum_price" validate:"gte=0"`
}

// Table is the injected pricing configuration
type Table struct {
	Currency         string                  `yaml:"currency" json:"currency" validate:"required,len=3"`
	PerVolumeRate    int64                   `yaml:"per_volume_rate" json:"per_volume_rate" validate:"gt=0"`
	MarginMultiplier float64                 `yaml:"margin_multiplier" json:"margin_multiplier" validate:"gte=1"`
	Categories       map[string]CategoryRule `yaml:"categories" json:"categories" validate:"required,min=1,dive,keys,required,endkeys"`
}

var validate = validator.New()

// Validate checks the table and every category rule against their struct rules
func (t Table) Validate() error {
	if err := validate.Struct(t); err != nil {
		return apperr.Wrap(apperr.KindConfiguration, "pricing.Table", err)
	}
	for name, rule := range t.Categories {
		if err := validate.Struct(rule); err != nil {
			return apperr.Wrap(apperr.KindConfiguration, "pricing.Table", fmt.Errorf("category %q: %w", name, err))
		}
	}
	return nil
}

// rule returns the category rule with its multiplier as an exact decimal
func (t Table) rule(category string) (CategoryRule, decimal.Decimal, bool) {
	r, ok := t.Categories[category]
	if !ok {
		return CategoryRule{}, decimal.Zero, false
	}
	return r, decimal.NewFromFloat(r.Multiplier), true
}

// ParseTable decodes and validates a YAML pricing table
func ParseTable(data []byte) (Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Table{}, apperr.Wrap(apperr.KindConfiguration, "pricing.ParseTable", err)
	}
	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

// LoadTable reads a pricing table from path, or the built-in table when path is empty
func LoadTable(path string) (Table, error) {
	if path == "" {
		return DefaultTable()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, apperr.Wrap(apperr.KindConfiguration, "pricing.LoadTable", fmt.Errorf("read %s: %w", path, err))
	}
	return ParseTable(data)
}

// DefaultTable returns the built-in pricing table
func DefaultTable() (Table, error) {
	return ParseTable(defaultTableYAML)
}
