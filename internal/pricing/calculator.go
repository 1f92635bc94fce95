// Package pricing derives manufacturing base prices and designer selling prices.
package pricing

import (
	"earnings-service/internal/apperr"

	"github.com/shopspring/decimal"
)

var (
	cubicCentimetresPerMetre = decimal.NewFromInt(1_000_000)
	hundred                  = decimal.NewFromInt(100)
)

// Dimensions of a finished piece in centimetres
type Dimensions struct {
	WidthCM  float64 `json:"width_cm" binding:"required"`
	DepthCM  float64 `json:"depth_cm" binding:"required"`
	HeightCM float64 `json:"height_cm" binding:"required"`
}

// VolumeM3 returns the bounding volume in cubic metres
func (d Dimensions) VolumeM3() decimal.Decimal {
	return decimal.NewFromFloat(d.WidthCM).
		Mul(decimal.NewFromFloat(d.DepthCM)).
		Mul(decimal.NewFromFloat(d.HeightCM)).
		Div(cubicCentimetresPerMetre)
}

func (d Dimensions) validate(op string) error {
	if d.WidthCM <= 0 || d.DepthCM <= 0 || d.HeightCM <= 0 {
		return apperr.Validation(op, "dimensions must be positive, got %gx%gx%g", d.WidthCM, d.DepthCM, d.HeightCM)
	}
	return nil
}

// Quote is the result of a price computation
type Quote struct {
	Category      string          `json:"category"`
	Currency      string          `json:"currency"`
	BasePrice     int64           `json:"base_price"`
	SellingPrice  int64           `json:"selling_price"`
	MarkupPercent decimal.Decimal `json:"markup_percent"`
}

// Calculator prices listings from an injected table
type Calculator struct {
	table  Table
	margin decimal.Decimal
}

// NewCalculator validates the table and returns a calculator over it
func NewCalculator(table Table) (*Calculator, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{
		table:  table,
		margin: decimal.NewFromFloat(table.MarginMultiplier),
	}, nil
}

// Table returns the pricing table in use
func (c *Calculator) Table() Table {
	return c.table
}

// BasePrice computes volume * perVolumeRate * categoryMultiplier, floored at the category minimum
func (c *Calculator) BasePrice(category string, dims Dimensions) (int64, error) {
	const op = "pricing.BasePrice"

	rule, multiplier, ok := c.table.rule(category)
	if !ok {
		return 0, apperr.Validation(op, "unknown category %q", category)
	}
	if err := dims.validate(op); err != nil {
		return 0, err
	}

	price := RoundHalfUp(dims.VolumeM3().
		Mul(decimal.NewFromInt(c.table.PerVolumeRate)).
		Mul(multiplier))
	if price < rule.MinimumPrice {
		price = rule.MinimumPrice
	}
	return price, nil
}

// ComputePrice derives base and selling price. An admin supplied base price
// replaces the computed one; the selling price always applies the margin multiplier.
func (c *Calculator) ComputePrice(category string, dims Dimensions, overrideBasePrice *int64) (Quote, error) {
	const op = "pricing.ComputePrice"

	base, err := c.BasePrice(category, dims)
	if err != nil {
		return Quote{}, err
	}
	if overrideBasePrice != nil {
		if *overrideBasePrice <= 0 {
			return Quote{}, apperr.Validation(op, "override base price must be positive, got %d", *overrideBasePrice)
		}
		base = *overrideBasePrice
	}

	selling := RoundHalfUp(decimal.NewFromInt(base).Mul(c.margin))
	return Quote{
		Category:      category,
		Currency:      c.table.Currency,
		BasePrice:     base,
		SellingPrice:  selling,
		MarkupPercent: MarkupPercent(base, selling).Round(2),
	}, nil
}

// Reprice returns the selling price after an admin changes the base price.
// With autoApply the previous markup percentage is preserved, otherwise the
// selling price is left untouched.
func (c *Calculator) Reprice(oldBase, oldSelling, newBase int64, autoApply bool) (int64, error) {
	const op = "pricing.Reprice"

	if newBase <= 0 {
		return 0, apperr.Validation(op, "base price must be positive, got %d", newBase)
	}
	if !autoApply {
		return oldSelling, nil
	}
	if oldBase <= 0 {
		return RoundHalfUp(decimal.NewFromInt(newBase).Mul(c.margin)), nil
	}

	ratio := decimal.NewFromInt(1).Add(markupRatio(oldBase, oldSelling))
	return RoundHalfUp(decimal.NewFromInt(newBase).Mul(ratio)), nil
}

// ValidateForApproval enforces sellingPrice >= basePrice
func ValidateForApproval(basePrice, sellingPrice int64) error {
	const op = "pricing.ValidateForApproval"
	if basePrice <= 0 {
		return apperr.Validation(op, "base price must be positive, got %d", basePrice)
	}
	if sellingPrice < basePrice {
		return apperr.Validation(op, "selling price %d is below base price %d", sellingPrice, basePrice)
	}
	return nil
}

// MarkupPercent returns (selling - base) / base as a percentage
func MarkupPercent(base, selling int64) decimal.Decimal {
	return markupRatio(base, selling).Mul(hundred)
}

func markupRatio(base, selling int64) decimal.Decimal {
	if base == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(selling - base).Div(decimal.NewFromInt(base))
}

// RoundHalfUp rounds to the smallest currency unit, halves away from zero
func RoundHalfUp(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}
