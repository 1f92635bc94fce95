// Package tiers maps a designer's cumulative sales volume to a commission tier.
package tiers

import (
	"sort"

	"earnings-service/internal/apperr"
	"earnings-service/internal/models"

	"github.com/shopspring/decimal"
)

// DefaultTierName names the tier returned when no tiers are configured
const DefaultTierName = "default"

// Resolver resolves tiers over a validated, sorted tier table
type Resolver struct {
	tiers []models.CommissionTier
}

// NewResolver validates the table and returns a resolver over a sorted copy.
// An empty table is accepted; ResolveTier then reports a configuration error.
func NewResolver(table []models.CommissionTier) (*Resolver, error) {
	sorted := make([]models.CommissionTier, len(table))
	copy(sorted, table)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MinSales < sorted[j].MinSales
	})

	if err := Validate(sorted); err != nil {
		return nil, err
	}
	return &Resolver{tiers: sorted}, nil
}

// Tiers returns the sorted tier table
func (r *Resolver) Tiers() []models.CommissionTier {
	out := make([]models.CommissionTier, len(r.tiers))
	copy(out, r.tiers)
	return out
}

// ResolveTier returns the tier whose [MinSales, MaxSales) interval contains cumulativeSales.
// Volumes below the first tier (e.g. after reversals) resolve to the first tier.
func (r *Resolver) ResolveTier(cumulativeSales int64) (models.CommissionTier, error) {
	const op = "tiers.ResolveTier"

	if len(r.tiers) == 0 {
		return DefaultTier(), apperr.Configuration(op, "commission tier table is empty")
	}

	// first tier whose upper bound lies above the volume
	i := sort.Search(len(r.tiers), func(i int) bool {
		max := r.tiers[i].MaxSales
		return max == nil || cumulativeSales < *max
	})
	if i == len(r.tiers) {
		// unreachable for a validated table: the last tier is unbounded
		return DefaultTier(), apperr.Configuration(op, "no tier covers cumulative sales %d", cumulativeSales)
	}
	return r.tiers[i], nil
}

// DefaultTier is the zero-rate tier reported alongside a configuration error
func DefaultTier() models.CommissionTier {
	return models.CommissionTier{
		TierName:       DefaultTierName,
		MinSales:       0,
		CommissionRate: decimal.Zero,
	}
}

// Validate checks that tiers (sorted by MinSales) are contiguous, start at zero,
// end with exactly one unbounded tier and have non-decreasing rates in [0, 1].
func Validate(sorted []models.CommissionTier) error {
	const op = "tiers.Validate"

	one := decimal.NewFromInt(1)
	for i, t := range sorted {
		if t.TierName == "" {
			return apperr.Configuration(op, "tier %d has no name", i)
		}
		if t.CommissionRate.IsNegative() || t.CommissionRate.GreaterThan(one) {
			return apperr.Configuration(op, "tier %q rate %s outside [0, 1]", t.TierName, t.CommissionRate)
		}
		if i == 0 && t.MinSales != 0 {
			return apperr.Configuration(op, "first tier %q must start at 0, starts at %d", t.TierName, t.MinSales)
		}
		last := i == len(sorted)-1
		if t.MaxSales == nil && !last {
			return apperr.Configuration(op, "only the top tier may be unbounded, %q is not last", t.TierName)
		}
		if t.MaxSales != nil {
			if last {
				return apperr.Configuration(op, "top tier %q must be unbounded", t.TierName)
			}
			if *t.MaxSales <= t.MinSales {
				return apperr.Configuration(op, "tier %q is empty: [%d, %d)", t.TierName, t.MinSales, *t.MaxSales)
			}
			next := sorted[i+1]
			if next.MinSales != *t.MaxSales {
				return apperr.Configuration(op, "tiers %q and %q are not contiguous", t.TierName, next.TierName)
			}
			if next.CommissionRate.LessThan(t.CommissionRate) {
				return apperr.Configuration(op, "tier %q rate decreases after %q", next.TierName, t.TierName)
			}
		}
	}
	return nil
}
