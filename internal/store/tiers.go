package store

import (
	"context"

	"earnings-service/internal/models"
)

// ListTiers loads the commission tier table sorted by lower bound
func (s *Store) ListTiers(ctx context.Context) ([]models.CommissionTier, error) {
	var tiers []models.CommissionTier
	err := s.db.SelectContext(ctx, &tiers,
		"SELECT id, tier_name, min_sales, max_sales, commission_rate FROM commission_tiers ORDER BY min_sales")
	return tiers, translate("store.ListTiers", err)
}
