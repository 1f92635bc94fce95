package store

import (
	"context"

	"earnings-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const listingColumns = `id, designer_id, category, width_cm, depth_cm, height_cm, base_price,
	selling_price, auto_apply_markup, status, created_at, updated_at`

// CreateListing inserts a listing with its suggested price
func (s *Store) CreateListing(ctx context.Context, listing *models.ProductListing) error {
	query := `
		INSERT INTO product_listings (designer_id, category, width_cm, depth_cm, height_cm,
			base_price, selling_price, auto_apply_markup, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	err := s.db.GetContext(ctx, listing, query,
		listing.DesignerID, listing.Category, listing.WidthCM, listing.DepthCM, listing.HeightCM,
		listing.BasePrice, listing.SellingPrice, listing.AutoApplyMarkup, listing.Status)
	return translate("store.CreateListing", err)
}

// GetListing retrieves a listing by ID
func (s *Store) GetListing(ctx context.Context, id int64) (*models.ProductListing, error) {
	var listing models.ProductListing
	err := s.db.GetContext(ctx, &listing,
		"SELECT "+listingColumns+" FROM product_listings WHERE id = $1", id)
	if err != nil {
		return nil, translate("store.GetListing", err)
	}
	return &listing, nil
}

// ListListingsByDesigner retrieves a designer's listings, newest first
func (s *Store) ListListingsByDesigner(ctx context.Context, designerID int64) ([]models.ProductListing, error) {
	var listings []models.ProductListing
	err := s.db.SelectContext(ctx, &listings,
		"SELECT "+listingColumns+" FROM product_listings WHERE designer_id = $1 ORDER BY created_at DESC",
		designerID)
	return listings, translate("store.ListListingsByDesigner", err)
}

// MutateListing locks a listing row, lets fn change it and writes the
// price, markup mode and status back in the same transaction.
func (s *Store) MutateListing(ctx context.Context, id int64, fn func(listing *models.ProductListing) error) (*models.ProductListing, error) {
	var listing models.ProductListing

	err := s.withTx(ctx, "store.MutateListing", func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &listing,
			"SELECT "+listingColumns+" FROM product_listings WHERE id = $1 FOR UPDATE", id); err != nil {
			return err
		}

		if err := fn(&listing); err != nil {
			return err
		}

		return tx.GetContext(ctx, &listing.UpdatedAt, `
			UPDATE product_listings
			SET base_price = $1, selling_price = $2, auto_apply_markup = $3, status = $4, updated_at = NOW()
			WHERE id = $5
			RETURNING updated_at`,
			listing.BasePrice, listing.SellingPrice, listing.AutoApplyMarkup, listing.Status, id)
	})
	if err != nil {
		return nil, err
	}
	return &listing, nil
}
