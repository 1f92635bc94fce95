package store

import (
	"context"

	"earnings-service/internal/models"
)

// CreateSubmission records a design submission with its final status
func (s *Store) CreateSubmission(ctx context.Context, sub *models.DesignSubmission) error {
	query := `
		INSERT INTO design_submissions (designer_id, product_id, image_reference, fingerprint, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := s.db.GetContext(ctx, sub, query,
		sub.DesignerID, sub.ProductID, sub.ImageReference, sub.Fingerprint, sub.Status)
	return translate("store.CreateSubmission", err)
}

// GetSubmission retrieves a submission by ID
func (s *Store) GetSubmission(ctx context.Context, id int64) (*models.DesignSubmission, error) {
	var sub models.DesignSubmission
	err := s.db.GetContext(ctx, &sub, "SELECT * FROM design_submissions WHERE id = $1", id)
	if err != nil {
		return nil, translate("store.GetSubmission", err)
	}
	return &sub, nil
}

// ListFingerprints returns the accepted-design index
func (s *Store) ListFingerprints(ctx context.Context) ([]models.FingerprintEntry, error) {
	var entries []models.FingerprintEntry
	err := s.db.SelectContext(ctx, &entries,
		"SELECT product_id, fingerprint, updated_at FROM design_fingerprints ORDER BY product_id")
	return entries, translate("store.ListFingerprints", err)
}

// UpsertFingerprint stores a product's fingerprint, overwriting any previous one
func (s *Store) UpsertFingerprint(ctx context.Context, productID, fingerprint int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO design_fingerprints (product_id, fingerprint, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (product_id) DO UPDATE SET fingerprint = EXCLUDED.fingerprint, updated_at = NOW()`,
		productID, fingerprint)
	return translate("store.UpsertFingerprint", err)
}
