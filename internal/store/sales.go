package store

import (
	"context"
	"time"

	"earnings-service/internal/apperr"
	"earnings-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const saleColumns = `id, product_id, designer_id, order_ref, kind, reverses_id, sale_date,
	base_price_at_sale, sale_price, tier_name, commission_rate, commission_amount,
	designer_earnings, paid, payout_batch_id`

// SaleInput identifies a sale to be recorded
type SaleInput struct {
	ProductID int64
	SalePrice int64
	OrderRef  string
	SaleDate  time.Time
}

// SaleComputeFunc builds the sale record from the locked listing and the
// designer's cumulative sales prior to this sale. Returning an error aborts
// the transaction.
type SaleComputeFunc func(listing *models.ProductListing, cumulativeSales int64) (*models.SaleRecord, error)

// ReversalBuildFunc builds the compensating record for an original sale
type ReversalBuildFunc func(original *models.SaleRecord) (*models.SaleRecord, error)

// RecordSaleTx reads the listing, serialises on the designer, computes the
// record and inserts it, all in one transaction. A replayed order ref returns
// the existing record with created=false.
func (s *Store) RecordSaleTx(ctx context.Context, in SaleInput, compute SaleComputeFunc) (*models.SaleRecord, bool, error) {
	const op = "store.RecordSaleTx"

	var record *models.SaleRecord
	created := false

	err := s.withTx(ctx, op, func(tx *sqlx.Tx) error {
		existing, err := getSaleByOrderRef(ctx, tx, in.OrderRef)
		if err != nil && !apperr.Is(err, apperr.KindNotFound) {
			return err
		}
		if existing != nil {
			record = existing
			return nil
		}

		var listing models.ProductListing
		err = tx.GetContext(ctx, &listing,
			"SELECT "+listingColumns+" FROM product_listings WHERE id = $1 FOR SHARE", in.ProductID)
		if err != nil {
			if apperr.Is(translate(op, err), apperr.KindNotFound) {
				return apperr.NotFound(op, "product %d not found", in.ProductID)
			}
			return err
		}

		if err := lockDesigner(ctx, tx, listing.DesignerID); err != nil {
			return err
		}

		cumulative, err := cumulativeSales(ctx, tx, listing.DesignerID)
		if err != nil {
			return err
		}

		rec, err := compute(&listing, cumulative)
		if err != nil {
			return err
		}
		rec.OrderRef = in.OrderRef
		rec.Kind = models.SaleKindSale
		if rec.SaleDate.IsZero() {
			rec.SaleDate = in.SaleDate
		}
		if rec.SaleDate.IsZero() {
			rec.SaleDate = time.Now().UTC()
		}

		if err := insertSale(ctx, tx, rec); err != nil {
			return err
		}
		record = rec
		created = true
		return nil
	})
	if err != nil {
		// a concurrent call with the same order ref won the insert
		if isUniqueViolation(err, "sale_records_order_ref_key") {
			existing, getErr := s.GetSaleByOrderRef(ctx, in.OrderRef)
			if getErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}
	return record, created, nil
}

// ReverseSaleTx writes a compensating record for an existing sale
func (s *Store) ReverseSaleTx(ctx context.Context, saleID int64, orderRef string, build ReversalBuildFunc) (*models.SaleRecord, error) {
	const op = "store.ReverseSaleTx"

	var record *models.SaleRecord
	err := s.withTx(ctx, op, func(tx *sqlx.Tx) error {
		var original models.SaleRecord
		err := tx.GetContext(ctx, &original,
			"SELECT "+saleColumns+" FROM sale_records WHERE id = $1 FOR SHARE", saleID)
		if err != nil {
			if apperr.Is(translate(op, err), apperr.KindNotFound) {
				return apperr.NotFound(op, "sale %d not found", saleID)
			}
			return err
		}
		if original.Kind != models.SaleKindSale {
			return apperr.Conflict(op, "sale %d is itself a reversal", saleID)
		}

		if err := lockDesigner(ctx, tx, original.DesignerID); err != nil {
			return err
		}

		var reversed bool
		if err := tx.GetContext(ctx, &reversed,
			"SELECT EXISTS(SELECT 1 FROM sale_records WHERE reverses_id = $1)", saleID); err != nil {
			return err
		}
		if reversed {
			return apperr.Conflict(op, "sale %d is already reversed", saleID)
		}

		rec, err := build(&original)
		if err != nil {
			return err
		}
		rec.OrderRef = orderRef
		rec.Kind = models.SaleKindReversal
		rec.ReversesID = &original.ID

		if err := insertSale(ctx, tx, rec); err != nil {
			return err
		}
		record = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetSale retrieves a sale record by ID
func (s *Store) GetSale(ctx context.Context, id int64) (*models.SaleRecord, error) {
	var rec models.SaleRecord
	err := s.db.GetContext(ctx, &rec, "SELECT "+saleColumns+" FROM sale_records WHERE id = $1", id)
	if err != nil {
		return nil, translate("store.GetSale", err)
	}
	return &rec, nil
}

// GetSaleByOrderRef retrieves a sale record by its idempotency key
func (s *Store) GetSaleByOrderRef(ctx context.Context, orderRef string) (*models.SaleRecord, error) {
	return getSaleByOrderRef(ctx, s.db, orderRef)
}

// ListSalesByDesigner retrieves a designer's ledger entries, newest first
func (s *Store) ListSalesByDesigner(ctx context.Context, designerID int64, limit int) ([]models.SaleRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []models.SaleRecord
	err := s.db.SelectContext(ctx, &records,
		"SELECT "+saleColumns+" FROM sale_records WHERE designer_id = $1 ORDER BY sale_date DESC, id DESC LIMIT $2",
		designerID, limit)
	return records, translate("store.ListSalesByDesigner", err)
}

// DesignerTotals derives a designer's volume and earnings from the ledger
func (s *Store) DesignerTotals(ctx context.Context, designerID int64) (*models.DesignerTotals, error) {
	totals := models.DesignerTotals{DesignerID: designerID}
	err := s.db.GetContext(ctx, &totals, `
		SELECT
			$1::BIGINT AS designer_id,
			COALESCE(SUM(sale_price - base_price_at_sale), 0) AS cumulative_sales,
			COALESCE(SUM(designer_earnings), 0) AS total_earnings,
			COALESCE(SUM(designer_earnings) FILTER (WHERE paid), 0) AS paid_earnings,
			COALESCE(SUM(designer_earnings) FILTER (WHERE NOT paid), 0) AS unpaid_earnings,
			COUNT(*) FILTER (WHERE kind = 'sale') AS sale_count
		FROM sale_records
		WHERE designer_id = $1`, designerID)
	if err != nil {
		return nil, translate("store.DesignerTotals", err)
	}
	return &totals, nil
}

func getSaleByOrderRef(ctx context.Context, q sqlx.QueryerContext, orderRef string) (*models.SaleRecord, error) {
	var rec models.SaleRecord
	err := sqlx.GetContext(ctx, q, &rec,
		"SELECT "+saleColumns+" FROM sale_records WHERE order_ref = $1", orderRef)
	if err != nil {
		return nil, translate("store.GetSaleByOrderRef", err)
	}
	return &rec, nil
}

// lockDesigner holds a transaction-scoped advisory lock on the designer so
// that concurrent sales see each other's volume.
func lockDesigner(ctx context.Context, tx *sqlx.Tx, designerID int64) error {
	_, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", designerID)
	return err
}

func cumulativeSales(ctx context.Context, tx *sqlx.Tx, designerID int64) (int64, error) {
	var total int64
	err := tx.GetContext(ctx, &total,
		"SELECT COALESCE(SUM(sale_price - base_price_at_sale), 0) FROM sale_records WHERE designer_id = $1",
		designerID)
	return total, err
}

func insertSale(ctx context.Context, tx *sqlx.Tx, rec *models.SaleRecord) error {
	query := `
		INSERT INTO sale_records (product_id, designer_id, order_ref, kind, reverses_id, sale_date,
			base_price_at_sale, sale_price, tier_name, commission_rate, commission_amount, designer_earnings)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, paid`

	return tx.QueryRowxContext(ctx, query,
		rec.ProductID, rec.DesignerID, rec.OrderRef, rec.Kind, rec.ReversesID, rec.SaleDate,
		rec.BasePriceAtSale, rec.SalePrice, rec.TierName, rec.CommissionRate, rec.CommissionAmount,
		rec.DesignerEarnings).Scan(&rec.ID, &rec.Paid)
}
