package store

import (
	"context"
	"fmt"
	"time"

	"earnings-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// SettleResult describes what happened to one designer in a payout run
type SettleResult struct {
	DesignerID  int64
	Total       int64
	RecordCount int
	Deferred    bool
	Batch       *models.PayoutBatch
}

// ListDesignersWithUnpaid returns designers holding unpaid records older than cutoff
func (s *Store) ListDesignersWithUnpaid(ctx context.Context, cutoff time.Time) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT designer_id FROM sale_records
		WHERE NOT paid AND sale_date < $1
		ORDER BY designer_id`, cutoff)
	return ids, translate("store.ListDesignersWithUnpaid", err)
}

// SettleDesigner locks the designer's unpaid records before cutoff, sums their
// earnings and, when the sum reaches minAmount, creates a batch and flips the
// records to paid in the same transaction.
func (s *Store) SettleDesigner(ctx context.Context, designerID int64, period string, cutoff time.Time, minAmount int64) (*SettleResult, error) {
	const op = "store.SettleDesigner"
	result := &SettleResult{DesignerID: designerID}

	err := s.withTx(ctx, op, func(tx *sqlx.Tx) error {
		var rows []struct {
			ID       int64 `db:"id"`
			Earnings int64 `db:"designer_earnings"`
		}
		err := tx.SelectContext(ctx, &rows, `
			SELECT id, designer_earnings FROM sale_records
			WHERE designer_id = $1 AND NOT paid AND sale_date < $2
			ORDER BY id
			FOR UPDATE`, designerID, cutoff)
		if err != nil {
			return err
		}

		ids := make([]int64, 0, len(rows))
		for _, r := range rows {
			ids = append(ids, r.ID)
			result.Total += r.Earnings
		}
		result.RecordCount = len(ids)

		if len(ids) == 0 || result.Total < minAmount || result.Total <= 0 {
			result.Deferred = len(ids) > 0
			return nil
		}

		var batch models.PayoutBatch
		err = tx.GetContext(ctx, &batch, `
			INSERT INTO payout_batches (designer_id, period, cutoff, total_amount, record_ids, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, designer_id, period, cutoff, total_amount, record_ids, status, created_at, paid_at`,
			designerID, period, cutoff, result.Total, pq.Array(ids), models.PayoutStatusPending)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE sale_records SET paid = TRUE, payout_batch_id = $1
			WHERE id = ANY($2) AND NOT paid`, batch.ID, pq.Array(ids))
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n != int64(len(ids)) {
			return fmt.Errorf("settled %d of %d records for designer %d", n, len(ids), designerID)
		}

		err = tx.GetContext(ctx, &batch, `
			UPDATE payout_batches SET status = $1, paid_at = NOW()
			WHERE id = $2
			RETURNING id, designer_id, period, cutoff, total_amount, record_ids, status, created_at, paid_at`,
			models.PayoutStatusPaid, batch.ID)
		if err != nil {
			return err
		}

		result.Batch = &batch
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListPayoutBatches retrieves a designer's payout history, newest first
func (s *Store) ListPayoutBatches(ctx context.Context, designerID int64) ([]models.PayoutBatch, error) {
	var batches []models.PayoutBatch
	err := s.db.SelectContext(ctx, &batches, `
		SELECT id, designer_id, period, cutoff, total_amount, record_ids, status, created_at, paid_at
		FROM payout_batches WHERE designer_id = $1 ORDER BY created_at DESC`, designerID)
	return batches, translate("store.ListPayoutBatches", err)
}
