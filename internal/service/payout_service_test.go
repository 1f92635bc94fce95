package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"earnings-service/internal/apperr"
	"earnings-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	cutoff, err := ParsePeriod("2026-09")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), cutoff)

	cutoff, err = ParsePeriod("2026-12")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), cutoff)

	for _, bad := range []string{"", "2026-13", "2026/09", "September"} {
		_, err := ParsePeriod(bad)
		assert.True(t, apperr.Is(err, apperr.KindValidation), bad)
	}

	assert.Equal(t, "2026-09", PreviousPeriod(time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2025-12", PreviousPeriod(time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)))
}

// seedSales records count sales of 25,000 earnings each for designer in September 2026
func seedSales(t *testing.T, s *memStore, ledger *LedgerService, designerID int64, count int) {
	t.Helper()
	pid := s.approvedListing(designerID, 50000, 75000)
	for i := 0; i < count; i++ {
		_, err := ledger.RecordSale(context.Background(), &RecordSaleRequest{
			ProductID: pid,
			SalePrice: 75000,
			OrderRef:  fmt.Sprintf("d%d:%d", designerID, i),
			SaleDate:  time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}
}

func TestRunPayoutBatchIsIdempotent(t *testing.T) {
	s := newMemStore()
	n := &recordingNotifier{}
	ledger := newLedger(s, nil, nil)
	payouts := NewPayoutService(s, &memLocker{}, n, PayoutConfig{MinAmount: 10000, Retry: fastRetry})
	ctx := context.Background()

	seedSales(t, s, ledger, 1, 2)
	seedSales(t, s, ledger, 2, 1)

	first, err := payouts.RunPayoutBatch(ctx, "2026-09")
	require.NoError(t, err)
	require.Len(t, first.Batches, 2)
	assert.Empty(t, first.Failures)

	byDesigner := map[int64]models.PayoutBatch{}
	for _, b := range first.Batches {
		byDesigner[b.DesignerID] = b
	}
	assert.Equal(t, int64(2*27500), byDesigner[1].TotalAmount)
	assert.Len(t, byDesigner[1].RecordIDs, 2)
	assert.Equal(t, int64(27500), byDesigner[2].TotalAmount)
	assert.Len(t, n.payouts, 2)

	for _, r := range s.sales {
		assert.True(t, r.Paid)
	}

	second, err := payouts.RunPayoutBatch(ctx, "2026-09")
	require.NoError(t, err)
	assert.Empty(t, second.Batches)
	assert.Empty(t, second.Deferred)
	assert.Len(t, s.batches, 2)

	summary, err := ledger.DesignerEarnings(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2*27500), summary.PaidEarnings)
	assert.Zero(t, summary.UnpaidEarnings)
}

func TestRunPayoutBatchDefersBelowMinimum(t *testing.T) {
	s := newMemStore()
	ledger := newLedger(s, nil, nil)
	payouts := NewPayoutService(s, nil, nil, PayoutConfig{MinAmount: 50000, Retry: fastRetry})

	seedSales(t, s, ledger, 1, 1)

	res, err := payouts.RunPayoutBatch(context.Background(), "2026-09")
	require.NoError(t, err)
	assert.Empty(t, res.Batches)
	require.Len(t, res.Deferred, 1)
	assert.Equal(t, DeferredPayout{DesignerID: 1, Amount: 27500, Records: 1}, res.Deferred[0])
	assert.False(t, s.sales[0].Paid)

	// a repeat run pays nothing and reports the same deferral
	again, err := payouts.RunPayoutBatch(context.Background(), "2026-09")
	require.NoError(t, err)
	assert.Empty(t, again.Batches)
	assert.Equal(t, res.Deferred, again.Deferred)
	assert.Empty(t, s.batches)
	assert.False(t, s.sales[0].Paid)
}

func TestRunPayoutBatchRespectsCutoff(t *testing.T) {
	s := newMemStore()
	ledger := newLedger(s, nil, nil)
	payouts := NewPayoutService(s, nil, nil, PayoutConfig{Retry: fastRetry})

	seedSales(t, s, ledger, 1, 1)

	res, err := payouts.RunPayoutBatch(context.Background(), "2026-08")
	require.NoError(t, err)
	assert.Empty(t, res.Batches)
	assert.False(t, s.sales[0].Paid)
}

func TestRunPayoutBatchPartialFailure(t *testing.T) {
	s := newMemStore()
	ledger := newLedger(s, nil, nil)
	payouts := NewPayoutService(s, nil, nil, PayoutConfig{Concurrency: 2, Retry: fastRetry})
	ctx := context.Background()

	seedSales(t, s, ledger, 1, 1)
	seedSales(t, s, ledger, 2, 1)
	seedSales(t, s, ledger, 3, 1)
	s.settleErr[2] = apperr.Storage("mem.SettleDesigner", errDown)

	res, err := payouts.RunPayoutBatch(ctx, "2026-09")
	require.NoError(t, err)
	assert.Len(t, res.Batches, 2)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, int64(2), res.Failures[0].DesignerID)

	// the failed designer is picked up on the next run
	delete(s.settleErr, 2)
	retried, err := payouts.RunPayoutBatch(ctx, "2026-09")
	require.NoError(t, err)
	require.Len(t, retried.Batches, 1)
	assert.Equal(t, int64(2), retried.Batches[0].DesignerID)
}

func TestRunPayoutBatchLock(t *testing.T) {
	s := newMemStore()
	locker := &memLocker{}
	payouts := NewPayoutService(s, locker, nil, PayoutConfig{Retry: fastRetry})
	ctx := context.Background()

	ok, err := locker.AcquireLock(ctx, "payout:2026-09", "someone-else", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = payouts.RunPayoutBatch(ctx, "2026-09")
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	require.NoError(t, locker.ReleaseLock(ctx, "payout:2026-09", "someone-else"))
	_, err = payouts.RunPayoutBatch(ctx, "2026-09")
	require.NoError(t, err)
	assert.Empty(t, locker.held, "lock released after the run")
}

func TestPayoutHistory(t *testing.T) {
	s := newMemStore()
	ledger := newLedger(s, nil, nil)
	payouts := NewPayoutService(s, nil, nil, PayoutConfig{Retry: fastRetry})
	ctx := context.Background()

	empty, err := payouts.PayoutHistory(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, empty)

	seedSales(t, s, ledger, 1, 1)
	_, err = payouts.RunPayoutBatch(ctx, "2026-09")
	require.NoError(t, err)

	history, err := payouts.PayoutHistory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "2026-09", history[0].Period)

	_, err = payouts.PayoutHistory(ctx, 0)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
