package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"earnings-service/internal/apperr"
	"earnings-service/internal/models"
	"earnings-service/internal/tiers"
	"earnings-service/internal/util"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedger(s *memStore, cache SaleCache, n Notifier) *LedgerService {
	return NewLedgerService(s, tiers.NewCache(s, time.Minute), cache, n, LedgerConfig{Retry: fastRetry})
}

func TestComputeEarnings(t *testing.T) {
	tests := []struct {
		name       string
		base, sale int64
		rate       string
		commission int64
		earnings   int64
	}{
		{"worked example", 50000, 75000, "0.05", 2500, 27500},
		{"sold at base", 30000, 30000, "0.03", 900, 900},
		{"half rounds up", 50, 60, "0.05", 3, 13},
		{"zero rate", 10000, 12000, "0", 0, 2000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeEarnings(tt.base, tt.sale, decimal.RequireFromString(tt.rate))
			require.NoError(t, err)
			assert.Equal(t, tt.commission, got.CommissionAmount)
			assert.Equal(t, tt.earnings, got.DesignerEarnings)
			assert.Equal(t, got.DesignerEarnings, (tt.sale-tt.base)+got.CommissionAmount)
		})
	}

	_, err := ComputeEarnings(50000, 40000, decimal.RequireFromString("0.05"))
	assert.True(t, apperr.Is(err, apperr.KindArithmetic))
}

func TestRecordSaleWorkedExample(t *testing.T) {
	s := newMemStore()
	n := &recordingNotifier{}
	ledger := newLedger(s, nil, n)
	pid := s.approvedListing(1, 50000, 75000)

	rec, err := ledger.RecordSale(context.Background(), &RecordSaleRequest{
		ProductID: pid,
		SalePrice: 75000,
		OrderRef:  "order-1:1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2500), rec.CommissionAmount)
	assert.Equal(t, int64(27500), rec.DesignerEarnings)
	assert.Equal(t, "standard", rec.TierName)
	assert.Equal(t, int64(50000), rec.BasePriceAtSale)
	assert.Equal(t, models.SaleKindSale, rec.Kind)
	assert.False(t, rec.Paid)

	require.Len(t, n.sales, 1)
	assert.Equal(t, models.EventTypeSaleRecorded, n.sales[0].EventType)
	assert.Equal(t, int64(27500), n.sales[0].DesignerEarnings)
}

func TestRecordSaleIsIdempotentPerOrderRef(t *testing.T) {
	s := newMemStore()
	n := &recordingNotifier{}
	cache := &memSaleCache{}
	ledger := newLedger(s, cache, n)
	pid := s.approvedListing(1, 50000, 75000)
	ctx := context.Background()

	first, err := ledger.RecordSale(ctx, &RecordSaleRequest{ProductID: pid, SalePrice: 75000, OrderRef: "order-9:1"})
	require.NoError(t, err)

	second, err := ledger.RecordSale(ctx, &RecordSaleRequest{ProductID: pid, SalePrice: 75000, OrderRef: "order-9:1"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, s.sales, 1)
	assert.Len(t, n.sales, 1)
	assert.Equal(t, 1, s.recordSaleCalls, "replay answered from the cache")

	// cache miss still resolves through the store
	cache.ids = nil
	third, err := ledger.RecordSale(ctx, &RecordSaleRequest{ProductID: pid, SalePrice: 75000, OrderRef: "order-9:1"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, third.ID)
	assert.Len(t, s.sales, 1)
}

func TestRecordSaleNegativeEarnings(t *testing.T) {
	s := newMemStore()
	n := &recordingNotifier{}
	ledger := newLedger(s, nil, n)
	pid := s.approvedListing(1, 50000, 75000)
	before := testutil.ToFloat64(util.LedgerArithmeticErrorsTotal)

	_, err := ledger.RecordSale(context.Background(), &RecordSaleRequest{
		ProductID: pid,
		SalePrice: 40000,
		OrderRef:  "order-bad:1",
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindArithmetic))
	assert.Empty(t, s.sales)
	assert.Empty(t, n.sales)
	assert.Equal(t, before+1, testutil.ToFloat64(util.LedgerArithmeticErrorsTotal))
}

func TestRecordSaleRequiresApprovedListing(t *testing.T) {
	s := newMemStore()
	ledger := newLedger(s, nil, nil)
	ctx := context.Background()

	pending := &models.ProductListing{DesignerID: 1, BasePrice: 100, SellingPrice: 120, Status: models.ListingStatusPending}
	require.NoError(t, s.CreateListing(ctx, pending))

	_, err := ledger.RecordSale(ctx, &RecordSaleRequest{ProductID: pending.ID, SalePrice: 120})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = ledger.RecordSale(ctx, &RecordSaleRequest{ProductID: 4242, SalePrice: 120})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = ledger.RecordSale(ctx, &RecordSaleRequest{ProductID: pending.ID, SalePrice: 0})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestRecordSaleRetriesStorageErrors(t *testing.T) {
	s := newMemStore()
	ledger := newLedger(s, nil, nil)
	pid := s.approvedListing(1, 50000, 75000)

	s.recordFailures = 2
	rec, err := ledger.RecordSale(context.Background(), &RecordSaleRequest{ProductID: pid, SalePrice: 75000, OrderRef: "r:1"})
	require.NoError(t, err)
	assert.NotZero(t, rec.ID)
	assert.Equal(t, 3, s.recordSaleCalls)

	s.recordFailures = 5
	_, err = ledger.RecordSale(context.Background(), &RecordSaleRequest{ProductID: pid, SalePrice: 75000, OrderRef: "r:2"})
	assert.True(t, apperr.Is(err, apperr.KindStorage))
}

func TestRecordSaleTierFollowsVolume(t *testing.T) {
	s := newMemStore()
	ledger := newLedger(s, nil, nil)
	// each sale adds 600,000 of volume
	pid := s.approvedListing(1, 100000, 700000)
	ctx := context.Background()

	var names []string
	for i := 0; i < 3; i++ {
		rec, err := ledger.RecordSale(ctx, &RecordSaleRequest{ProductID: pid, SalePrice: 700000, OrderRef: fmt.Sprintf("v:%d", i)})
		require.NoError(t, err)
		names = append(names, rec.TierName)
	}
	// volume prior to each sale: 0, 600k, 1.2M
	assert.Equal(t, []string{"standard", "standard", "silver"}, names)
}

func TestRecordSaleConcurrentNoLostVolume(t *testing.T) {
	s := newMemStore()
	ledger := newLedger(s, nil, nil)
	pid := s.approvedListing(1, 50000, 75000)
	ctx := context.Background()

	const n = 25
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ledger.RecordSale(ctx, &RecordSaleRequest{
				ProductID: pid,
				SalePrice: 75000,
				OrderRef:  fmt.Sprintf("concurrent:%d", i),
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	ids := map[int64]bool{}
	for _, r := range s.sales {
		ids[r.ID] = true
	}
	assert.Len(t, ids, n)

	summary, err := ledger.DesignerEarnings(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(n*25000), summary.CumulativeSales)
	assert.Equal(t, int64(n), summary.SaleCount)
}

func TestReverseSale(t *testing.T) {
	s := newMemStore()
	n := &recordingNotifier{}
	ledger := newLedger(s, nil, n)
	pid := s.approvedListing(1, 50000, 75000)
	ctx := context.Background()

	sale, err := ledger.RecordSale(ctx, &RecordSaleRequest{ProductID: pid, SalePrice: 75000, OrderRef: "o:1"})
	require.NoError(t, err)

	rev, err := ledger.ReverseSale(ctx, sale.ID, "refund")
	require.NoError(t, err)
	assert.Equal(t, models.SaleKindReversal, rev.Kind)
	assert.Equal(t, -sale.DesignerEarnings, rev.DesignerEarnings)
	assert.Equal(t, -sale.CommissionAmount, rev.CommissionAmount)
	assert.Equal(t, ReversalOrderRef(sale.ID), rev.OrderRef)
	require.NotNil(t, rev.ReversesID)
	assert.Equal(t, sale.ID, *rev.ReversesID)

	summary, err := ledger.DesignerEarnings(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, summary.CumulativeSales)
	assert.Zero(t, summary.TotalEarnings)
	assert.Equal(t, "standard", summary.CurrentTier.TierName)
	assert.Len(t, summary.RecentSales, 2)

	_, err = ledger.ReverseSale(ctx, sale.ID, "again")
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = ledger.ReverseSale(ctx, rev.ID, "reverse the reversal")
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	require.Len(t, n.sales, 2)
	assert.Equal(t, models.EventTypeSaleReversed, n.sales[1].EventType)
}

func TestRecordSaleWithoutTiers(t *testing.T) {
	s := newMemStore()
	s.tiers = nil
	ledger := newLedger(s, nil, nil)
	pid := s.approvedListing(1, 50000, 75000)

	_, err := ledger.RecordSale(context.Background(), &RecordSaleRequest{ProductID: pid, SalePrice: 75000})
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
	assert.Empty(t, s.sales)
}
