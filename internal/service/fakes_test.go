package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"sync"
	"testing"
	"time"

	"earnings-service/internal/apperr"
	"earnings-service/internal/models"
	"earnings-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("connection refused")

var fastRetry = RetryPolicy{Attempts: 3, Initial: time.Millisecond, Max: 2 * time.Millisecond}

// memStore is an in-memory stand-in for the PostgreSQL store. A single mutex
// plays the part of the designer advisory lock.
type memStore struct {
	mu     sync.Mutex
	nextID int64

	listings     map[int64]models.ProductListing
	submissions  map[int64]models.DesignSubmission
	fingerprints map[int64]int64
	sales        []models.SaleRecord
	batches      []models.PayoutBatch

	// tiers has its own lock: the tier cache reads it from inside RecordSaleTx
	tierMu sync.Mutex
	tiers  []models.CommissionTier

	fingerprintErr  error
	submissionErr   error
	settleErr       map[int64]error
	recordFailures  int
	recordSaleCalls int
}

func newMemStore() *memStore {
	return &memStore{
		listings:     map[int64]models.ProductListing{},
		submissions:  map[int64]models.DesignSubmission{},
		fingerprints: map[int64]int64{},
		settleErr:    map[int64]error{},
		tiers:        standardTiers(),
	}
}

func standardTiers() []models.CommissionTier {
	silverFrom, goldFrom := int64(1_000_000), int64(5_000_000)
	return []models.CommissionTier{
		{TierName: "standard", MinSales: 0, MaxSales: &silverFrom, CommissionRate: decimal.RequireFromString("0.05")},
		{TierName: "silver", MinSales: silverFrom, MaxSales: &goldFrom, CommissionRate: decimal.RequireFromString("0.06")},
		{TierName: "gold", MinSales: goldFrom, CommissionRate: decimal.RequireFromString("0.08")},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) ListTiers(ctx context.Context) ([]models.CommissionTier, error) {
	m.tierMu.Lock()
	defer m.tierMu.Unlock()
	return append([]models.CommissionTier(nil), m.tiers...), nil
}

func (m *memStore) CreateSubmission(ctx context.Context, sub *models.DesignSubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submissionErr != nil {
		return m.submissionErr
	}
	sub.ID = m.id()
	sub.CreatedAt = time.Now()
	m.submissions[sub.ID] = *sub
	return nil
}

func (m *memStore) ListFingerprints(ctx context.Context) ([]models.FingerprintEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fingerprintErr != nil {
		return nil, m.fingerprintErr
	}
	out := make([]models.FingerprintEntry, 0, len(m.fingerprints))
	for pid, fp := range m.fingerprints {
		out = append(out, models.FingerprintEntry{ProductID: pid, Fingerprint: fp})
	}
	return out, nil
}

func (m *memStore) UpsertFingerprint(ctx context.Context, productID, fingerprint int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fingerprintErr != nil {
		return m.fingerprintErr
	}
	m.fingerprints[productID] = fingerprint
	return nil
}

func (m *memStore) CreateListing(ctx context.Context, listing *models.ProductListing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	listing.ID = m.id()
	m.listings[listing.ID] = *listing
	return nil
}

func (m *memStore) GetListing(ctx context.Context, id int64) (*models.ProductListing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return nil, apperr.NotFound("mem.GetListing", "listing %d not found", id)
	}
	return &l, nil
}

func (m *memStore) MutateListing(ctx context.Context, id int64, fn func(*models.ProductListing) error) (*models.ProductListing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return nil, apperr.NotFound("mem.MutateListing", "listing %d not found", id)
	}
	if err := fn(&l); err != nil {
		return nil, err
	}
	m.listings[id] = l
	return &l, nil
}

func (m *memStore) RecordSaleTx(ctx context.Context, in store.SaleInput, compute store.SaleComputeFunc) (*models.SaleRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.recordSaleCalls++
	if m.recordFailures > 0 {
		m.recordFailures--
		return nil, false, apperr.Storage("mem.RecordSaleTx", errDown)
	}

	for _, r := range m.sales {
		if r.OrderRef == in.OrderRef {
			rec := r
			return &rec, false, nil
		}
	}
	listing, ok := m.listings[in.ProductID]
	if !ok {
		return nil, false, apperr.NotFound("mem.RecordSaleTx", "product %d not found", in.ProductID)
	}

	var cumulative int64
	for _, r := range m.sales {
		if r.DesignerID == listing.DesignerID {
			cumulative += r.VolumeContribution()
		}
	}

	rec, err := compute(&listing, cumulative)
	if err != nil {
		return nil, false, err
	}
	rec.OrderRef = in.OrderRef
	rec.Kind = models.SaleKindSale
	rec.SaleDate = in.SaleDate
	if rec.SaleDate.IsZero() {
		rec.SaleDate = time.Now().UTC()
	}
	if err := m.insert(rec); err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (m *memStore) ReverseSaleTx(ctx context.Context, saleID int64, orderRef string, build store.ReversalBuildFunc) (*models.SaleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var original *models.SaleRecord
	for i := range m.sales {
		if m.sales[i].ID == saleID {
			original = &m.sales[i]
		}
		if m.sales[i].ReversesID != nil && *m.sales[i].ReversesID == saleID {
			return nil, apperr.Conflict("mem.ReverseSaleTx", "sale %d is already reversed", saleID)
		}
	}
	if original == nil {
		return nil, apperr.NotFound("mem.ReverseSaleTx", "sale %d not found", saleID)
	}
	if original.Kind != models.SaleKindSale {
		return nil, apperr.Conflict("mem.ReverseSaleTx", "sale %d is itself a reversal", saleID)
	}

	rec, err := build(original)
	if err != nil {
		return nil, err
	}
	rec.OrderRef = orderRef
	rec.Kind = models.SaleKindReversal
	id := original.ID
	rec.ReversesID = &id
	if err := m.insert(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// insert enforces the same row checks as the sale_records table
func (m *memStore) insert(rec *models.SaleRecord) error {
	if rec.DesignerEarnings != (rec.SalePrice-rec.BasePriceAtSale)+rec.CommissionAmount {
		return apperr.Arithmetic("mem.insert", "earnings identity violated")
	}
	if rec.Kind == models.SaleKindSale && rec.DesignerEarnings < 0 {
		return apperr.Arithmetic("mem.insert", "negative earnings")
	}
	rec.ID = m.id()
	m.sales = append(m.sales, *rec)
	return nil
}

func (m *memStore) GetSale(ctx context.Context, id int64) (*models.SaleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.sales {
		if r.ID == id {
			rec := r
			return &rec, nil
		}
	}
	return nil, apperr.NotFound("mem.GetSale", "sale %d not found", id)
}

func (m *memStore) ListSalesByDesigner(ctx context.Context, designerID int64, limit int) ([]models.SaleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SaleRecord
	for i := len(m.sales) - 1; i >= 0 && len(out) < limit; i-- {
		if m.sales[i].DesignerID == designerID {
			out = append(out, m.sales[i])
		}
	}
	return out, nil
}

func (m *memStore) DesignerTotals(ctx context.Context, designerID int64) (*models.DesignerTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &models.DesignerTotals{DesignerID: designerID}
	for _, r := range m.sales {
		if r.DesignerID != designerID {
			continue
		}
		t.CumulativeSales += r.VolumeContribution()
		t.TotalEarnings += r.DesignerEarnings
		if r.Paid {
			t.PaidEarnings += r.DesignerEarnings
		} else {
			t.UnpaidEarnings += r.DesignerEarnings
		}
		if r.Kind == models.SaleKindSale {
			t.SaleCount++
		}
	}
	return t, nil
}

func (m *memStore) ListDesignersWithUnpaid(ctx context.Context, cutoff time.Time) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[int64]bool{}
	var out []int64
	for _, r := range m.sales {
		if !r.Paid && r.SaleDate.Before(cutoff) && !seen[r.DesignerID] {
			seen[r.DesignerID] = true
			out = append(out, r.DesignerID)
		}
	}
	return out, nil
}

func (m *memStore) SettleDesigner(ctx context.Context, designerID int64, period string, cutoff time.Time, minAmount int64) (*store.SettleResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.settleErr[designerID]; err != nil {
		return nil, err
	}

	res := &store.SettleResult{DesignerID: designerID}
	var idx []int
	for i, r := range m.sales {
		if r.DesignerID == designerID && !r.Paid && r.SaleDate.Before(cutoff) {
			idx = append(idx, i)
			res.Total += r.DesignerEarnings
		}
	}
	res.RecordCount = len(idx)
	if len(idx) == 0 {
		return res, nil
	}
	if res.Total <= 0 || res.Total < minAmount {
		res.Deferred = true
		return res, nil
	}

	now := time.Now()
	batch := models.PayoutBatch{
		ID:          m.id(),
		DesignerID:  designerID,
		Period:      period,
		Cutoff:      cutoff,
		TotalAmount: res.Total,
		Status:      models.PayoutStatusPaid,
		CreatedAt:   now,
		PaidAt:      &now,
	}
	for _, i := range idx {
		m.sales[i].Paid = true
		m.sales[i].PayoutBatchID = &batch.ID
		batch.RecordIDs = append(batch.RecordIDs, m.sales[i].ID)
	}
	m.batches = append(m.batches, batch)
	res.Batch = &batch
	return res, nil
}

func (m *memStore) ListPayoutBatches(ctx context.Context, designerID int64) ([]models.PayoutBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PayoutBatch
	for _, b := range m.batches {
		if b.DesignerID == designerID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memStore) approvedListing(designerID, base, selling int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := models.ProductListing{
		ID:           m.id(),
		DesignerID:   designerID,
		Category:     models.CategoryChairs,
		WidthCM:      50,
		DepthCM:      50,
		HeightCM:     90,
		BasePrice:    base,
		SellingPrice: selling,
		Status:       models.ListingStatusApproved,
	}
	m.listings[l.ID] = l
	return l.ID
}

type recordingNotifier struct {
	mu       sync.Mutex
	sales    []*models.SaleRecordedEvent
	payouts  []*models.PayoutBatchCreatedEvent
	rejected []*models.DesignRejectedEvent
}

func (n *recordingNotifier) PublishSaleRecorded(ctx context.Context, e *models.SaleRecordedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sales = append(n.sales, e)
	return nil
}

func (n *recordingNotifier) PublishPayoutBatchCreated(ctx context.Context, e *models.PayoutBatchCreatedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payouts = append(n.payouts, e)
	return nil
}

func (n *recordingNotifier) PublishDesignRejected(ctx context.Context, e *models.DesignRejectedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rejected = append(n.rejected, e)
	return nil
}

type memSaleCache struct {
	mu  sync.Mutex
	ids map[string]int64
}

func (c *memSaleCache) LookupSale(ctx context.Context, orderRef string) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.ids[orderRef]
	return id, ok, nil
}

func (c *memSaleCache) RememberSale(ctx context.Context, orderRef string, saleID int64, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ids == nil {
		c.ids = map[string]int64{}
	}
	if id, ok := c.ids[orderRef]; ok {
		return id, nil
	}
	c.ids[orderRef] = saleID
	return saleID, nil
}

type memLocker struct {
	mu    sync.Mutex
	held  map[string]string
	calls int
}

func (l *memLocker) AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.held == nil {
		l.held = map[string]string{}
	}
	if _, ok := l.held[key]; ok {
		return false, nil
	}
	l.held[key] = token
	return true, nil
}

func (l *memLocker) ReleaseLock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

type mapFetcher map[string][]byte

func (f mapFetcher) FetchImageBytes(ctx context.Context, reference string) ([]byte, error) {
	data, ok := f[reference]
	if !ok {
		return nil, apperr.NotFound("mapFetcher", "image %s not found", reference)
	}
	return data, nil
}

// patternPNG draws a grid of flat blocks with clearly different neighbours
func patternPNG(t *testing.T, seed int64) []byte {
	t.Helper()
	const block = 16
	r := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, 9*block, 8*block))
	for by := 0; by < 8; by++ {
		prev := -1
		for bx := 0; bx < 9; bx++ {
			v := r.Intn(200) + 28
			for prev >= 0 && (v-prev < 50 && prev-v < 50) {
				v = r.Intn(200) + 28
			}
			prev = v
			for y := by * block; y < (by+1)*block; y++ {
				for x := bx * block; x < (bx+1)*block; x++ {
					img.SetGray(x, y, color.Gray{Y: uint8(v)})
				}
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
