package service

import (
	"context"
	"fmt"
	"time"

	"earnings-service/internal/apperr"
	"earnings-service/internal/models"
	"earnings-service/internal/pricing"
	"earnings-service/internal/store"
	"earnings-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const recentSalesLimit = 20

// LedgerConfig tunes the ledger service
type LedgerConfig struct {
	Retry RetryPolicy
	// IdempotencyTTL is how long the order ref fast path remembers a sale
	IdempotencyTTL time.Duration
}

// LedgerService records sales and derives designer earnings
type LedgerService struct {
	store    LedgerStore
	tiers    TierResolver
	cache    SaleCache
	notifier Notifier
	cfg      LedgerConfig
	logger   *zap.Logger
}

// NewLedgerService creates a new ledger service. cache and notifier may be nil.
func NewLedgerService(store LedgerStore, tiers TierResolver, cache SaleCache, notifier Notifier, cfg LedgerConfig) *LedgerService {
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = DefaultRetryPolicy
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	return &LedgerService{
		store:    store,
		tiers:    tiers,
		cache:    cache,
		notifier: notifier,
		cfg:      cfg,
		logger:   util.Named("ledger"),
	}
}

// Earnings is the split of one sale between platform and designer
type Earnings struct {
	CommissionAmount int64
	DesignerEarnings int64
}

// ComputeEarnings applies the commission formula:
// commission = round_half_up(base * rate), earnings = (sale - base) + commission.
// Negative earnings are an ArithmeticError.
func ComputeEarnings(basePrice, salePrice int64, rate decimal.Decimal) (Earnings, error) {
	const op = "service.ComputeEarnings"

	commission := pricing.RoundHalfUp(decimal.NewFromInt(basePrice).Mul(rate))
	earnings := (salePrice - basePrice) + commission
	if earnings < 0 {
		return Earnings{}, apperr.Arithmetic(op,
			"designer earnings %d are negative (sale %d, base %d, commission %d)",
			earnings, salePrice, basePrice, commission)
	}
	return Earnings{CommissionAmount: commission, DesignerEarnings: earnings}, nil
}

// RecordSaleRequest represents a completed purchase of one unit
type RecordSaleRequest struct {
	ProductID int64     `json:"product_id" binding:"required,gt=0"`
	SalePrice int64     `json:"sale_price" binding:"required,gt=0"`
	OrderRef  string    `json:"order_ref,omitempty"`
	SaleDate  time.Time `json:"sale_date,omitempty"`
}

// RecordSale writes one immutable sale record. A replayed order ref returns
// the record written the first time.
func (s *LedgerService) RecordSale(ctx context.Context, req *RecordSaleRequest) (*models.SaleRecord, error) {
	const op = "service.RecordSale"

	ctx, span := util.StartSpan(ctx, "LedgerService.RecordSale",
		attribute.Int64("product_id", req.ProductID))
	defer span.End()

	if req.ProductID <= 0 {
		return nil, apperr.Validation(op, "product id must be positive")
	}
	if req.SalePrice <= 0 {
		return nil, apperr.Validation(op, "sale price must be positive, got %d", req.SalePrice)
	}
	if req.OrderRef == "" {
		req.OrderRef = uuid.New().String()
	}
	span.SetAttributes(attribute.String("order_ref", req.OrderRef))

	if existing := s.lookupCached(ctx, req.OrderRef); existing != nil {
		util.SalesDuplicateTotal.Inc()
		return existing, nil
	}

	start := time.Now()
	var (
		record  *models.SaleRecord
		created bool
	)
	err := retry(ctx, s.cfg.Retry, s.logger, "record_sale", func(ctx context.Context) error {
		var err error
		record, created, err = s.store.RecordSaleTx(ctx, store.SaleInput{
			ProductID: req.ProductID,
			SalePrice: req.SalePrice,
			OrderRef:  req.OrderRef,
			SaleDate:  req.SaleDate,
		}, s.computeSale(ctx, req.SalePrice))
		return err
	})
	util.SaleRecordLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		if apperr.Is(err, apperr.KindArithmetic) {
			util.LedgerArithmeticErrorsTotal.Inc()
			s.logger.Error("Refusing sale with negative designer earnings",
				zap.Int64("product_id", req.ProductID),
				zap.Int64("sale_price", req.SalePrice),
				zap.String("order_ref", req.OrderRef),
				zap.Error(err))
		}
		return nil, err
	}

	s.remember(ctx, record)
	if !created {
		util.SalesDuplicateTotal.Inc()
		s.logger.Info("Duplicate sale request detected",
			zap.String("order_ref", req.OrderRef),
			zap.Int64("sale_id", record.ID))
		return record, nil
	}

	util.SalesRecordedTotal.WithLabelValues(record.Kind, record.TierName).Inc()
	util.DesignerEarningsMinor.Add(float64(record.DesignerEarnings))
	s.logger.Info("Sale recorded",
		zap.Int64("sale_id", record.ID),
		zap.Int64("designer_id", record.DesignerID),
		zap.String("tier", record.TierName),
		zap.Int64("commission", record.CommissionAmount),
		zap.Int64("earnings", record.DesignerEarnings))

	s.publish(ctx, record)
	return record, nil
}

// computeSale builds the record inside the ledger transaction
func (s *LedgerService) computeSale(ctx context.Context, salePrice int64) store.SaleComputeFunc {
	return func(listing *models.ProductListing, cumulativeSales int64) (*models.SaleRecord, error) {
		const op = "service.RecordSale"

		if listing.Status != models.ListingStatusApproved {
			return nil, apperr.Conflict(op, "product %d is %s, not approved for sale", listing.ID, listing.Status)
		}

		tier, err := s.tiers.ResolveTier(ctx, cumulativeSales)
		if err != nil {
			return nil, err
		}

		split, err := ComputeEarnings(listing.BasePrice, salePrice, tier.CommissionRate)
		if err != nil {
			return nil, err
		}

		return &models.SaleRecord{
			ProductID:        listing.ID,
			DesignerID:       listing.DesignerID,
			BasePriceAtSale:  listing.BasePrice,
			SalePrice:        salePrice,
			TierName:         tier.TierName,
			CommissionRate:   tier.CommissionRate,
			CommissionAmount: split.CommissionAmount,
			DesignerEarnings: split.DesignerEarnings,
		}, nil
	}
}

// ReverseSale writes a compensating record with negated amounts for a refunded sale
func (s *LedgerService) ReverseSale(ctx context.Context, saleID int64, reason string) (*models.SaleRecord, error) {
	const op = "service.ReverseSale"

	ctx, span := util.StartSpan(ctx, "LedgerService.ReverseSale", attribute.Int64("sale_id", saleID))
	defer span.End()

	if saleID <= 0 {
		return nil, apperr.Validation(op, "sale id must be positive")
	}

	var record *models.SaleRecord
	err := retry(ctx, s.cfg.Retry, s.logger, "reverse_sale", func(ctx context.Context) error {
		var err error
		record, err = s.store.ReverseSaleTx(ctx, saleID, ReversalOrderRef(saleID), func(original *models.SaleRecord) (*models.SaleRecord, error) {
			return &models.SaleRecord{
				ProductID:        original.ProductID,
				DesignerID:       original.DesignerID,
				SaleDate:         time.Now().UTC(),
				BasePriceAtSale:  -original.BasePriceAtSale,
				SalePrice:        -original.SalePrice,
				TierName:         original.TierName,
				CommissionRate:   original.CommissionRate,
				CommissionAmount: -original.CommissionAmount,
				DesignerEarnings: -original.DesignerEarnings,
			}, nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	util.SalesRecordedTotal.WithLabelValues(record.Kind, record.TierName).Inc()
	s.logger.Info("Sale reversed",
		zap.Int64("sale_id", saleID),
		zap.Int64("reversal_id", record.ID),
		zap.String("reason", reason))

	s.publish(ctx, record)
	return record, nil
}

// ReversalOrderRef is the order ref a reversal of saleID is stored under
func ReversalOrderRef(saleID int64) string {
	return fmt.Sprintf("reversal:%d", saleID)
}

// GetSale retrieves a sale record by ID
func (s *LedgerService) GetSale(ctx context.Context, id int64) (*models.SaleRecord, error) {
	return s.store.GetSale(ctx, id)
}

// EarningsSummary is a designer's derived ledger view
type EarningsSummary struct {
	models.DesignerTotals
	CurrentTier models.CommissionTier `json:"current_tier"`
	RecentSales []models.SaleRecord   `json:"recent_sales"`
}

// DesignerEarnings derives totals and the current tier from the ledger
func (s *LedgerService) DesignerEarnings(ctx context.Context, designerID int64) (*EarningsSummary, error) {
	const op = "service.DesignerEarnings"

	ctx, span := util.StartSpan(ctx, "LedgerService.DesignerEarnings", attribute.Int64("designer_id", designerID))
	defer span.End()

	if designerID <= 0 {
		return nil, apperr.Validation(op, "designer id must be positive")
	}

	totals, err := s.store.DesignerTotals(ctx, designerID)
	if err != nil {
		return nil, err
	}
	tier, err := s.tiers.ResolveTier(ctx, totals.CumulativeSales)
	if err != nil {
		return nil, err
	}
	recent, err := s.store.ListSalesByDesigner(ctx, designerID, recentSalesLimit)
	if err != nil {
		return nil, err
	}
	if recent == nil {
		recent = []models.SaleRecord{}
	}

	return &EarningsSummary{
		DesignerTotals: *totals,
		CurrentTier:    tier,
		RecentSales:    recent,
	}, nil
}

func (s *LedgerService) lookupCached(ctx context.Context, orderRef string) *models.SaleRecord {
	if s.cache == nil {
		return nil
	}
	id, ok, err := s.cache.LookupSale(ctx, orderRef)
	if err != nil {
		s.logger.Warn("Idempotency cache lookup failed", zap.String("order_ref", orderRef), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	record, err := s.store.GetSale(ctx, id)
	if err != nil {
		// fall through to the transactional check
		return nil
	}
	return record
}

func (s *LedgerService) remember(ctx context.Context, record *models.SaleRecord) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.RememberSale(ctx, record.OrderRef, record.ID, s.cfg.IdempotencyTTL); err != nil {
		s.logger.Warn("Failed to cache order ref", zap.String("order_ref", record.OrderRef), zap.Error(err))
	}
}

func (s *LedgerService) publish(ctx context.Context, record *models.SaleRecord) {
	if s.notifier == nil {
		return
	}
	eventType := models.EventTypeSaleRecorded
	if record.Kind == models.SaleKindReversal {
		eventType = models.EventTypeSaleReversed
	}
	event := &models.SaleRecordedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: time.Now(),
		},
		SaleID:           record.ID,
		Kind:             record.Kind,
		ProductID:        record.ProductID,
		DesignerID:       record.DesignerID,
		SalePrice:        record.SalePrice,
		CommissionAmount: record.CommissionAmount,
		DesignerEarnings: record.DesignerEarnings,
		TierName:         record.TierName,
	}
	if err := s.notifier.PublishSaleRecorded(ctx, event); err != nil {
		s.logger.Error("Failed to publish SaleRecorded event", zap.Error(err))
	}
}
