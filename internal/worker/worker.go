package worker

import (
	"context"
	"fmt"
	"time"

	"earnings-service/internal/apperr"
	"earnings-service/internal/broker"
	"earnings-service/internal/models"
	"earnings-service/internal/service"
	"earnings-service/internal/util"

	"go.uber.org/zap"
)

// SaleRecorder records one sold unit
type SaleRecorder interface {
	RecordSale(ctx context.Context, req *service.RecordSaleRequest) (*models.SaleRecord, error)
}

// EventLog remembers which inbound events were fully handled
type EventLog interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// SaleWorker turns ORDER_COMPLETED events from checkout into ledger records
type SaleWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	ledger       SaleRecorder
	events       EventLog
	logger       *zap.Logger
}

// NewSaleWorker creates a new sale worker
func NewSaleWorker(consumer *broker.Consumer, ledger SaleRecorder, events EventLog) *SaleWorker {
	w := &SaleWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		ledger:       ledger,
		events:       events,
		logger:       util.Named("sale-worker"),
	}
	w.eventHandler.OnOrderCompleted(w.HandleOrderCompleted)
	return w
}

// Start starts the worker
func (w *SaleWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting sale worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *SaleWorker) Stop() error {
	w.logger.Info("Stopping sale worker")
	return w.consumer.Close()
}

// OrderRef is the ledger order ref for the n-th unit (1-based) of a product in an order
func OrderRef(orderID string, productID int64, n int) string {
	return fmt.Sprintf("%s:%d:%d", orderID, productID, n)
}

// HandleOrderCompleted records one sale per purchased unit. Only storage
// failures are returned, so the consumer retries the message; every unit has
// its own order ref, which makes the retry safe.
func (w *SaleWorker) HandleOrderCompleted(ctx context.Context, event *models.OrderCompletedEvent) error {
	ctx, span := util.StartSpan(ctx, "SaleWorker.HandleOrderCompleted")
	defer span.End()

	processed, err := w.events.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		w.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	for _, item := range event.Items {
		for n := 1; n <= item.Quantity; n++ {
			ref := OrderRef(event.OrderID, item.ProductID, n)
			_, err := w.ledger.RecordSale(ctx, &service.RecordSaleRequest{
				ProductID: item.ProductID,
				SalePrice: item.UnitPrice,
				OrderRef:  ref,
				SaleDate:  event.Timestamp,
			})
			if err == nil {
				continue
			}
			if apperr.Is(err, apperr.KindStorage) || ctx.Err() != nil {
				return err
			}
			w.logger.Error("Sale not recorded",
				zap.String("order_id", event.OrderID),
				zap.String("order_ref", ref),
				zap.Int64("product_id", item.ProductID),
				zap.String("kind", string(apperr.KindOf(err))),
				zap.Error(err))
		}
	}

	if err := w.events.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

// PayoutRunner settles a payout period
type PayoutRunner interface {
	RunPayoutBatch(ctx context.Context, period string) (*service.PayoutRunResult, error)
}

// PayoutScheduler settles the previous month on a fixed interval
type PayoutScheduler struct {
	payouts  PayoutRunner
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewPayoutScheduler creates a new payout scheduler
func NewPayoutScheduler(payouts PayoutRunner, interval time.Duration) *PayoutScheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &PayoutScheduler{
		payouts:  payouts,
		interval: interval,
		now:      time.Now,
		logger:   util.Named("payout-scheduler"),
	}
}

// Start runs once immediately, then on every tick until ctx is cancelled
func (s *PayoutScheduler) Start(ctx context.Context) error {
	s.logger.Info("Starting payout scheduler", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.RunOnce(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("Payout scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce settles the month before now. An already settled month yields no batches.
func (s *PayoutScheduler) RunOnce(ctx context.Context) {
	period := service.PreviousPeriod(s.now())

	result, err := s.payouts.RunPayoutBatch(ctx, period)
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			s.logger.Info("Payout run already in progress elsewhere", zap.String("period", period))
			return
		}
		s.logger.Error("Payout run failed", zap.String("period", period), zap.Error(err))
		return
	}
	for _, f := range result.Failures {
		s.logger.Warn("Designer payout failed, will retry next run",
			zap.String("period", period),
			zap.Int64("designer_id", f.DesignerID),
			zap.String("error", f.Error))
	}
}
