package service

import (
	"context"
	"time"

	"earnings-service/internal/apperr"
	"earnings-service/internal/models"
	"earnings-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const periodLayout = "2006-01"

// ParsePeriod parses a YYYY-MM label and returns the cutoff: the first
// instant of the following month, UTC.
func ParsePeriod(period string) (time.Time, error) {
	const op = "service.ParsePeriod"

	start, err := time.ParseInLocation(periodLayout, period, time.UTC)
	if err != nil {
		return time.Time{}, apperr.Validation(op, "period %q is not in YYYY-MM form", period)
	}
	return start.AddDate(0, 1, 0), nil
}

// PreviousPeriod returns the label of the month before the one containing now
func PreviousPeriod(now time.Time) string {
	now = now.UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, -1, 0).Format(periodLayout)
}

// PayoutConfig tunes the payout run
type PayoutConfig struct {
	MinAmount   int64
	Concurrency int
	LockTTL     time.Duration
	Retry       RetryPolicy
}

// DeferredPayout is a designer whose unpaid total did not reach the minimum
type DeferredPayout struct {
	DesignerID int64 `json:"designer_id"`
	Amount     int64 `json:"amount"`
	Records    int   `json:"records"`
}

// PayoutFailure is a designer whose settlement failed this run
type PayoutFailure struct {
	DesignerID int64  `json:"designer_id"`
	Error      string `json:"error"`
}

// PayoutRunResult summarises one payout run. Batches is what the run paid.
// Deferred is informational: it lists designers still below the minimum and
// repeats on every run until their total reaches it, without writing anything.
type PayoutRunResult struct {
	Period   string               `json:"period"`
	Cutoff   time.Time            `json:"cutoff"`
	Batches  []models.PayoutBatch `json:"batches"`
	Deferred []DeferredPayout     `json:"deferred"`
	Failures []PayoutFailure      `json:"failures"`
}

// PayoutService settles unpaid earnings into payout batches
type PayoutService struct {
	store    PayoutStore
	locker   Locker
	notifier Notifier
	cfg      PayoutConfig
	logger   *zap.Logger
}

// NewPayoutService creates a new payout service. locker and notifier may be nil.
func NewPayoutService(store PayoutStore, locker Locker, notifier Notifier, cfg PayoutConfig) *PayoutService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = DefaultRetryPolicy
	}
	return &PayoutService{
		store:    store,
		locker:   locker,
		notifier: notifier,
		cfg:      cfg,
		logger:   util.Named("payouts"),
	}
}

// RunPayoutBatch settles every designer with unpaid records dated before the
// period's cutoff. Designers are settled independently; a failure is reported
// in the result and leaves other designers' batches committed. A repeated run
// with no new sales pays nothing.
func (s *PayoutService) RunPayoutBatch(ctx context.Context, period string) (*PayoutRunResult, error) {
	const op = "service.RunPayoutBatch"

	ctx, span := util.StartSpan(ctx, "PayoutService.RunPayoutBatch", attribute.String("period", period))
	defer span.End()

	cutoff, err := ParsePeriod(period)
	if err != nil {
		return nil, err
	}

	if s.locker != nil {
		lockKey := "payout:" + period
		token := uuid.New().String()
		acquired, err := s.locker.AcquireLock(ctx, lockKey, token, s.cfg.LockTTL)
		if err != nil {
			// the row locks still keep settlement correct
			s.logger.Warn("Payout lock unavailable, continuing without it", zap.Error(err))
		} else if !acquired {
			return nil, apperr.Conflict(op, "payout run for %s already in progress", period)
		} else {
			defer func() {
				if err := s.locker.ReleaseLock(context.Background(), lockKey, token); err != nil {
					s.logger.Warn("Failed to release payout lock", zap.String("period", period), zap.Error(err))
				}
			}()
		}
	}

	start := time.Now()
	defer func() {
		util.PayoutRunLatency.Observe(time.Since(start).Seconds())
	}()

	var designers []int64
	err = retry(ctx, s.cfg.Retry, s.logger, "list_unpaid_designers", func(ctx context.Context) error {
		var err error
		designers, err = s.store.ListDesignersWithUnpaid(ctx, cutoff)
		return err
	})
	if err != nil {
		return nil, err
	}

	outcomes := make([]settleOutcome, len(designers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, designerID := range designers {
		g.Go(func() error {
			outcomes[i] = s.settle(gctx, designerID, period, cutoff)
			return nil
		})
	}
	_ = g.Wait()

	result := &PayoutRunResult{
		Period:   period,
		Cutoff:   cutoff,
		Batches:  []models.PayoutBatch{},
		Deferred: []DeferredPayout{},
		Failures: []PayoutFailure{},
	}
	for _, o := range outcomes {
		switch {
		case o.err != nil:
			util.PayoutFailuresTotal.Inc()
			result.Failures = append(result.Failures, PayoutFailure{DesignerID: o.designerID, Error: o.err.Error()})
		case o.batch != nil:
			util.PayoutBatchesTotal.Inc()
			result.Batches = append(result.Batches, *o.batch)
			s.publish(ctx, o.batch)
		case o.deferred != nil:
			util.PayoutDeferredTotal.Inc()
			result.Deferred = append(result.Deferred, *o.deferred)
		}
	}

	s.logger.Info("Payout run finished",
		zap.String("period", period),
		zap.Int("designers", len(designers)),
		zap.Int("batches", len(result.Batches)),
		zap.Int("deferred", len(result.Deferred)),
		zap.Int("failures", len(result.Failures)))
	return result, nil
}

type settleOutcome struct {
	designerID int64
	batch      *models.PayoutBatch
	deferred   *DeferredPayout
	err        error
}

func (s *PayoutService) settle(ctx context.Context, designerID int64, period string, cutoff time.Time) settleOutcome {
	out := settleOutcome{designerID: designerID}

	err := retry(ctx, s.cfg.Retry, s.logger, "settle_designer", func(ctx context.Context) error {
		res, err := s.store.SettleDesigner(ctx, designerID, period, cutoff, s.cfg.MinAmount)
		if err != nil {
			return err
		}
		switch {
		case res.Batch != nil:
			out.batch = res.Batch
		case res.Deferred:
			out.deferred = &DeferredPayout{DesignerID: designerID, Amount: res.Total, Records: res.RecordCount}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to settle designer",
			zap.Int64("designer_id", designerID),
			zap.String("period", period),
			zap.Error(err))
		out.err = err
	}
	return out
}

// PayoutHistory lists a designer's payout batches
func (s *PayoutService) PayoutHistory(ctx context.Context, designerID int64) ([]models.PayoutBatch, error) {
	const op = "service.PayoutHistory"
	if designerID <= 0 {
		return nil, apperr.Validation(op, "designer id must be positive")
	}
	batches, err := s.store.ListPayoutBatches(ctx, designerID)
	if err != nil {
		return nil, err
	}
	if batches == nil {
		batches = []models.PayoutBatch{}
	}
	return batches, nil
}

func (s *PayoutService) publish(ctx context.Context, batch *models.PayoutBatch) {
	if s.notifier == nil {
		return
	}
	event := &models.PayoutBatchCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePayoutBatchCreated,
			Timestamp: time.Now(),
		},
		BatchID:     batch.ID,
		DesignerID:  batch.DesignerID,
		Period:      batch.Period,
		TotalAmount: batch.TotalAmount,
		RecordIDs:   []int64(batch.RecordIDs),
	}
	if err := s.notifier.PublishPayoutBatchCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish PayoutBatchCreated event", zap.Error(err))
	}
}
