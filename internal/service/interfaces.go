package service

import (
	"context"
	"time"

	"earnings-service/internal/models"
	"earnings-service/internal/store"
)

// SubmissionStore persists design submissions and the fingerprint index
type SubmissionStore interface {
	CreateSubmission(ctx context.Context, sub *models.DesignSubmission) error
	ListFingerprints(ctx context.Context) ([]models.FingerprintEntry, error)
	UpsertFingerprint(ctx context.Context, productID, fingerprint int64) error
}

// ListingStore persists product listings
type ListingStore interface {
	CreateListing(ctx context.Context, listing *models.ProductListing) error
	GetListing(ctx context.Context, id int64) (*models.ProductListing, error)
	MutateListing(ctx context.Context, id int64, fn func(listing *models.ProductListing) error) (*models.ProductListing, error)
}

// LedgerStore persists sale records
type LedgerStore interface {
	RecordSaleTx(ctx context.Context, in store.SaleInput, compute store.SaleComputeFunc) (*models.SaleRecord, bool, error)
	ReverseSaleTx(ctx context.Context, saleID int64, orderRef string, build store.ReversalBuildFunc) (*models.SaleRecord, error)
	GetSale(ctx context.Context, id int64) (*models.SaleRecord, error)
	ListSalesByDesigner(ctx context.Context, designerID int64, limit int) ([]models.SaleRecord, error)
	DesignerTotals(ctx context.Context, designerID int64) (*models.DesignerTotals, error)
}

// PayoutStore settles unpaid sale records into batches
type PayoutStore interface {
	ListDesignersWithUnpaid(ctx context.Context, cutoff time.Time) ([]int64, error)
	SettleDesigner(ctx context.Context, designerID int64, period string, cutoff time.Time, minAmount int64) (*store.SettleResult, error)
	ListPayoutBatches(ctx context.Context, designerID int64) ([]models.PayoutBatch, error)
}

// TierResolver resolves the commission tier for a cumulative volume
type TierResolver interface {
	ResolveTier(ctx context.Context, cumulativeSales int64) (models.CommissionTier, error)
}

// SaleCache is the fast path for order ref idempotency
type SaleCache interface {
	LookupSale(ctx context.Context, orderRef string) (int64, bool, error)
	RememberSale(ctx context.Context, orderRef string, saleID int64, ttl time.Duration) (int64, error)
}

// Locker guards work that should not run twice concurrently
type Locker interface {
	AcquireLock(ctx context.Context, lockKey, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey, token string) error
}

// ImageFetcher loads image bytes behind a reference
type ImageFetcher interface {
	FetchImageBytes(ctx context.Context, reference string) ([]byte, error)
}

// Notifier dispatches domain events. Failures are logged, never returned to callers.
type Notifier interface {
	PublishSaleRecorded(ctx context.Context, event *models.SaleRecordedEvent) error
	PublishPayoutBatchCreated(ctx context.Context, event *models.PayoutBatchCreatedEvent) error
	PublishDesignRejected(ctx context.Context, event *models.DesignRejectedEvent) error
}
