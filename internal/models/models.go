package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// DesignSubmission is a designer's uploaded design awaiting the duplicate gate
type DesignSubmission struct {
	ID             int64     `db:"id" json:"id"`
	DesignerID     int64     `db:"designer_id" json:"designer_id"`
	ProductID      *int64    `db:"product_id" json:"product_id,omitempty"`
	ImageReference string    `db:"image_reference" json:"image_reference"`
	Fingerprint    int64     `db:"fingerprint" json:"fingerprint"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// FingerprintEntry is one accepted design in the duplicate index
type FingerprintEntry struct {
	ProductID   int64     `db:"product_id" json:"product_id"`
	Fingerprint int64     `db:"fingerprint" json:"fingerprint"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ProductListing is a sellable design with its manufacturing and selling price
type ProductListing struct {
	ID              int64     `db:"id" json:"id"`
	DesignerID      int64     `db:"designer_id" json:"designer_id"`
	Category        string    `db:"category" json:"category"`
	WidthCM         float64   `db:"width_cm" json:"width_cm"`
	DepthCM         float64   `db:"depth_cm" json:"depth_cm"`
	HeightCM        float64   `db:"height_cm" json:"height_cm"`
	BasePrice       int64     `db:"base_price" json:"base_price"`
	SellingPrice    int64     `db:"selling_price" json:"selling_price"`
	AutoApplyMarkup bool      `db:"auto_apply_markup" json:"auto_apply_markup"`
	Status          string    `db:"status" json:"status"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// CommissionTier is a volume bracket. MaxSales is exclusive; nil means unbounded.
type CommissionTier struct {
	ID             int64           `db:"id" json:"id"`
	TierName       string          `db:"tier_name" json:"tier_name"`
	MinSales       int64           `db:"min_sales" json:"min_sales"`
	MaxSales       *int64          `db:"max_sales" json:"max_sales,omitempty"`
	CommissionRate decimal.Decimal `db:"commission_rate" json:"commission_rate"`
}

// Contains reports whether cumulativeSales falls inside [MinSales, MaxSales)
func (t CommissionTier) Contains(cumulativeSales int64) bool {
	if cumulativeSales < t.MinSales {
		return false
	}
	return t.MaxSales == nil || cumulativeSales < *t.MaxSales
}

// SaleRecord is an immutable ledger entry
type SaleRecord struct {
	ID               int64           `db:"id" json:"id"`
	ProductID        int64           `db:"product_id" json:"product_id"`
	DesignerID       int64           `db:"designer_id" json:"designer_id"`
	OrderRef         string          `db:"order_ref" json:"order_ref"`
	Kind             string          `db:"kind" json:"kind"`
	ReversesID       *int64          `db:"reverses_id" json:"reverses_id,omitempty"`
	SaleDate         time.Time       `db:"sale_date" json:"sale_date"`
	BasePriceAtSale  int64           `db:"base_price_at_sale" json:"base_price_at_sale"`
	SalePrice        int64           `db:"sale_price" json:"sale_price"`
	TierName         string          `db:"tier_name" json:"tier_name"`
	CommissionRate   decimal.Decimal `db:"commission_rate" json:"commission_rate"`
	CommissionAmount int64           `db:"commission_amount" json:"commission_amount"`
	DesignerEarnings int64           `db:"designer_earnings" json:"designer_earnings"`
	Paid             bool            `db:"paid" json:"paid"`
	PayoutBatchID    *int64          `db:"payout_batch_id" json:"payout_batch_id,omitempty"`
}

// VolumeContribution is what this record adds to the designer's cumulative sales
func (r SaleRecord) VolumeContribution() int64 {
	return r.SalePrice - r.BasePriceAtSale
}

// PayoutBatch settles a designer's unpaid records for a period
type PayoutBatch struct {
	ID          int64         `db:"id" json:"id"`
	DesignerID  int64         `db:"designer_id" json:"designer_id"`
	Period      string        `db:"period" json:"period"`
	Cutoff      time.Time     `db:"cutoff" json:"cutoff"`
	TotalAmount int64         `db:"total_amount" json:"total_amount"`
	RecordIDs   pq.Int64Array `db:"record_ids" json:"record_ids"`
	Status      string        `db:"status" json:"status"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	PaidAt      *time.Time    `db:"paid_at" json:"paid_at,omitempty"`
}

// DesignerTotals are derived aggregates over a designer's sale records
type DesignerTotals struct {
	DesignerID      int64 `db:"designer_id" json:"designer_id"`
	CumulativeSales int64 `db:"cumulative_sales" json:"cumulative_sales"`
	TotalEarnings   int64 `db:"total_earnings" json:"total_earnings"`
	PaidEarnings    int64 `db:"paid_earnings" json:"paid_earnings"`
	UnpaidEarnings  int64 `db:"unpaid_earnings" json:"unpaid_earnings"`
	SaleCount       int64 `db:"sale_count" json:"sale_count"`
}

// Submission statuses
const (
	SubmissionStatusAccepted          = "accepted"
	SubmissionStatusRejectedDuplicate = "rejected_duplicate"
)

// Listing statuses
const (
	ListingStatusPending  = "pending"
	ListingStatusApproved = "approved"
	ListingStatusRejected = "rejected"
)

// Sale record kinds
const (
	SaleKindSale     = "sale"
	SaleKindReversal = "reversal"
)

// Payout batch statuses
const (
	PayoutStatusPending = "pending"
	PayoutStatusPaid    = "paid"
)

// Furniture categories
const (
	CategoryChairs        = "chairs"
	CategoryTables        = "tables"
	CategoryBenches       = "benches"
	CategoryInstallations = "installations"
	CategorySculpturalArt = "sculptural-art"
	CategoryDecor         = "decor"
)

// Categories lists every category a pricing table must cover
var Categories = []string{
	CategoryChairs,
	CategoryTables,
	CategoryBenches,
	CategoryInstallations,
	CategorySculpturalArt,
	CategoryDecor,
}
