package models

import "time"

// Event types
const (
	EventTypeOrderCompleted     = "ORDER_COMPLETED"
	EventTypeSaleRecorded       = "SALE_RECORDED"
	EventTypeSaleReversed       = "SALE_REVERSED"
	EventTypePayoutBatchCreated = "PAYOUT_BATCH_CREATED"
	EventTypeDesignRejected     = "DESIGN_REJECTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCompletedEvent is published by checkout once a shopper has been charged
type OrderCompletedEvent struct {
	BaseEvent
	OrderID string          `json:"order_id"`
	Items   []OrderItemData `json:"items"`
}

// OrderItemData represents a purchased line in an order
type OrderItemData struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
}

// SaleRecordedEvent is published after a sale record is committed
type SaleRecordedEvent struct {
	BaseEvent
	SaleID           int64  `json:"sale_id"`
	Kind             string `json:"kind"`
	ProductID        int64  `json:"product_id"`
	DesignerID       int64  `json:"designer_id"`
	SalePrice        int64  `json:"sale_price"`
	CommissionAmount int64  `json:"commission_amount"`
	DesignerEarnings int64  `json:"designer_earnings"`
	TierName         string `json:"tier_name"`
}

// PayoutBatchCreatedEvent is published after a payout batch is settled
type PayoutBatchCreatedEvent struct {
	BaseEvent
	BatchID     int64   `json:"batch_id"`
	DesignerID  int64   `json:"designer_id"`
	Period      string  `json:"period"`
	TotalAmount int64   `json:"total_amount"`
	RecordIDs   []int64 `json:"record_ids"`
}

// DesignRejectedEvent is published when the duplicate gate rejects a submission
type DesignRejectedEvent struct {
	BaseEvent
	SubmissionID int64   `json:"submission_id"`
	DesignerID   int64   `json:"designer_id"`
	MatchedIDs   []int64 `json:"matched_product_ids"`
}
