package service

import (
	"context"

	"earnings-service/internal/apperr"
	"earnings-service/internal/models"
	"earnings-service/internal/pricing"
	"earnings-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ListingService runs the listing lifecycle: suggested price, admin edits, review
type ListingService struct {
	store      ListingStore
	calculator *pricing.Calculator
	retry      RetryPolicy
	logger     *zap.Logger
}

// NewListingService creates a new listing service
func NewListingService(store ListingStore, calculator *pricing.Calculator, policy RetryPolicy) *ListingService {
	if policy.Attempts == 0 {
		policy = DefaultRetryPolicy
	}
	return &ListingService{
		store:      store,
		calculator: calculator,
		retry:      policy,
		logger:     util.Named("listings"),
	}
}

// QuoteRequest asks for a price without creating anything
type QuoteRequest struct {
	Category          string             `json:"category" binding:"required"`
	Dimensions        pricing.Dimensions `json:"dimensions" binding:"required"`
	OverrideBasePrice *int64             `json:"override_base_price,omitempty"`
}

// Quote computes base and selling price
func (s *ListingService) Quote(ctx context.Context, req *QuoteRequest) (pricing.Quote, error) {
	_, span := util.StartSpan(ctx, "ListingService.Quote")
	defer span.End()

	return s.calculator.ComputePrice(req.Category, req.Dimensions, req.OverrideBasePrice)
}

// CreateListingRequest represents a designer's new listing
type CreateListingRequest struct {
	DesignerID      int64              `json:"designer_id" binding:"required,gt=0"`
	Category        string             `json:"category" binding:"required"`
	Dimensions      pricing.Dimensions `json:"dimensions" binding:"required"`
	SellingPrice    *int64             `json:"selling_price,omitempty"`
	AutoApplyMarkup *bool              `json:"auto_apply_markup,omitempty"`
}

// CreateListing stores a pending listing priced by the calculator. A
// designer-chosen selling price replaces the suggested one.
func (s *ListingService) CreateListing(ctx context.Context, req *CreateListingRequest) (*models.ProductListing, error) {
	const op = "service.CreateListing"

	ctx, span := util.StartSpan(ctx, "ListingService.CreateListing",
		attribute.Int64("designer_id", req.DesignerID))
	defer span.End()

	if req.DesignerID <= 0 {
		return nil, apperr.Validation(op, "designer id must be positive")
	}
	quote, err := s.calculator.ComputePrice(req.Category, req.Dimensions, nil)
	if err != nil {
		return nil, err
	}

	listing := &models.ProductListing{
		DesignerID:      req.DesignerID,
		Category:        req.Category,
		WidthCM:         req.Dimensions.WidthCM,
		DepthCM:         req.Dimensions.DepthCM,
		HeightCM:        req.Dimensions.HeightCM,
		BasePrice:       quote.BasePrice,
		SellingPrice:    quote.SellingPrice,
		AutoApplyMarkup: true,
		Status:          models.ListingStatusPending,
	}
	if req.SellingPrice != nil {
		if *req.SellingPrice <= 0 {
			return nil, apperr.Validation(op, "selling price must be positive, got %d", *req.SellingPrice)
		}
		listing.SellingPrice = *req.SellingPrice
	}
	if req.AutoApplyMarkup != nil {
		listing.AutoApplyMarkup = *req.AutoApplyMarkup
	}

	err = retry(ctx, s.retry, s.logger, "create_listing", func(ctx context.Context) error {
		return s.store.CreateListing(ctx, listing)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Listing created",
		zap.Int64("listing_id", listing.ID),
		zap.Int64("designer_id", listing.DesignerID),
		zap.Int64("base_price", listing.BasePrice),
		zap.Int64("selling_price", listing.SellingPrice))
	return listing, nil
}

// GetListing retrieves a listing by ID
func (s *ListingService) GetListing(ctx context.Context, id int64) (*models.ProductListing, error) {
	return s.store.GetListing(ctx, id)
}

// UpdatePriceRequest is an admin's price edit. Nil fields are left alone.
type UpdatePriceRequest struct {
	BasePrice       *int64 `json:"base_price,omitempty"`
	SellingPrice    *int64 `json:"selling_price,omitempty"`
	AutoApplyMarkup *bool  `json:"auto_apply_markup,omitempty"`
}

// UpdatePrice edits a pending listing's prices. With auto-apply on, a new
// base price carries the previous markup percentage over to the selling
// price; an explicit selling price always wins.
func (s *ListingService) UpdatePrice(ctx context.Context, id int64, req *UpdatePriceRequest) (*models.ProductListing, error) {
	const op = "service.UpdatePrice"

	ctx, span := util.StartSpan(ctx, "ListingService.UpdatePrice", attribute.Int64("listing_id", id))
	defer span.End()

	if req.BasePrice == nil && req.SellingPrice == nil && req.AutoApplyMarkup == nil {
		return nil, apperr.Validation(op, "nothing to update")
	}

	return s.mutate(ctx, id, func(l *models.ProductListing) error {
		if l.Status != models.ListingStatusPending {
			return apperr.Conflict(op, "listing %d is %s, prices are locked", l.ID, l.Status)
		}
		if req.AutoApplyMarkup != nil {
			l.AutoApplyMarkup = *req.AutoApplyMarkup
		}
		if req.BasePrice != nil {
			selling, err := s.calculator.Reprice(l.BasePrice, l.SellingPrice, *req.BasePrice, l.AutoApplyMarkup)
			if err != nil {
				return err
			}
			l.BasePrice = *req.BasePrice
			l.SellingPrice = selling
		}
		if req.SellingPrice != nil {
			if *req.SellingPrice <= 0 {
				return apperr.Validation(op, "selling price must be positive, got %d", *req.SellingPrice)
			}
			l.SellingPrice = *req.SellingPrice
		}
		return nil
	})
}

// Approve makes a pending listing sellable once its selling price covers the base price
func (s *ListingService) Approve(ctx context.Context, id int64) (*models.ProductListing, error) {
	const op = "service.ApproveListing"

	ctx, span := util.StartSpan(ctx, "ListingService.Approve", attribute.Int64("listing_id", id))
	defer span.End()

	listing, err := s.mutate(ctx, id, func(l *models.ProductListing) error {
		if l.Status != models.ListingStatusPending {
			return apperr.Conflict(op, "listing %d is already %s", l.ID, l.Status)
		}
		if err := pricing.ValidateForApproval(l.BasePrice, l.SellingPrice); err != nil {
			return err
		}
		l.Status = models.ListingStatusApproved
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.ListingsApprovedTotal.Inc()
	s.logger.Info("Listing approved", zap.Int64("listing_id", id))
	return listing, nil
}

// Reject closes a pending listing
func (s *ListingService) Reject(ctx context.Context, id int64) (*models.ProductListing, error) {
	const op = "service.RejectListing"

	ctx, span := util.StartSpan(ctx, "ListingService.Reject", attribute.Int64("listing_id", id))
	defer span.End()

	return s.mutate(ctx, id, func(l *models.ProductListing) error {
		if l.Status != models.ListingStatusPending {
			return apperr.Conflict(op, "listing %d is already %s", l.ID, l.Status)
		}
		l.Status = models.ListingStatusRejected
		return nil
	})
}

func (s *ListingService) mutate(ctx context.Context, id int64, fn func(l *models.ProductListing) error) (*models.ProductListing, error) {
	var listing *models.ProductListing
	err := retry(ctx, s.retry, s.logger, "mutate_listing", func(ctx context.Context) error {
		var err error
		listing, err = s.store.MutateListing(ctx, id, fn)
		return err
	})
	return listing, err
}
