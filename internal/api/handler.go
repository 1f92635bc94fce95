package api

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"earnings-service/internal/models"
	"earnings-service/internal/pricing"
	"earnings-service/internal/service"
	"earnings-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const maxUploadBytes = 20 << 20

// DesignGate is the duplicate gate as seen by HTTP handlers
type DesignGate interface {
	CheckDuplicate(ctx context.Context, imageBytes []byte, excludeProductID, targetProductID *int64) (*service.DuplicateCheckResult, error)
	CheckImageReference(ctx context.Context, reference string, excludeProductID, targetProductID *int64) (*service.DuplicateCheckResult, error)
	SubmitDesign(ctx context.Context, req *service.SubmitDesignRequest) (*service.SubmitDesignResponse, error)
}

// Listings is the listing lifecycle as seen by HTTP handlers
type Listings interface {
	Quote(ctx context.Context, req *service.QuoteRequest) (pricing.Quote, error)
	CreateListing(ctx context.Context, req *service.CreateListingRequest) (*models.ProductListing, error)
	GetListing(ctx context.Context, id int64) (*models.ProductListing, error)
	UpdatePrice(ctx context.Context, id int64, req *service.UpdatePriceRequest) (*models.ProductListing, error)
	Approve(ctx context.Context, id int64) (*models.ProductListing, error)
	Reject(ctx context.Context, id int64) (*models.ProductListing, error)
}

// Ledger is the sale ledger as seen by HTTP handlers
type Ledger interface {
	RecordSale(ctx context.Context, req *service.RecordSaleRequest) (*models.SaleRecord, error)
	ReverseSale(ctx context.Context, saleID int64, reason string) (*models.SaleRecord, error)
	GetSale(ctx context.Context, id int64) (*models.SaleRecord, error)
	DesignerEarnings(ctx context.Context, designerID int64) (*service.EarningsSummary, error)
}

// Payouts is the payout aggregator as seen by HTTP handlers
type Payouts interface {
	RunPayoutBatch(ctx context.Context, period string) (*service.PayoutRunResult, error)
	PayoutHistory(ctx context.Context, designerID int64) ([]models.PayoutBatch, error)
}

// Tiers resolves commission tiers
type Tiers interface {
	ResolveTier(ctx context.Context, cumulativeSales int64) (models.CommissionTier, error)
}

// ReadinessCheck reports whether a dependency is reachable
type ReadinessCheck func(ctx context.Context) error

// Dependencies wires the handler
type Dependencies struct {
	Designs   DesignGate
	Listings  Listings
	Ledger    Ledger
	Payouts   Payouts
	Tiers     Tiers
	Limiter   *RateLimiter
	Readiness map[string]ReadinessCheck
}

// Handler contains HTTP handlers
type Handler struct {
	designs   DesignGate
	listings  Listings
	ledger    Ledger
	payouts   Payouts
	tiers     Tiers
	limiter   *RateLimiter
	readiness map[string]ReadinessCheck
	now       func() time.Time
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Dependencies) *Handler {
	limiter := deps.Limiter
	if limiter == nil {
		limiter = NewRateLimiter(0, 1)
	}
	return &Handler{
		designs:   deps.Designs,
		listings:  deps.Listings,
		ledger:    deps.Ledger,
		payouts:   deps.Payouts,
		tiers:     deps.Tiers,
		limiter:   limiter,
		readiness: deps.Readiness,
		now:       time.Now,
		logger:    util.Named("api"),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		designs := v1.Group("/designs", h.limiter.Middleware())
		designs.POST("/check", h.checkDesign)
		designs.POST("", h.submitDesign)

		v1.POST("/pricing/quote", h.quote)

		v1.POST("/listings", h.createListing)
		v1.GET("/listings/:id", h.getListing)
		v1.PUT("/listings/:id/price", h.updatePrice)
		v1.POST("/listings/:id/approve", h.approveListing)
		v1.POST("/listings/:id/reject", h.rejectListing)

		v1.GET("/tiers/resolve", h.resolveTier)

		v1.POST("/sales", h.recordSale)
		v1.GET("/sales/:id", h.getSale)
		v1.POST("/sales/:id/reverse", h.reverseSale)

		v1.GET("/designers/:id/earnings", h.designerEarnings)
		v1.GET("/designers/:id/payouts", h.payoutHistory)

		v1.POST("/payouts/run", h.runPayouts)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   h.now().Unix(),
	})
}

// readinessCheck pings every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.readiness {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   h.now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   h.now().Unix(),
	})
}

func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid " + name + " ID",
			"kind":  "validation",
		})
		return 0, false
	}
	return id, true
}

// optionalInt64 reads a positive integer form or query value, nil when absent
func optionalInt64(raw string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// readUpload returns the bytes of a multipart file field, nil when absent
func readUpload(c *gin.Context, field string) ([]byte, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if err == http.ErrMissingFile {
			return nil, nil
		}
		return nil, err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxUploadBytes))
}
