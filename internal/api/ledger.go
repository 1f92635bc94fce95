package api

import (
	"net/http"
	"strconv"

	"earnings-service/internal/apperr"
	"earnings-service/internal/service"

	"github.com/gin-gonic/gin"
)

// resolveTier reports the tier for a cumulative sales volume
func (h *Handler) resolveTier(c *gin.Context) {
	raw := c.Query("cumulative_sales")
	volume, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		badRequest(c, "Invalid cumulative_sales", err)
		return
	}

	tier, err := h.tiers.ResolveTier(c.Request.Context(), volume)
	if err != nil {
		if apperr.Is(err, apperr.KindConfiguration) {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Commission tiers misconfigured",
				"kind":    apperr.KindConfiguration,
				"details": err.Error(),
				"tier":    tier,
			})
			return
		}
		h.writeError(c, "Failed to resolve tier", err)
		return
	}
	c.JSON(http.StatusOK, tier)
}

// recordSale records one sold unit. The Idempotency-Key header stands in for
// a missing order_ref.
func (h *Handler) recordSale(c *gin.Context) {
	var req service.RecordSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	if req.OrderRef == "" {
		req.OrderRef = c.GetHeader("Idempotency-Key")
	}

	record, err := h.ledger.RecordSale(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, "Failed to record sale", err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (h *Handler) getSale(c *gin.Context) {
	id, ok := parseID(c, "sale")
	if !ok {
		return
	}

	record, err := h.ledger.GetSale(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "Sale not found", err)
		return
	}
	c.JSON(http.StatusOK, record)
}

type reverseSaleRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) reverseSale(c *gin.Context) {
	id, ok := parseID(c, "sale")
	if !ok {
		return
	}
	var req reverseSaleRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body", err)
			return
		}
	}

	record, err := h.ledger.ReverseSale(c.Request.Context(), id, req.Reason)
	if err != nil {
		h.writeError(c, "Failed to reverse sale", err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (h *Handler) designerEarnings(c *gin.Context) {
	id, ok := parseID(c, "designer")
	if !ok {
		return
	}

	summary, err := h.ledger.DesignerEarnings(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "Failed to load earnings", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) payoutHistory(c *gin.Context) {
	id, ok := parseID(c, "designer")
	if !ok {
		return
	}

	batches, err := h.payouts.PayoutHistory(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "Failed to load payouts", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batches": batches})
}

type runPayoutsRequest struct {
	Period string `json:"period"`
}

// runPayouts settles a period, defaulting to the previous calendar month
func (h *Handler) runPayouts(c *gin.Context) {
	var req runPayoutsRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body", err)
			return
		}
	}
	if req.Period == "" {
		req.Period = service.PreviousPeriod(h.now())
	}

	result, err := h.payouts.RunPayoutBatch(c.Request.Context(), req.Period)
	if err != nil {
		h.writeError(c, "Payout run failed", err)
		return
	}
	c.JSON(http.StatusOK, result)
}
