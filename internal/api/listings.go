package api

import (
	"net/http"

	"earnings-service/internal/service"

	"github.com/gin-gonic/gin"
)

// quote prices a design without creating a listing
func (h *Handler) quote(c *gin.Context) {
	var req service.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	quote, err := h.listings.Quote(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, "Failed to compute price", err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

// createListing handles listing creation with a suggested price
func (h *Handler) createListing(c *gin.Context) {
	var req service.CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	listing, err := h.listings.CreateListing(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, "Failed to create listing", err)
		return
	}
	c.JSON(http.StatusCreated, listing)
}

func (h *Handler) getListing(c *gin.Context) {
	id, ok := parseID(c, "listing")
	if !ok {
		return
	}

	listing, err := h.listings.GetListing(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "Listing not found", err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// updatePrice handles an admin price override
func (h *Handler) updatePrice(c *gin.Context) {
	id, ok := parseID(c, "listing")
	if !ok {
		return
	}
	var req service.UpdatePriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	listing, err := h.listings.UpdatePrice(c.Request.Context(), id, &req)
	if err != nil {
		h.writeError(c, "Failed to update price", err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *Handler) approveListing(c *gin.Context) {
	id, ok := parseID(c, "listing")
	if !ok {
		return
	}

	listing, err := h.listings.Approve(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "Failed to approve listing", err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *Handler) rejectListing(c *gin.Context) {
	id, ok := parseID(c, "listing")
	if !ok {
		return
	}

	listing, err := h.listings.Reject(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "Failed to reject listing", err)
		return
	}
	c.JSON(http.StatusOK, listing)
}
