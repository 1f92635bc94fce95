package api

import (
	"net/http"
	"strconv"
	"strings"

	"earnings-service/internal/service"

	"github.com/gin-gonic/gin"
)

type checkDesignRequest struct {
	ImageReference   string `json:"image_reference" binding:"required"`
	ExcludeProductID *int64 `json:"exclude_product_id,omitempty"`
	ProductID        *int64 `json:"product_id,omitempty"`
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// checkDesign runs the duplicate gate on an uploaded image or an image reference
func (h *Handler) checkDesign(c *gin.Context) {
	var (
		result *service.DuplicateCheckResult
		err    error
	)

	if isMultipart(c) {
		data, uerr := readUpload(c, "image")
		if uerr != nil || len(data) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing image upload", "kind": "validation"})
			return
		}
		exclude, perr := optionalInt64(c.PostForm("exclude_product_id"))
		if perr != nil {
			badRequest(c, "Invalid exclude_product_id", perr)
			return
		}
		target, perr := optionalInt64(c.PostForm("product_id"))
		if perr != nil {
			badRequest(c, "Invalid product_id", perr)
			return
		}
		result, err = h.designs.CheckDuplicate(c.Request.Context(), data, exclude, target)
	} else {
		var req checkDesignRequest
		if berr := c.ShouldBindJSON(&req); berr != nil {
			badRequest(c, "Invalid request body", berr)
			return
		}
		result, err = h.designs.CheckImageReference(c.Request.Context(), req.ImageReference, req.ExcludeProductID, req.ProductID)
	}

	if err != nil {
		h.writeError(c, "Duplicate check failed", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// submitDesign records a submission and answers 409 with matches on duplicates
func (h *Handler) submitDesign(c *gin.Context) {
	var req service.SubmitDesignRequest

	if isMultipart(c) {
		designerID, err := strconv.ParseInt(c.PostForm("designer_id"), 10, 64)
		if err != nil {
			badRequest(c, "Invalid designer_id", err)
			return
		}
		productID, err := optionalInt64(c.PostForm("product_id"))
		if err != nil {
			badRequest(c, "Invalid product_id", err)
			return
		}
		data, err := readUpload(c, "image")
		if err != nil {
			badRequest(c, "Invalid image upload", err)
			return
		}
		req = service.SubmitDesignRequest{
			DesignerID:     designerID,
			ProductID:      productID,
			ImageReference: c.PostForm("image_reference"),
			ImageBytes:     data,
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	resp, err := h.designs.SubmitDesign(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, "Design rejected", err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}
