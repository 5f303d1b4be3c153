package api

import (
	"net/http"
	"strconv"

	"pos-ledger/internal/models"
	"pos-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

// listProducts handles listing active products
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalog.List(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to list products", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// createProduct handles product creation
func (h *Handler) createProduct(c *gin.Context) {
	var req service.NewProduct
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	product, err := h.catalog.CreateProduct(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, "Failed to create product", err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

// updateProduct handles partial product edits
func (h *Handler) updateProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req service.ProductUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	product, err := h.catalog.UpdateProduct(c.Request.Context(), id, req)
	if err != nil {
		h.respondError(c, "Failed to update product", err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// deleteProduct archives a product
func (h *Handler) deleteProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.catalog.DeleteProduct(c.Request.Context(), id); err != nil {
		h.respondError(c, "Failed to delete product", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// searchProducts handles prefix search by name or code
func (h *Handler) searchProducts(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "Invalid limit", err)
			return
		}
		limit = n
	}

	products, err := h.catalog.Search(c.Request.Context(), c.Query("term"), limit)
	if err != nil {
		h.respondError(c, "Failed to search products", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// lookupProduct finds one product by exact code or name
func (h *Handler) lookupProduct(c *gin.Context) {
	var (
		product *models.Product
		err     error
	)
	switch code, name := c.Query("code"), c.Query("name"); {
	case code != "":
		product, err = h.catalog.FindByCode(c.Request.Context(), code)
	case name != "":
		product, err = h.catalog.FindByName(c.Request.Context(), name)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "code or name is required"})
		return
	}
	if err != nil {
		h.respondError(c, "Product lookup failed", err)
		return
	}
	c.JSON(http.StatusOK, product)
}

type importRequest struct {
	Rows []service.ImportRow `json:"rows" binding:"required"`
}

// importProducts handles bulk catalog import
func (h *Handler) importProducts(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	report, err := h.catalog.BulkImport(c.Request.Context(), req.Rows)
	if err != nil {
		h.respondError(c, "Import interrupted", err)
		return
	}
	c.JSON(http.StatusOK, report)
}
