package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"pos-ledger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

const idempotencyHeader = "Idempotency-Key"

// checkoutCart handles cart checkout
func (h *Handler) checkoutCart(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader(idempotencyHeader)
	}

	result, err := h.checkout.Checkout(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, "Checkout failed", err)
		return
	}

	code := http.StatusCreated
	if len(result.Sales) == 0 {
		code = http.StatusOK
	}
	c.JSON(code, result)
}

// querySales handles sales reports
func (h *Handler) querySales(c *gin.Context) {
	query, err := saleQueryFrom(c)
	if err != nil {
		badRequest(c, "Invalid query", err)
		return
	}

	report, err := h.sales.Query(c.Request.Context(), query)
	if err != nil {
		h.respondError(c, "Failed to query sales", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func saleQueryFrom(c *gin.Context) (service.SaleQuery, error) {
	query := service.SaleQuery{
		ProductName: c.Query("product_name"),
		Status:      c.Query("status"),
	}

	var err error
	if query.From, err = dateQuery(c, "from"); err != nil {
		return query, err
	}
	if query.To, err = dateQuery(c, "to"); err != nil {
		return query, err
	}
	if query.Year, err = intQuery(c, "year"); err != nil {
		return query, err
	}
	if query.Month, err = intQuery(c, "month"); err != nil {
		return query, err
	}
	if raw := c.Query("current_week"); raw != "" {
		if query.CurrentWeek, err = strconv.ParseBool(raw); err != nil {
			return query, fmt.Errorf("current_week: %w", err)
		}
	}
	return query, nil
}

func dateQuery(c *gin.Context, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be YYYY-MM-DD: %w", key, err)
	}
	return &t, nil
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// reverseSale deletes a sale and restores its stock
func (h *Handler) reverseSale(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	reversal, err := h.sales.ReverseSale(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to reverse sale", err)
		return
	}
	c.JSON(http.StatusOK, reversal)
}

// listCredits handles listing open credits
func (h *Handler) listCredits(c *gin.Context) {
	credits, err := h.credits.ListOpen(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to list credits", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"credits": credits})
}

// listDebtors handles listing credits with a balance
func (h *Handler) listDebtors(c *gin.Context) {
	debtors, err := h.credits.FindDebtors(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to list debtors", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"debtors": debtors})
}

// getCredit handles get credit by ID
func (h *Handler) getCredit(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	credit, err := h.credits.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Credit not found", err)
		return
	}
	c.JSON(http.StatusOK, credit)
}

// openCredit handles credit creation
func (h *Handler) openCredit(c *gin.Context) {
	var req service.OpenCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader(idempotencyHeader)
	}

	credit, err := h.credits.OpenCredit(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, "Failed to open credit", err)
		return
	}
	c.JSON(http.StatusCreated, credit)
}

type paymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// addPayment applies a payment to a credit
func (h *Handler) addPayment(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	result, err := h.credits.AddPayment(c.Request.Context(), id, req.Amount)
	if err != nil {
		h.respondError(c, "Failed to apply payment", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// settleCredit closes a credit at its full total
func (h *Handler) settleCredit(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	result, err := h.credits.SettleInFull(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to settle credit", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// cancelCredit returns reserved stock and removes the credit
func (h *Handler) cancelCredit(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	credit, err := h.credits.CancelCredit(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to cancel credit", err)
		return
	}
	c.JSON(http.StatusOK, credit)
}
