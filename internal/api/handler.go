package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"pos-ledger/internal/auth"
	"pos-ledger/internal/service"
	"pos-ledger/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups the ledger services exposed over HTTP
type Services struct {
	Catalog   *service.Catalog
	Sales     *service.SalesLedger
	Credits   *service.CreditLedger
	Checkout  *service.Checkout
	Dashboard *service.Dashboard
}

// Handler contains HTTP handlers
type Handler struct {
	catalog   *service.Catalog
	sales     *service.SalesLedger
	credits   *service.CreditLedger
	checkout  *service.Checkout
	dashboard *service.Dashboard
	tokens    *auth.TokenIssuer
	limiter   *CallerRateLimiter
	readiness map[string]Pinger
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler. limiter may be nil to disable rate limiting.
func NewHandler(svc Services, tokens *auth.TokenIssuer, limiter *CallerRateLimiter, readiness map[string]Pinger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = util.ComponentLogger("api")
	}
	return &Handler{
		catalog:   svc.Catalog,
		sales:     svc.Sales,
		credits:   svc.Credits,
		checkout:  svc.Checkout,
		dashboard: svc.Dashboard,
		tokens:    tokens,
		limiter:   limiter,
		readiness: readiness,
		logger:    logger,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(authenticate(h.tokens))
	if h.limiter != nil {
		v1.Use(h.limiter.Middleware())
	}
	{
		v1.GET("/products", requireCapability(auth.CapCatalogRead), h.listProducts)
		v1.POST("/products", requireCapability(auth.CapCatalogWrite), h.createProduct)
		v1.GET("/products/search", requireCapability(auth.CapCatalogRead), h.searchProducts)
		v1.GET("/products/lookup", requireCapability(auth.CapCatalogRead), h.lookupProduct)
		v1.POST("/products/import", requireCapability(auth.CapCatalogWrite), h.importProducts)
		v1.PUT("/products/:id", requireCapability(auth.CapCatalogWrite), h.updateProduct)
		v1.DELETE("/products/:id", requireCapability(auth.CapCatalogWrite), h.deleteProduct)

		v1.POST("/checkout", requireCapability(auth.CapCheckout), h.checkoutCart)

		v1.GET("/sales", requireCapability(auth.CapSalesRead), h.querySales)
		v1.DELETE("/sales/:id", requireCapability(auth.CapSalesReverse), h.reverseSale)

		v1.GET("/credits", requireCapability(auth.CapCreditRead), h.listCredits)
		v1.POST("/credits", requireCapability(auth.CapCreditOpen), h.openCredit)
		v1.GET("/credits/debtors", requireCapability(auth.CapCreditRead), h.listDebtors)
		v1.GET("/credits/:id", requireCapability(auth.CapCreditRead), h.getCredit)
		v1.POST("/credits/:id/payments", requireCapability(auth.CapCreditPay), h.addPayment)
		v1.POST("/credits/:id/settle", requireCapability(auth.CapCreditSettle), h.settleCredit)
		v1.DELETE("/credits/:id", requireCapability(auth.CapCreditCancel), h.cancelCredit)

		v1.GET("/dashboard", requireCapability(auth.CapDashboardRead), h.getDashboard)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency the ledger needs to serve requests
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	ready := true
	for name, p := range h.readiness {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not ready", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}

// getDashboard handles the dashboard summary
func (h *Handler) getDashboard(c *gin.Context) {
	summary, err := h.dashboard.Summary(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to build dashboard", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
