package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"ticketing-service/internal/models"
	"ticketing-service/internal/processor"
	"ticketing-service/internal/service"
	"ticketing-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const maxWebhookBody = 64 << 10

// WebhookParser verifies and decodes provider webhooks
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (*processor.WebhookEvent, error)
}

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups everything the handlers call
type Services struct {
	Catalog  *service.CatalogService
	Checkout *service.CheckoutService
	Webhook  *service.WebhookService
	CheckIn  *service.CheckInService
	Transfer *service.TransferService
	Refund   *service.RefundService
	Payout   *service.PayoutService
	Tickets  *service.TicketService
}

// Options configures the HTTP surface
type Options struct {
	JWTSecret      string
	AllowedOrigins []string
	ScanRateLimit  int
	ScanRateWindow time.Duration
}

// Handler contains HTTP handlers
type Handler struct {
	svc     Services
	parser  WebhookParser
	limiter RateLimiter
	checks  map[string]Pinger
	opts    Options
}

// NewHandler creates a new HTTP handler. limiter may be nil.
func NewHandler(svc Services, parser WebhookParser, limiter RateLimiter, checks map[string]Pinger, opts Options) *Handler {
	return &Handler{
		svc:     svc,
		parser:  parser,
		limiter: limiter,
		checks:  checks,
		opts:    opts,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger())
	if len(h.opts.AllowedOrigins) > 0 {
		router.Use(corsMiddleware(h.opts.AllowedOrigins))
	}

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/webhooks/stripe", h.stripeWebhook)
		v1.GET("/events/:id", h.getEvent)
		v1.GET("/events/:id/tiers", h.listTiers)
	}

	authed := v1.Group("", bearerAuth([]byte(h.opts.JWTSecret)))
	{
		authed.POST("/events/:id/quote", h.quote)
		authed.POST("/checkout", h.createCheckout)
		authed.GET("/orders/:id", h.getOrder)
		authed.POST("/tickets/:id/transfer", h.transferTicket)
		authed.GET("/tickets/:id/qr", h.ticketQR)
	}

	organizer := authed.Group("", requireRole(RoleOrganizer))
	{
		organizer.POST("/events", h.createEvent)
		organizer.POST("/events/:id/publish", h.publishEvent)
		organizer.POST("/events/:id/cancel", h.cancelEvent)
		organizer.POST("/events/:id/tiers", h.createTier)
		organizer.POST("/events/:id/promo-codes", h.createPromoCode)
		organizer.POST("/events/:id/scan",
			rateLimit(h.limiter, h.opts.ScanRateLimit, h.opts.ScanRateWindow), h.scanTicket)
		organizer.POST("/orders/:id/refunds", h.refundOrder)
		organizer.GET("/payouts/balance", h.payoutBalance)
		organizer.GET("/payouts", h.listPayouts)
		organizer.POST("/payouts", h.requestPayout)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "Invalid "+name, nil)
		return 0, false
	}
	return id, true
}

// stripeWebhook must stay safely repeatable: the provider retries on any non-2xx
func (h *Handler) stripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		badRequest(c, "Unreadable body", err)
		return
	}

	event, err := h.parser.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, processor.ErrInvalidSignature) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature", "code": "invalid_signature"})
			return
		}
		// malformed metadata will not improve on retry
		util.GetLogger().Error("Unprocessable webhook acknowledged", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	if err := h.svc.Webhook.HandleEvent(c.Request.Context(), event); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Processing failed, retry"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *Handler) createEvent(c *gin.Context) {
	var req service.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	event, err := h.svc.Catalog.CreateEvent(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

func (h *Handler) getEvent(c *gin.Context) {
	eventID, ok := idParam(c, "id")
	if !ok {
		return
	}

	event, err := h.svc.Catalog.GetEvent(c.Request.Context(), eventID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

func (h *Handler) publishEvent(c *gin.Context) {
	h.eventTransition(c, h.svc.Catalog.PublishEvent)
}

func (h *Handler) cancelEvent(c *gin.Context) {
	h.eventTransition(c, h.svc.Catalog.CancelEvent)
}

func (h *Handler) eventTransition(c *gin.Context, fn func(context.Context, int64, int64) (*models.Event, error)) {
	eventID, ok := idParam(c, "id")
	if !ok {
		return
	}

	event, err := fn(c.Request.Context(), currentUser(c), eventID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

func (h *Handler) listTiers(c *gin.Context) {
	eventID, ok := idParam(c, "id")
	if !ok {
		return
	}

	tiers, err := h.svc.Catalog.ListTiers(c.Request.Context(), eventID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tiers": tiers})
}

func (h *Handler) createTier(c *gin.Context) {
	eventID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req service.CreateTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	tier, err := h.svc.Catalog.CreateTier(c.Request.Context(), currentUser(c), eventID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tier)
}

func (h *Handler) createPromoCode(c *gin.Context) {
	eventID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req service.CreatePromoCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	promo, err := h.svc.Catalog.CreatePromoCode(c.Request.Context(), currentUser(c), eventID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, promo)
}

type quoteRequest struct {
	Lines     []service.LineRequest `json:"lines" binding:"required,min=1,dive"`
	PromoCode string                `json:"promo_code"`
}

func (h *Handler) quote(c *gin.Context) {
	eventID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	quote, err := h.svc.Checkout.Quote(c.Request.Context(), eventID, req.Lines, req.PromoCode)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

// createCheckout handles order creation
func (h *Handler) createCheckout(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	resp, err := h.svc.Checkout.CreateCheckout(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := idParam(c, "id")
	if !ok {
		return
	}

	details, err := h.svc.Checkout.GetOrder(c.Request.Context(), currentUser(c), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (h *Handler) refundOrder(c *gin.Context) {
	orderID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req service.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	refund, err := h.svc.Refund.Refund(c.Request.Context(), currentUser(c), orderID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, refund)
}

type scanRequest struct {
	Credential string `json:"credential" binding:"required"`
}

func (h *Handler) scanTicket(c *gin.Context) {
	eventID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	result, err := h.svc.CheckIn.Scan(c.Request.Context(), currentUser(c), eventID, req.Credential)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) transferTicket(c *gin.Context) {
	ticketID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var holder models.TicketHolder
	if err := c.ShouldBindJSON(&holder); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	ticket, err := h.svc.Transfer.Transfer(c.Request.Context(), currentUser(c), ticketID, holder)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func (h *Handler) ticketQR(c *gin.Context) {
	ticketID, ok := idParam(c, "id")
	if !ok {
		return
	}

	png, err := h.svc.Tickets.QRCode(c.Request.Context(), currentUser(c), ticketID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handler) payoutBalance(c *gin.Context) {
	balance, err := h.svc.Payout.Balance(c.Request.Context(), currentUser(c), c.Query("currency"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func (h *Handler) listPayouts(c *gin.Context) {
	payouts, err := h.svc.Payout.ListPayouts(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payouts": payouts})
}

type payoutRequest struct {
	Amount   int64  `json:"amount" binding:"required,min=1"`
	Currency string `json:"currency" binding:"omitempty,len=3"`
}

func (h *Handler) requestPayout(c *gin.Context) {
	var req payoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	payout, err := h.svc.Payout.RequestPayout(c.Request.Context(), currentUser(c), req.Amount, req.Currency)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payout)
}
