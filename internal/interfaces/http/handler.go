// @title           HorizonPay Pricing Service API
// @version         1.0
// @description     NGN to INR currency conversion and payment API

// @contact.name   API Support

// @host      localhost:8080
// @BasePath  /api

package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/horizonpay/pricing-service/internal/apperr"
	appconversion "github.com/horizonpay/pricing-service/internal/application/service/conversion"
	appmarketdata "github.com/horizonpay/pricing-service/internal/application/service/marketdata"
	"github.com/horizonpay/pricing-service/internal/domain/interfaces"
	"github.com/horizonpay/pricing-service/internal/metrics"
)

const signatureHeader = "X-Paystack-Signature"

var errMissingReference = errors.New("reference is required")

type Handler struct {
	router     *gin.Engine
	marketdata *appmarketdata.Service
	pricer     appconversion.RateCalculator
	conversion *appconversion.Service
	archive    interfaces.TransactionArchive

	sink        *metrics.Sink
	cacheTTL    time.Duration
	adminSecret string
	ready       func(ctx context.Context) error
}

// NewHandler builds the router. archive may be nil (admin session listing
// disabled); ready may be nil (readiness always passes).
func NewHandler(
	md *appmarketdata.Service,
	pricer appconversion.RateCalculator,
	conv *appconversion.Service,
	archive interfaces.TransactionArchive,
	sink *metrics.Sink,
	cacheTTL time.Duration,
	adminSecret string,
	ready func(ctx context.Context) error,
) *Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	h := &Handler{
		router:      router,
		marketdata:  md,
		pricer:      pricer,
		conversion:  conv,
		archive:     archive,
		sink:        sink,
		cacheTTL:    cacheTTL,
		adminSecret: adminSecret,
		ready:       ready,
	}
	h.registerRoutes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	h.router.GET("/health", h.health)
	h.router.GET("/ready", h.readiness)
	h.router.GET("/metrics", gin.WrapH(h.sink.Handler()))

	api := h.router.Group("/api")
	{
		api.GET("/rates", h.getRates)
		api.POST("/convert", h.convert)

		payment := api.Group("/payment")
		{
			payment.POST("/initialize", h.initializePayment)
			payment.GET("/verify", h.verifyPayment)
			payment.POST("/verify", h.verifyPayment)
			payment.GET("/status/:sessionId", h.sessionStatus)
		}

		api.POST("/webhook/paystack", h.paystackWebhook)

		admin := api.Group("/admin", h.adminAuth())
		{
			admin.GET("/cache", h.cacheInfo)
			admin.POST("/cache/flush", h.flushCache)
			admin.GET("/sessions", h.listSessions)
		}
	}
}

// getRates returns the current customer rate and market summary
// @Summary      Current exchange rate
// @Description  Aggregated NGN to INR rate with market context
// @Tags         rates
// @Produce      json
// @Success      200  {object}  map[string]any
// @Failure      503  {object}  map[string]string
// @Router       /rates [get]
func (h *Handler) getRates(c *gin.Context) {
	snap, err := h.marketdata.GetMarketData(c.Request.Context(), true)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	var refINR *float64
	if snap.ReferenceRates != nil {
		refINR = &snap.ReferenceRates.INRPerUSDT
	}
	priced, err := h.pricer.CalculateRate(snap.P2P.LowestQualifiedRate, snap.NGNRateWithMarkup, refINR)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"exchange_rate":        priced.CustomerRate,
		"rate_source":          priced.Source,
		"savings_vs_local_min": priced.SavingsVsLocalMin,
		"savings_vs_local_max": priced.SavingsVsLocalMax,
		"spot_price":           snap.SpotPrice,
		"used_fallback":        snap.UsedFallbackReference,
		"fetched_at":           snap.FetchedAt,
		"partial_errors":       snap.PartialErrors,
		"p2p": gin.H{
			"total_ads_seen":          snap.P2P.TotalAdsSeen,
			"quality_ads_count":       snap.P2P.QualityAdsCount,
			"lowest_qualified_rate":   snap.P2P.LowestQualifiedRate,
			"simple_average":          snap.P2P.SimpleAverage,
			"volume_weighted_average": snap.P2P.VolumeWeightedAverage,
			"relaxed_filter_used":     snap.P2P.RelaxedFilterUsed,
		},
	})
}

type convertPayload struct {
	AmountNGN     float64 `json:"amount_ngn"`
	FromCurrency  string  `json:"from_currency"`
	ToCurrency    string  `json:"to_currency"`
	CustomerName  string  `json:"customer_name"`
	Email         string  `json:"email"`
	ReceiveMethod string  `json:"receive_method"`
	AccountNumber string  `json:"account_number"`
	IFSC          string  `json:"ifsc"`
	UPIID         string  `json:"upi_id"`
}

// convert creates a rate-locked conversion session
// @Summary      Create conversion
// @Description  Validate a conversion order, lock the rate, and open a session
// @Tags         conversion
// @Accept       json
// @Produce      json
// @Param        order  body      convertPayload  true  "Conversion order"
// @Success      201    {object}  appconversion.ConvertResult
// @Failure      400    {object}  map[string]any
// @Failure      503    {object}  map[string]string
// @Router       /convert [post]
func (h *Handler) convert(c *gin.Context) {
	var payload convertPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	result, err := h.conversion.Convert(c.Request.Context(), appconversion.ConvertRequest{
		AmountNGN:     payload.AmountNGN,
		FromCurrency:  payload.FromCurrency,
		ToCurrency:    payload.ToCurrency,
		CustomerName:  payload.CustomerName,
		Email:         payload.Email,
		ReceiveMethod: payload.ReceiveMethod,
		AccountNumber: payload.AccountNumber,
		IFSC:          payload.IFSC,
		UPIID:         payload.UPIID,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

type initializePayload struct {
	SessionID string `json:"session_id"`
	Email     string `json:"email"`
}

// initializePayment starts gateway checkout for a session
// @Summary      Initialize payment
// @Tags         payment
// @Accept       json
// @Produce      json
// @Param        request  body      initializePayload  true  "Session to pay"
// @Success      200      {object}  map[string]string
// @Failure      400      {object}  map[string]string
// @Failure      404      {object}  map[string]string
// @Router       /payment/initialize [post]
func (h *Handler) initializePayment(c *gin.Context) {
	var payload initializePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if payload.SessionID == "" {
		writeError(c, http.StatusBadRequest, errors.New("session_id is required"))
		return
	}
	authURL, err := h.conversion.InitializePayment(c.Request.Context(), payload.SessionID, payload.Email)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"authorization_url": authURL})
}

type verifyPayload struct {
	Reference string `json:"reference"`
}

// verifyPayment settles a session from the gateway outcome
// @Summary      Verify payment
// @Tags         payment
// @Produce      json
// @Param        reference  query     string  false  "Gateway reference"
// @Success      200        {object}  map[string]any
// @Failure      404        {object}  map[string]string
// @Router       /payment/verify [get]
func (h *Handler) verifyPayment(c *gin.Context) {
	reference := c.Query("reference")
	if reference == "" && c.Request.Method == http.MethodPost {
		var payload verifyPayload
		if err := c.ShouldBindJSON(&payload); err == nil {
			reference = payload.Reference
		}
	}
	if reference == "" {
		writeError(c, http.StatusBadRequest, errMissingReference)
		return
	}
	txn, err := h.conversion.VerifyPayment(c.Request.Context(), reference)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": txn.ID,
		"status":     txn.Status,
		"financial":  txn.Financial,
	})
}

// sessionStatus reports the session lifecycle state
// @Summary      Session status
// @Tags         payment
// @Produce      json
// @Param        sessionId  path      string  true  "Session id"
// @Success      200        {object}  appconversion.StatusResult
// @Failure      404        {object}  map[string]string
// @Router       /payment/status/{sessionId} [get]
func (h *Handler) sessionStatus(c *gin.Context) {
	status, err := h.conversion.Status(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// paystackWebhook receives asynchronous gateway callbacks
// @Summary      Paystack webhook
// @Tags         payment
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Router       /webhook/paystack [post]
func (h *Handler) paystackWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if err := h.conversion.HandleWebhook(c.Request.Context(), body, c.GetHeader(signatureHeader)); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// cacheInfo exposes cache and upstream counters
// @Summary      Cache statistics
// @Tags         admin
// @Produce      json
// @Success      200  {object}  map[string]any
// @Router       /admin/cache [get]
func (h *Handler) cacheInfo(c *gin.Context) {
	hits, misses := h.sink.CacheStats()
	c.JSON(http.StatusOK, gin.H{
		"cache": gin.H{
			"hits":        hits,
			"misses":      misses,
			"ttl_seconds": int(h.cacheTTL.Seconds()),
		},
		"upstream": h.sink.UpstreamStats(),
	})
}

// flushCache discards the cached market snapshot
// @Summary      Flush cache
// @Tags         admin
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /admin/cache/flush [post]
func (h *Handler) flushCache(c *gin.Context) {
	if err := h.marketdata.Flush(c.Request.Context()); err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "flushed"})
}

// listSessions lists archived transactions
// @Summary      List transactions
// @Tags         admin
// @Produce      json
// @Param        status  query     string  false  "Status filter"
// @Param        limit   query     int     false  "Max rows"
// @Success      200     {object}  map[string]any
// @Router       /admin/sessions [get]
func (h *Handler) listSessions(c *gin.Context) {
	if h.archive == nil {
		writeError(c, http.StatusServiceUnavailable, errors.New("transaction archive is not configured"))
		return
	}

	filter := interfaces.ArchiveFilter{Status: c.Query("status")}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, err)
			return
		}
		filter.Limit = limit
	}
	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, err)
			return
		}
		filter.From = from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, err)
			return
		}
		filter.To = to
	}

	sessions, err := h.archive.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) readiness(c *gin.Context) {
	if h.ready != nil {
		if err := h.ready(c.Request.Context()); err != nil {
			writeError(c, http.StatusServiceUnavailable, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (h *Handler) adminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := c.GetHeader("X-Admin-Secret")
		if secret == "" {
			secret = c.Query("admin_secret")
		}
		if h.adminSecret == "" || secret != h.adminSecret {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// writeServiceError maps the application error taxonomy onto HTTP statuses.
func (h *Handler) writeServiceError(c *gin.Context, err error) {
	if ve, ok := apperr.AsValidation(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "violations": ve.Violations})
		return
	}
	switch {
	case errors.Is(err, appconversion.ErrSessionNotFound):
		writeError(c, http.StatusNotFound, err)
	case errors.Is(err, appconversion.ErrSessionExpired):
		c.JSON(http.StatusGone, gin.H{"error": err.Error(), "status": "expired", "action": "restart the conversion"})
	case errors.Is(err, appconversion.ErrInvalidSignature):
		writeError(c, http.StatusUnauthorized, err)
	default:
		if _, ok := apperr.AsFatal(err); ok {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "market data temporarily unavailable, please retry shortly"})
			return
		}
		if _, ok := apperr.AsExternal(err); ok {
			c.JSON(http.StatusBadGateway, gin.H{"error": "an upstream dependency failed, please retry shortly"})
			return
		}
		writeError(c, http.StatusInternalServerError, err)
	}
}

func writeError(c *gin.Context, status int, err error) {
	if err == nil {
		status = http.StatusInternalServerError
		err = errors.New("unknown error")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
