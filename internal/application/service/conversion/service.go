package conversion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/horizonpay/pricing-service/internal/apperr"
	pricingsvc "github.com/horizonpay/pricing-service/internal/application/service/pricing"
	"github.com/horizonpay/pricing-service/internal/config"
	market "github.com/horizonpay/pricing-service/internal/domain/entity/market"
	pricingdom "github.com/horizonpay/pricing-service/internal/domain/entity/pricing"
	session "github.com/horizonpay/pricing-service/internal/domain/entity/session"
	"github.com/horizonpay/pricing-service/internal/domain/interfaces"
	"github.com/horizonpay/pricing-service/internal/infrastructure/sessionstore"
	"github.com/horizonpay/pricing-service/internal/metrics"
)

const (
	eventTransactionCompleted = "transaction.completed"
	webhookChargeSuccess      = "charge.success"

	ReceiveMethodBank = "bank"
	ReceiveMethodUPI  = "upi"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionExpired   = errors.New("session expired")
	ErrInvalidSignature = errors.New("webhook signature mismatch")
)

var (
	accountNumberRe = regexp.MustCompile(`^[0-9]{9,18}$`)
	ifscRe          = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)
	upiRe           = regexp.MustCompile(`^[A-Za-z0-9._-]{2,256}@[A-Za-z]{2,64}$`)
	emailRe         = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// MarketDataProvider supplies the composite market snapshot.
type MarketDataProvider interface {
	GetMarketData(ctx context.Context, useCache bool) (*market.MarketSnapshot, error)
}

// RateCalculator turns aggregated rates into a customer rate.
type RateCalculator interface {
	CalculateRate(lowestINRPerUSDT, ngnRateWithMarkup float64, referenceINRPerUSDT *float64) (pricingdom.Result, error)
}

// Service runs the conversion and payment lifecycle: quote, lock, checkout,
// settle.
type Service struct {
	marketData MarketDataProvider
	pricer     RateCalculator
	store      interfaces.SessionStore
	gateway    interfaces.PaymentGateway
	archive    interfaces.TransactionArchive
	publisher  interfaces.EventPublisher

	feeTiers []pricingdom.FeeTier
	cfg      config.TransactionConfig
	sink     *metrics.Sink
	logger   *logrus.Entry
}

// NewService wires the conversion flow. archive and publisher may be nil.
func NewService(
	marketData MarketDataProvider,
	pricer RateCalculator,
	store interfaces.SessionStore,
	gateway interfaces.PaymentGateway,
	archive interfaces.TransactionArchive,
	publisher interfaces.EventPublisher,
	cfg config.TransactionConfig,
	sink *metrics.Sink,
	logger *logrus.Logger,
) *Service {
	return &Service{
		marketData: marketData,
		pricer:     pricer,
		store:      store,
		gateway:    gateway,
		archive:    archive,
		publisher:  publisher,
		feeTiers:   pricingdom.DefaultFeeTiers(),
		cfg:        cfg,
		sink:       sink,
		logger:     logger.WithField("component", "conversion"),
	}
}

// ConvertRequest is a fully-specified conversion order.
type ConvertRequest struct {
	AmountNGN     float64
	FromCurrency  string
	ToCurrency    string
	CustomerName  string
	Email         string
	ReceiveMethod string
	AccountNumber string
	IFSC          string
	UPIID         string
}

// ConvertResult is the locked quote handed back to the customer.
type ConvertResult struct {
	SessionID         string                `json:"session_id"`
	ExchangeRate      float64               `json:"exchange_rate"`
	RateSource        pricingdom.RateSource `json:"rate_source"`
	AmountNGN         float64               `json:"amount_ngn"`
	AmountINRGross    float64               `json:"amount_inr_gross"`
	FeePercent        float64               `json:"fee_percent"`
	FeeINR            float64               `json:"fee_inr"`
	AmountINRNet      float64               `json:"amount_inr_net"`
	SavingsVsLocalMin float64               `json:"savings_vs_local_min"`
	SavingsVsLocalMax float64               `json:"savings_vs_local_max"`
	ExpiresAt         time.Time             `json:"expires_at"`
}

// Convert validates the order, prices it against live market data, and
// creates the rate-locked session. A session id is returned only once the
// session is durably stored.
func (s *Service) Convert(ctx context.Context, req ConvertRequest) (*ConvertResult, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	snap, err := s.marketData.GetMarketData(ctx, true)
	if err != nil {
		return nil, err
	}

	var refINR *float64
	if snap.ReferenceRates != nil {
		refINR = &snap.ReferenceRates.INRPerUSDT
	}
	priced, err := s.pricer.CalculateRate(snap.P2P.LowestQualifiedRate, snap.NGNRateWithMarkup, refINR)
	if err != nil {
		return nil, err
	}

	gross := math.Round(req.AmountNGN/priced.CustomerRate*100) / 100
	fee, err := pricingsvc.CalculateFee(gross, s.feeTiers)
	if err != nil {
		return nil, err
	}

	fin := session.FinancialSummary{
		AmountNGN:      req.AmountNGN,
		ExchangeRate:   priced.CustomerRate,
		AmountINRGross: gross,
		FeePercent:     fee.Percent,
		FeeINR:         fee.FeeAmount,
		AmountINRNet:   fee.NetAmount,
		RateSource:     priced.Source,
	}
	sens := session.SensitiveDetails{
		CustomerName:  req.CustomerName,
		Email:         req.Email,
		ReceiveMethod: req.ReceiveMethod,
		AccountNumber: req.AccountNumber,
		IFSC:          req.IFSC,
		UPIID:         req.UPIID,
	}

	txn := session.New(priced.CustomerRate, fin, sens, s.cfg.SessionTTL)
	if err := s.store.Create(ctx, txn, s.cfg.SessionTTL); err != nil {
		s.logger.WithError(err).Error("failed to persist session; conversion aborted")
		return nil, fmt.Errorf("store session: %w", err)
	}
	s.sink.SessionCreated()
	s.logger.WithFields(logrus.Fields{
		"session_id":  txn.ID,
		"rate_source": priced.Source,
	}).Info("conversion session created")

	return &ConvertResult{
		SessionID:         txn.ID,
		ExchangeRate:      priced.CustomerRate,
		RateSource:        priced.Source,
		AmountNGN:         req.AmountNGN,
		AmountINRGross:    gross,
		FeePercent:        fee.Percent,
		FeeINR:            fee.FeeAmount,
		AmountINRNet:      fee.NetAmount,
		SavingsVsLocalMin: priced.SavingsVsLocalMin,
		SavingsVsLocalMax: priced.SavingsVsLocalMax,
		ExpiresAt:         txn.ExpiresAt,
	}, nil
}

// InitializePayment starts gateway checkout for a pending session and
// returns the hosted payment page URL.
func (s *Service) InitializePayment(ctx context.Context, sessionID, email string) (string, error) {
	txn, err := s.load(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if txn.Status.Terminal() {
		return "", fmt.Errorf("session %s is already %s", txn.ID, txn.Status)
	}
	if txn.ExpiredAt(time.Now().UTC()) {
		s.expire(ctx, txn)
		return "", ErrSessionExpired
	}

	if email == "" {
		email = txn.Sensitive.Email
	}
	reference := txn.ID

	authURL, err := s.gateway.Initialize(ctx, reference, email, txn.Financial.AmountNGN)
	if err != nil {
		return "", err
	}

	txn.GatewayReference = reference
	txn.Status = session.StatusPaymentInitiated
	if err := s.store.Update(ctx, txn); err != nil {
		return "", fmt.Errorf("update session %s: %w", txn.ID, err)
	}
	return authURL, nil
}

// VerifyPayment asks the gateway for the charge outcome and settles the
// session. Terminal sessions are returned unchanged; verifying a completed
// payment twice neither flips the status nor double-counts.
func (s *Service) VerifyPayment(ctx context.Context, reference string) (*session.TransactionSession, error) {
	txn, err := s.load(ctx, reference)
	if err != nil {
		return nil, err
	}
	if txn.Status.Terminal() {
		return txn, nil
	}

	succeeded, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		return nil, err
	}
	if err := s.settle(ctx, txn, succeeded); err != nil {
		return nil, err
	}
	return txn, nil
}

type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
	} `json:"data"`
}

// HandleWebhook processes a gateway callback. The signature is checked
// before the body is trusted; events other than charge.success are ignored.
func (s *Service) HandleWebhook(ctx context.Context, rawBody []byte, signature string) error {
	if !s.gateway.VerifySignature(rawBody, signature) {
		return ErrInvalidSignature
	}

	var event webhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return fmt.Errorf("decode webhook payload: %w", err)
	}
	if event.Event != webhookChargeSuccess {
		s.logger.WithField("event", event.Event).Debug("ignoring webhook event")
		return nil
	}
	if event.Data.Reference == "" {
		return errors.New("webhook payload missing reference")
	}

	txn, err := s.load(ctx, event.Data.Reference)
	if err != nil {
		return err
	}
	if txn.Status.Terminal() {
		return nil
	}
	return s.settle(ctx, txn, true)
}

// StatusResult is the customer-facing session readout.
type StatusResult struct {
	SessionID string                   `json:"session_id"`
	Status    session.Status           `json:"status"`
	Financial session.FinancialSummary `json:"financial"`
	ExpiresAt time.Time                `json:"expires_at"`
}

// Status reports the session state, surfacing expiry as its own status so
// the caller knows to restart rather than retry.
func (s *Service) Status(ctx context.Context, sessionID string) (*StatusResult, error) {
	txn, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !txn.Status.Terminal() && txn.ExpiredAt(time.Now().UTC()) {
		s.expire(ctx, txn)
	}
	return &StatusResult{
		SessionID: txn.ID,
		Status:    txn.Status,
		Financial: txn.Financial,
		ExpiresAt: txn.ExpiresAt,
	}, nil
}

func (s *Service) load(ctx context.Context, id string) (*session.TransactionSession, error) {
	txn, err := s.store.Get(ctx, id)
	if errors.Is(err, sessionstore.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// settle moves a non-terminal session to completed or failed and runs the
// one-time completion side effects.
func (s *Service) settle(ctx context.Context, txn *session.TransactionSession, succeeded bool) error {
	if succeeded {
		txn.Status = session.StatusCompleted
	} else {
		txn.Status = session.StatusFailed
	}
	if err := s.store.Update(ctx, txn); err != nil {
		return fmt.Errorf("update session %s: %w", txn.ID, err)
	}

	if !succeeded {
		s.sink.PaymentFailed()
		s.logger.WithField("session_id", txn.ID).Warn("payment failed")
		return nil
	}

	s.sink.PaymentCompleted()
	s.logger.WithField("session_id", txn.ID).Info("payment completed")

	completedAt := time.Now().UTC()
	if s.archive != nil {
		record := &interfaces.ArchivedTransaction{
			SessionID:    txn.ID,
			Status:       txn.Status.String(),
			AmountNGN:    txn.Financial.AmountNGN,
			AmountINRNet: txn.Financial.AmountINRNet,
			ExchangeRate: txn.Financial.ExchangeRate,
			RateSource:   string(txn.Financial.RateSource),
			Reference:    txn.GatewayReference,
			CompletedAt:  completedAt,
		}
		if err := s.archive.Record(ctx, record); err != nil {
			s.logger.WithError(err).Error("failed to archive completed transaction")
		}
	}
	if s.publisher != nil {
		payload := map[string]any{
			"session_id":     txn.ID,
			"amount_ngn":     txn.Financial.AmountNGN,
			"amount_inr_net": txn.Financial.AmountINRNet,
			"exchange_rate":  txn.Financial.ExchangeRate,
			"completed_at":   completedAt,
		}
		if err := s.publisher.Publish(ctx, eventTransactionCompleted, payload); err != nil {
			s.logger.WithError(err).Warn("failed to publish completion event")
		}
	}
	return nil
}

// expire marks an overdue session expired. Best effort: a store failure
// still leaves the caller with the expired answer.
func (s *Service) expire(ctx context.Context, txn *session.TransactionSession) {
	txn.Status = session.StatusExpired
	if err := s.store.Update(ctx, txn); err != nil {
		s.logger.WithError(err).WithField("session_id", txn.ID).Warn("failed to persist session expiry")
	}
}

func (s *Service) validate(req ConvertRequest) error {
	verr := apperr.NewValidation()

	if req.AmountNGN < s.cfg.MinAmountNGN || req.AmountNGN > s.cfg.MaxAmountNGN {
		verr.Add("amount_ngn", fmt.Sprintf("must be between %.0f and %.0f", s.cfg.MinAmountNGN, s.cfg.MaxAmountNGN))
	}
	if !strings.EqualFold(req.FromCurrency, "NGN") {
		verr.Add("from_currency", "only NGN is supported")
	}
	if !strings.EqualFold(req.ToCurrency, "INR") {
		verr.Add("to_currency", "only INR is supported")
	}
	if req.CustomerName == "" {
		verr.Add("customer_name", "is required")
	}
	if !emailRe.MatchString(req.Email) {
		verr.Add("email", "must be a valid email address")
	}

	switch req.ReceiveMethod {
	case ReceiveMethodBank:
		if !accountNumberRe.MatchString(req.AccountNumber) {
			verr.Add("account_number", "must be 9 to 18 digits")
		}
		if !ifscRe.MatchString(req.IFSC) {
			verr.Add("ifsc", "must match the IFSC format")
		}
	case ReceiveMethodUPI:
		if !upiRe.MatchString(req.UPIID) {
			verr.Add("upi_id", "must be a valid UPI id")
		}
	default:
		verr.Add("receive_method", "must be bank or upi")
	}

	if verr.Empty() {
		return nil
	}
	return verr
}
