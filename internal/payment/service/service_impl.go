package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/gebeyahq/gebeya/internal/catalog/domain"
	"github.com/gebeyahq/gebeya/internal/config"
	"github.com/gebeyahq/gebeya/internal/currency"
	obsmetrics "github.com/gebeyahq/gebeya/internal/observability/metrics"
	paymentdomain "github.com/gebeyahq/gebeya/internal/payment/domain"
	"github.com/gebeyahq/gebeya/internal/payment/format"
	"github.com/gebeyahq/gebeya/internal/payment/providers"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       paymentdomain.Repository
	Products   catalogdomain.Repository
	Registry   *providers.Registry
	Cfg        config.Config
	Fees       *config.FeeConfigHolder
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       paymentdomain.Repository
	products   catalogdomain.Repository
	registry   *providers.Registry
	cfg        config.Config
	fees       *config.FeeConfigHolder
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		products:   p.Products,
		registry:   p.Registry,
		cfg:        p.Cfg,
		fees:       p.Fees,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) InitiatePayment(ctx context.Context, req paymentdomain.InitiationRequest) (*paymentdomain.InitiationResponse, error) {
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" {
		return nil, paymentdomain.ErrInvalidProvider
	}
	client, err := s.registry.Client(provider)
	if err != nil {
		return nil, err
	}

	req.CustomerEmail = strings.ToLower(strings.TrimSpace(req.CustomerEmail))
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if req.ProductID == 0 || req.CustomerEmail == "" || req.CustomerName == "" {
		return nil, paymentdomain.ErrInvalidRequest
	}

	product, err := s.products.FindProductByID(ctx, s.db, req.ProductID)
	if err != nil {
		if errors.Is(err, catalogdomain.ErrProductNotFound) {
			return nil, paymentdomain.ErrProductNotFound
		}
		return nil, err
	}
	if product.Sold {
		return nil, paymentdomain.ErrProductUnavailable
	}

	// A buyer retrying checkout reuses their open order instead of creating
	// a second one.
	if existing, err := s.repo.FindPendingOrder(ctx, s.db, product.ID, req.CustomerEmail); err != nil {
		return nil, err
	} else if existing != nil && existing.PaymentURL() != "" {
		s.recordInitiated(ctx, provider, "reused")
		return &paymentdomain.InitiationResponse{
			PaymentURL:    existing.PaymentURL(),
			OrderID:       existing.ID.String(),
			TransactionID: derefString(existing.ProviderTransactionID),
		}, nil
	}

	now := time.Now().UTC()
	order, err := s.createOrder(ctx, provider, product, req, now)
	if err != nil {
		return nil, err
	}

	result, err := client.InitiatePayment(ctx, paymentdomain.InitiatePaymentParams{
		OrderID:       order.ID.String(),
		Amount:        order.Amount,
		Subject:       product.Title,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		ReturnURL:     s.cfg.PublicBaseURL + "/orders/" + order.ID.String(),
		NotifyURL:     s.cfg.PublicBaseURL + "/api/webhooks/" + provider,
	})
	if err != nil {
		s.failInitiation(ctx, order.ID, provider, err)
		return nil, err
	}

	metadata := datatypes.JSONMap{"payment_url": result.PaymentURL}
	if result.TransactionID != "" {
		metadata["provider_transaction_id"] = result.TransactionID
	}
	if err := s.repo.UpdateOrderMetadata(ctx, s.db, order.ID, metadata); err != nil {
		return nil, err
	}

	s.recordInitiated(ctx, provider, "created")
	return &paymentdomain.InitiationResponse{
		PaymentURL:    result.PaymentURL,
		OrderID:       order.ID.String(),
		TransactionID: result.TransactionID,
	}, nil
}

func (s *Service) createOrder(ctx context.Context, provider string, product *catalogdomain.Product, req paymentdomain.InitiationRequest, now time.Time) (*paymentdomain.Order, error) {
	seq, err := s.repo.NextOrderSequence(ctx, s.db, format.DayKey(now))
	if err != nil {
		return nil, err
	}

	rate := s.fees.Get().RateFor(provider)
	fee := currency.Percentage(product.Price, rate)

	order := &paymentdomain.Order{
		ID:            s.genID.Generate(),
		OrderNumber:   format.FormatOrderNumber(now, seq),
		ProductID:     product.ID,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		Amount:        product.Price,
		FeeAmount:     fee,
		NetAmount:     currency.Subtract(product.Price, fee),
		Currency:      currency.Code,
		Status:        paymentdomain.OrderStatusPending,
		Provider:      provider,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.InsertOrder(ctx, s.db, order); err != nil {
		return nil, err
	}
	return order, nil
}

// failInitiation parks the order in failed when the provider never produced a
// checkout URL. Losing the conditional update means a webhook beat us; that
// outcome wins.
func (s *Service) failInitiation(ctx context.Context, orderID snowflake.ID, provider string, cause error) {
	_, err := s.repo.UpdateStatusIfCurrentIs(ctx, s.db, orderID,
		paymentdomain.OrderStatusPending, paymentdomain.OrderStatusFailed)
	if err != nil {
		s.log.Error("failed to mark order failed after initiation error",
			zap.String("order_id", orderID.String()),
			zap.Error(err),
		)
	}
	s.recordInitiated(ctx, provider, "failed")
	s.log.Warn("payment initiation failed",
		zap.String("order_id", orderID.String()),
		zap.String("provider", provider),
		zap.Error(cause),
	)
}

func (s *Service) ReconcileOrder(ctx context.Context, orderID snowflake.ID) (*paymentdomain.Order, error) {
	order, err := s.repo.FindOrderByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != paymentdomain.OrderStatusPending {
		return order, nil
	}

	client, err := s.registry.Client(order.Provider)
	if err != nil {
		return nil, err
	}
	result, err := client.QueryPayment(ctx, order.ID.String())
	if err != nil {
		return nil, err
	}

	switch result.Status {
	case paymentdomain.WebhookStatusSuccess:
		applied := &paymentdomain.WebhookResult{
			OrderID:               order.ID,
			ProviderTransactionID: result.TransactionID,
			Status:                paymentdomain.WebhookStatusSuccess,
		}
		if result.PaidAt != nil {
			applied.PaidAt = *result.PaidAt
		}
		if err := s.ApplyWebhookResult(ctx, order.Provider, applied); err != nil &&
			!errors.Is(err, paymentdomain.ErrAlreadyProcessed) {
			return nil, err
		}
	case paymentdomain.WebhookStatusFailure:
		if _, err := s.repo.UpdateStatusIfCurrentIs(ctx, s.db, order.ID,
			paymentdomain.OrderStatusPending, paymentdomain.OrderStatusFailed); err != nil {
			return nil, err
		}
	}

	return s.repo.FindOrderByID(ctx, s.db, orderID)
}

// RefundOrder marks a settled order refunded. The money movement happens at
// the provider's dashboard; this records the outcome and keeps the completed
// audit fields intact.
func (s *Service) RefundOrder(ctx context.Context, orderID snowflake.ID) (*paymentdomain.Order, error) {
	order, err := s.repo.FindOrderByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == paymentdomain.OrderStatusRefunded {
		return order, nil
	}
	if !paymentdomain.CanTransition(order.Status, paymentdomain.OrderStatusRefunded) {
		return nil, paymentdomain.ErrInvalidTransition
	}

	won, err := s.repo.UpdateStatusIfCurrentIs(ctx, s.db, order.ID,
		paymentdomain.OrderStatusCompleted, paymentdomain.OrderStatusRefunded)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, paymentdomain.ErrAlreadyProcessed
	}
	return s.repo.FindOrderByID(ctx, s.db, orderID)
}

// ApplyWebhookResult moves the order state machine for one verified event.
// Duplicate deliveries surface as ErrAlreadyProcessed; deliveries that
// contradict a terminal state surface as ErrInvalidTransition. Both are
// acknowledged upstream.
func (s *Service) ApplyWebhookResult(ctx context.Context, provider string, result *paymentdomain.WebhookResult) error {
	if result == nil {
		return paymentdomain.ErrInvalidPayload
	}
	provider = strings.ToLower(strings.TrimSpace(provider))

	order, err := s.repo.FindOrderByID(ctx, s.db, result.OrderID)
	if err != nil {
		return err
	}
	if order.Provider != provider {
		s.log.Warn("webhook provider does not match order",
			zap.String("order_id", order.ID.String()),
			zap.String("order_provider", order.Provider),
			zap.String("webhook_provider", provider),
		)
		return paymentdomain.ErrInvalidTransition
	}

	switch result.Status {
	case paymentdomain.WebhookStatusSuccess:
		return s.settleOrder(ctx, order, result)
	case paymentdomain.WebhookStatusFailure:
		return s.failOrder(ctx, order)
	default:
		return nil
	}
}

func (s *Service) settleOrder(ctx context.Context, order *paymentdomain.Order, result *paymentdomain.WebhookResult) error {
	if order.Status == paymentdomain.OrderStatusCompleted {
		return paymentdomain.ErrAlreadyProcessed
	}
	if !paymentdomain.CanTransition(order.Status, paymentdomain.OrderStatusCompleted) {
		return paymentdomain.ErrInvalidTransition
	}

	settled := result.SettledAmount
	if settled == 0 {
		settled = order.Amount
	}
	if settled != order.Amount {
		s.log.Warn("settled amount differs from order amount",
			zap.String("order_id", order.ID.String()),
			zap.String("expected", currency.Format(order.Amount)),
			zap.String("settled", currency.Format(settled)),
		)
	}
	paidAt := result.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}

	// The settle and the product flip commit in one transaction.
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		won, err := s.repo.SettleOrderIfPending(ctx, tx, order.ID,
			result.ProviderTransactionID, settled, paidAt)
		if err != nil {
			return err
		}
		if !won {
			return paymentdomain.ErrAlreadyProcessed
		}
		sold, err := s.products.MarkProductSold(ctx, tx, order.ProductID)
		if err != nil {
			return err
		}
		if !sold {
			// Another order already bought this product. The buyer's money
			// moved, so the settle stands; the oversell goes to manual
			// reconciliation.
			if s.obsMetrics != nil {
				s.obsMetrics.RecordWebhookAnomaly(ctx, order.Provider, "product_flip_lost")
			}
			s.log.Error("settled order for an already-sold product",
				zap.String("order_id", order.ID.String()),
				zap.String("product_id", order.ProductID.String()),
				zap.String("provider", order.Provider),
			)
		}
		return nil
	})
}

func (s *Service) failOrder(ctx context.Context, order *paymentdomain.Order) error {
	if order.Status == paymentdomain.OrderStatusFailed {
		return paymentdomain.ErrAlreadyProcessed
	}
	if !paymentdomain.CanTransition(order.Status, paymentdomain.OrderStatusFailed) {
		return paymentdomain.ErrInvalidTransition
	}

	won, err := s.repo.UpdateStatusIfCurrentIs(ctx, s.db, order.ID,
		paymentdomain.OrderStatusPending, paymentdomain.OrderStatusFailed)
	if err != nil {
		return err
	}
	if !won {
		return paymentdomain.ErrAlreadyProcessed
	}
	return nil
}

func (s *Service) recordInitiated(ctx context.Context, provider, outcome string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordPaymentInitiated(ctx, provider, outcome)
	}
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
