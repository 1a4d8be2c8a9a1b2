package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	obsmetrics "github.com/gebeyahq/gebeya/internal/observability/metrics"
	paymentdomain "github.com/gebeyahq/gebeya/internal/payment/domain"
	"github.com/gebeyahq/gebeya/internal/payment/providers"
	paymentservice "github.com/gebeyahq/gebeya/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	PaymentSvc *paymentservice.Service
	Registry   *providers.Registry
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	paymentSvc *paymentservice.Service
	registry   *providers.Registry
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.WebhookIngestor {
	return &Service{
		log:        p.Log.Named("payment.webhook"),
		paymentSvc: p.PaymentSvc,
		registry:   p.Registry,
		obsMetrics: p.ObsMetrics,
	}
}

// IngestWebhook authenticates one provider delivery and applies it to the
// order it references. Signature failures propagate so the transport can
// answer 401; every verified delivery is acknowledged, including duplicates
// and events the state machine refuses.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	client, err := s.registry.Client(provider)
	if err != nil {
		return err
	}

	if err := client.Verify(ctx, payload, headers); err != nil {
		return err
	}
	if !json.Valid(payload) {
		s.recordAnomaly(ctx, provider, "invalid_payload")
		s.log.Warn("verified webhook body is not json", zap.String("provider", provider))
		return nil
	}

	result, err := client.Parse(ctx, payload)
	if err != nil {
		// Verified but unusable. Acknowledge so the provider stops
		// redelivering a payload that will never parse.
		s.recordAnomaly(ctx, provider, "unparseable")
		s.log.Warn("verified webhook could not be parsed",
			zap.String("provider", provider),
			zap.Error(err),
		)
		return nil
	}

	s.recordEvent(ctx, provider, string(result.Status))

	if err := s.paymentSvc.ApplyWebhookResult(ctx, provider, result); err != nil {
		switch {
		case errors.Is(err, paymentdomain.ErrAlreadyProcessed):
			s.log.Info("duplicate webhook delivery acknowledged",
				zap.String("provider", provider),
				zap.String("order_id", result.OrderID.String()),
			)
			return nil
		case errors.Is(err, paymentdomain.ErrOrderNotFound):
			s.recordAnomaly(ctx, provider, "unknown_order")
			s.log.Warn("webhook references unknown order",
				zap.String("provider", provider),
				zap.String("order_id", result.OrderID.String()),
			)
			return nil
		case errors.Is(err, paymentdomain.ErrInvalidTransition):
			s.recordAnomaly(ctx, provider, "invalid_transition")
			s.log.Error("webhook contradicts terminal order state",
				zap.String("provider", provider),
				zap.String("order_id", result.OrderID.String()),
				zap.String("status", string(result.Status)),
			)
			return nil
		default:
			// Still acknowledged: redelivery would hit the same fault, and
			// the anomaly counter is the recovery path for these.
			s.recordAnomaly(ctx, provider, "apply_failed")
			s.log.Error("webhook apply failed",
				zap.String("provider", provider),
				zap.String("order_id", result.OrderID.String()),
				zap.Error(err),
			)
			return nil
		}
	}
	return nil
}

func (s *Service) recordEvent(ctx context.Context, provider, status string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordWebhookEvent(ctx, provider, status)
	}
}

func (s *Service) recordAnomaly(ctx context.Context, provider, reason string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordWebhookAnomaly(ctx, provider, reason)
	}
}
