package payment

import (
	"github.com/gebeyahq/gebeya/internal/config"
	"github.com/gebeyahq/gebeya/internal/payment/providers"
	"github.com/gebeyahq/gebeya/internal/payment/providers/chapa"
	"github.com/gebeyahq/gebeya/internal/payment/providers/telebirr"
	"github.com/gebeyahq/gebeya/internal/payment/repository"
	paymentservice "github.com/gebeyahq/gebeya/internal/payment/service"
	"github.com/gebeyahq/gebeya/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config) *providers.Registry {
		return providers.NewRegistry(
			chapa.New(chapa.Config{
				SecretKey:     cfg.ChapaSecretKey,
				WebhookSecret: cfg.ChapaWebhookSecret,
				BaseURL:       cfg.ChapaBaseURL,
			}),
			telebirr.New(telebirr.Config{
				AppID:         cfg.TelebirrAppID,
				AppKey:        cfg.TelebirrAppKey,
				MerchantCode:  cfg.TelebirrMerchantCode,
				APIURL:        cfg.TelebirrAPIURL,
				WebhookSecret: cfg.TelebirrWebhookSecret,
			}),
		)
	}),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)
