package chapa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	"github.com/gebeyahq/gebeya/internal/currency"
	"github.com/gebeyahq/gebeya/internal/payment/domain"
	"github.com/gebeyahq/gebeya/internal/payment/providers"
	"github.com/gebeyahq/gebeya/internal/payment/signature"
)

const (
	ProviderName   = "chapa"
	defaultBaseURL = "https://api.chapa.co/v1"
)

// Webhook deliveries arrive with either header depending on Chapa's
// notification channel; both carry the same lowercase hex HMAC.
var signatureHeaders = []string{"Chapa-Signature", "X-Chapa-Signature"}

type Config struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	Timeout       time.Duration
	RetryInterval time.Duration
	MaxAttempts   uint
}

type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = providers.DefaultRetryInterval
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = providers.DefaultMaxAttempts
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) Provider() string { return ProviderName }

type initializeRequest struct {
	Amount        string               `json:"amount"`
	Currency      string               `json:"currency"`
	Email         string               `json:"email"`
	FirstName     string               `json:"first_name"`
	LastName      string               `json:"last_name"`
	PhoneNumber   string               `json:"phone_number"`
	TxRef         string               `json:"tx_ref"`
	CallbackURL   string               `json:"callback_url"`
	ReturnURL     string               `json:"return_url"`
	Customization initializeCustomizer `json:"customization"`
}

type initializeCustomizer struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type apiEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializeData struct {
	CheckoutURL string `json:"checkout_url"`
	TxRef       string `json:"tx_ref"`
}

type verifyData struct {
	Status    string `json:"status"`
	RefID     string `json:"ref_id"`
	CreatedAt string `json:"created_at"`
}

func (c *Client) InitiatePayment(ctx context.Context, params domain.InitiatePaymentParams) (*domain.InitiationResult, error) {
	if strings.TrimSpace(c.cfg.SecretKey) == "" {
		return nil, fmt.Errorf("%w: CHAPA_SECRET_KEY is not set", domain.ErrConfiguration)
	}

	firstName, lastName := splitCustomerName(params.CustomerName)
	body := initializeRequest{
		Amount:      currency.MajorUnits(params.Amount),
		Currency:    currency.Code,
		Email:       params.CustomerEmail,
		FirstName:   firstName,
		LastName:    lastName,
		PhoneNumber: params.CustomerPhone,
		TxRef:       params.OrderID,
		CallbackURL: params.NotifyURL,
		ReturnURL:   params.ReturnURL,
		Customization: initializeCustomizer{
			Title:       params.Subject,
			Description: "Payment for " + params.Subject,
		},
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	return providers.RetryTransport(ctx, c.cfg.RetryInterval, c.cfg.MaxAttempts,
		func() (*domain.InitiationResult, error) {
			envelope, err := c.post(ctx, c.cfg.BaseURL+"/transaction/initialize", encoded)
			if err != nil {
				return nil, err
			}

			var data initializeData
			if err := json.Unmarshal(envelope.Data, &data); err != nil || data.CheckoutURL == "" {
				return nil, backoff.Permanent(rejectionError(envelope.Message))
			}
			transactionID := data.TxRef
			if transactionID == "" {
				transactionID = params.OrderID
			}
			return &domain.InitiationResult{
				PaymentURL:    data.CheckoutURL,
				TransactionID: transactionID,
			}, nil
		})
}

func (c *Client) QueryPayment(ctx context.Context, orderID string) (*domain.QueryResult, error) {
	if strings.TrimSpace(c.cfg.SecretKey) == "" {
		return nil, fmt.Errorf("%w: CHAPA_SECRET_KEY is not set", domain.ErrConfiguration)
	}

	return providers.RetryTransport(ctx, c.cfg.RetryInterval, c.cfg.MaxAttempts,
		func() (*domain.QueryResult, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet,
				c.cfg.BaseURL+"/transaction/verify/"+orderID, nil)
			if err != nil {
				return nil, backoff.Permanent(fmt.Errorf("%w: %v", domain.ErrTransport, err))
			}
			req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)

			envelope, err := c.do(req)
			if err != nil {
				return nil, err
			}

			var data verifyData
			if err := json.Unmarshal(envelope.Data, &data); err != nil {
				return nil, backoff.Permanent(rejectionError(envelope.Message))
			}

			result := &domain.QueryResult{
				Status:        mapStatus(data.Status),
				TransactionID: data.RefID,
			}
			if result.TransactionID == "" {
				result.TransactionID = orderID
			}
			if paidAt, err := time.Parse(time.RFC3339, data.CreatedAt); err == nil {
				result.PaidAt = &paidAt
			}
			return result, nil
		})
}

// Verify authenticates an inbound webhook delivery against the raw body.
func (c *Client) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if strings.TrimSpace(c.cfg.WebhookSecret) == "" {
		return fmt.Errorf("%w: CHAPA_WEBHOOK_SECRET is not set", domain.ErrConfiguration)
	}

	var received string
	for _, name := range signatureHeaders {
		if value := strings.TrimSpace(headers.Get(name)); value != "" {
			received = value
			break
		}
	}
	if received == "" {
		return domain.ErrMissingSignature
	}
	if !signature.Verify(payload, received, c.cfg.WebhookSecret) {
		return domain.ErrInvalidSignature
	}
	return nil
}

type webhookPayload struct {
	TrxRef string `json:"trx_ref"`
	RefID  string `json:"ref_id"`
	Status string `json:"status"`
}

// Parse normalizes the Chapa webhook body {trx_ref, ref_id, status}.
// trx_ref is the order id the initiation used as tx_ref.
func (c *Client) Parse(ctx context.Context, payload []byte) (*domain.WebhookResult, error) {
	var body webhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	trxRef := strings.TrimSpace(body.TrxRef)
	if trxRef == "" {
		return nil, domain.ErrMissingOrderRef
	}
	orderID, err := snowflake.ParseString(trxRef)
	if err != nil {
		return nil, domain.ErrMissingOrderRef
	}

	transactionID := strings.TrimSpace(body.RefID)
	if transactionID == "" {
		transactionID = ProviderName
	}

	return &domain.WebhookResult{
		OrderID:               orderID,
		ProviderTransactionID: transactionID,
		Status:                mapStatus(body.Status),
		RawPayload:            payload,
	}, nil
}

func (c *Client) post(ctx context.Context, url string, body []byte) (*apiEnvelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: %v", domain.ErrTransport, err))
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*apiEnvelope, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrTransport, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: provider returned %d", domain.ErrTransport, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest || !strings.EqualFold(envelope.Status, "success") {
		return nil, backoff.Permanent(rejectionError(envelope.Message))
	}
	return &envelope, nil
}

func rejectionError(message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		message = "payment rejected"
	}
	return fmt.Errorf("%w: %s", domain.ErrProviderRejected, message)
}

func mapStatus(raw string) domain.WebhookStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success", "successful":
		return domain.WebhookStatusSuccess
	case "failed", "failure":
		return domain.WebhookStatusFailure
	default:
		return domain.WebhookStatusPending
	}
}

func splitCustomerName(fullName string) (string, string) {
	parts := strings.Fields(strings.TrimSpace(fullName))
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], parts[0]
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
