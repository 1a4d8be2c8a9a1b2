package telebirr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	"github.com/gebeyahq/gebeya/internal/currency"
	"github.com/gebeyahq/gebeya/internal/payment/domain"
	"github.com/gebeyahq/gebeya/internal/payment/providers"
	"github.com/gebeyahq/gebeya/internal/payment/signature"
	"github.com/google/uuid"
	"github.com/spf13/cast"
)

const ProviderName = "telebirr"

var signatureHeaders = []string{"X-Telebirr-Signature", "Telebirr-Signature"}

type Config struct {
	AppID         string
	AppKey        string
	MerchantCode  string
	APIURL        string
	WebhookSecret string
	Timeout       time.Duration
	RetryInterval time.Duration
	MaxAttempts   uint

	// Now is injectable for deterministic request signing in tests.
	Now func() time.Time
}

type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Client {
	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = providers.DefaultRetryInterval
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = providers.DefaultMaxAttempts
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) Provider() string { return ProviderName }

func (c *Client) configured() error {
	if strings.TrimSpace(c.cfg.AppID) == "" ||
		strings.TrimSpace(c.cfg.AppKey) == "" ||
		strings.TrimSpace(c.cfg.MerchantCode) == "" ||
		c.cfg.APIURL == "" {
		return fmt.Errorf("%w: telebirr credentials are not set", domain.ErrConfiguration)
	}
	return nil
}

type apiEnvelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type initiateData struct {
	ToPayURL      string `json:"toPayUrl"`
	TransactionID string `json:"transactionId"`
}

type queryData struct {
	TradeStatus   string `json:"tradeStatus"`
	TransactionID string `json:"transactionId"`
	PaidAt        string `json:"paidAt"`
}

func (c *Client) InitiatePayment(ctx context.Context, params domain.InitiatePaymentParams) (*domain.InitiationResult, error) {
	if err := c.configured(); err != nil {
		return nil, err
	}

	now := c.cfg.Now().UnixMilli()
	request := map[string]string{
		"appId":          c.cfg.AppID,
		"merchantCode":   c.cfg.MerchantCode,
		"transactionId":  fmt.Sprintf("GBY_%d", now),
		"amount":         currency.MajorUnits(params.Amount),
		"subject":        params.Subject,
		"outTradeNo":     params.OrderID,
		"notifyUrl":      params.NotifyURL,
		"returnUrl":      params.ReturnURL,
		"timeoutExpress": "30m",
		"nonce":          strings.ReplaceAll(uuid.NewString(), "-", ""),
		"timestamp":      strconv.FormatInt(now, 10),
	}

	return providers.RetryTransport(ctx, c.cfg.RetryInterval, c.cfg.MaxAttempts,
		func() (*domain.InitiationResult, error) {
			envelope, err := c.post(ctx, "/payment/initiate", request)
			if err != nil {
				return nil, err
			}

			var data initiateData
			if err := json.Unmarshal(envelope.Data, &data); err != nil || data.ToPayURL == "" {
				return nil, backoff.Permanent(rejectionError(envelope.Msg))
			}
			return &domain.InitiationResult{
				PaymentURL:    data.ToPayURL,
				TransactionID: data.TransactionID,
			}, nil
		})
}

func (c *Client) QueryPayment(ctx context.Context, orderID string) (*domain.QueryResult, error) {
	if err := c.configured(); err != nil {
		return nil, err
	}

	now := c.cfg.Now().UnixMilli()
	request := map[string]string{
		"appId":        c.cfg.AppID,
		"merchantCode": c.cfg.MerchantCode,
		"outTradeNo":   orderID,
		"nonce":        strings.ReplaceAll(uuid.NewString(), "-", ""),
		"timestamp":    strconv.FormatInt(now, 10),
	}

	return providers.RetryTransport(ctx, c.cfg.RetryInterval, c.cfg.MaxAttempts,
		func() (*domain.QueryResult, error) {
			envelope, err := c.post(ctx, "/payment/query", request)
			if err != nil {
				return nil, err
			}

			var data queryData
			if err := json.Unmarshal(envelope.Data, &data); err != nil {
				return nil, backoff.Permanent(rejectionError(envelope.Msg))
			}

			result := &domain.QueryResult{
				Status:        mapTradeStatus(data.TradeStatus),
				TransactionID: data.TransactionID,
			}
			if paidAt, err := time.Parse(time.RFC3339, data.PaidAt); err == nil {
				result.PaidAt = &paidAt
			}
			return result, nil
		})
}

// Verify authenticates an inbound webhook against the raw body. Telebirr
// sends uppercase hex; the codec compares case-insensitively.
func (c *Client) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if strings.TrimSpace(c.cfg.WebhookSecret) == "" {
		return fmt.Errorf("%w: TELEBIRR_WEBHOOK_SECRET is not set", domain.ErrConfiguration)
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
	OutTradeNo    string `json:"outTradeNo"`
	TradeStatus   string `json:"tradeStatus"`
	TransactionID string `json:"transactionId"`
	Amount        any    `json:"amount"`
	PaidAt        string `json:"paidAt"`
}

// Parse normalizes the Telebirr webhook body. The amount field arrives as a
// major-unit string or number depending on the notification channel.
func (c *Client) Parse(ctx context.Context, payload []byte) (*domain.WebhookResult, error) {
	var body webhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	outTradeNo := strings.TrimSpace(body.OutTradeNo)
	if outTradeNo == "" {
		return nil, domain.ErrMissingOrderRef
	}
	orderID, err := snowflake.ParseString(outTradeNo)
	if err != nil {
		return nil, domain.ErrMissingOrderRef
	}

	transactionID := strings.TrimSpace(body.TransactionID)
	if transactionID == "" {
		transactionID = ProviderName
	}

	result := &domain.WebhookResult{
		OrderID:               orderID,
		ProviderTransactionID: transactionID,
		Status:                mapTradeStatus(body.TradeStatus),
		RawPayload:            payload,
	}
	if raw := strings.TrimSpace(cast.ToString(body.Amount)); raw != "" {
		if settled, err := currency.Parse(raw); err == nil {
			result.SettledAmount = settled
		}
	}
	if paidAt, err := time.Parse(time.RFC3339, strings.TrimSpace(body.PaidAt)); err == nil {
		result.PaidAt = paidAt
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, path string, request map[string]string) (*apiEnvelope, error) {
	signed := make(map[string]string, len(request)+1)
	for key, value := range request {
		signed[key] = value
	}
	signed["sign"] = signature.Sign(request, c.cfg.AppKey)

	encoded, err := json.Marshal(signed)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: %v", domain.ErrTransport, err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: provider returned %d", domain.ErrTransport, resp.StatusCode)
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrTransport, err)
	}
	if envelope.Code != "0" {
		return nil, backoff.Permanent(rejectionError(envelope.Msg))
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

func mapTradeStatus(raw string) domain.WebhookStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SUCCESS":
		return domain.WebhookStatusSuccess
	case "FAILED", "CLOSED":
		return domain.WebhookStatusFailure
	default:
		return domain.WebhookStatusPending
	}
}
