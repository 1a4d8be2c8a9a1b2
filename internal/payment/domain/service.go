package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Client is implemented once per payment provider. Initiate and Query talk to
// the provider over HTTPS; Verify and Parse handle inbound webhooks.
type Client interface {
	Provider() string
	InitiatePayment(ctx context.Context, params InitiatePaymentParams) (*InitiationResult, error)
	QueryPayment(ctx context.Context, orderID string) (*QueryResult, error)
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*WebhookResult, error)
}

// Repository is the persistence collaborator for orders. Methods take the DB
// handle so callers can run several of them inside one transaction.
type Repository interface {
	FindOrderByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindPendingOrder(ctx context.Context, db *gorm.DB, productID snowflake.ID, customerEmail string) (*Order, error)
	InsertOrder(ctx context.Context, db *gorm.DB, order *Order) error
	UpdateOrderMetadata(ctx context.Context, db *gorm.DB, id snowflake.ID, metadata datatypes.JSONMap) error

	// UpdateStatusIfCurrentIs flips the order status only when the current
	// status still matches expected. The boolean result reports whether this
	// caller won the transition; losing is normal under duplicate delivery.
	UpdateStatusIfCurrentIs(ctx context.Context, db *gorm.DB, id snowflake.ID, expected, next OrderStatus) (bool, error)

	// SettleOrderIfPending is the completed-side conditional update: it also
	// records the provider transaction id, settled amount and paid time.
	SettleOrderIfPending(ctx context.Context, db *gorm.DB, id snowflake.ID, providerTxID string, settledAmount int64, paidAt time.Time) (bool, error)

	NextOrderSequence(ctx context.Context, db *gorm.DB, day string) (int64, error)
}

// Service is the order-facing API consumed by the HTTP layer.
type Service interface {
	InitiatePayment(ctx context.Context, req InitiationRequest) (*InitiationResponse, error)
	ReconcileOrder(ctx context.Context, orderID snowflake.ID) (*Order, error)
	RefundOrder(ctx context.Context, orderID snowflake.ID) (*Order, error)
	ApplyWebhookResult(ctx context.Context, provider string, result *WebhookResult) error
}

// InitiationRequest is the caller-facing initiation input.
type InitiationRequest struct {
	ProductID     snowflake.ID
	CustomerEmail string
	CustomerName  string
	CustomerPhone string
	Provider      string
}

// InitiationResponse is returned to the storefront caller.
type InitiationResponse struct {
	PaymentURL    string `json:"paymentUrl"`
	OrderID       string `json:"orderId"`
	TransactionID string `json:"transactionId,omitempty"`
}

// WebhookIngestor authenticates and applies one inbound provider delivery.
type WebhookIngestor interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}
