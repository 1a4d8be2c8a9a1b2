package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusRefunded  OrderStatus = "refunded"
)

// Terminal reports whether webhook delivery may no longer move the order.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFailed || s == OrderStatusRefunded
}

// CanTransition encodes the monotonic order lifecycle: pending may settle or
// fail, completed may only be refunded, failed and refunded never move again.
func CanTransition(from, to OrderStatus) bool {
	switch from {
	case OrderStatusPending:
		return to == OrderStatusCompleted || to == OrderStatusFailed
	case OrderStatusCompleted:
		return to == OrderStatusRefunded
	default:
		return false
	}
}

// Order is the financial audit record for a single checkout. Rows are never
// deleted; status only moves along CanTransition.
type Order struct {
	ID                    snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrderNumber           string            `json:"order_number" gorm:"type:text;not null;uniqueIndex"`
	ProductID             snowflake.ID      `json:"product_id" gorm:"not null;index"`
	CustomerEmail         string            `json:"customer_email" gorm:"type:text;not null;index"`
	CustomerName          string            `json:"customer_name" gorm:"type:text;not null"`
	CustomerPhone         string            `json:"customer_phone" gorm:"type:text;not null"`
	Amount                int64             `json:"amount" gorm:"not null"`
	FeeAmount             int64             `json:"fee_amount" gorm:"not null;default:0"`
	NetAmount             int64             `json:"net_amount" gorm:"not null;default:0"`
	Currency              string            `json:"currency" gorm:"type:text;not null"`
	Status                OrderStatus       `json:"status" gorm:"type:text;not null;index"`
	Provider              string            `json:"provider" gorm:"column:payment_provider;type:text;not null"`
	ProviderTransactionID *string           `json:"provider_transaction_id" gorm:"type:text"`
	SettledAmount         int64             `json:"settled_amount" gorm:"not null;default:0"`
	Metadata              datatypes.JSONMap `json:"metadata"`
	PaidAt                *time.Time        `json:"paid_at"`
	CreatedAt             time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt             time.Time         `json:"updated_at" gorm:"not null"`
}

func (Order) TableName() string { return "orders" }

// PaymentURL returns the checkout URL recorded at initiation time, if any.
func (o *Order) PaymentURL() string {
	if o == nil || o.Metadata == nil {
		return ""
	}
	url, _ := o.Metadata["payment_url"].(string)
	return url
}

type WebhookStatus string

const (
	WebhookStatusSuccess WebhookStatus = "success"
	WebhookStatusFailure WebhookStatus = "failure"
	WebhookStatusPending WebhookStatus = "pending"
)

// WebhookResult is the provider-agnostic shape every client normalizes its
// native webhook payload into. It lives only between parse and apply.
type WebhookResult struct {
	OrderID               snowflake.ID
	ProviderTransactionID string
	Status                WebhookStatus
	SettledAmount         int64
	PaidAt                time.Time
	RawPayload            []byte
}

// InitiatePaymentParams is the provider-facing initiation request.
type InitiatePaymentParams struct {
	OrderID       string
	Amount        int64
	Subject       string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	ReturnURL     string
	NotifyURL     string
}

// InitiationResult carries the redirect URL returned by the provider.
type InitiationResult struct {
	PaymentURL    string
	TransactionID string
}

// QueryResult is the normalized answer to a payment status query.
type QueryResult struct {
	Status        WebhookStatus
	TransactionID string
	PaidAt        *time.Time
}
