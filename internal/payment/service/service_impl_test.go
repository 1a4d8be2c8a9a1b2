package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogrepo "github.com/gebeyahq/gebeya/internal/catalog/repository"
	"github.com/gebeyahq/gebeya/internal/config"
	paymentdomain "github.com/gebeyahq/gebeya/internal/payment/domain"
	"github.com/gebeyahq/gebeya/internal/payment/providers"
	"github.com/gebeyahq/gebeya/internal/payment/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

type stubClient struct {
	name           string
	initiateResult *paymentdomain.InitiationResult
	initiateErr    error
	queryResult    *paymentdomain.QueryResult
	queryErr       error
	initiateCalls  int
}

func (s *stubClient) Provider() string { return s.name }

func (s *stubClient) InitiatePayment(ctx context.Context, params paymentdomain.InitiatePaymentParams) (*paymentdomain.InitiationResult, error) {
	s.initiateCalls++
	if s.initiateErr != nil {
		return nil, s.initiateErr
	}
	return s.initiateResult, nil
}

func (s *stubClient) QueryPayment(ctx context.Context, orderID string) (*paymentdomain.QueryResult, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.queryResult, nil
}

func (s *stubClient) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	return nil
}

func (s *stubClient) Parse(ctx context.Context, payload []byte) (*paymentdomain.WebhookResult, error) {
	return nil, paymentdomain.ErrInvalidPayload
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.Exec(`CREATE TABLE products (
		id BIGINT PRIMARY KEY,
		creator_id BIGINT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		price BIGINT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'ETB',
		sold BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`).Error)

	require.NoError(t, db.Exec(`CREATE TABLE orders (
		id BIGINT PRIMARY KEY,
		order_number TEXT NOT NULL UNIQUE,
		product_id BIGINT NOT NULL,
		customer_email TEXT NOT NULL,
		customer_name TEXT NOT NULL,
		customer_phone TEXT NOT NULL DEFAULT '',
		amount BIGINT NOT NULL,
		fee_amount BIGINT NOT NULL DEFAULT 0,
		net_amount BIGINT NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT 'ETB',
		status TEXT NOT NULL DEFAULT 'pending',
		payment_provider TEXT NOT NULL,
		provider_transaction_id TEXT,
		settled_amount BIGINT NOT NULL DEFAULT 0,
		metadata TEXT,
		paid_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`).Error)

	require.NoError(t, db.Exec(`CREATE TABLE order_sequences (
		day TEXT PRIMARY KEY,
		seq BIGINT NOT NULL DEFAULT 0
	)`).Error)

	return db
}

func newTestService(t *testing.T, db *gorm.DB, clients ...paymentdomain.Client) *Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return &Service{
		db:       db,
		log:      zaptest.NewLogger(t),
		genID:    node,
		repo:     repository.Provide(),
		products: catalogrepo.Provide(),
		registry: providers.NewRegistry(clients...),
		cfg:      config.Config{PublicBaseURL: "https://shop.test"},
		fees: config.NewStaticFeeConfigHolder(config.FeeConfig{
			Rates: map[string]float64{"telebirr": 0.025, "chapa": 0.035},
		}),
	}
}

func seedProduct(t *testing.T, db *gorm.DB, id snowflake.ID, price int64, sold bool) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, db.Exec(
		`INSERT INTO products (id, creator_id, title, description, price, currency, sold, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 'ETB', ?, ?, ?)`,
		id, id, "Design Templates Bundle", "", price, sold, now, now,
	).Error)
}

func TestInitiatePayment(t *testing.T) {
	db := openTestDB(t)
	client := &stubClient{
		name:           "telebirr",
		initiateResult: &paymentdomain.InitiationResult{PaymentURL: "https://pay.telebirr.et/t/xyz", TransactionID: "TB-1"},
	}
	svc := newTestService(t, db, client)

	productID := svc.genID.Generate()
	seedProduct(t, db, productID, 100000, false)

	resp, err := svc.InitiatePayment(context.Background(), paymentdomain.InitiationRequest{
		ProductID:     productID,
		CustomerEmail: "abebe@example.com",
		CustomerName:  "Abebe Bikila",
		Provider:      "telebirr",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.telebirr.et/t/xyz", resp.PaymentURL)
	assert.Equal(t, "TB-1", resp.TransactionID)

	orderID, err := snowflake.ParseString(resp.OrderID)
	require.NoError(t, err)
	order, err := svc.repo.FindOrderByID(context.Background(), db, orderID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OrderStatusPending, order.Status)
	assert.Equal(t, int64(100000), order.Amount)
	assert.Equal(t, int64(2500), order.FeeAmount)
	assert.Equal(t, int64(97500), order.NetAmount)
	assert.Equal(t, "telebirr", order.Provider)
	assert.True(t, strings.HasPrefix(order.OrderNumber, "ORD-"))
	assert.Equal(t, "https://pay.telebirr.et/t/xyz", order.PaymentURL())
}

func TestInitiatePaymentReusesPendingOrder(t *testing.T) {
	db := openTestDB(t)
	client := &stubClient{
		name:           "chapa",
		initiateResult: &paymentdomain.InitiationResult{PaymentURL: "https://checkout.chapa.co/pay/abc"},
	}
	svc := newTestService(t, db, client)

	productID := svc.genID.Generate()
	seedProduct(t, db, productID, 50000, false)

	req := paymentdomain.InitiationRequest{
		ProductID:     productID,
		CustomerEmail: "abebe@example.com",
		CustomerName:  "Abebe Bikila",
		Provider:      "chapa",
	}
	first, err := svc.InitiatePayment(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.InitiatePayment(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, first.PaymentURL, second.PaymentURL)
	assert.Equal(t, 1, client.initiateCalls)

	var count int64
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM orders`).Scan(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestInitiatePaymentProviderFailureMarksOrderFailed(t *testing.T) {
	db := openTestDB(t)
	client := &stubClient{
		name:        "telebirr",
		initiateErr: paymentdomain.ErrProviderRejected,
	}
	svc := newTestService(t, db, client)

	productID := svc.genID.Generate()
	seedProduct(t, db, productID, 100000, false)

	_, err := svc.InitiatePayment(context.Background(), paymentdomain.InitiationRequest{
		ProductID:     productID,
		CustomerEmail: "abebe@example.com",
		CustomerName:  "Abebe Bikila",
		Provider:      "telebirr",
	})
	assert.ErrorIs(t, err, paymentdomain.ErrProviderRejected)

	var status string
	require.NoError(t, db.Raw(`SELECT status FROM orders LIMIT 1`).Scan(&status).Error)
	assert.Equal(t, string(paymentdomain.OrderStatusFailed), status)
}

func TestInitiatePaymentValidation(t *testing.T) {
	db := openTestDB(t)
	client := &stubClient{name: "telebirr", initiateResult: &paymentdomain.InitiationResult{PaymentURL: "u"}}
	svc := newTestService(t, db, client)

	productID := svc.genID.Generate()
	seedProduct(t, db, productID, 1000, false)
	soldID := svc.genID.Generate()
	seedProduct(t, db, soldID, 1000, true)

	_, err := svc.InitiatePayment(context.Background(), paymentdomain.InitiationRequest{
		ProductID: productID, CustomerEmail: "a@b.c", CustomerName: "A", Provider: "",
	})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidProvider)

	_, err = svc.InitiatePayment(context.Background(), paymentdomain.InitiationRequest{
		ProductID: productID, CustomerEmail: "a@b.c", CustomerName: "A", Provider: "paypal",
	})
	assert.ErrorIs(t, err, paymentdomain.ErrProviderNotFound)

	_, err = svc.InitiatePayment(context.Background(), paymentdomain.InitiationRequest{
		ProductID: productID, CustomerEmail: "", CustomerName: "A", Provider: "telebirr",
	})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidRequest)

	_, err = svc.InitiatePayment(context.Background(), paymentdomain.InitiationRequest{
		ProductID: svc.genID.Generate(), CustomerEmail: "a@b.c", CustomerName: "A", Provider: "telebirr",
	})
	assert.ErrorIs(t, err, paymentdomain.ErrProductNotFound)

	_, err = svc.InitiatePayment(context.Background(), paymentdomain.InitiationRequest{
		ProductID: soldID, CustomerEmail: "a@b.c", CustomerName: "A", Provider: "telebirr",
	})
	assert.ErrorIs(t, err, paymentdomain.ErrProductUnavailable)
}

func initiateOrder(t *testing.T, svc *Service, db *gorm.DB, provider string) (snowflake.ID, snowflake.ID) {
	t.Helper()
	productID := svc.genID.Generate()
	seedProduct(t, db, productID, 100000, false)

	resp, err := svc.InitiatePayment(context.Background(), paymentdomain.InitiationRequest{
		ProductID:     productID,
		CustomerEmail: "abebe@example.com",
		CustomerName:  "Abebe Bikila",
		Provider:      provider,
	})
	require.NoError(t, err)
	orderID, err := snowflake.ParseString(resp.OrderID)
	require.NoError(t, err)
	return orderID, productID
}

func TestApplyWebhookResultSettlesOrder(t *testing.T) {
	db := openTestDB(t)
	client := &stubClient{name: "telebirr", initiateResult: &paymentdomain.InitiationResult{PaymentURL: "u"}}
	svc := newTestService(t, db, client)

	orderID, productID := initiateOrder(t, svc, db, "telebirr")

	paidAt := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	err := svc.ApplyWebhookResult(context.Background(), "telebirr", &paymentdomain.WebhookResult{
		OrderID:               orderID,
		ProviderTransactionID: "TB-77",
		Status:                paymentdomain.WebhookStatusSuccess,
		SettledAmount:         100000,
		PaidAt:                paidAt,
	})
	require.NoError(t, err)

	order, err := svc.repo.FindOrderByID(context.Background(), db, orderID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OrderStatusCompleted, order.Status)
	assert.Equal(t, int64(100000), order.SettledAmount)
	require.NotNil(t, order.ProviderTransactionID)
	assert.Equal(t, "TB-77", *order.ProviderTransactionID)
	require.NotNil(t, order.PaidAt)

	var sold bool
	require.NoError(t, db.Raw(`SELECT sold FROM products WHERE id = ?`, productID).Scan(&sold).Error)
	assert.True(t, sold)
}

func TestApplyWebhookResultDuplicateDelivery(t *testing.T) {
	db := openTestDB(t)
	client := &stubClient{name: "telebirr", initiateResult: &paymentdomain.InitiationResult{PaymentURL: "u"}}
	svc := newTestService(t, db, client)

	orderID, _ := initiateOrder(t, svc, db, "telebirr")

	result := &paymentdomain.WebhookResult{
		OrderID:               orderID,
		ProviderTransactionID: "TB-77",
		Status:                paymentdomain.WebhookStatusSuccess,
	}
	require.NoError(t, svc.ApplyWebhookResult(context.Background(), "telebirr", result))

	err := svc.ApplyWebhookResult(context.Background(), "telebirr", result)
	assert.ErrorIs(t, err, paymentdomain.ErrAlreadyProcessed)
}

func TestApplyWebhookResultFailureThenSuccessIsAnomalous(t *testing.T) {
	db := openTestDB(t)
	client := &stubClient{name: "telebirr", initiateResult: &paymentdomain.InitiationResult{PaymentURL: "u"}}
	svc := newTestService(t, db, client)

	orderID, productID := initiateOrder(t, svc, db, "telebirr")

	require.NoError(t, svc.ApplyWebhookResult(context.Background(), "telebirr", &paymentdomain.WebhookResult{
		OrderID: orderID,
		Status:  paymentdomain.WebhookStatusFailure,
	}))

	err := svc.ApplyWebhookResult(context.Background(), "telebirr", &paymentdomain.WebhookResult{
		OrderID: orderID,
		Status:  paymentdomain.WebhookStatusSuccess,
	})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidTransition)

	order, err := svc.repo.FindOrderByID(context.Background(), db, orderID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OrderStatusFailed, order.Status)

	var sold bool
	require.NoError(t, db.Raw(`SELECT sold FROM products WHERE id = ?`, productID).Scan(&sold).Error)
	assert.False(t, sold)
}

func TestApplyWebhookResultProviderMismatch(t *testing.T) {
	db := openTestDB(t)
	telebirr := &stubClient{name: "telebirr", initiateResult: &paymentdomain.InitiationResult{PaymentURL: "u"}}
	svc := newTestService(t, db, telebirr)

	orderID, _ := initiateOrder(t, svc, db, "telebirr")

	err := svc.ApplyWebhookResult(context.Background(), "chapa", &paymentdomain.WebhookResult{
		OrderID: orderID,
		Status:  paymentdomain.WebhookStatusSuccess,
	})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidTransition)
}

func TestApplyWebhookResultUnknownOrder(t *testing.T) {
	db := openTestDB(t)
	client := &stubClient{name: "telebirr"}
	svc := newTestService(t, db, client)

	err := svc.ApplyWebhookResult(context.Background(), "telebirr", &paymentdomain.WebhookResult{
		OrderID: svc.genID.Generate(),
		Status:  paymentdomain.WebhookStatusSuccess,
	})
	assert.ErrorIs(t, err, paymentdomain.ErrOrderNotFound)
}

func TestApplyWebhookResultPendingIsNoOp(t *testing.T) {
	db := openTestDB(t)
	client := &stubClient{name: "telebirr", initiateResult: &paymentdomain.InitiationResult{PaymentURL: "u"}}
	svc := newTestService(t, db, client)

	orderID, _ := initiateOrder(t, svc, db, "telebirr")

	require.NoError(t, svc.ApplyWebhookResult(context.Background(), "telebirr", &paymentdomain.WebhookResult{
		OrderID: orderID,
		Status:  paymentdomain.WebhookStatusPending,
	}))

	order, err := svc.repo.FindOrderByID(context.Background(), db, orderID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OrderStatusPending, order.Status)
}

func TestApplyWebhookResultZeroSettledAmountFallsBack(t *testing.T) {
	db := openTestDB(t)
	client := &stubClient{name: "chapa", initiateResult: &paymentdomain.InitiationResult{PaymentURL: "u"}}
	svc := newTestService(t, db, client)

	orderID, _ := initiateOrder(t, svc, db, "chapa")

	require.NoError(t, svc.ApplyWebhookResult(context.Background(), "chapa", &paymentdomain.WebhookResult{
		OrderID:               orderID,
		ProviderTransactionID: "chapa-9",
		Status:                paymentdomain.WebhookStatusSuccess,
	}))

	order, err := svc.repo.FindOrderByID(context.Background(), db, orderID)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), order.SettledAmount)
}

func TestReconcileOrder(t *testing.T) {
	db := openTestDB(t)
	paidAt := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	client := &stubClient{
		name:           "telebirr",
		initiateResult: &paymentdomain.InitiationResult{PaymentURL: "u"},
		queryResult: &paymentdomain.QueryResult{
			Status:        paymentdomain.WebhookStatusSuccess,
			TransactionID: "TB-77",
			PaidAt:        &paidAt,
		},
	}
	svc := newTestService(t, db, client)

	orderID, productID := initiateOrder(t, svc, db, "telebirr")

	order, err := svc.ReconcileOrder(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OrderStatusCompleted, order.Status)

	var sold bool
	require.NoError(t, db.Raw(`SELECT sold FROM products WHERE id = ?`, productID).Scan(&sold).Error)
	assert.True(t, sold)
}

func TestReconcileOrderFailure(t *testing.T) {
	db := openTestDB(t)
	client := &stubClient{
		name:           "telebirr",
		initiateResult: &paymentdomain.InitiationResult{PaymentURL: "u"},
		queryResult:    &paymentdomain.QueryResult{Status: paymentdomain.WebhookStatusFailure},
	}
	svc := newTestService(t, db, client)

	orderID, _ := initiateOrder(t, svc, db, "telebirr")

	order, err := svc.ReconcileOrder(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OrderStatusFailed, order.Status)
}

func TestReconcileOrderLeavesSettledOrdersAlone(t *testing.T) {
	db := openTestDB(t)
	client := &stubClient{
		name:           "telebirr",
		initiateResult: &paymentdomain.InitiationResult{PaymentURL: "u"},
		queryErr:       errors.New("must not be called"),
	}
	svc := newTestService(t, db, client)

	orderID, _ := initiateOrder(t, svc, db, "telebirr")
	require.NoError(t, svc.ApplyWebhookResult(context.Background(), "telebirr", &paymentdomain.WebhookResult{
		OrderID: orderID,
		Status:  paymentdomain.WebhookStatusSuccess,
	}))

	order, err := svc.ReconcileOrder(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OrderStatusCompleted, order.Status)
}

func TestRefundOrder(t *testing.T) {
	db := openTestDB(t)
	client := &stubClient{name: "telebirr", initiateResult: &paymentdomain.InitiationResult{PaymentURL: "u"}}
	svc := newTestService(t, db, client)

	orderID, _ := initiateOrder(t, svc, db, "telebirr")
	require.NoError(t, svc.ApplyWebhookResult(context.Background(), "telebirr", &paymentdomain.WebhookResult{
		OrderID:               orderID,
		ProviderTransactionID: "TB-1",
		Status:                paymentdomain.WebhookStatusSuccess,
		SettledAmount:         100000,
	}))

	order, err := svc.RefundOrder(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OrderStatusRefunded, order.Status)
	assert.Equal(t, "TB-1", *order.ProviderTransactionID)
	assert.Equal(t, int64(100000), order.SettledAmount)
	assert.NotNil(t, order.PaidAt)

	again, err := svc.RefundOrder(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OrderStatusRefunded, again.Status)
}

func TestRefundOrderRequiresSettlement(t *testing.T) {
	db := openTestDB(t)
	client := &stubClient{name: "telebirr", initiateResult: &paymentdomain.InitiationResult{PaymentURL: "u"}}
	svc := newTestService(t, db, client)

	orderID, _ := initiateOrder(t, svc, db, "telebirr")

	_, err := svc.RefundOrder(context.Background(), orderID)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidTransition)

	var status string
	require.NoError(t, db.Raw(`SELECT status FROM orders WHERE id = ?`, orderID).Scan(&status).Error)
	assert.Equal(t, string(paymentdomain.OrderStatusPending), status)
}

func TestApplyWebhookResultTwoBuyersOneProduct(t *testing.T) {
	db := openTestDB(t)
	client := &stubClient{name: "telebirr", initiateResult: &paymentdomain.InitiationResult{PaymentURL: "u"}}
	svc := newTestService(t, db, client)
	core, logs := observer.New(zapcore.WarnLevel)
	svc.log = zap.New(core)

	productID := svc.genID.Generate()
	seedProduct(t, db, productID, 100000, false)

	initiate := func(email string) snowflake.ID {
		resp, err := svc.InitiatePayment(context.Background(), paymentdomain.InitiationRequest{
			ProductID:     productID,
			CustomerEmail: email,
			CustomerName:  "Abebe Bikila",
			Provider:      "telebirr",
		})
		require.NoError(t, err)
		orderID, err := snowflake.ParseString(resp.OrderID)
		require.NoError(t, err)
		return orderID
	}
	orderA := initiate("abebe@example.com")
	orderB := initiate("belay@example.com")

	require.NoError(t, svc.ApplyWebhookResult(context.Background(), "telebirr", &paymentdomain.WebhookResult{
		OrderID:               orderA,
		ProviderTransactionID: "TB-A",
		Status:                paymentdomain.WebhookStatusSuccess,
	}))
	require.NoError(t, svc.ApplyWebhookResult(context.Background(), "telebirr", &paymentdomain.WebhookResult{
		OrderID:               orderB,
		ProviderTransactionID: "TB-B",
		Status:                paymentdomain.WebhookStatusSuccess,
	}))

	// both buyers paid, so both settlements stand
	for _, id := range []snowflake.ID{orderA, orderB} {
		order, err := svc.repo.FindOrderByID(context.Background(), db, id)
		require.NoError(t, err)
		assert.Equal(t, paymentdomain.OrderStatusCompleted, order.Status)
	}

	var sold bool
	require.NoError(t, db.Raw(`SELECT sold FROM products WHERE id = ?`, productID).Scan(&sold).Error)
	assert.True(t, sold)

	// the lost product flip is flagged for manual reconciliation
	assert.Equal(t, 1, logs.FilterMessage("settled order for an already-sold product").Len())
}

func TestInsertOrderDuplicateNumber(t *testing.T) {
	db := openTestDB(t)
	client := &stubClient{name: "telebirr", initiateResult: &paymentdomain.InitiationResult{PaymentURL: "u"}}
	svc := newTestService(t, db, client)

	now := time.Now().UTC()
	order := &paymentdomain.Order{
		ID:            svc.genID.Generate(),
		OrderNumber:   "ORD-20260201-000001",
		ProductID:     svc.genID.Generate(),
		CustomerEmail: "abebe@example.com",
		CustomerName:  "Abebe Bikila",
		Amount:        1000,
		Currency:      "ETB",
		Status:        paymentdomain.OrderStatusPending,
		Provider:      "telebirr",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, svc.repo.InsertOrder(context.Background(), db, order))

	dup := *order
	dup.ID = svc.genID.Generate()
	err := svc.repo.InsertOrder(context.Background(), db, &dup)
	assert.ErrorIs(t, err, paymentdomain.ErrDuplicateOrder)
}
