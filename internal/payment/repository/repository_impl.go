package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gebeyahq/gebeya/internal/payment/domain"
	pkgdb "github.com/gebeyahq/gebeya/pkg/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindOrderByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_number, product_id, customer_email, customer_name,
			customer_phone, amount, fee_amount, net_amount, currency, status,
			payment_provider, provider_transaction_id, settled_amount, metadata,
			paid_at, created_at, updated_at
		 FROM orders
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrOrderNotFound
	}
	return &item, nil
}

func (r *repo) FindPendingOrder(ctx context.Context, db *gorm.DB, productID snowflake.ID, customerEmail string) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_number, product_id, customer_email, customer_name,
			customer_phone, amount, fee_amount, net_amount, currency, status,
			payment_provider, provider_transaction_id, settled_amount, metadata,
			paid_at, created_at, updated_at
		 FROM orders
		 WHERE product_id = ? AND customer_email = ? AND status = ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		productID,
		customerEmail,
		domain.OrderStatusPending,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertOrder(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	err := db.WithContext(ctx).Exec(
		`INSERT INTO orders (
			id, order_number, product_id, customer_email, customer_name,
			customer_phone, amount, fee_amount, net_amount, currency, status,
			payment_provider, provider_transaction_id, settled_amount, metadata,
			paid_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.OrderNumber,
		order.ProductID,
		order.CustomerEmail,
		order.CustomerName,
		order.CustomerPhone,
		order.Amount,
		order.FeeAmount,
		order.NetAmount,
		order.Currency,
		order.Status,
		order.Provider,
		order.ProviderTransactionID,
		order.SettledAmount,
		order.Metadata,
		order.PaidAt,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
	if pkgdb.IsDuplicateKeyErr(err) {
		return domain.ErrDuplicateOrder
	}
	return err
}

func (r *repo) UpdateOrderMetadata(ctx context.Context, db *gorm.DB, id snowflake.ID, metadata datatypes.JSONMap) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET metadata = ?, updated_at = ?
		 WHERE id = ?`,
		metadata,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repo) UpdateStatusIfCurrentIs(ctx context.Context, db *gorm.DB, id snowflake.ID, expected, next domain.OrderStatus) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		next,
		time.Now().UTC(),
		id,
		expected,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SettleOrderIfPending(ctx context.Context, db *gorm.DB, id snowflake.ID, providerTxID string, settledAmount int64, paidAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, provider_transaction_id = ?, settled_amount = ?,
			paid_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.OrderStatusCompleted,
		providerTxID,
		settledAmount,
		paidAt,
		time.Now().UTC(),
		id,
		domain.OrderStatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) NextOrderSequence(ctx context.Context, db *gorm.DB, day string) (int64, error) {
	var seq int64
	err := db.WithContext(ctx).Raw(
		`INSERT INTO order_sequences (day, seq) VALUES (?, 1)
		 ON CONFLICT (day) DO UPDATE SET seq = order_sequences.seq + 1
		 RETURNING seq`,
		day,
	).Scan(&seq).Error
	if err != nil {
		return 0, err
	}
	return seq, nil
}
