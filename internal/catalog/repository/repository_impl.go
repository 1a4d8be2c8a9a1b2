package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gebeyahq/gebeya/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindProductByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Product, error) {
	var item domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, creator_id, title, description, price, currency, sold,
			created_at, updated_at
		 FROM products
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrProductNotFound
	}
	return &item, nil
}

func (r *repo) MarkProductSold(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE products
		 SET sold = TRUE, updated_at = ?
		 WHERE id = ? AND sold = FALSE`,
		time.Now().UTC(),
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
