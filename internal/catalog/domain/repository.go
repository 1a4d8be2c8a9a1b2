package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var ErrProductNotFound = errors.New("product_not_found")

// Repository is the persistence collaborator for products. Methods take the
// DB handle so settlement can mark a product sold inside the order
// transaction.
type Repository interface {
	FindProductByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Product, error)

	// MarkProductSold flips sold only when it is still false. The boolean
	// result reports whether this caller performed the flip.
	MarkProductSold(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
}
