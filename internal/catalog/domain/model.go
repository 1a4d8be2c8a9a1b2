package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Product is a digital item sold by a creator. Single-copy products flip to
// sold exactly once when a payment settles.
type Product struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	CreatorID   snowflake.ID `json:"creator_id" gorm:"not null;index"`
	Title       string       `json:"title" gorm:"type:text;not null"`
	Description string       `json:"description" gorm:"type:text"`
	Price       int64        `json:"price" gorm:"not null"`
	Currency    string       `json:"currency" gorm:"type:text;not null"`
	Sold        bool         `json:"sold" gorm:"not null;default:false"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null"`
}

func (Product) TableName() string { return "products" }
