package models

import (
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// MenuItem is owned by the menu service; settlement only reads it.
type MenuItem struct {
	bun.BaseModel `bun:"table:menu_items"`

	ID        string          `json:"id" bun:"id,pk"`
	Name      string          `json:"name" bun:"name"`
	Price     decimal.Decimal `json:"price" bun:"price,type:decimal(12,2)"`
	Available bool            `json:"available" bun:"available"`
}
