package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TableStatus string

const (
	TableAvailable    TableStatus = "AVAILABLE"
	TableOccupied     TableStatus = "OCCUPIED"
	TableReserved     TableStatus = "RESERVED"
	TableOutOfService TableStatus = "OUT_OF_SERVICE"
)

func (s TableStatus) Valid() bool {
	switch s {
	case TableAvailable, TableOccupied, TableReserved, TableOutOfService:
		return true
	}
	return false
}

type Table struct {
	bun.BaseModel `bun:"table:restaurant_tables"`

	ID        string      `json:"id" bun:"id,pk"`
	Number    int         `json:"number" bun:"number,unique"`
	Capacity  int         `json:"capacity" bun:"capacity"`
	Status    TableStatus `json:"status" bun:"status"`
	UpdatedAt time.Time   `json:"updatedAt" bun:"updated_at"`
}
