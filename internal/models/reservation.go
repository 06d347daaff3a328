package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "PENDING"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationCancelled ReservationStatus = "CANCELLED"
	ReservationCompleted ReservationStatus = "COMPLETED"
	ReservationNoShow    ReservationStatus = "NO_SHOW"
)

type Reservation struct {
	bun.BaseModel `bun:"table:reservations"`

	ID              string            `json:"id" bun:"id,pk"`
	TableID         string            `json:"tableId" bun:"table_id"`
	ReservationTime time.Time         `json:"reservationTime" bun:"reservation_time"`
	PartySize       int               `json:"partySize" bun:"party_size"`
	CustomerName    string            `json:"customerName" bun:"customer_name"`
	CustomerPhone   string            `json:"customerPhone" bun:"customer_phone"`
	Status          ReservationStatus `json:"status" bun:"status"`
	CreatedAt       time.Time         `json:"createdAt" bun:"created_at"`
	UpdatedAt       time.Time         `json:"updatedAt" bun:"updated_at"`
}

type CreateReservationRequest struct {
	TableID         string    `json:"tableId" binding:"required"`
	ReservationTime time.Time `json:"reservationTime" binding:"required"`
	PartySize       int       `json:"partySize" binding:"required"`
	CustomerName    string    `json:"customerName"`
	CustomerPhone   string    `json:"customerPhone"`
}
