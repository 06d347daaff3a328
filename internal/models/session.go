package models

import (
	"time"

	"github.com/uptrace/bun"
)

type SessionStatus string

const (
	SessionActive SessionStatus = "ACTIVE"
	SessionPaid   SessionStatus = "PAID"
	SessionClosed SessionStatus = "CLOSED"
)

// Live reports whether the session still holds its table.
func (s SessionStatus) Live() bool {
	return s == SessionActive || s == SessionPaid
}

type TableSession struct {
	bun.BaseModel `bun:"table:table_sessions"`

	ID            string        `json:"id" bun:"id,pk"`
	TableID       string        `json:"tableId" bun:"table_id"`
	Secret        string        `json:"-" bun:"secret"`
	Status        SessionStatus `json:"status" bun:"status"`
	CustomerCount int           `json:"customerCount" bun:"customer_count"`
	Notes         string        `json:"notes,omitempty" bun:"notes"`
	StartTime     time.Time     `json:"startTime" bun:"start_time"`
	EndTime       *time.Time    `json:"endTime,omitempty" bun:"end_time,nullzero"`
	ExpiresAt     time.Time     `json:"expiresAt" bun:"expires_at"`
}

// Expired reports whether the session credential is past its expiry at now.
func (s *TableSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionDetail is the display view of a session with its orders.
type SessionDetail struct {
	Session *TableSession  `json:"session"`
	Table   *Table         `json:"table,omitempty"`
	Orders  []*OrderDetail `json:"orders"`
	Payment *Payment       `json:"payment,omitempty"`
}

// OpenedSession is returned to the device that opened the session; it is the
// only response that carries the secret.
// Stale is set when the returned live session can no longer pass validation
// because it expired or is already paid; staff must close it first.
type OpenedSession struct {
	*TableSession
	Secret  string `json:"secret"`
	Created bool   `json:"created"`
	Stale   bool   `json:"stale"`
}
