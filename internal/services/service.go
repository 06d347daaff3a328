package services

import (
	"time"

	"table-settlement/internal/logger"
	"table-settlement/internal/models"
	"table-settlement/internal/storage"
)

// Notifier receives domain events after their transaction commits. Emit must
// not block the caller.
type Notifier interface {
	Emit(event models.Event)
}

type base struct {
	store    storage.Store
	notifier Notifier
	log      *logger.Logger
	now      func() time.Time
}

func newBase(store storage.Store, notifier Notifier, log *logger.Logger) base {
	return base{
		store:    store,
		notifier: notifier,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source.
func (b *base) SetClock(now func() time.Time) {
	b.now = now
}

func (b *base) emit(event models.Event) {
	if b.notifier == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now()
	}
	b.notifier.Emit(event)
}

func strPtr(s string) *string { return &s }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
