package services

import (
	"context"
	"fmt"
	"time"

	"table-settlement/internal/models"
	"table-settlement/internal/storage"
)

// DefaultReservationWindow is how far on either side of now a CONFIRMED
// reservation claims its table.
const DefaultReservationWindow = 2 * time.Hour

// CanRelease reports whether tableID may become AVAILABLE: it has no ACTIVE or
// PAID session and no CONFIRMED reservation within window of now. It reads
// through q, so inside a transaction it sees that transaction's own writes.
func CanRelease(ctx context.Context, q storage.Queries, tableID string, now time.Time, window time.Duration) (bool, error) {
	live, err := q.CountLiveSessions(ctx, tableID)
	if err != nil {
		return false, err
	}
	if live > 0 {
		return false, nil
	}
	reserved, err := reservationClaims(ctx, q, tableID, now, window)
	if err != nil {
		return false, err
	}
	return !reserved, nil
}

func reservationClaims(ctx context.Context, q storage.Queries, tableID string, now time.Time, window time.Duration) (bool, error) {
	n, err := q.CountReservations(ctx, tableID,
		[]models.ReservationStatus{models.ReservationConfirmed},
		now.Add(-window), now.Add(window), "")
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// releaseTable moves a locked table to the status its claims allow: AVAILABLE
// when free, RESERVED when only a reservation holds it. A live session or
// OUT_OF_SERVICE leaves it unchanged. The caller must hold the table lock.
func releaseTable(ctx context.Context, tx storage.Tx, table *models.Table, now time.Time, window time.Duration) (models.TableStatus, error) {
	if table.Status == models.TableOutOfService {
		return table.Status, nil
	}

	live, err := tx.CountLiveSessions(ctx, table.ID)
	if err != nil {
		return "", fmt.Errorf("failed to count live sessions: %w", err)
	}
	if live > 0 {
		return table.Status, nil
	}

	target := models.TableAvailable
	reserved, err := reservationClaims(ctx, tx, table.ID, now, window)
	if err != nil {
		return "", fmt.Errorf("failed to check reservations: %w", err)
	}
	if reserved {
		target = models.TableReserved
	}

	if target != table.Status {
		if err := tx.UpdateTableStatus(ctx, table.ID, target, now); err != nil {
			return "", err
		}
		table.Status = target
	}
	return target, nil
}
