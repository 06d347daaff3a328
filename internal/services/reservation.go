package services

import (
	"context"
	"fmt"
	"time"

	"table-settlement/internal/logger"
	"table-settlement/internal/models"
	"table-settlement/internal/storage"
	"table-settlement/internal/utils"
)

type ReservationService struct {
	base
	window time.Duration
}

func NewReservationService(store storage.Store, notifier Notifier, log *logger.Logger, window time.Duration) *ReservationService {
	return &ReservationService{base: newBase(store, notifier, log), window: window}
}

func (s *ReservationService) CreateReservation(ctx context.Context, req *models.CreateReservationRequest) (*models.Reservation, error) {
	if req.TableID == "" {
		return nil, validationf("tableId is required")
	}
	if req.PartySize < 1 {
		return nil, validationf("partySize must be at least 1")
	}
	if req.ReservationTime.IsZero() {
		return nil, validationf("reservationTime is required")
	}

	var reservation *models.Reservation
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		table, err := tx.LockTable(ctx, req.TableID)
		if err != nil {
			return lookupErr(err, ErrTableNotFound)
		}
		if table.Status == models.TableOutOfService {
			return conflict(ErrTableOutOfService)
		}
		if req.PartySize > table.Capacity {
			return &Error{Kind: KindConflict, Message: fmt.Sprintf("capacity exceeded: table %d seats %d", table.Number, table.Capacity), Err: ErrCapacityExceeded}
		}

		at := req.ReservationTime.UTC()
		clash, err := tx.CountReservations(ctx, table.ID,
			[]models.ReservationStatus{models.ReservationPending, models.ReservationConfirmed},
			at.Add(-s.window), at.Add(s.window), "")
		if err != nil {
			return err
		}
		if clash > 0 {
			return conflict(ErrReservationConflict)
		}

		now := s.now()
		reservation = &models.Reservation{
			ID:              utils.GenerateID(),
			TableID:         table.ID,
			ReservationTime: at,
			PartySize:       req.PartySize,
			CustomerName:    req.CustomerName,
			CustomerPhone:   req.CustomerPhone,
			Status:          models.ReservationPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return tx.InsertReservation(ctx, reservation)
	})
	if err != nil {
		s.log.Warn("RESERVATION", fmt.Sprintf("Create failed for table %s: %v", req.TableID, err))
		return nil, err
	}

	s.log.Info("RESERVATION", fmt.Sprintf("Reservation %s for table %s at %s", reservation.ID, reservation.TableID, reservation.ReservationTime.Format(time.RFC3339)))
	return reservation, nil
}

// transition locks the reservation's table and then the reservation, checks
// the current status against from and applies to.
func (s *ReservationService) transition(ctx context.Context, id string, to models.ReservationStatus, from ...models.ReservationStatus) (*models.Reservation, error) {
	var reservation *models.Reservation
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		peek, err := tx.GetReservation(ctx, id)
		if err != nil {
			return lookupErr(err, ErrReservationNotFound)
		}
		table, err := tx.LockTable(ctx, peek.TableID)
		if err != nil {
			return lookupErr(err, ErrTableNotFound)
		}
		r, err := tx.LockReservation(ctx, id)
		if err != nil {
			return lookupErr(err, ErrReservationNotFound)
		}

		allowed := false
		for _, st := range from {
			if r.Status == st {
				allowed = true
			}
		}
		if !allowed {
			return &Error{Kind: KindConflict, Message: fmt.Sprintf("reservation is %s", r.Status), Err: ErrReservationState}
		}

		now := s.now()
		if err := tx.UpdateReservationStatus(ctx, r.ID, to, now); err != nil {
			return err
		}
		r.Status = to
		r.UpdatedAt = now

		switch {
		case to == models.ReservationConfirmed && table.Status == models.TableAvailable:
			if r.ReservationTime.Sub(now).Abs() <= s.window {
				if err := tx.UpdateTableStatus(ctx, table.ID, models.TableReserved, now); err != nil {
					return err
				}
			}
		case to == models.ReservationCancelled && table.Status == models.TableReserved:
			if _, err := releaseTable(ctx, tx, table, now, s.window); err != nil {
				return err
			}
		}

		reservation = r
		return nil
	})
	if err != nil {
		s.log.Warn("RESERVATION", fmt.Sprintf("Reservation %s -> %s failed: %v", id, to, err))
		return nil, err
	}
	s.log.Info("RESERVATION", fmt.Sprintf("Reservation %s is now %s", id, to))
	return reservation, nil
}

func (s *ReservationService) ConfirmReservation(ctx context.Context, id string) (*models.Reservation, error) {
	r, err := s.transition(ctx, id, models.ReservationConfirmed, models.ReservationPending)
	if err != nil {
		return nil, err
	}
	s.emit(models.Event{
		Type:          models.EventReservationConfirmed,
		ReservationID: r.ID,
		TableID:       r.TableID,
		Payload:       map[string]string{"reservationTime": r.ReservationTime.Format(time.RFC3339)},
	})
	return r, nil
}

func (s *ReservationService) CancelReservation(ctx context.Context, id string) (*models.Reservation, error) {
	return s.transition(ctx, id, models.ReservationCancelled, models.ReservationPending, models.ReservationConfirmed)
}

func (s *ReservationService) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	var r *models.Reservation
	err := s.store.View(ctx, func(q storage.Queries) error {
		var err error
		if r, err = q.GetReservation(ctx, id); err != nil {
			return lookupErr(err, ErrReservationNotFound)
		}
		return nil
	})
	return r, err
}
