package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"table-settlement/internal/config"
	"table-settlement/internal/logger"
	"table-settlement/internal/models"
	"table-settlement/internal/storage"
)

// Synchronizer reconciles table status with reservations on three schedules.
// Every table decision is its own transaction that locks the table row first
// and reads sessions and reservations afterwards.
type Synchronizer struct {
	base
	cfg config.SyncConfig
}

type SyncReport struct {
	Completed int `json:"completed"`
	NoShows   int `json:"noShows"`
	Reserved  int `json:"reserved"`
	Released  int `json:"released"`
}

func NewSynchronizer(store storage.Store, notifier Notifier, log *logger.Logger, cfg config.SyncConfig) *Synchronizer {
	return &Synchronizer{base: newBase(store, notifier, log), cfg: cfg}
}

// Run blocks until ctx is done.
func (s *Synchronizer) Run(ctx context.Context) error {
	s.log.LogSync("START", fmt.Sprintf("expired every %s, no-show every %s, reserved every %s",
		s.cfg.ExpiredInterval, s.cfg.NoShowInterval, s.cfg.ReservedInterval))

	expired := time.NewTicker(s.cfg.ExpiredInterval)
	noShow := time.NewTicker(s.cfg.NoShowInterval)
	reserved := time.NewTicker(s.cfg.ReservedInterval)
	defer expired.Stop()
	defer noShow.Stop()
	defer reserved.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.LogSync("STOP", "Synchronizer stopped")
			return nil
		case <-expired.C:
			if _, _, err := s.ReleaseExpired(ctx); err != nil {
				s.log.Error("SYNC", "Release expired failed: "+err.Error())
			}
		case <-noShow.C:
			if _, err := s.MarkNoShows(ctx); err != nil {
				s.log.Error("SYNC", "No-show pass failed: "+err.Error())
			}
		case <-reserved.C:
			if _, _, err := s.SyncReservedTables(ctx); err != nil {
				s.log.Error("SYNC", "Reserved table pass failed: "+err.Error())
			}
		}
	}
}

// RunOnce runs the three passes back to back.
func (s *Synchronizer) RunOnce(ctx context.Context) (SyncReport, error) {
	var report SyncReport
	var errs []error

	completed, noShows, err := s.ReleaseExpired(ctx)
	report.Completed = completed
	report.NoShows = noShows
	errs = append(errs, err)

	n, err := s.MarkNoShows(ctx)
	report.NoShows += n
	errs = append(errs, err)

	report.Reserved, report.Released, err = s.SyncReservedTables(ctx)
	errs = append(errs, err)

	return report, errors.Join(errs...)
}

var epoch = time.Unix(0, 0).UTC()

func (s *Synchronizer) confirmedBetween(ctx context.Context, from, to time.Time) ([]*models.Reservation, error) {
	var list []*models.Reservation
	err := s.store.View(ctx, func(q storage.Queries) error {
		var err error
		list, err = q.ListReservations(ctx, models.ReservationConfirmed, from, to)
		return err
	})
	return list, err
}

// ReleaseExpired closes confirmed reservations that ended long ago and frees
// their tables when nothing else claims them. A reservation whose table had a
// session start within NoShowAfter of its time is COMPLETED; one that was
// never seated is NO_SHOW.
func (s *Synchronizer) ReleaseExpired(ctx context.Context) (completed, noShows int, err error) {
	list, err := s.confirmedBetween(ctx, epoch, s.now().Add(-s.cfg.ExpiredAfter))
	if err != nil {
		return 0, 0, err
	}
	return s.closeOut(ctx, "EXPIRED", list, s.seatedOrNoShow)
}

// MarkNoShows flags confirmed reservations whose party never arrived.
func (s *Synchronizer) MarkNoShows(ctx context.Context) (int, error) {
	list, err := s.confirmedBetween(ctx, epoch, s.now().Add(-s.cfg.NoShowAfter))
	if err != nil {
		return 0, err
	}
	_, n, err := s.closeOut(ctx, "NO_SHOW", list, func(context.Context, storage.Tx, *models.Reservation) (models.ReservationStatus, error) {
		return models.ReservationNoShow, nil
	})
	return n, err
}

// outcome picks the final status of a stale reservation under its table lock.
type outcome func(ctx context.Context, tx storage.Tx, r *models.Reservation) (models.ReservationStatus, error)

func (s *Synchronizer) seatedOrNoShow(ctx context.Context, tx storage.Tx, r *models.Reservation) (models.ReservationStatus, error) {
	n, err := tx.CountSessionsStarted(ctx, r.TableID,
		r.ReservationTime.Add(-s.cfg.NoShowAfter), r.ReservationTime.Add(s.cfg.NoShowAfter))
	if err != nil {
		return "", err
	}
	if n > 0 {
		return models.ReservationCompleted, nil
	}
	return models.ReservationNoShow, nil
}

func (s *Synchronizer) closeOut(ctx context.Context, job string, list []*models.Reservation, decide outcome) (completed, noShows int, err error) {
	var errs []error
	for _, r := range list {
		to, status, err := s.closeReservation(ctx, r, decide)
		if err != nil {
			s.log.Error("SYNC", fmt.Sprintf("%s: reservation %s: %v", job, r.ID, err))
			errs = append(errs, err)
			continue
		}
		switch to {
		case "":
			continue
		case models.ReservationNoShow:
			noShows++
			s.emit(models.Event{Type: models.EventReservationNoShow, ReservationID: r.ID, TableID: r.TableID})
		default:
			completed++
		}
		s.log.LogSync(job, fmt.Sprintf("Reservation %s -> %s, table %s now %s", r.ID, to, r.TableID, status))
	}
	return completed, noShows, errors.Join(errs...)
}

// closeReservation returns the status applied, or "" when the reservation was
// no longer CONFIRMED.
func (s *Synchronizer) closeReservation(ctx context.Context, r *models.Reservation, decide outcome) (models.ReservationStatus, models.TableStatus, error) {
	var to models.ReservationStatus
	var status models.TableStatus
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		table, err := tx.LockTable(ctx, r.TableID)
		if err != nil {
			return err
		}
		status = table.Status
		current, err := tx.LockReservation(ctx, r.ID)
		if err != nil {
			return err
		}
		if current.Status != models.ReservationConfirmed {
			return nil
		}

		next, err := decide(ctx, tx, current)
		if err != nil {
			return err
		}
		now := s.now()
		if err := tx.UpdateReservationStatus(ctx, current.ID, next, now); err != nil {
			return err
		}
		status, err = releaseTable(ctx, tx, table, now, s.cfg.ReservationWindow)
		if err != nil {
			return err
		}
		to = next
		return nil
	})
	if err != nil {
		return "", status, err
	}
	return to, status, nil
}

// SyncReservedTables marks tables with a confirmed reservation near now as
// RESERVED and frees RESERVED tables whose reservations are gone.
func (s *Synchronizer) SyncReservedTables(ctx context.Context) (reserved, released int, err error) {
	now := s.now()
	window := s.cfg.ReservationWindow

	upcoming, err := s.confirmedBetween(ctx, now.Add(-window), now.Add(window))
	if err != nil {
		return 0, 0, err
	}

	var errs []error
	claimed := make(map[string]bool)
	for _, r := range upcoming {
		if claimed[r.TableID] {
			continue
		}
		claimed[r.TableID] = true

		ok, err := s.reserveTable(ctx, r.TableID)
		if err != nil {
			s.log.Error("SYNC", fmt.Sprintf("RESERVE: table %s: %v", r.TableID, err))
			errs = append(errs, err)
			continue
		}
		if ok {
			reserved++
			s.log.LogSync("RESERVE", fmt.Sprintf("Table %s reserved for %s", r.TableID, r.ReservationTime.Format(time.RFC3339)))
		}
	}

	var stuck []*models.Table
	if err := s.store.View(ctx, func(q storage.Queries) error {
		var err error
		stuck, err = q.ListTablesByStatus(ctx, models.TableReserved)
		return err
	}); err != nil {
		return reserved, released, errors.Join(append(errs, err)...)
	}

	for _, table := range stuck {
		if claimed[table.ID] {
			continue
		}
		status, err := s.unreserveTable(ctx, table.ID)
		if err != nil {
			s.log.Error("SYNC", fmt.Sprintf("UNRESERVE: table %s: %v", table.ID, err))
			errs = append(errs, err)
			continue
		}
		if status != models.TableReserved {
			released++
			s.log.LogSync("UNRESERVE", fmt.Sprintf("Table %s released to %s", table.ID, status))
		}
	}

	return reserved, released, errors.Join(errs...)
}

func (s *Synchronizer) reserveTable(ctx context.Context, tableID string) (bool, error) {
	changed := false
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		table, err := tx.LockTable(ctx, tableID)
		if err != nil {
			return err
		}
		if table.Status == models.TableOutOfService || table.Status == models.TableReserved {
			return nil
		}
		live, err := tx.CountLiveSessions(ctx, tableID)
		if err != nil {
			return err
		}
		if live > 0 {
			return nil
		}
		now := s.now()
		claims, err := reservationClaims(ctx, tx, tableID, now, s.cfg.ReservationWindow)
		if err != nil || !claims {
			return err
		}
		if err := tx.UpdateTableStatus(ctx, tableID, models.TableReserved, now); err != nil {
			return err
		}
		changed = true
		return nil
	})
	return changed, err
}

func (s *Synchronizer) unreserveTable(ctx context.Context, tableID string) (models.TableStatus, error) {
	var status models.TableStatus
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		table, err := tx.LockTable(ctx, tableID)
		if err != nil {
			return err
		}
		status = table.Status
		if table.Status != models.TableReserved {
			return nil
		}
		status, err = releaseTable(ctx, tx, table, s.now(), s.cfg.ReservationWindow)
		return err
	})
	return status, err
}
