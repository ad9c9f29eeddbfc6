package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/julianstephens/salonbot/internal/models"
	"github.com/julianstephens/salonbot/internal/storage"
)

const selectColumns = `
	SELECT id, client_id, service_ref, date, time, client_name, client_phone, comment,
	       status, created_at, cancelled_at, cancelled_by
	FROM appointments`

var copyColumns = []string{
	"id", "client_id", "service_ref", "date", "time", "client_name", "client_phone", "comment",
	"status", "created_at", "cancelled_at", "cancelled_by",
}

func scanAppointment(row pgx.Row) (models.Appointment, error) {
	var a models.Appointment
	var status string
	var cancelledAt *time.Time
	var cancelledBy *string

	if err := row.Scan(
		&a.ID, &a.ClientID, &a.ServiceRef, &a.Date, &a.Time, &a.ClientName, &a.ClientPhone, &a.Comment,
		&status, &a.CreatedAt, &cancelledAt, &cancelledBy,
	); err != nil {
		return models.Appointment{}, err
	}
	a.Status = models.Status(status)
	a.CancelledAt = cancelledAt
	if cancelledBy != nil {
		by := models.CancelledBy(*cancelledBy)
		a.CancelledBy = &by
	}
	return a, nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]models.Appointment, error) {
	if s.pool == nil {
		return nil, storage.ErrNotLoaded
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storage.Persistence("query", err)
	}
	defer rows.Close()

	var out []models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, storage.Persistence("scan", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Persistence("query", err)
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, n models.NewAppointment) (int64, error) {
	if err := n.Validate(); err != nil {
		return 0, err
	}
	if s.pool == nil {
		return 0, storage.ErrNotLoaded
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO appointments
			(client_id, service_ref, date, time, client_name, client_phone, comment, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		n.ClientID, n.ServiceRef, n.Date, n.Time, n.ClientName, n.ClientPhone, n.Comment,
		string(models.StatusActive), s.now(),
	).Scan(&id)
	if err != nil {
		return 0, storage.Persistence("create", err)
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, id int64) (models.Appointment, error) {
	if s.pool == nil {
		return models.Appointment{}, storage.ErrNotLoaded
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, err := scanAppointment(s.pool.QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Appointment{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Appointment{}, storage.Persistence("get", err)
	}
	return a, nil
}

func (s *Store) ListByClient(ctx context.Context, clientID string) ([]models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query(ctx, selectColumns+` WHERE client_id = $1 ORDER BY date ASC, id ASC`, clientID)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query(ctx, selectColumns+` ORDER BY created_at DESC, id DESC LIMIT $1`, storage.ClampLimit(limit))
}

func (s *Store) CountActiveAt(ctx context.Context, date, slot string) (int, error) {
	if s.pool == nil {
		return 0, storage.ErrNotLoaded
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM appointments WHERE date = $1 AND time = $2 AND status = $3`,
		date, slot, string(models.StatusActive),
	).Scan(&n)
	if err != nil {
		return 0, storage.Persistence("count", err)
	}
	return n, nil
}

func (s *Store) update(ctx context.Context, op, query string, args ...any) error {
	if s.pool == nil {
		return storage.ErrNotLoaded
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return storage.Persistence(op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) SetTime(ctx context.Context, id int64, slot string) error {
	return s.update(ctx, "set time", `UPDATE appointments SET time = $1 WHERE id = $2`, slot, id)
}

func (s *Store) SetComment(ctx context.Context, id int64, comment string) error {
	return s.update(ctx, "set comment", `UPDATE appointments SET comment = $1 WHERE id = $2`, comment, id)
}

func (s *Store) Cancel(ctx context.Context, id int64, by models.CancelledBy) error {
	if !by.Valid() {
		return fmt.Errorf("invalid cancellation source %q", by)
	}
	if s.pool == nil {
		return storage.ErrNotLoaded
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storage.Persistence("cancel", err)
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM appointments WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return storage.Persistence("cancel", err)
	}
	if models.Status(status) != models.StatusActive {
		return storage.ErrAlreadyCancelled
	}

	if _, err := tx.Exec(ctx,
		`UPDATE appointments SET status = $1, cancelled_at = $2, cancelled_by = $3 WHERE id = $4`,
		string(models.StatusCancelled), s.now(), string(by), id,
	); err != nil {
		return storage.Persistence("cancel", err)
	}
	return storage.Persistence("cancel", tx.Commit(ctx))
}

func (s *Store) Snapshot(ctx context.Context) (storage.Dump, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	appts, err := s.query(ctx, selectColumns+` ORDER BY id ASC`)
	if err != nil {
		return storage.Dump{}, err
	}

	var last int64
	var called bool
	if err := s.pool.QueryRow(ctx, `SELECT last_value, is_called FROM appointments_id_seq`).Scan(&last, &called); err != nil {
		return storage.Dump{}, storage.Persistence("snapshot", err)
	}
	next := last
	if called {
		next = last + 1
	}
	for _, a := range appts {
		if a.ID >= next {
			next = a.ID + 1
		}
	}
	return storage.Dump{Appointments: appts, NextID: next}, nil
}

// Restore replaces every row using COPY and moves the sequence to d.NextID.
func (s *Store) Restore(ctx context.Context, d storage.Dump) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if s.pool == nil {
		return storage.ErrNotLoaded
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storage.Persistence("restore", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM appointments`); err != nil {
		return storage.Persistence("restore", err)
	}

	rows := make([][]any, 0, len(d.Appointments))
	for _, a := range d.Appointments {
		var by *string
		if a.CancelledBy != nil {
			v := string(*a.CancelledBy)
			by = &v
		}
		rows = append(rows, []any{
			a.ID, a.ClientID, a.ServiceRef, a.Date, a.Time, a.ClientName, a.ClientPhone, a.Comment,
			string(a.Status), a.CreatedAt, a.CancelledAt, by,
		})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"appointments"}, copyColumns, pgx.CopyFromRows(rows)); err != nil {
		return storage.Persistence("restore", err)
	}

	if _, err := tx.Exec(ctx, `SELECT setval('appointments_id_seq', $1, false)`, d.NextID); err != nil {
		return storage.Persistence("restore", err)
	}
	return storage.Persistence("restore", tx.Commit(ctx))
}
