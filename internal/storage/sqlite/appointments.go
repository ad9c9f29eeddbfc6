package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/julianstephens/salonbot/internal/models"
	"github.com/julianstephens/salonbot/internal/storage"
)

const selectColumns = `
	SELECT id, client_id, service_ref, date, time, client_name, client_phone, comment,
	       status, created_at, cancelled_at, cancelled_by
	FROM appointments`

type scanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row scanner) (models.Appointment, error) {
	var a models.Appointment
	var status, createdAt string
	var cancelledAt, cancelledBy sql.NullString

	if err := row.Scan(
		&a.ID, &a.ClientID, &a.ServiceRef, &a.Date, &a.Time, &a.ClientName, &a.ClientPhone, &a.Comment,
		&status, &createdAt, &cancelledAt, &cancelledBy,
	); err != nil {
		return models.Appointment{}, err
	}

	a.Status = models.Status(status)
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return models.Appointment{}, fmt.Errorf("appointment %d: invalid created_at %q: %w", a.ID, createdAt, err)
	}
	a.CreatedAt = t

	if cancelledAt.Valid {
		ct, err := time.Parse(timeLayout, cancelledAt.String)
		if err != nil {
			return models.Appointment{}, fmt.Errorf("appointment %d: invalid cancelled_at %q: %w", a.ID, cancelledAt.String, err)
		}
		a.CancelledAt = &ct
	}
	if cancelledBy.Valid {
		by := models.CancelledBy(cancelledBy.String)
		a.CancelledBy = &by
	}
	return a, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullBy(by *models.CancelledBy) sql.NullString {
	if by == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*by), Valid: true}
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]models.Appointment, error) {
	if s.db == nil {
		return nil, storage.ErrNotLoaded
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
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
	if s.db == nil {
		return 0, storage.ErrNotLoaded
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO appointments
			(client_id, service_ref, date, time, client_name, client_phone, comment, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ClientID, n.ServiceRef, n.Date, n.Time, n.ClientName, n.ClientPhone, n.Comment,
		string(models.StatusActive), formatTime(s.now()),
	)
	if err != nil {
		return 0, storage.Persistence("create", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storage.Persistence("create", err)
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, id int64) (models.Appointment, error) {
	if s.db == nil {
		return models.Appointment{}, storage.ErrNotLoaded
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, err := scanAppointment(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
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
	return s.query(ctx, selectColumns+` WHERE client_id = ? ORDER BY date ASC, id ASC`, clientID)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query(ctx, selectColumns+` ORDER BY created_at DESC, id DESC LIMIT ?`, storage.ClampLimit(limit))
}

func (s *Store) CountActiveAt(ctx context.Context, date, slot string) (int, error) {
	if s.db == nil {
		return 0, storage.ErrNotLoaded
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM appointments WHERE date = ? AND time = ? AND status = ?`,
		date, slot, string(models.StatusActive),
	).Scan(&n)
	if err != nil {
		return 0, storage.Persistence("count", err)
	}
	return n, nil
}

// update runs a single-row UPDATE and maps zero affected rows to ErrNotFound.
func (s *Store) update(ctx context.Context, op, query string, args ...any) error {
	if s.db == nil {
		return storage.ErrNotLoaded
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storage.Persistence(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storage.Persistence(op, err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) SetTime(ctx context.Context, id int64, slot string) error {
	return s.update(ctx, "set time", `UPDATE appointments SET time = ? WHERE id = ?`, slot, id)
}

func (s *Store) SetComment(ctx context.Context, id int64, comment string) error {
	return s.update(ctx, "set comment", `UPDATE appointments SET comment = ? WHERE id = ?`, comment, id)
}

func (s *Store) Cancel(ctx context.Context, id int64, by models.CancelledBy) error {
	if !by.Valid() {
		return fmt.Errorf("invalid cancellation source %q", by)
	}
	if s.db == nil {
		return storage.ErrNotLoaded
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Persistence("cancel", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM appointments WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return storage.Persistence("cancel", err)
	}
	if models.Status(status) != models.StatusActive {
		return storage.ErrAlreadyCancelled
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE appointments SET status = ?, cancelled_at = ?, cancelled_by = ? WHERE id = ?`,
		string(models.StatusCancelled), formatTime(s.now()), string(by), id,
	); err != nil {
		return storage.Persistence("cancel", err)
	}
	return storage.Persistence("cancel", tx.Commit())
}

func (s *Store) Snapshot(ctx context.Context) (storage.Dump, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	appts, err := s.query(ctx, selectColumns+` ORDER BY id ASC`)
	if err != nil {
		return storage.Dump{}, err
	}

	var seq sql.NullInt64
	err = s.db.QueryRowContext(ctx, `SELECT seq FROM sqlite_sequence WHERE name = 'appointments'`).Scan(&seq)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return storage.Dump{}, storage.Persistence("snapshot", err)
	}
	next := seq.Int64 + 1
	for _, a := range appts {
		if a.ID >= next {
			next = a.ID + 1
		}
	}
	return storage.Dump{Appointments: appts, NextID: next}, nil
}

// Restore replaces every row and resets the AUTOINCREMENT sequence to d.NextID.
func (s *Store) Restore(ctx context.Context, d storage.Dump) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if s.db == nil {
		return storage.ErrNotLoaded
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Persistence("restore", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM appointments`); err != nil {
		return storage.Persistence("restore", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO appointments
			(id, client_id, service_ref, date, time, client_name, client_phone, comment,
			 status, created_at, cancelled_at, cancelled_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return storage.Persistence("restore", err)
	}
	defer stmt.Close()

	for _, a := range d.Appointments {
		if _, err := stmt.ExecContext(ctx,
			a.ID, a.ClientID, a.ServiceRef, a.Date, a.Time, a.ClientName, a.ClientPhone, a.Comment,
			string(a.Status), formatTime(a.CreatedAt), nullTime(a.CancelledAt), nullBy(a.CancelledBy),
		); err != nil {
			return storage.Persistence("restore", fmt.Errorf("appointment %d: %w", a.ID, err))
		}
	}

	// The insert above created the sqlite_sequence row if any record exists.
	if _, err := tx.ExecContext(ctx, `DELETE FROM sqlite_sequence WHERE name = 'appointments'`); err != nil {
		return storage.Persistence("restore", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sqlite_sequence (name, seq) VALUES ('appointments', ?)`, d.NextID-1,
	); err != nil {
		return storage.Persistence("restore", err)
	}

	return storage.Persistence("restore", tx.Commit())
}
