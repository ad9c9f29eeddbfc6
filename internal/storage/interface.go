package storage

import (
	"context"

	"github.com/julianstephens/salonbot/internal/models"
)

// Provider is the appointment store. Every backend assigns ids itself,
// never reuses them, and returns copies from reads.
type Provider interface {
	// Lifecycle
	Init() error
	Load() error
	Close() error
	Ping(ctx context.Context) error

	// Appointments
	Create(ctx context.Context, n models.NewAppointment) (int64, error)
	Get(ctx context.Context, id int64) (models.Appointment, error)
	// ListByClient returns the client's appointments ordered by date, then id.
	ListByClient(ctx context.Context, clientID string) ([]models.Appointment, error)
	// ListRecent returns the newest appointments first. Limits outside
	// (0, constants.AdminPageSize] are clamped to AdminPageSize.
	ListRecent(ctx context.Context, limit int) ([]models.Appointment, error)
	CountActiveAt(ctx context.Context, date, slot string) (int, error)

	// Typed mutations
	SetTime(ctx context.Context, id int64, slot string) error
	SetComment(ctx context.Context, id int64, comment string) error
	Cancel(ctx context.Context, id int64, by models.CancelledBy) error

	// Bulk transfer between backends
	Snapshot(ctx context.Context) (Dump, error)
	Restore(ctx context.Context, d Dump) error

	// Utils
	GetConfigPath() string
}
