package models

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
)

type CancelledBy string

const (
	CancelledByClient CancelledBy = "client"
	CancelledByAdmin  CancelledBy = "admin"
)

// Valid reports whether by is one of the known cancellation sources.
func (by CancelledBy) Valid() bool {
	return by == CancelledByClient || by == CancelledByAdmin
}

// NewAppointment is the caller-supplied part of an appointment. The store
// assigns id, created_at and status.
type NewAppointment struct {
	ClientID    string `json:"client_id"`
	ServiceRef  string `json:"service_ref"`
	Date        string `json:"date"` // YYYY-MM-DD
	Time        string `json:"time"` // slot label, HH:MM
	ClientName  string `json:"client_name"`
	ClientPhone string `json:"client_phone"`
	Comment     string `json:"comment"`
}

// Validate checks the fields every backend requires before persisting.
func (n NewAppointment) Validate() error {
	if strings.TrimSpace(n.ClientID) == "" {
		return fmt.Errorf("client id is required")
	}
	if strings.TrimSpace(n.ServiceRef) == "" {
		return fmt.Errorf("service is required")
	}
	if _, err := time.Parse("2006-01-02", n.Date); err != nil {
		return fmt.Errorf("invalid date %q: %w", n.Date, err)
	}
	if strings.TrimSpace(n.Time) == "" {
		return fmt.Errorf("time is required")
	}
	return nil
}

type Appointment struct {
	ID          int64        `json:"id"`
	ClientID    string       `json:"client_id"`
	ServiceRef  string       `json:"service_ref"`
	Date        string       `json:"date"`
	Time        string       `json:"time"`
	ClientName  string       `json:"client_name"`
	ClientPhone string       `json:"client_phone"`
	Comment     string       `json:"comment"`
	Status      Status       `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	CancelledAt *time.Time   `json:"cancelled_at,omitempty"`
	CancelledBy *CancelledBy `json:"cancelled_by,omitempty"`
}

// FromNew builds a freshly created active appointment.
func FromNew(id int64, n NewAppointment, createdAt time.Time) Appointment {
	return Appointment{
		ID:          id,
		ClientID:    n.ClientID,
		ServiceRef:  n.ServiceRef,
		Date:        n.Date,
		Time:        n.Time,
		ClientName:  n.ClientName,
		ClientPhone: n.ClientPhone,
		Comment:     n.Comment,
		Status:      StatusActive,
		CreatedAt:   createdAt,
	}
}

func (a Appointment) IsActive() bool {
	return a.Status == StatusActive
}

// Clone returns a copy that shares no pointers with a.
func (a Appointment) Clone() Appointment {
	c := a
	if a.CancelledAt != nil {
		t := *a.CancelledAt
		c.CancelledAt = &t
	}
	if a.CancelledBy != nil {
		by := *a.CancelledBy
		c.CancelledBy = &by
	}
	return c
}

// MarkCancelled sets the cancellation metadata in place.
func (a *Appointment) MarkCancelled(by CancelledBy, at time.Time) {
	a.Status = StatusCancelled
	a.CancelledAt = &at
	a.CancelledBy = &by
}
