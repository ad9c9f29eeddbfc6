package storage

import (
	"fmt"
	"sort"

	"github.com/julianstephens/salonbot/internal/constants"
	"github.com/julianstephens/salonbot/internal/models"
)

// Dump is a full copy of a store: every appointment and the next id to issue.
type Dump struct {
	Appointments []models.Appointment `json:"appointments"`
	NextID       int64                `json:"next_id"`
}

// Validate checks that ids are unique and positive and that NextID is past all of them.
func (d Dump) Validate() error {
	seen := make(map[int64]struct{}, len(d.Appointments))
	var maxID int64
	for _, a := range d.Appointments {
		if a.ID <= 0 {
			return fmt.Errorf("appointment has invalid id %d", a.ID)
		}
		if _, dup := seen[a.ID]; dup {
			return fmt.Errorf("duplicate appointment id %d", a.ID)
		}
		seen[a.ID] = struct{}{}
		if a.ID > maxID {
			maxID = a.ID
		}
	}
	if d.NextID <= maxID {
		return fmt.Errorf("next id %d must be greater than highest id %d", d.NextID, maxID)
	}
	return nil
}

// ClampLimit bounds an admin listing size to the page size.
func ClampLimit(limit int) int {
	if limit <= 0 || limit > constants.AdminPageSize {
		return constants.AdminPageSize
	}
	return limit
}

// SortByClientOrder orders appointments by date ascending, ties by id ascending.
func SortByClientOrder(appts []models.Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if appts[i].Date != appts[j].Date {
			return appts[i].Date < appts[j].Date
		}
		return appts[i].ID < appts[j].ID
	})
}

// SortByRecent orders appointments by created_at descending, ties by id descending.
func SortByRecent(appts []models.Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if !appts[i].CreatedAt.Equal(appts[j].CreatedAt) {
			return appts[i].CreatedAt.After(appts[j].CreatedAt)
		}
		return appts[i].ID > appts[j].ID
	})
}

// SortByID orders appointments by id ascending.
func SortByID(appts []models.Appointment) {
	sort.Slice(appts, func(i, j int) bool { return appts[i].ID < appts[j].ID })
}
