// Package validation checks a store snapshot for records the bot could never
// have produced.
package validation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/julianstephens/salonbot/internal/catalog"
	"github.com/julianstephens/salonbot/internal/constants"
	"github.com/julianstephens/salonbot/internal/models"
	"github.com/julianstephens/salonbot/internal/storage"
)

// ConflictType represents the type of validation conflict
type ConflictType string

const (
	ConflictDuplicateID      ConflictType = "duplicate_id"
	ConflictInvalidID        ConflictType = "invalid_id"
	ConflictStaleCounter     ConflictType = "stale_counter"
	ConflictInvalidDate      ConflictType = "invalid_date"
	ConflictUnknownService   ConflictType = "unknown_service"
	ConflictUnknownSlot      ConflictType = "unknown_slot"
	ConflictInvalidStatus    ConflictType = "invalid_status"
	ConflictCancelMetadata   ConflictType = "cancel_metadata"
	ConflictMissingClient    ConflictType = "missing_client"
	ConflictSlotOverCapacity ConflictType = "slot_over_capacity"
)

// Conflict is one problem found in the snapshot.
type Conflict struct {
	Type           ConflictType
	Description    string
	AppointmentIDs []int64
}

type ValidationResult struct {
	Conflicts []Conflict
}

func (vr *ValidationResult) HasConflicts() bool {
	return len(vr.Conflicts) > 0
}

// Warnings returns conflicts that do not stop the bot from serving.
func (vr *ValidationResult) Warnings() []Conflict {
	var out []Conflict
	for _, c := range vr.Conflicts {
		if c.Type.Warning() {
			out = append(out, c)
		}
	}
	return out
}

// Warning reports whether t is tolerated at runtime. Admin reschedules are
// free-form, so unknown slots and shared slots can legitimately appear.
func (t ConflictType) Warning() bool {
	return t == ConflictUnknownSlot || t == ConflictSlotOverCapacity
}

func (vr *ValidationResult) FormatReport() string {
	if !vr.HasConflicts() {
		return "No conflicts detected."
	}

	var b strings.Builder
	b.WriteString("Conflicts detected:\n")
	for _, conflict := range vr.Conflicts {
		fmt.Fprintf(&b, "- %s\n", conflict.Description)
	}
	return b.String()
}

func (vr *ValidationResult) add(t ConflictType, ids []int64, format string, args ...any) {
	vr.Conflicts = append(vr.Conflicts, Conflict{
		Type:           t,
		Description:    fmt.Sprintf(format, args...),
		AppointmentIDs: ids,
	})
}

// Validator checks snapshots against a catalog and slot capacity.
// Capacity 0 means unlimited.
type Validator struct {
	cat      *catalog.Catalog
	capacity int
}

func New(cat *catalog.Catalog, capacity int) *Validator {
	return &Validator{cat: cat, capacity: capacity}
}

func (v *Validator) ValidateDump(d storage.Dump) ValidationResult {
	var result ValidationResult

	appts := make([]models.Appointment, len(d.Appointments))
	copy(appts, d.Appointments)
	storage.SortByID(appts)

	seen := make(map[int64]bool, len(appts))
	var maxID int64
	for _, a := range appts {
		if a.ID <= 0 {
			result.add(ConflictInvalidID, []int64{a.ID}, "appointment has invalid id %d", a.ID)
		} else if seen[a.ID] {
			result.add(ConflictDuplicateID, []int64{a.ID}, "appointment id #%d is used more than once", a.ID)
		}
		seen[a.ID] = true
		if a.ID > maxID {
			maxID = a.ID
		}
		v.validateRecord(&result, a)
	}

	if d.NextID <= maxID {
		result.add(ConflictStaleCounter, nil,
			"next id %d is not greater than highest id %d; new appointments would reuse ids", d.NextID, maxID)
	}

	v.validateCapacity(&result, appts)
	return result
}

func (v *Validator) validateRecord(result *ValidationResult, a models.Appointment) {
	ids := []int64{a.ID}

	if strings.TrimSpace(a.ClientID) == "" {
		result.add(ConflictMissingClient, ids, "appointment #%d has no client id", a.ID)
	}
	if _, err := time.Parse(constants.DateFormat, a.Date); err != nil {
		result.add(ConflictInvalidDate, ids, "appointment #%d has invalid date %q", a.ID, a.Date)
	}
	if v.cat != nil {
		if _, ok := v.cat.Lookup(a.ServiceRef); !ok {
			result.add(ConflictUnknownService, ids, "appointment #%d references unknown service %q", a.ID, a.ServiceRef)
		}
		if !v.cat.HasSlot(a.Time) {
			result.add(ConflictUnknownSlot, ids, "appointment #%d is at %q, which is not a catalog slot", a.ID, a.Time)
		}
	}

	switch a.Status {
	case models.StatusActive:
		if a.CancelledAt != nil || a.CancelledBy != nil {
			result.add(ConflictCancelMetadata, ids, "active appointment #%d carries cancellation metadata", a.ID)
		}
	case models.StatusCancelled:
		if a.CancelledAt == nil || a.CancelledBy == nil || !a.CancelledBy.Valid() {
			result.add(ConflictCancelMetadata, ids, "cancelled appointment #%d is missing who or when", a.ID)
		}
	default:
		result.add(ConflictInvalidStatus, ids, "appointment #%d has unknown status %q", a.ID, a.Status)
	}
}

func (v *Validator) validateCapacity(result *ValidationResult, appts []models.Appointment) {
	if v.capacity <= 0 {
		return
	}

	type key struct{ date, slot string }
	slots := make(map[key][]int64)
	for _, a := range appts {
		if a.IsActive() {
			k := key{a.Date, a.Time}
			slots[k] = append(slots[k], a.ID)
		}
	}

	keys := make([]key, 0, len(slots))
	for k, ids := range slots {
		if len(ids) > v.capacity {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].date != keys[j].date {
			return keys[i].date < keys[j].date
		}
		return keys[i].slot < keys[j].slot
	})

	for _, k := range keys {
		ids := slots[k]
		result.add(ConflictSlotOverCapacity, ids,
			"%s %s has %d active appointments (capacity %d): %s",
			k.date, k.slot, len(ids), v.capacity, formatIDs(ids))
	}
}

func formatIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("#%d", id)
	}
	return strings.Join(parts, ", ")
}
