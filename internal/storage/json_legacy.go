package storage

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/julianstephens/salonbot/internal/models"
)

// legacyAppointment is a record from an unversioned file:
// user_id is a number, service holds the display name and created_at is a
// local timestamp without zone.
type legacyAppointment struct {
	UserID      json.RawMessage `json:"user_id"`
	Service     string          `json:"service"`
	Date        string          `json:"date"`
	Time        string          `json:"time"`
	Name        string          `json:"name"`
	Phone       string          `json:"phone"`
	Comment     string          `json:"comment"`
	Status      string          `json:"status"`
	CreatedAt   string          `json:"created_at"`
	CancelledAt string          `json:"cancelled_at"`
	CancelledBy string          `json:"cancelled_by"`
}

type legacyState struct {
	Appointments map[string]legacyAppointment `json:"appointments"`
	Counters     counters                     `json:"counters"`
}

var legacyTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// decodeState reads either layout. Files written by this store always carry
// a version; anything without one is treated as legacy.
func decodeState(data []byte, serviceKey func(string) (string, bool)) (*fileState, error) {
	var header struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, err
	}
	if header.Version != 0 {
		st := &fileState{}
		if err := json.Unmarshal(data, st); err != nil {
			return nil, err
		}
		return st, nil
	}

	var legacy legacyState
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, err
	}
	st := emptyState()
	st.Counters = legacy.Counters
	for k, la := range legacy.Appointments {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil || id < 1 {
			return nil, fmt.Errorf("invalid appointment id %q", k)
		}
		a, err := la.convert(id, serviceKey)
		if err != nil {
			return nil, fmt.Errorf("appointment %s: %w", k, err)
		}
		st.Appointments[k] = a
	}
	return st, nil
}

func (la legacyAppointment) convert(id int64, serviceKey func(string) (string, bool)) (models.Appointment, error) {
	a := models.Appointment{
		ID:          id,
		ClientID:    legacyUserID(la.UserID),
		ServiceRef:  la.Service,
		Date:        la.Date,
		Time:        la.Time,
		ClientName:  la.Name,
		ClientPhone: la.Phone,
		Comment:     la.Comment,
		Status:      models.StatusActive,
	}
	if serviceKey != nil {
		if key, ok := serviceKey(la.Service); ok {
			a.ServiceRef = key
		}
	}
	if la.Status == string(models.StatusCancelled) {
		a.Status = models.StatusCancelled
	}

	var err error
	if a.CreatedAt, err = parseLegacyTime(la.CreatedAt); err != nil {
		return models.Appointment{}, fmt.Errorf("created_at: %w", err)
	}
	if la.CancelledAt != "" {
		at, err := parseLegacyTime(la.CancelledAt)
		if err != nil {
			return models.Appointment{}, fmt.Errorf("cancelled_at: %w", err)
		}
		a.CancelledAt = &at
	}
	if by := models.CancelledBy(la.CancelledBy); by.Valid() {
		a.CancelledBy = &by
	}
	return a, nil
}

func legacyUserID(raw json.RawMessage) string {
	v := strings.TrimSpace(string(raw))
	if v == "null" {
		return ""
	}
	return strings.Trim(v, `"`)
}

func parseLegacyTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	for _, layout := range legacyTimeLayouts {
		if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", v)
}

var (
	recordKeyPattern = regexp.MustCompile(`"(\d+)"\s*:\s*\{`)
	idFieldPattern   = regexp.MustCompile(`"id"\s*:\s*(\d+)`)
	nextIDPattern    = regexp.MustCompile(`"next_id"\s*:\s*(\d+)`)
)

// salvageNextID returns the smallest id above every id mentioned in data,
// which need not parse as JSON. It returns 0 when none is found.
func salvageNextID(data []byte) int64 {
	var next int64
	bump := func(pattern *regexp.Regexp, offset int64) {
		for _, m := range pattern.FindAllSubmatch(data, -1) {
			n, err := strconv.ParseInt(string(m[1]), 10, 64)
			if err == nil && n+offset > next {
				next = n + offset
			}
		}
	}
	bump(recordKeyPattern, 1)
	bump(idFieldPattern, 1)
	bump(nextIDPattern, 0)
	return next
}
