package admin

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/julianstephens/salonbot/internal/catalog"
	"github.com/julianstephens/salonbot/internal/dialog"
	"github.com/julianstephens/salonbot/internal/events"
	"github.com/julianstephens/salonbot/internal/models"
	"github.com/julianstephens/salonbot/internal/storage"
)

const adminID = "100"

func newStore(t *testing.T, n int) *storage.JSONStore {
	t.Helper()
	store := storage.NewJSONStore(filepath.Join(t.TempDir(), "appointments.json"))
	if err := store.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	for i := 1; i <= n; i++ {
		_, err := store.Create(context.Background(), models.NewAppointment{
			ClientID:    fmt.Sprintf("client-%d", i),
			ServiceRef:  "manicure",
			Date:        "2026-10-16",
			Time:        "10:30",
			ClientName:  "Anna",
			ClientPhone: "5551234",
			Comment:     "none",
		})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	return store
}

func newController(t *testing.T, store Store) (*Controller, *events.Recorder) {
	t.Helper()
	rec := &events.Recorder{}
	return NewController(store, catalog.Default(), []string{adminID, " 200 "}, WithPublisher(rec)), rec
}

func TestAuthorize(t *testing.T) {
	c, _ := newController(t, newStore(t, 0))
	tests := []struct {
		caller  string
		wantErr bool
	}{
		{adminID, false},
		{"200", false},
		{"300", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.caller, func(t *testing.T) {
			err := c.Authorize(tt.caller)
			if tt.wantErr && !errors.Is(err, ErrUnauthorized) {
				t.Errorf("Authorize(%q) = %v, want ErrUnauthorized", tt.caller, err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Authorize(%q) = %v", tt.caller, err)
			}
		})
	}
}

func TestUnauthorizedCallerChangesNothing(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, 1)
	c, rec := newController(t, store)
	before, _ := store.Get(ctx, 1)

	ops := map[string]func() error{
		"reschedule": func() error { _, err := c.Reschedule(ctx, "300", 1, "14:00"); return err },
		"comment":    func() error { _, err := c.EditComment(ctx, "300", 1, "vip"); return err },
		"cancel":     func() error { _, err := c.Cancel(ctx, "300", 1); return err },
		"list":       func() error { _, err := c.ListRecent(ctx, "300", 0); return err },
		"get":        func() error { _, err := c.Get(ctx, "300", 1); return err },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			if err := op(); !errors.Is(err, ErrUnauthorized) {
				t.Errorf("error = %v, want ErrUnauthorized", err)
			}
		})
	}

	after, _ := store.Get(ctx, 1)
	if after.Time != before.Time || after.Comment != before.Comment || after.Status != before.Status {
		t.Errorf("record changed: %+v -> %+v", before, after)
	}
	if len(rec.Events()) != 0 {
		t.Errorf("unauthorized calls published %d events", len(rec.Events()))
	}
}

func TestReschedule(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, 7)
	c, rec := newController(t, store)
	before, _ := store.Get(ctx, 7)

	got, err := c.Reschedule(ctx, adminID, 7, " 14:00 ")
	if err != nil {
		t.Fatalf("Reschedule failed: %v", err)
	}
	if got.Time != "14:00" {
		t.Errorf("Time = %q, want 14:00", got.Time)
	}
	want := before
	want.Time = "14:00"
	if got != want {
		t.Errorf("other fields changed:\n got %+v\nwant %+v", got, want)
	}

	evs := rec.Events()
	if len(evs) != 1 || evs[0].Type != events.Rescheduled || evs[0].Actor != adminID || evs[0].Appointment.ID != 7 {
		t.Errorf("events = %+v", evs)
	}
}

func TestReschedule_FreeFormValue(t *testing.T) {
	ctx := context.Background()
	c, _ := newController(t, newStore(t, 1))

	got, err := c.Reschedule(ctx, adminID, 1, "after lunch")
	if err != nil || got.Time != "after lunch" {
		t.Errorf("Reschedule = %+v, %v", got, err)
	}
	if _, err := c.Reschedule(ctx, adminID, 1, "  "); !errors.Is(err, ErrEmptyValue) {
		t.Errorf("empty time error = %v, want ErrEmptyValue", err)
	}
}

func TestEditComment(t *testing.T) {
	ctx := context.Background()
	c, rec := newController(t, newStore(t, 2))

	got, err := c.EditComment(ctx, adminID, 2, "prefers gel")
	if err != nil {
		t.Fatalf("EditComment failed: %v", err)
	}
	if got.Comment != "prefers gel" || got.Time != "10:30" {
		t.Errorf("got %+v", got)
	}
	if evs := rec.Events(); len(evs) != 1 || evs[0].Type != events.Commented {
		t.Errorf("events = %+v", evs)
	}
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	c, rec := newController(t, newStore(t, 1))

	got, err := c.Cancel(ctx, adminID, 1)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if got.Status != models.StatusCancelled || got.CancelledBy == nil || *got.CancelledBy != models.CancelledByAdmin {
		t.Errorf("got %+v", got)
	}

	if _, err := c.Cancel(ctx, adminID, 1); !errors.Is(err, storage.ErrAlreadyCancelled) {
		t.Errorf("second cancel error = %v, want ErrAlreadyCancelled", err)
	}
	if len(rec.Events()) != 1 {
		t.Errorf("got %d events, want 1", len(rec.Events()))
	}
}

func TestMutationsOnMissingID(t *testing.T) {
	ctx := context.Background()
	c, _ := newController(t, newStore(t, 1))

	if _, err := c.Reschedule(ctx, adminID, 42, "14:00"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Reschedule error = %v", err)
	}
	if _, err := c.EditComment(ctx, adminID, 42, "x"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("EditComment error = %v", err)
	}
	if _, err := c.Cancel(ctx, adminID, 42); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Cancel error = %v", err)
	}
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	ctx := context.Background()
	rec := &events.Recorder{Err: errors.New("broker down")}
	c := NewController(newStore(t, 1), catalog.Default(), []string{adminID}, WithPublisher(rec))

	if _, err := c.Reschedule(ctx, adminID, 1, "15:00"); err != nil {
		t.Errorf("Reschedule failed: %v", err)
	}
}

func TestPanel_RescheduleFlow(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, 3)
	c, _ := newController(t, store)
	p := &Panel{Admin: adminID}

	prompt, err := c.Open(ctx, p)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !prompt.HasChoice("appt:3") || prompt.Choices[0].Label != "#3 2026-10-16 10:30" {
		t.Fatalf("list prompt = %+v", prompt.Choices)
	}

	step := func(in dialog.Input) Outcome {
		t.Helper()
		out, err := c.HandlePanel(ctx, p, in)
		if err != nil {
			t.Fatalf("HandlePanel(%+v) failed: %v", in, err)
		}
		return out
	}

	out := step(dialog.Choose("appt:2"))
	if p.Step != StepActions || p.Selected != 2 || !strings.Contains(out.Prompt.Text, "#2") {
		t.Fatalf("after select: %+v %q", p, out.Prompt.Text)
	}
	step(dialog.Choose(ActionReschedule))
	if p.Step != StepReschedule {
		t.Fatalf("step = %v, want reschedule", p.Step)
	}
	out = step(dialog.Text("16:30"))
	if p.Step != StepList || !strings.Contains(out.Prompt.Notice, "16:30") {
		t.Errorf("after apply: step %v notice %q", p.Step, out.Prompt.Notice)
	}

	got, _ := store.Get(ctx, 2)
	if got.Time != "16:30" {
		t.Errorf("Time = %q, want 16:30", got.Time)
	}

	out = step(dialog.Choose(ChoiceClose))
	if !out.Done {
		t.Error("close did not leave the panel")
	}
}

func TestPanel_CancelAndNotFound(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, 1)
	c, _ := newController(t, store)
	p := &Panel{Admin: adminID}
	if _, err := c.Open(ctx, p); err != nil {
		t.Fatal(err)
	}

	out, err := c.HandlePanel(ctx, p, dialog.Text("#9"))
	if !errors.Is(err, storage.ErrNotFound) || out.Prompt.Notice != "Appointment #9 not found." {
		t.Errorf("not found: %v %q", err, out.Prompt.Notice)
	}

	if _, err := c.HandlePanel(ctx, p, dialog.Choose("appt:1")); err != nil {
		t.Fatal(err)
	}
	out, err = c.HandlePanel(ctx, p, dialog.Choose(ActionCancel))
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if !strings.Contains(out.Prompt.Notice, "cancelled") || !strings.HasSuffix(out.Prompt.Choices[0].Label, "❌") {
		t.Errorf("after cancel: %+v", out.Prompt)
	}
	got, _ := store.Get(ctx, 1)
	if *got.CancelledBy != models.CancelledByAdmin {
		t.Errorf("CancelledBy = %v", *got.CancelledBy)
	}
}

func TestPanel_EmptyValueStaysOnPrompt(t *testing.T) {
	ctx := context.Background()
	c, _ := newController(t, newStore(t, 1))
	p := &Panel{Admin: adminID, Step: StepComment, Selected: 1}

	out, err := c.HandlePanel(ctx, p, dialog.Text("   "))
	if !errors.Is(err, ErrEmptyValue) {
		t.Errorf("error = %v, want ErrEmptyValue", err)
	}
	if p.Step != StepComment || out.Prompt.Notice == "" {
		t.Errorf("step %v notice %q", p.Step, out.Prompt.Notice)
	}
}

func TestPanel_NonAdmin(t *testing.T) {
	ctx := context.Background()
	c, _ := newController(t, newStore(t, 1))
	p := &Panel{Admin: "300"}

	if _, err := c.Open(ctx, p); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Open error = %v", err)
	}
	out, err := c.HandlePanel(ctx, p, dialog.Choose("appt:1"))
	if !errors.Is(err, ErrUnauthorized) || !out.Done {
		t.Errorf("HandlePanel = %+v, %v", out, err)
	}
}

type brokenStore struct {
	Store
}

func (brokenStore) ListRecent(context.Context, int) ([]models.Appointment, error) {
	return nil, &storage.PersistenceError{Op: "list", Err: errors.New("disk gone")}
}

func TestPanel_ListDegrades(t *testing.T) {
	c := NewController(brokenStore{}, catalog.Default(), []string{adminID}, WithClock(func() time.Time { return time.Time{} }))
	prompt, err := c.Open(context.Background(), &Panel{Admin: adminID})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if len(prompt.Choices) != 1 || prompt.Choices[0].Value != ChoiceClose {
		t.Errorf("degraded prompt = %+v", prompt)
	}
}

func TestPanel_CommandsNeverCancel(t *testing.T) {
	tests := []struct {
		name string
		in   dialog.Input
		done bool
	}{
		{name: "typed /cancel", in: dialog.ParseText("/cancel"), done: true},
		{name: "typed /restart", in: dialog.ParseText("/restart"), done: true},
		{name: "typed cancel text", in: dialog.Text("cancel"), done: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t, 1)
			c, rec := newController(t, store)
			p := &Panel{Admin: adminID}
			if _, err := c.Open(ctx, p); err != nil {
				t.Fatal(err)
			}
			if _, err := c.HandlePanel(ctx, p, dialog.Choose("appt:1")); err != nil {
				t.Fatal(err)
			}

			out, err := c.HandlePanel(ctx, p, tt.in)
			if err != nil {
				t.Fatalf("HandlePanel() error = %v", err)
			}
			if out.Done != tt.done {
				t.Errorf("Done = %v, want %v", out.Done, tt.done)
			}
			got, _ := store.Get(ctx, 1)
			if got.Status != models.StatusActive {
				t.Errorf("appointment #1 status = %q, want active", got.Status)
			}
			if n := len(rec.Events()); n != 0 {
				t.Errorf("published %d events, want none", n)
			}
		})
	}
}
