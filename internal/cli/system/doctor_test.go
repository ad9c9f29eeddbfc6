package system

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gokeyring "github.com/zalando/go-keyring"

	"github.com/julianstephens/salonbot/internal/backup"
	"github.com/julianstephens/salonbot/internal/cli"
	"github.com/julianstephens/salonbot/internal/models"
	"github.com/julianstephens/salonbot/internal/storage"
	"github.com/julianstephens/salonbot/internal/storage/sqlite"
)

func setupTestDoctorDB(t *testing.T) (*cli.Context, *sqlite.Store) {
	t.Helper()
	gokeyring.MockInit()

	store := sqlite.NewStore(filepath.Join(t.TempDir(), "salonbot.db"))
	if err := store.Init(); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return newTestContext(t, store), store
}

func output(ctx *cli.Context) string {
	return ctx.Out.(*bytes.Buffer).String()
}

func TestDoctorCmd_HealthyDB(t *testing.T) {
	ctx, _ := setupTestDoctorDB(t)

	if err := (&DoctorCmd{}).Run(ctx); err != nil {
		t.Errorf("doctor command failed on healthy database: %v\n%s", err, output(ctx))
	}
	if !strings.Contains(output(ctx), "✓ Schema version: OK") {
		t.Errorf("missing schema check in output:\n%s", output(ctx))
	}
}

func TestDoctorCmd_MissingBackupsAndTokenWarn(t *testing.T) {
	ctx, _ := setupTestDoctorDB(t)
	orig := resolveToken
	resolveToken = func(string) (string, error) { return "", errors.New("no Telegram bot token configured") }
	t.Cleanup(func() { resolveToken = orig })

	if err := (&DoctorCmd{}).Run(ctx); err != nil {
		t.Errorf("warnings should not fail doctor: %v", err)
	}
	out := output(ctx)
	for _, want := range []string{"⚠ Backups present: WARNING", "⚠ Bot token: WARNING"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestDoctorCmd_WithBackups(t *testing.T) {
	ctx, store := setupTestDoctorDB(t)

	if _, err := backup.NewManager(store.GetConfigPath()).Create(); err != nil {
		t.Fatalf("failed to create backup: %v", err)
	}
	if err := (&DoctorCmd{}).Run(ctx); err != nil {
		t.Errorf("doctor command failed with backups present: %v", err)
	}
	if !strings.Contains(output(ctx), "✓ Backups present: OK") {
		t.Errorf("backups check not OK:\n%s", output(ctx))
	}
}

func TestDoctorCmd_BrokenSchema(t *testing.T) {
	ctx, store := setupTestDoctorDB(t)

	db := store.GetDB()
	if _, err := db.Exec("DELETE FROM schema_version"); err != nil {
		t.Fatalf("failed to delete schema version: %v", err)
	}
	if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (999)"); err != nil {
		t.Fatalf("failed to insert corrupted schema version: %v", err)
	}

	if err := (&DoctorCmd{}).Run(ctx); err == nil {
		t.Error("doctor command should fail with corrupted schema")
	}
}

func TestCheckMigrationsComplete_Incomplete(t *testing.T) {
	ctx, store := setupTestDoctorDB(t)

	if _, err := store.GetDB().Exec("DELETE FROM schema_version"); err != nil {
		t.Fatalf("failed to reset schema version: %v", err)
	}
	if err := checkMigrationsComplete(ctx); err == nil {
		t.Error("checkMigrationsComplete should fail with incomplete migrations")
	}
}

func TestDoctorCmd_DataValidation(t *testing.T) {
	ctx, store := setupTestDoctorDB(t)
	bg := context.Background()
	created := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

	// Two active appointments in one slot, as a free-form admin reschedule can leave.
	dump := storage.Dump{
		Appointments: []models.Appointment{
			models.FromNew(1, models.NewAppointment{ClientID: "1", ServiceRef: "brows", Date: "2026-10-16", Time: "09:00"}, created),
			models.FromNew(2, models.NewAppointment{ClientID: "2", ServiceRef: "brows", Date: "2026-10-16", Time: "09:00"}, created),
		},
		NextID: 3,
	}
	if err := store.Restore(bg, dump); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if err := (&DoctorCmd{}).Run(ctx); err != nil {
		t.Fatalf("over-capacity slot should only warn: %v\n%s", err, output(ctx))
	}
	if !strings.Contains(output(ctx), "⚠ Data validation: WARNING") {
		t.Errorf("expected data validation warning:\n%s", output(ctx))
	}
}

func TestDoctorCmd_UnreachableStoreSkipsDependentChecks(t *testing.T) {
	gokeyring.MockInit()
	store := sqlite.NewStore(filepath.Join(t.TempDir(), "missing.db"))
	ctx := newTestContext(t, store)

	err := (&DoctorCmd{}).Run(ctx)
	if err == nil {
		t.Fatal("doctor should fail when the store is missing")
	}
	if !strings.Contains(output(ctx), "⊘ Schema version: SKIPPED (store not reachable)") {
		t.Errorf("schema check not skipped:\n%s", output(ctx))
	}
}

func TestDoctorChecks_SkipForJSON(t *testing.T) {
	store := storage.NewJSONStore(filepath.Join(t.TempDir(), "appointments.json"))
	if err := store.Init(); err != nil {
		t.Fatal(err)
	}
	ctx := newTestContext(t, store)

	var skip errSkip
	if err := checkSchemaVersion(ctx); !errors.As(err, &skip) {
		t.Errorf("checkSchemaVersion() = %v, want skip", err)
	}
}

func TestCheckClockTimezone(t *testing.T) {
	if err := checkClockTimezone(); err != nil {
		t.Errorf("clock/timezone check failed: %v", err)
	}
}
