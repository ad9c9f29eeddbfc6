package backup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/julianstephens/salonbot/internal/constants"
	"github.com/julianstephens/salonbot/internal/models"
	"github.com/julianstephens/salonbot/internal/storage"
)

func setupTestDB(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "salonbot.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE appointments (id INTEGER PRIMARY KEY, client_id TEXT)`); err != nil {
		t.Fatalf("failed to create test table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO appointments (id, client_id) VALUES (1, '42'), (2, '43')`); err != nil {
		t.Fatalf("failed to insert test data: %v", err)
	}
	return dbPath
}

func setupTestJSON(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "appointments.json")
	s := storage.NewJSONStore(path)
	if err := s.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if _, err := s.Create(context.Background(), models.NewAppointment{
		ClientID: "42", ServiceRef: "manicure", Date: "2026-10-16", Time: "10:30",
	}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return path
}

// stepClock makes every call to nowFunc one second later than the last.
func stepClock(t *testing.T) {
	t.Helper()
	base := time.Date(2026, 10, 14, 12, 0, 0, 0, time.Local)
	calls := 0
	orig := nowFunc
	nowFunc = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Second)
	}
	t.Cleanup(func() { nowFunc = orig })
}

func countRows(t *testing.T, path string) int {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM appointments").Scan(&n); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return n
}

func TestCreate_SQLite(t *testing.T) {
	dbPath := setupTestDB(t)
	mgr := NewManager(dbPath)

	path, err := mgr.Create()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if filepath.Dir(path) != filepath.Join(filepath.Dir(dbPath), constants.BackupDirName) {
		t.Errorf("backup written to %s, want backup directory", path)
	}
	if got := countRows(t, path); got != 2 {
		t.Errorf("backup has %d rows, want 2", got)
	}
}

func TestCreate_JSON(t *testing.T) {
	path := setupTestJSON(t)
	mgr := NewManager(path)

	backupPath, err := mgr.Create()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if filepath.Ext(backupPath) != ".json" {
		t.Errorf("backup %s should keep the .json suffix", backupPath)
	}

	restored := storage.NewJSONStore(backupPath)
	if err := restored.Load(); err != nil {
		t.Fatalf("Load backup: %v", err)
	}
	if _, err := restored.Get(context.Background(), 1); err != nil {
		t.Errorf("backup missing appointment 1: %v", err)
	}
}

func TestCreate_MissingStore(t *testing.T) {
	mgr := NewManager(filepath.Join(t.TempDir(), "missing.db"))
	if _, err := mgr.Create(); err == nil {
		t.Fatal("expected error for missing store")
	}
}

func TestCreate_SameSecondGetsSuffix(t *testing.T) {
	dbPath := setupTestDB(t)
	orig := nowFunc
	fixed := time.Date(2026, 10, 14, 12, 0, 0, 0, time.Local)
	nowFunc = func() time.Time { return fixed }
	t.Cleanup(func() { nowFunc = orig })

	mgr := NewManager(dbPath)
	first, err := mgr.Create()
	if err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	second, err := mgr.Create()
	if err != nil {
		t.Fatalf("second Create failed: %v", err)
	}
	if first == second {
		t.Fatalf("both backups written to %s", first)
	}
	if filepath.Base(second) != constants.BackupFilePrefix+"20261014-120000-1.db" {
		t.Errorf("second backup = %s", filepath.Base(second))
	}
}

func TestList_NewestFirstAndFiltered(t *testing.T) {
	dbPath := setupTestDB(t)
	stepClock(t)
	mgr := NewManager(dbPath)

	for i := 0; i < 3; i++ {
		if _, err := mgr.Create(); err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
	}
	// Files that do not look like backups are ignored.
	if err := os.WriteFile(filepath.Join(mgr.BackupDir(), "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(mgr.BackupDir(), constants.BackupFilePrefix+"garbage.db"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	backups, err := mgr.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(backups) != 3 {
		t.Fatalf("List returned %d backups, want 3", len(backups))
	}
	for i := 1; i < len(backups); i++ {
		if !backups[i-1].Timestamp.After(backups[i].Timestamp) {
			t.Errorf("backups not sorted newest first: %v then %v", backups[i-1].Timestamp, backups[i].Timestamp)
		}
	}
}

func TestList_NoDirectory(t *testing.T) {
	mgr := NewManager(filepath.Join(t.TempDir(), "salonbot.db"))
	backups, err := mgr.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(backups) != 0 {
		t.Errorf("List returned %d backups, want 0", len(backups))
	}
}

func TestRotate_KeepsMaxBackups(t *testing.T) {
	dbPath := setupTestDB(t)
	stepClock(t)
	mgr := NewManager(dbPath)

	var newest string
	for i := 0; i < constants.MaxBackups+3; i++ {
		p, err := mgr.Create()
		if err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
		newest = p
	}

	backups, err := mgr.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(backups) != constants.MaxBackups {
		t.Errorf("kept %d backups, want %d", len(backups), constants.MaxBackups)
	}
	if backups[0].Path != newest {
		t.Errorf("newest backup = %s, want %s", backups[0].Path, newest)
	}
}

func TestRestore_SQLite(t *testing.T) {
	dbPath := setupTestDB(t)
	stepClock(t)
	mgr := NewManager(dbPath)

	backupPath, err := mgr.Create()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("DELETE FROM appointments"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	if err := mgr.Restore(backupPath); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if got := countRows(t, dbPath); got != 2 {
		t.Errorf("restored store has %d rows, want 2", got)
	}

	backups, _ := mgr.List()
	if len(backups) != 2 {
		t.Errorf("expected pre-restore safety backup, got %d backups", len(backups))
	}
}

func TestRestore_Invalid(t *testing.T) {
	path := setupTestJSON(t)
	mgr := NewManager(path)

	tests := []struct {
		name    string
		content string
	}{
		{name: "not json", content: "{"},
		{name: "no appointments", content: `{"counters":{"next_id":1}}`},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := filepath.Join(t.TempDir(), fmt.Sprintf("bad-%d.json", i))
			if err := os.WriteFile(bad, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			if err := mgr.Restore(bad); err == nil {
				t.Error("expected error restoring invalid backup")
			}
		})
	}

	if err := mgr.Restore(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error restoring missing backup")
	}
}

func TestResolve(t *testing.T) {
	dbPath := setupTestDB(t)
	mgr := NewManager(dbPath)
	backupPath, err := mgr.Create()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	for _, in := range []string{backupPath, filepath.Base(backupPath)} {
		got, err := mgr.Resolve(in)
		if err != nil {
			t.Errorf("Resolve(%q) failed: %v", in, err)
			continue
		}
		if got != backupPath {
			t.Errorf("Resolve(%q) = %s, want %s", in, got, backupPath)
		}
	}
	if _, err := mgr.Resolve("nope.db"); err == nil {
		t.Error("expected error resolving unknown backup")
	}
}
