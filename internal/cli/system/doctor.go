package system

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/julianstephens/salonbot/internal/backup"
	"github.com/julianstephens/salonbot/internal/cli"
	"github.com/julianstephens/salonbot/internal/config"
	"github.com/julianstephens/salonbot/internal/migration"
	"github.com/julianstephens/salonbot/internal/validation"
)

type schemaVersioner interface {
	SchemaVersion() (current, latest int, err error)
}

// errSkip marks a check that does not apply to this store.
type errSkip struct{ reason string }

func (e errSkip) Error() string { return e.reason }

// errWarn marks a finding that does not fail the run.
type errWarn struct{ msg string }

func (e errWarn) Error() string { return e.msg }

type check struct {
	name string
	// needsStore checks are skipped when the store could not be loaded.
	needsStore bool
	run        func(ctx *cli.Context) error
}

type DoctorCmd struct{}

func (cmd *DoctorCmd) Run(ctx *cli.Context) error {
	ctx.Println("Running diagnostics...")
	ctx.Println()

	checks := []check{
		{name: "Store reachable", run: checkStoreReachable},
		{name: "Schema version", needsStore: true, run: checkSchemaVersion},
		{name: "Migrations complete", needsStore: true, run: checkMigrationsComplete},
		{name: "Backups present", run: checkBackupsPresent},
		{name: "Catalog", run: checkCatalog},
		{name: "Data validation", needsStore: true, run: checkValidation},
		{name: "Administrators", run: checkAdmins},
		{name: "Bot token", run: checkToken},
		{name: "Clock/timezone", run: func(*cli.Context) error { return checkClockTimezone() }},
	}

	hasError := false
	storeOK := true
	for i, c := range checks {
		if c.needsStore && !storeOK {
			ctx.Printf("⊘ %s: SKIPPED (store not reachable)\n", c.name)
			continue
		}

		err := c.run(ctx)
		var skip errSkip
		var warn errWarn
		switch {
		case err == nil:
			ctx.Printf("✓ %s: OK\n", c.name)
		case errors.As(err, &skip):
			ctx.Printf("⊘ %s: SKIPPED (%s)\n", c.name, skip.reason)
		case errors.As(err, &warn):
			ctx.Printf("⚠ %s: WARNING\n", c.name)
			for _, line := range strings.Split(warn.msg, "\n") {
				ctx.Printf("   %s\n", line)
			}
		default:
			ctx.Printf("❌ %s: FAIL\n", c.name)
			ctx.Printf("   Error: %v\n", err)
			hasError = true
			if i == 0 {
				storeOK = false
			}
		}
	}

	ctx.Println()
	if hasError {
		ctx.Println("Diagnostics completed with errors.")
		return fmt.Errorf("one or more health checks failed")
	}

	ctx.Println("All diagnostics passed!")
	return nil
}

func checkStoreReachable(ctx *cli.Context) error {
	// Pending migrations are reported by their own check.
	if err := ctx.Store.Load(); err != nil && !errors.Is(err, migration.ErrMigrationPending) {
		return fmt.Errorf("failed to load store: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ctx.Store.Ping(pingCtx); err != nil {
		return fmt.Errorf("failed to query store: %w", err)
	}
	return nil
}

func schemaVersions(ctx *cli.Context) (int, int, error) {
	sv, ok := ctx.Store.(schemaVersioner)
	if !ok {
		return 0, 0, errSkip{"JSON store has no schema"}
	}
	current, latest, err := sv.SchemaVersion()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return current, latest, nil
}

func checkSchemaVersion(ctx *cli.Context) error {
	current, latest, err := schemaVersions(ctx)
	if err != nil {
		return err
	}
	if current > latest {
		return fmt.Errorf("database schema version (%d) is newer than supported version (%d)", current, latest)
	}
	return nil
}

func checkMigrationsComplete(ctx *cli.Context) error {
	current, latest, err := schemaVersions(ctx)
	if err != nil {
		return err
	}
	if current < latest {
		return fmt.Errorf("migrations incomplete: current version %d, latest version %d", current, latest)
	}
	return nil
}

func checkBackupsPresent(ctx *cli.Context) error {
	mgr, err := ctx.Backups()
	if errors.Is(err, backup.ErrUnsupported) {
		return errSkip{"PostgreSQL backups are managed outside salonbot"}
	}
	if err != nil {
		return err
	}
	backups, err := mgr.List()
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}
	if len(backups) == 0 {
		return errWarn{"no backups found - consider creating one with 'salonbot backup create'"}
	}
	return nil
}

func checkCatalog(ctx *cli.Context) error {
	cat, err := ctx.Catalog()
	if err != nil {
		return err
	}
	if len(cat.Services()) == 0 || len(cat.Slots()) == 0 {
		return errors.New("catalog has no services or no slots")
	}
	return nil
}

func checkValidation(ctx *cli.Context) error {
	cat, err := ctx.Catalog()
	if err != nil {
		return errSkip{"catalog not loaded"}
	}
	dump, err := ctx.Store.Snapshot(context.Background())
	if err != nil {
		return fmt.Errorf("failed to read appointments: %w", err)
	}

	result := validation.New(cat, ctx.Config.SlotCapacity).ValidateDump(dump)
	var failures, warnings []string
	for _, c := range result.Conflicts {
		if c.Type.Warning() {
			warnings = append(warnings, c.Description)
		} else {
			failures = append(failures, c.Description)
		}
	}
	if len(failures) > 0 {
		return errors.New(strings.Join(failures, "; "))
	}
	if len(warnings) > 0 {
		return errWarn{strings.Join(warnings, "\n")}
	}
	return nil
}

func checkAdmins(ctx *cli.Context) error {
	if len(ctx.Config.Admins()) == 0 {
		return errWarn{"no administrators configured - set --admins or ADMIN_IDS to receive notifications"}
	}
	return nil
}

func checkToken(*cli.Context) error {
	if _, err := resolveToken(""); err != nil {
		return errWarn{err.Error()}
	}
	return nil
}

var resolveToken = config.ResolveToken

func checkClockTimezone() error {
	now := time.Now()
	if now.Year() < 2020 || now.Year() > 2100 {
		return fmt.Errorf("system time appears incorrect: %s", now.Format(time.RFC3339))
	}
	return nil
}
