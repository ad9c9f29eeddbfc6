package system

import (
	"errors"
	"fmt"

	"github.com/julianstephens/salonbot/internal/cli"
	"github.com/julianstephens/salonbot/internal/migration"
)

type migrator interface {
	RunMigrations(logFn func(string)) (int, error)
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(ctx *cli.Context) error {
	if err := ctx.Store.Load(); err != nil && !errors.Is(err, migration.ErrMigrationPending) {
		return fmt.Errorf("failed to load database: %w", err)
	}
	defer ctx.Store.Close()

	m, ok := ctx.Store.(migrator)
	if !ok {
		ctx.Println("JSON stores have no schema. Nothing to migrate.")
		return nil
	}

	count, err := m.RunMigrations(func(msg string) { ctx.Println(msg) })
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if count == 0 {
		ctx.Println("No migrations to apply. Database is up to date.")
	} else {
		ctx.Printf("\nSuccessfully applied %d migration(s).\n", count)
	}
	return nil
}
