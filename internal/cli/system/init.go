package system

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/julianstephens/salonbot/internal/cli"
	"github.com/julianstephens/salonbot/internal/storage/postgres"
)

type InitCmd struct {
	Force  bool   `help:"Force reset by deleting the existing store before initialization."`
	Source string `help:"Source store (file path or connection string) to copy appointments from."`
}

func (c *InitCmd) Run(ctx *cli.Context) error {
	if c.Force {
		if err := c.reset(ctx); err != nil {
			return err
		}
	}

	if err := ctx.Store.Init(); err != nil {
		return err
	}
	ctx.Printf("Initialized salonbot storage at: %s\n", ctx.Store.GetConfigPath())

	if c.Source != "" {
		ctx.Printf("Copying appointments from: %s\n", c.Source)
		n, err := c.copyFrom(ctx, c.Source)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		ctx.Printf("  Copied %d appointments\n", n)
		ctx.Println("Migration completed successfully!")
	}
	return nil
}

func (c *InitCmd) reset(ctx *cli.Context) error {
	if _, ok := ctx.Store.(*postgres.Store); ok {
		return fmt.Errorf("--force is not supported for PostgreSQL; drop the %s schema manually", "salonbot")
	}

	dbPath := ctx.Store.GetConfigPath()
	if abs, err := filepath.Abs(dbPath); err == nil {
		dbPath = abs
	}
	if c.Source != "" {
		if absSource, err := filepath.Abs(c.Source); err == nil && absSource == dbPath {
			return fmt.Errorf("cannot use --force when source and destination are the same: %s", dbPath)
		}
	}

	if _, err := os.Stat(dbPath); err == nil {
		if err := ctx.Store.Close(); err != nil {
			return fmt.Errorf("failed to close existing store: %w", err)
		}
		if err := os.Remove(dbPath); err != nil {
			return fmt.Errorf("failed to delete existing store: %w", err)
		}
		ctx.Printf("Deleted existing store at: %s\n", dbPath)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to access existing store: %w", err)
	}
	return nil
}

// copyFrom moves every appointment and the id counter from src into the
// freshly initialized store, so ids keep their meaning across backends.
func (c *InitCmd) copyFrom(ctx *cli.Context, src string) (int, error) {
	source, err := cli.OpenStore(src, ctx.StoreOptions()...)
	if err != nil {
		return 0, err
	}
	if _, remote := source.(*postgres.Store); !remote {
		if _, err := os.Stat(src); err != nil {
			return 0, fmt.Errorf("source store not found: %w", err)
		}
	}
	if err := source.Load(); err != nil {
		return 0, fmt.Errorf("failed to load source store: %w", err)
	}
	defer source.Close()

	bg := context.Background()
	dump, err := source.Snapshot(bg)
	if err != nil {
		return 0, fmt.Errorf("failed to read source store: %w", err)
	}
	if err := dump.Validate(); err != nil {
		return 0, fmt.Errorf("source store is inconsistent: %w", err)
	}
	if err := ctx.Store.Restore(bg, dump); err != nil {
		return 0, fmt.Errorf("failed to write appointments: %w", err)
	}
	return len(dump.Appointments), nil
}
