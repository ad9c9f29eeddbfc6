// Package cli holds the state shared by every salonbot command.
package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/julianstephens/salonbot/internal/backup"
	"github.com/julianstephens/salonbot/internal/catalog"
	"github.com/julianstephens/salonbot/internal/config"
	"github.com/julianstephens/salonbot/internal/constants"
	"github.com/julianstephens/salonbot/internal/keyring"
	"github.com/julianstephens/salonbot/internal/logger"
	"github.com/julianstephens/salonbot/internal/storage"
	"github.com/julianstephens/salonbot/internal/storage/postgres"
	"github.com/julianstephens/salonbot/internal/storage/sqlite"
)

var (
	ErrEmbeddedCredentials = errors.New("PostgreSQL connection strings with embedded passwords are not allowed on the command line; " +
		"store it with 'salonbot keyring set' or export " + constants.EnvDBConnection + " and pass --store " + config.SecretStore)
	ErrNoConnectionString = errors.New("no PostgreSQL connection string: export " + constants.EnvDBConnection + " or run 'salonbot keyring set'")

	getenvFunc        = os.Getenv
	connFromKeyringFn = keyring.GetConnectionString
)

type Context struct {
	Config config.Config
	Store  storage.Provider
	Out    io.Writer
	In     io.Reader
	Now    func() time.Time

	catalog *catalog.Catalog
}

// NewContext opens (but does not load) the store named by cfg.
func NewContext(cfg config.Config) (*Context, error) {
	c := &Context{Config: cfg, Out: os.Stdout, In: os.Stdin, Now: time.Now}
	store, err := OpenStore(cfg.Store, c.StoreOptions()...)
	if err != nil {
		return nil, err
	}
	c.Store = store
	return c, nil
}

// StoreOptions resolves legacy service names through the catalog, which is
// loaded on first use.
func (c *Context) StoreOptions() []storage.Option {
	return []storage.Option{storage.WithServiceNames(c.serviceKey)}
}

func (c *Context) serviceKey(name string) (string, bool) {
	cat, err := c.Catalog()
	if err != nil {
		return "", false
	}
	return cat.KeyForName(name)
}

// OpenStore picks a backend from a descriptor: a postgres:// URL,
// config.SecretStore, a *.json file, or anything else as a SQLite file.
func OpenStore(desc string, opts ...storage.Option) (storage.Provider, error) {
	switch {
	case desc == config.SecretStore:
		connStr := strings.TrimSpace(getenvFunc(constants.EnvDBConnection))
		if connStr == "" {
			var err error
			connStr, err = connFromKeyringFn()
			if err != nil {
				if errors.Is(err, keyring.ErrNotFound) {
					return nil, ErrNoConnectionString
				}
				return nil, err
			}
		}
		if _, err := postgres.ValidateConnString(connStr); err != nil && !errors.Is(err, postgres.ErrEmbeddedCredentials) {
			return nil, err
		}
		return postgres.New(connStr, opts...), nil
	case postgres.IsDescriptor(desc):
		if _, err := postgres.ValidateConnString(desc); err != nil {
			if errors.Is(err, postgres.ErrEmbeddedCredentials) {
				return nil, ErrEmbeddedCredentials
			}
			return nil, err
		}
		return postgres.New(desc, opts...), nil
	case strings.EqualFold(filepath.Ext(desc), ".json"):
		return storage.NewJSONStore(desc, opts...), nil
	default:
		return sqlite.NewStore(desc, opts...), nil
	}
}

// Catalog loads the override file once, or returns the built-in catalog.
func (c *Context) Catalog() (*catalog.Catalog, error) {
	if c.catalog != nil {
		return c.catalog, nil
	}
	if c.Config.CatalogPath == "" {
		c.catalog = catalog.Default()
		return c.catalog, nil
	}
	cat, err := catalog.Load(c.Config.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	c.catalog = cat
	return cat, nil
}

func (c *Context) Printf(format string, args ...any) {
	fmt.Fprintf(c.out(), format, args...)
}

func (c *Context) Println(args ...any) {
	fmt.Fprintln(c.out(), args...)
}

func (c *Context) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

func (c *Context) clock() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// Today is the local calendar date the bot offers bookings from.
func (c *Context) Today() string {
	return c.clock().Format(constants.DateFormat)
}

// Confirm asks a y/N question on In.
func (c *Context) Confirm(question string) (bool, error) {
	c.Printf("%s [y/N]: ", question)
	in := c.In
	if in == nil {
		in = os.Stdin
	}
	response, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes", nil
}

// Backups returns a manager for file-based stores. Postgres deployments are
// expected to use their own dump tooling.
func (c *Context) Backups() (*backup.Manager, error) {
	if _, ok := c.Store.(*postgres.Store); ok {
		return nil, backup.ErrUnsupported
	}
	return backup.NewManager(c.Store.GetConfigPath()), nil
}

// PerformAutomaticBackup creates a backup and only logs failures.
func (c *Context) PerformAutomaticBackup() {
	mgr, err := c.Backups()
	if err != nil {
		return
	}
	if _, err := mgr.Create(); err != nil {
		logger.Warn("Automatic backup failed", "error", err)
	}
}
