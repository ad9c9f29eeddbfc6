// Package config holds the settings salonbot runs with. A Config is built
// once from flags and the environment and is read-only afterwards.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/julianstephens/salonbot/internal/constants"
	"github.com/julianstephens/salonbot/internal/keyring"
)

var (
	ErrNoToken         = errors.New("no Telegram bot token: pass --token, set " + constants.EnvToken + " or run 'salonbot token set'")
	ErrInvalidAdminID  = errors.New("invalid admin id")
	ErrInvalidCapacity = errors.New("slot capacity must be zero or positive")

	userHomeDirFunc = os.UserHomeDir
	getenvFunc      = os.Getenv
	keyringGetFunc  = keyring.Get
)

// Config is passed by value. Use Admins() to read the admin list.
type Config struct {
	Store        string
	CatalogPath  string
	SlotCapacity int
	Debug        bool

	admins []string
}

// Params are the raw inputs New validates.
type Params struct {
	Store        string
	CatalogPath  string
	Admins       string
	SlotCapacity int
	Debug        bool
}

func New(p Params) (Config, error) {
	admins, err := ParseAdminIDs(p.Admins)
	if err != nil {
		return Config{}, err
	}
	if p.SlotCapacity < 0 {
		return Config{}, fmt.Errorf("%w: %d", ErrInvalidCapacity, p.SlotCapacity)
	}

	store := strings.TrimSpace(p.Store)
	if store == "" {
		store = constants.DefaultConfigPath
	}
	if !isConnString(store) {
		if store, err = ExpandPath(store); err != nil {
			return Config{}, err
		}
	}

	catalogPath := strings.TrimSpace(p.CatalogPath)
	if catalogPath != "" {
		if catalogPath, err = ExpandPath(catalogPath); err != nil {
			return Config{}, err
		}
	}

	return Config{
		Store:        store,
		CatalogPath:  catalogPath,
		SlotCapacity: p.SlotCapacity,
		Debug:        p.Debug,
		admins:       admins,
	}, nil
}

// Admins returns a copy of the administrator ids.
func (c Config) Admins() []string {
	out := make([]string, len(c.admins))
	copy(out, c.admins)
	return out
}

// ConfigDir is where logs, backups and the lockfile live. For a database
// connection string it falls back to the default config directory.
func (c Config) ConfigDir() string {
	if isConnString(c.Store) {
		p, err := ExpandPath(constants.DefaultConfigPath)
		if err != nil {
			return "."
		}
		return filepath.Dir(p)
	}
	return filepath.Dir(c.Store)
}

// IsRelational reports whether the store is SQLite or Postgres.
func (c Config) IsRelational() bool {
	return !strings.EqualFold(filepath.Ext(c.Store), ".json") || isConnString(c.Store)
}

// ParseAdminIDs splits a comma separated list of Telegram user ids.
// Blank entries are skipped and duplicates dropped.
func ParseAdminIDs(raw string) ([]string, error) {
	seen := make(map[string]struct{})
	ids := []string{}
	for _, part := range strings.Split(raw, ",") {
		id := strings.TrimSpace(part)
		if id == "" {
			continue
		}
		if _, err := strconv.ParseInt(id, 10, 64); err != nil {
			return nil, fmt.Errorf("%w %q", ErrInvalidAdminID, id)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// ExpandPath replaces a leading "~" with the user's home directory.
func ExpandPath(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := userHomeDirFunc()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// ResolveToken returns the bot token from the flag value, then the
// environment, then the OS keyring.
func ResolveToken(flag string) (string, error) {
	if t := strings.TrimSpace(flag); t != "" {
		return t, nil
	}
	if t := strings.TrimSpace(getenvFunc(constants.EnvToken)); t != "" {
		return t, nil
	}
	t, err := keyringGetFunc(keyring.BotToken)
	if err == nil && t != "" {
		return t, nil
	}
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("%w (%v)", ErrNoToken, err)
	}
	return "", ErrNoToken
}

// SecretStore as the store descriptor reads the Postgres connection string
// from the environment or the OS keyring instead of the command line.
const SecretStore = "postgres"

func isConnString(s string) bool {
	return s == SecretStore || strings.HasPrefix(s, "postgres://") || strings.HasPrefix(s, "postgresql://")
}

// Serve holds the bot server settings.
type Serve struct {
	Token         string
	Port          string
	RedisURL      string
	RateLimit     int
	RateWindow    time.Duration
	WebhookURL    string
	WebhookSecret string
	SessionTTL    time.Duration
	SweepEvery    time.Duration
	LockfilePath  string
}

// Addr is the listen address for the keep-alive HTTP server.
func (s Serve) Addr() string {
	port := strings.TrimSpace(s.Port)
	if port == "" {
		port = constants.DefaultPort
	}
	return ":" + port
}
