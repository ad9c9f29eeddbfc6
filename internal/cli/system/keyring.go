package system

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/salonbot/internal/cli"
	"github.com/julianstephens/salonbot/internal/keyring"
	"github.com/julianstephens/salonbot/internal/storage/postgres"
)

// KeyringSetCmd stores the PostgreSQL connection string in the OS keyring
type KeyringSetCmd struct {
	ConnectionString string `arg:"" help:"PostgreSQL connection string to store in keyring"`
}

func (cmd *KeyringSetCmd) Run(ctx *cli.Context) error {
	if !postgres.IsDescriptor(cmd.ConnectionString) && !strings.Contains(cmd.ConnectionString, "host=") {
		return errors.New("connection string must be a valid PostgreSQL connection string")
	}

	if _, err := postgres.ValidateConnString(cmd.ConnectionString); err != nil {
		if !errors.Is(err, postgres.ErrEmbeddedCredentials) {
			return fmt.Errorf("invalid connection string: %w", err)
		}
		ctx.Println("⚠️  Warning: Connection string contains embedded credentials.")
		ctx.Println("   It will be stored as-is in the encrypted OS keyring.")
	}

	if err := keyring.SetConnectionString(cmd.ConnectionString); err != nil {
		return err
	}

	ctx.Println("✓ Connection string stored successfully in OS keyring")
	ctx.Println("  Run salonbot with --store postgres to use it")
	return nil
}

// KeyringGetCmd prints the stored connection string with the password masked
type KeyringGetCmd struct{}

func (cmd *KeyringGetCmd) Run(ctx *cli.Context) error {
	connStr, err := keyring.GetConnectionString()
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return errors.New("no connection string found in keyring. Use 'salonbot keyring set' to store one")
		}
		return err
	}

	ctx.Println("Connection string retrieved from keyring:")
	ctx.Println(maskPassword(connStr))
	return nil
}

type KeyringDeleteCmd struct{}

func (cmd *KeyringDeleteCmd) Run(ctx *cli.Context) error {
	if err := keyring.DeleteConnectionString(); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return errors.New("no connection string found in keyring")
		}
		return err
	}
	ctx.Println("✓ Connection string deleted from OS keyring")
	return nil
}

// KeyringStatusCmd reports keyring availability and which secrets are stored
type KeyringStatusCmd struct{}

func (cmd *KeyringStatusCmd) Run(ctx *cli.Context) error {
	if !keyring.IsAvailable() {
		ctx.Println("❌ OS keyring is not available on this system")
		return errors.New("keyring unavailable")
	}
	ctx.Println("✓ OS keyring is available")

	for _, s := range []keyring.Secret{keyring.ConnectionString, keyring.BotToken} {
		if _, err := keyring.Get(s); err == nil {
			ctx.Printf("✓ %s is stored in keyring\n", s)
		} else if errors.Is(err, keyring.ErrNotFound) {
			ctx.Printf("ℹ No %s stored in keyring\n", s)
		}
	}
	return nil
}

// promptTokenFunc asks for the token without echoing it.
var promptTokenFunc = func() (string, error) {
	var token string
	err := huh.NewInput().
		Title("Telegram bot token").
		EchoMode(huh.EchoModePassword).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("token cannot be empty")
			}
			return nil
		}).
		Value(&token).
		Run()
	return token, err
}

// TokenSetCmd stores the bot token in the OS keyring
type TokenSetCmd struct {
	Token string `arg:"" optional:"" help:"Bot token from @BotFather. Prompted for when omitted."`
}

func (cmd *TokenSetCmd) Run(ctx *cli.Context) error {
	token := cmd.Token
	if token == "" {
		var err error
		if token, err = promptTokenFunc(); err != nil {
			return err
		}
	}
	if !strings.Contains(token, ":") {
		return errors.New("token does not look like a Telegram bot token (expected <id>:<secret>)")
	}
	if err := keyring.Set(keyring.BotToken, token); err != nil {
		return err
	}
	ctx.Println("✓ Bot token stored successfully in OS keyring")
	return nil
}

type TokenDeleteCmd struct{}

func (cmd *TokenDeleteCmd) Run(ctx *cli.Context) error {
	if err := keyring.Delete(keyring.BotToken); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return errors.New("no bot token found in keyring")
		}
		return err
	}
	ctx.Println("✓ Bot token deleted from OS keyring")
	return nil
}

// maskPassword masks passwords in connection strings for display
func maskPassword(connStr string) string {
	if postgres.IsDescriptor(connStr) {
		if idx := strings.Index(connStr, "://"); idx != -1 {
			remaining := connStr[idx+3:]
			if atIdx := strings.LastIndex(remaining, "@"); atIdx != -1 {
				userInfo := remaining[:atIdx]
				if colonIdx := strings.Index(userInfo, ":"); colonIdx != -1 {
					return connStr[:idx+3] + userInfo[:colonIdx] + ":****" + connStr[idx+3+atIdx:]
				}
			}
		}
	}

	if strings.Contains(connStr, "password=") {
		parts := strings.Fields(connStr)
		for i, part := range parts {
			if strings.HasPrefix(part, "password=") {
				parts[i] = "password=****"
			}
		}
		return strings.Join(parts, " ")
	}

	return connStr
}
