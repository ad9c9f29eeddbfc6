package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/salonbot/internal/cli"
	"github.com/julianstephens/salonbot/internal/cli/appts"
	"github.com/julianstephens/salonbot/internal/cli/backups"
	"github.com/julianstephens/salonbot/internal/cli/system"
	"github.com/julianstephens/salonbot/internal/config"
	"github.com/julianstephens/salonbot/internal/constants"
	apperrors "github.com/julianstephens/salonbot/internal/errors"
	"github.com/julianstephens/salonbot/internal/logger"
)

var CLI struct {
	Version      kong.VersionFlag
	Store        string `help:"Appointment store: a SQLite file, a *.json file, or 'postgres' to read the connection string from the environment or OS keyring." env:"SALONBOT_STORE" default:"${default_store}"`
	CatalogPath  string `name:"catalog" help:"YAML catalog of services, slots and contacts (built-in when empty)." env:"SALONBOT_CATALOG"`
	Admins       string `help:"Comma separated Telegram user ids of administrators." env:"ADMIN_IDS"`
	SlotCapacity int    `name:"slot-capacity" help:"Active appointments allowed per date and time (0 = unlimited)." env:"SALONBOT_SLOT_CAPACITY" default:"1"`
	Debug        bool   `help:"Log debug output to stderr."`

	Serve    system.ServeCmd   `cmd:"" help:"Run the Telegram bot." default:"1"`
	Console  system.ConsoleCmd `cmd:"" help:"Chat with the bot in the terminal."`
	Init     system.InitCmd    `cmd:"" help:"Initialize salonbot storage."`
	Migrate  system.MigrateCmd `cmd:"" help:"Run database migrations."`
	Doctor   system.DoctorCmd  `cmd:"" help:"Run health checks and diagnostics."`
	Services system.CatalogCmd `cmd:"" name:"catalog" help:"Show services, slots and contacts."`
	Backup   struct {
		Create  backups.BackupCreateCmd  `cmd:"" help:"Create a manual backup." default:"1"`
		List    backups.BackupListCmd    `cmd:"" help:"List available backups."`
		Restore backups.BackupRestoreCmd `cmd:"" help:"Restore from a backup."`
	} `cmd:"" help:"Manage store backups."`
	Appt struct {
		List       appts.ListCmd       `cmd:"" help:"List the most recent appointments." default:"1"`
		Show       appts.ShowCmd       `cmd:"" help:"Show one appointment."`
		Reschedule appts.RescheduleCmd `cmd:"" help:"Change the time of an appointment."`
		Comment    appts.CommentCmd    `cmd:"" help:"Replace the comment of an appointment."`
		Cancel     appts.CancelCmd     `cmd:"" help:"Cancel an appointment."`
	} `cmd:"" help:"Administer appointments."`
	Token struct {
		Set    system.TokenSetCmd    `cmd:"" help:"Store the Telegram bot token in the OS keyring."`
		Delete system.TokenDeleteCmd `cmd:"" help:"Remove the Telegram bot token from the OS keyring."`
	} `cmd:"" help:"Manage the Telegram bot token."`
	Keyring struct {
		Set    system.KeyringSetCmd    `cmd:"" help:"Store the PostgreSQL connection string in the OS keyring."`
		Get    system.KeyringGetCmd    `cmd:"" help:"Show the stored connection string with the password masked."`
		Delete system.KeyringDeleteCmd `cmd:"" help:"Remove the connection string from the OS keyring."`
		Status system.KeyringStatusCmd `cmd:"" help:"Show which secrets are stored."`
	} `cmd:"" help:"Manage the PostgreSQL connection string."`
}

// Commands that never touch the store.
var storeless = []string{"catalog", "token", "keyring"}

// Commands that load (or create) the store themselves.
var selfLoading = []string{"init", "migrate", "doctor"}

func hasCommand(command string, names []string) bool {
	first, _, _ := strings.Cut(command, " ")
	for _, n := range names {
		if first == n {
			return true
		}
	}
	return false
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Telegram booking bot for a beauty salon"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version":       constants.Version,
			"default_store": constants.DefaultConfigPath,
			"kafka_topic":   constants.DefaultKafkaTopic,
		},
	)

	cfg, err := config.New(config.Params{
		Store:        CLI.Store,
		CatalogPath:  CLI.CatalogPath,
		Admins:       CLI.Admins,
		SlotCapacity: CLI.SlotCapacity,
		Debug:        CLI.Debug,
	})
	if err != nil {
		apperrors.Fatal(err)
	}

	if err := logger.Init(logger.Config{Debug: cfg.Debug, ConfigDir: cfg.ConfigDir()}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logger: %v\n", err)
	}

	command := kctx.Command()
	var appCtx *cli.Context
	if hasCommand(command, storeless) {
		appCtx = &cli.Context{Config: cfg, Out: os.Stdout, In: os.Stdin}
	} else {
		appCtx, err = cli.NewContext(cfg)
		if err != nil {
			apperrors.Fatal(err)
		}
		defer appCtx.Store.Close()

		if !hasCommand(command, selfLoading) {
			if err := appCtx.Store.Load(); err != nil {
				apperrors.Fatal(err)
			}
		}
	}

	if err := kctx.Run(appCtx); err != nil {
		if appCtx.Store != nil {
			appCtx.Store.Close()
		}
		apperrors.Fatal(err)
	}
}
