package constants

import "time"

const (
	AppName            = "salonbot"
	DefaultKeyringUser = "database-connection"
	TokenKeyringUser   = "telegram-token"
	DefaultConfigPath  = "~/.config/salonbot/salonbot.db"
	Version            = "v0.3.0"

	// CommentNone is stored when the client skips the comment step
	CommentNone = "none"

	// BookingWindowDays is the number of selectable days starting today
	BookingWindowDays = 7

	// AdminPageSize bounds the administrative listing
	AdminPageSize = 10

	// DefaultSlotCapacity is the number of active appointments allowed per (date, time)
	DefaultSlotCapacity = 1

	// Backup constants
	MaxBackups       = 14
	BackupDirName    = "backups"
	BackupFilePrefix = "salonbot-"

	// Lockfile constants
	LockfileName = "salonbot.lock"

	// Notify constants
	NotifyTimeout = 10 * time.Second

	// Dispatcher constants
	WorkerInbox = 16
	WorkerIdle  = 5 * time.Minute
)
