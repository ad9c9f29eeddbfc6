package constants

import "time"

const (
	// Environment variables
	EnvStore        = "SALONBOT_STORE"
	EnvCatalog      = "SALONBOT_CATALOG"
	EnvAdmins       = "ADMIN_IDS"
	EnvSlotCapacity = "SALONBOT_SLOT_CAPACITY"
	EnvToken        = "TELEGRAM_TOKEN"
	EnvPort         = "PORT"
	EnvDBConnection = "SALONBOT_DB_CONNECTION"

	// Defaults for serve
	DefaultPort       = "5000"
	DefaultRateLimit  = 30
	DefaultRateWindow = time.Minute
	DefaultKafkaTopic = "salonbot.appointments.v1"
	DefaultPollWait   = 30 * time.Second
)
