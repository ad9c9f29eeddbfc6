package constants

const (
	// DateFormat is the storage date format (YYYY-MM-DD)
	DateFormat = "2006-01-02"

	// DisplayDateFormat is the date format shown on date buttons (DD.MM.YYYY)
	DisplayDateFormat = "02.01.2006"

	// TimeFormat is the slot label format (HH:MM)
	TimeFormat = "15:04"
)
