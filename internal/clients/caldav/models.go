package caldav

import "time"

// Calendar represents a calendar collection on the server
type Calendar struct {
	Path        string
	DisplayName string
}

// Object is a published series as read back from the server
type Object struct {
	Path      string
	ETag      string
	UID       string
	Summary   string
	Start     time.Time
	RRule     string // e.g. "FREQ=WEEKLY;INTERVAL=1;BYDAY=MO"
	ExDates   int
	Overrides int
}
