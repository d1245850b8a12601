package schedule

import (
	"fmt"
	"time"

	"gocommute/internal/trip"
)

// CommutePlan is a user's saved route with a recurring start time. Start
// and end locations are already resolved to display names.
type CommutePlan struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	NotifyTime     string     `json:"notifyTime"`
	RecurrenceDays Days       `json:"recurrenceDays"`
	StartLocation  string     `json:"startLocation"`
	EndLocation    string     `json:"endLocation"`
	Legs           []trip.Leg `json:"legs"`
}

// ParseClock parses "HH:mm" or "HH:mm:ss" and returns hour and minute.
func ParseClock(s string) (hour, minute int, err error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, perr := time.Parse(layout, s); perr == nil {
			return t.Hour(), t.Minute(), nil
		}
	}
	return 0, 0, fmt.Errorf("bad clock time %q", s)
}
