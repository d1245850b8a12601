package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidJob        = errors.New("invalid notification job")
	ErrJobNotFound       = errors.New("notification job not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusOngoing   Status = "ONGOING"
	StatusSent      Status = "SENT"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
	StatusSkip      Status = "SKIP"
)

// Days is a Monday-indexed weekday bitmap.
type Days [7]bool

// DayIndex maps a weekday to its Days index (Monday = 0).
func DayIndex(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

// String encodes the bitmap as seven '0'/'1' characters, Monday first.
func (d Days) String() string {
	var b strings.Builder
	for _, on := range d {
		if on {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// ParseDays decodes the String form.
func ParseDays(s string) (Days, error) {
	var d Days
	if len(s) != 7 {
		return d, fmt.Errorf("day bitmap %q: want 7 characters", s)
	}
	for i, c := range s {
		switch c {
		case '1':
			d[i] = true
		case '0':
		default:
			return d, fmt.Errorf("day bitmap %q: bad character %q", s, c)
		}
	}
	return d, nil
}

// NotificationJob is a recurring push notification to one device.
type NotificationJob struct {
	ID             string `json:"id"`
	NotificationID string `json:"notificationId"`
	RouteID        string `json:"routeId"`
	DeviceID       string `json:"deviceId"`
	ScheduledTime  string `json:"scheduledTime"` // HH:mm in Timezone
	Timezone       string `json:"timezone"`
	SelectedDays   Days   `json:"selectedDays"`
	MessageTitle   string `json:"messageTitle"`
	MessageBody    string `json:"messageBody"`
	Status         Status `json:"status"`
}

// DueIn reports whether the job should dispatch at the instant now,
// evaluated in loc (the job's own zone).
func (j *NotificationJob) DueIn(now time.Time, loc *time.Location) bool {
	if j.Status != StatusPending {
		return false
	}
	local := now.In(loc)
	return j.SelectedDays[DayIndex(local.Weekday())] && local.Format("15:04") == j.ScheduledTime
}
