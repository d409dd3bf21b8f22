package quota

import (
	"fmt"
	"time"
)

// DefaultResetTimezone is the timezone daily quotas roll over in.
const DefaultResetTimezone = "America/Los_Angeles"

// ResetPolicy computes when a quota window that is current at t ends.
type ResetPolicy interface {
	NextReset(t time.Time) time.Time
}

// DailyReset resets at the next calendar midnight in Location.
type DailyReset struct {
	Location *time.Location
}

// NextReset returns the first midnight in Location strictly after t.
// time.Date normalizes the day overflow, and DST shifts are applied by
// the location.
func (d DailyReset) NextReset(t time.Time) time.Time {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day()+1, 0, 0, 0, 0, loc)
}

// String returns a description for logs.
func (d DailyReset) String() string {
	if d.Location == nil {
		return "daily@UTC"
	}
	return "daily@" + d.Location.String()
}

// RollingReset resets Window after the current instant.
type RollingReset struct {
	Window time.Duration
}

// NextReset returns t + Window.
func (r RollingReset) NextReset(t time.Time) time.Time {
	return t.Add(r.Window)
}

// String returns a description for logs.
func (r RollingReset) String() string {
	return "rolling@" + r.Window.String()
}

// NewDailyReset loads tz and returns a DailyReset for it. An empty tz
// selects DefaultResetTimezone.
func NewDailyReset(tz string) (DailyReset, error) {
	if tz == "" {
		tz = DefaultResetTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return DailyReset{}, fmt.Errorf("failed to load reset timezone %q: %w", tz, err)
	}
	return DailyReset{Location: loc}, nil
}

// NewPolicy builds a ResetPolicy. A positive window selects RollingReset,
// otherwise a DailyReset in tz.
func NewPolicy(tz string, window time.Duration) (ResetPolicy, error) {
	if window > 0 {
		return RollingReset{Window: window}, nil
	}
	return NewDailyReset(tz)
}
