package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

const dayLayout = "2006-01-02"

// Day is a calendar date without time-of-day. The zero value is not a valid day.
type Day struct {
	t time.Time // always midnight UTC
}

// NewDay builds a Day from its calendar components.
func NewDay(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf returns the calendar day t falls on in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return NewDay(local.Year(), local.Month(), local.Day())
}

// ParseDay parses a YYYY-MM-DD string.
func ParseDay(value string) (Day, error) {
	t, err := time.Parse(dayLayout, value)
	if err != nil {
		return Day{}, err
	}
	return NewDay(t.Year(), t.Month(), t.Day()), nil
}

// IsZero reports whether d is the zero value.
func (d Day) IsZero() bool { return d.t.IsZero() }

// Time returns midnight UTC of the day, the form stored in DATE columns.
func (d Day) Time() time.Time { return d.t }

// AddDays returns the day n calendar days after d.
func (d Day) AddDays(n int) Day { return Day{t: d.t.AddDate(0, 0, n)} }

// DaysSince returns the number of whole calendar days from other to d.
func (d Day) DaysSince(other Day) int {
	return int(d.t.Sub(other.t).Hours() / 24)
}

// Before reports whether d is earlier than other.
func (d Day) Before(other Day) bool { return d.t.Before(other.t) }

// Equal reports whether both values name the same calendar day.
func (d Day) Equal(other Day) bool { return d.t.Equal(other.t) }

func (d Day) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(dayLayout)
}

// MarshalJSON encodes the day as "YYYY-MM-DD".
func (d Day) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes "YYYY-MM-DD".
func (d *Day) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		*d = Day{}
		return nil
	}
	parsed, err := ParseDay(raw)
	if err != nil {
		return fmt.Errorf("invalid day %q: %w", raw, err)
	}
	*d = parsed
	return nil
}
