package availability

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// TimeOfDay is a wall-clock time expressed as the offset from midnight.
type TimeOfDay time.Duration

const day = TimeOfDay(24 * time.Hour)

// NewTimeOfDay builds a TimeOfDay from hour, minute and second.
func NewTimeOfDay(h, m, s int) TimeOfDay {
	return TimeOfDay(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second)
}

// ClockOf returns the UTC time-of-day of t.
func ClockOf(t time.Time) TimeOfDay {
	t = t.UTC()
	return NewTimeOfDay(t.Hour(), t.Minute(), t.Second()) + TimeOfDay(t.Nanosecond())
}

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return NewTimeOfDay(t.Hour(), t.Minute(), t.Second()), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q, expected HH:MM or HH:MM:SS", s)
}

// On anchors the time-of-day to the UTC date of d.
func (t TimeOfDay) On(d time.Time) time.Time {
	start, _ := DayBounds(d)
	return start.Add(time.Duration(t))
}

func (t TimeOfDay) Valid() bool {
	return t >= 0 && t < day
}

func (t TimeOfDay) String() string {
	d := time.Duration(t)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("time of day must be a string: %w", err)
	}
	v, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// PG converts to the pgx representation of a PostgreSQL time column.
func (t TimeOfDay) PG() pgtype.Time {
	return pgtype.Time{Microseconds: time.Duration(t).Microseconds(), Valid: true}
}

func timeOfDayFromPG(v pgtype.Time) TimeOfDay {
	return TimeOfDay(time.Duration(v.Microseconds) * time.Microsecond)
}
