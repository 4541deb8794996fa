package schedule

import (
	"errors"
	"time"
)

// SlotLayout is the canonical textual form of a time slot:
// MM/DD/YY HH:00, fixed width, 24-hour clock.
const SlotLayout = "01/02/06 15:04"

// ErrInvalidFormat is returned for any text that is not an exact
// MM/DD/YY HH:00 slot, including slots with a non-zero minute.
var ErrInvalidFormat = errors.New("time slot must match MM/DD/YY HH:00")

// ParseSlot parses the canonical slot text into an hour-aligned UTC
// instant. The text must round-trip through SlotLayout exactly, so
// single-digit fields and minutes other than 00 are rejected.
func ParseSlot(text string) (time.Time, error) {
	slot, err := time.ParseInLocation(SlotLayout, text, time.UTC)
	if err != nil {
		return time.Time{}, ErrInvalidFormat
	}
	if slot.Minute() != 0 || slot.Format(SlotLayout) != text {
		return time.Time{}, ErrInvalidFormat
	}
	return slot, nil
}

// FormatSlot renders a slot in its canonical textual form.
func FormatSlot(slot time.Time) string {
	return slot.Format(SlotLayout)
}

// IsOpen reports whether the slot falls in a bookable library hour.
//
// Monday through Thursday the library takes reservations from 10:00
// through 20:00, Friday and Saturday from 10:00 through 17:00, and it
// is closed all day Sunday. The closing hour itself is bookable.
func IsOpen(slot time.Time) bool {
	hour := slot.Hour()
	switch slot.Weekday() {
	case time.Sunday:
		return false
	case time.Friday, time.Saturday:
		return hour >= 10 && hour <= 17
	default:
		return hour >= 10 && hour <= 20
	}
}

// IsPast reports whether the slot is strictly before now.
func IsPast(slot, now time.Time) bool {
	return slot.Before(now)
}
