package format

import (
	"fmt"
	"time"
)

const orderNumberPrefix = "ORD"

// FormatOrderNumber renders the human-facing order number for a given day and
// per-day sequence, e.g. ORD-20260201-000042. Sequences reset daily.
func FormatOrderNumber(day time.Time, sequence int64) string {
	return fmt.Sprintf("%s-%s-%06d", orderNumberPrefix, day.Format("20060102"), sequence)
}

// DayKey is the key used to scope order sequences to a calendar day in UTC.
func DayKey(at time.Time) string {
	return at.UTC().Format("2006-01-02")
}
