package bet

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "20060102"

// AutoDate asks for the current day in the configured time zone.
const AutoDate = "auto"

// NormalizeDate accepts YYYYMMDD, YYYY-MM-DD or "auto" and returns YYYYMMDD.
func NormalizeDate(raw string, now time.Time) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, AutoDate) {
		return now.Format(dateLayout), nil
	}
	for _, layout := range []string{dateLayout, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(dateLayout), nil
		}
	}
	return "", fmt.Errorf("%w: target date %q must be YYYYMMDD, YYYY-MM-DD or auto", ErrInvalidInstruction, raw)
}

// ParseDate converts a normalized target date back into a time in loc.
func ParseDate(date string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateLayout, date, loc)
}
