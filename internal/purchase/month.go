package purchase

import (
	"strings"
	"time"
)

// ParseMonth parses a YYYY-MM filter into the half-open UTC range it covers.
func ParseMonth(raw string) (from, to time.Time, err error) {
	start, err := time.ParseInLocation("2006-01", strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, invalid("month", "must be formatted as YYYY-MM")
	}
	return start, start.AddDate(0, 1, 0), nil
}
