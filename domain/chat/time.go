package chat

import (
	"fmt"
	"time"
)

// TimeFormat is the wire format of the published field: ISO-8601 in UTC.
const TimeFormat = "2006-01-02T15:04:05Z"

// Now returns the current UTC time formatted as a published timestamp. The
// server stamps events itself; client-supplied published times are replaced.
func Now() string {
	return time.Now().UTC().Format(TimeFormat)
}

// ParsePublished derives the epoch-seconds sort key from a published
// timestamp. Inputs must parse as UTC ISO-8601.
func ParsePublished(published string) (int64, error) {
	t, err := time.Parse(TimeFormat, published)
	if err != nil {
		return 0, fmt.Errorf("published time %q is not ISO-8601 UTC: %w", published, err)
	}
	return t.Unix(), nil
}
