package types

import "time"

// TimeFormat is the versionTime / proof created layout: UTC, second precision.
const TimeFormat = "2006-01-02T15:04:05Z"

func FormatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(TimeFormat)
}

// ParseTime accepts any RFC 3339 timestamp, which covers TimeFormat and the
// fractional/offset forms other producers write.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
