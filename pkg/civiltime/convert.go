// Package civiltime converts operator-entered civil timestamps into the
// publish-at instant format the YouTube Data API expects.
package civiltime

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidTimestamp reports a publish-at string that matches neither
// accepted layout or encodes an impossible calendar time.
var ErrInvalidTimestamp = errors.New("invalid publish-at timestamp")

const (
	layoutSeconds = "2006-01-02 15:04:05"
	layoutMinutes = "2006-01-02 15:04"
)

// Operator timestamps are civil times in Japan Standard Time. JST has no
// daylight saving, so a fixed offset is exact.
var jst = time.FixedZone("JST", 9*60*60)

// ToPublishAt parses a civil timestamp in "2006-01-02 15:04:05" or
// "2006-01-02 15:04" form, interprets it as JST and returns the UTC
// instant formatted as RFC 3339 with a Z suffix and no fractional
// seconds, e.g. "2025-11-20T10:00:00Z".
func ToPublishAt(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrInvalidTimestamp
	}

	var t time.Time
	var err error
	switch len(s) {
	case len(layoutSeconds):
		t, err = time.ParseInLocation(layoutSeconds, s, jst)
	case len(layoutMinutes):
		t, err = time.ParseInLocation(layoutMinutes, s, jst)
	default:
		return "", ErrInvalidTimestamp
	}
	if err != nil {
		return "", ErrInvalidTimestamp
	}

	return t.UTC().Format("2006-01-02T15:04:05Z"), nil
}
