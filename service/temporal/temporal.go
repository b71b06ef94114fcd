package temporal

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// ErrConvertingTimestamp is returned for a temporal bound that is
// present but cannot be parsed. An open bound is not an error.
var ErrConvertingTimestamp = errors.New("converting timestamp")

// ParseBound parses one temporal bound. Empty or ".." means open (nil).
func ParseBound(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == ".." {
		return nil, nil
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrConvertingTimestamp, s, err)
	}
	return &t, nil
}

// ParseInterval parses the two bounds of a temporal extent independently.
// Either bound may be open. A closed interval with end before start fails.
func ParseInterval(start, end string) (*time.Time, *time.Time, error) {
	ts, err := ParseBound(start)
	if err != nil {
		return nil, nil, fmt.Errorf("ParseInterval.%w", err)
	}
	te, err := ParseBound(end)
	if err != nil {
		return nil, nil, fmt.Errorf("ParseInterval.%w", err)
	}
	if ts != nil && te != nil && te.Before(*ts) {
		return nil, nil, fmt.Errorf("%w: interval end %s before start %s", ErrConvertingTimestamp, end, start)
	}
	return ts, te, nil
}

// ParseQueryInterval parses a search time filter: an empty string (no
// constraint), a single instant, or a slash-separated range whose
// bounds may be open ("../2020-01-01", "2020-01-01/..").
func ParseQueryInterval(s string) (*time.Time, *time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil, nil
	}
	parts := strings.Split(s, "/")
	switch len(parts) {
	case 1:
		t, err := ParseBound(parts[0])
		if err != nil {
			return nil, nil, fmt.Errorf("ParseQueryInterval.%w", err)
		}
		return t, t, nil
	case 2:
		return ParseInterval(parts[0], parts[1])
	default:
		return nil, nil, fmt.Errorf("%w: %q is not an interval", ErrConvertingTimestamp, s)
	}
}
