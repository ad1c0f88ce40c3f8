package db

import (
	"time"
)

const (
	timeLayout     = "2006-01-02 15:04:05"
	timeLayoutFrac = "2006-01-02 15:04:05.999999"
)

// NormalizeValue converts a driver-returned value into the canonical row
// representation shared by all engines: text as string, temporal values in
// the ISO-like "YYYY-MM-DD HH24:MI:SS" form, everything else unchanged.
// The dialect gets the last word.
func NormalizeValue(d Dialect, v interface{}) interface{} {
	v = normalizeQueryValue(v)
	if d != nil {
		v = d.NormalizeValue(v)
	}
	return v
}

func normalizeQueryValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		if val == nil {
			return nil
		}
		return string(val)
	case time.Time:
		return formatTime(val)
	case *time.Time:
		if val == nil {
			return nil
		}
		return formatTime(*val)
	default:
		return v
	}
}

func formatTime(t time.Time) string {
	if t.Nanosecond() == 0 {
		return t.Format(timeLayout)
	}
	return t.Format(timeLayoutFrac)
}
