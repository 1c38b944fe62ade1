package processevent

import (
	"fmt"
	"strconv"
	"time"
)

const cimDateTimeLen = 25

// ParseCIMDateTime parses a CIM DATETIME value ("yyyymmddHHMMSS.mmmmmmsUUU", where
// sUUU is the UTC offset in minutes) into a time carrying that same offset.
func ParseCIMDateTime(s string) (time.Time, error) {
	if len(s) != cimDateTimeLen || s[14] != '.' || (s[21] != '+' && s[21] != '-') {
		return time.Time{}, fmt.Errorf("invalid CIM datetime %q", s)
	}

	offsetMinutes, err := strconv.Atoi(s[22:])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid CIM datetime offset %q: %w", s[21:], err)
	}
	if s[21] == '-' {
		offsetMinutes = -offsetMinutes
	}

	local, err := time.Parse("20060102150405", s[:14])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid CIM datetime %q: %w", s, err)
	}
	micros, err := strconv.Atoi(s[15:21])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid CIM datetime fraction %q: %w", s[15:21], err)
	}

	zone := time.FixedZone("", offsetMinutes*60)
	return time.Date(local.Year(), local.Month(), local.Day(),
		local.Hour(), local.Minute(), local.Second(), micros*int(time.Microsecond), zone), nil
}
