package timetable

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseServiceTime converts a GTFS HH:MM:SS (hours may reach 47) into an
// offset from the service day's midnight.
func ParseServiceTime(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid service time %q", s)
	}
	var n [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid service time %q", s)
		}
		n[i] = v
	}
	if n[1] > 59 || n[2] > 59 {
		return 0, fmt.Errorf("invalid service time %q", s)
	}
	return time.Duration(n[0])*time.Hour + time.Duration(n[1])*time.Minute + time.Duration(n[2])*time.Second, nil
}

// ServiceInstant anchors a GTFS time to the service date. The offset is
// applied to noon minus twelve hours so that DST transitions land correctly.
func ServiceInstant(date time.Time, s string) (time.Time, error) {
	offset, err := ParseServiceTime(s)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := date.Date()
	noon := time.Date(y, m, d, 12, 0, 0, 0, date.Location())
	return noon.Add(-12 * time.Hour).Add(offset), nil
}

// FormatServiceTime renders an offset from service midnight as GTFS
// HH:MM:SS, keeping hours past 24.
func FormatServiceTime(d time.Duration) string {
	total := int(d / time.Second)
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total/60%60, total%60)
}
