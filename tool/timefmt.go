package tool

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatClock renders a millisecond position as HH:MM:SS, the REL_TIME form
// AVTransport Seek expects. Negative positions clamp to zero.
func FormatClock(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	totalSec := ms / 1000
	h := totalSec / 3600
	m := (totalSec % 3600) / 60
	s := totalSec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// ParseClock parses H:MM:SS or HH:MM:SS (optionally with a fractional second
// part, which renderers emit in RelTime) into milliseconds. The UPnP
// placeholder NOT_IMPLEMENTED and empty values parse as 0.
func ParseClock(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "NOT_IMPLEMENTED") {
		return 0, nil
	}
	if frac := strings.IndexByte(value, '.'); frac >= 0 {
		value = value[:frac]
	}
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid clock value %q", value)
	}
	var fields [3]int64
	for i, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid clock value %q", value)
		}
		fields[i] = n
	}
	return ((fields[0]*60+fields[1])*60 + fields[2]) * 1000, nil
}
