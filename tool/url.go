package tool

import (
	"fmt"
	"net"
	"strings"
)

// BuildMediaShareURL builds the URL a renderer streams a shared local file
// from. host comes from the advertise config or interface auto-detection.
func BuildMediaShareURL(host string, port int, token string) string {
	return fmt.Sprintf("http://%s/media/%s", net.JoinHostPort(host, fmt.Sprintf("%d", port)), token)
}

// BuildControlPageURL builds the address encoded into the pairing QR code.
func BuildControlPageURL(host string, port int) string {
	return fmt.Sprintf("http://%s/", net.JoinHostPort(host, fmt.Sprintf("%d", port)))
}

// HostOfURL extracts the bare host (no port) from a URL-ish string, for ICMP
// probing. Returns "" when nothing usable is found.
func HostOfURL(raw string) string {
	rest := raw
	if idx := strings.Index(rest, "://"); idx >= 0 {
		rest = rest[idx+3:]
	}
	if idx := strings.IndexAny(rest, "/?"); idx >= 0 {
		rest = rest[:idx]
	}
	if host, _, err := net.SplitHostPort(rest); err == nil {
		return host
	}
	return rest
}
