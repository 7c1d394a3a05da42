package ssdp

import (
	"fmt"
	"strings"
)

// Search targets sent by every search round. The catch-all picks up
// renderers that answer neither specific target correctly.
const (
	TargetRootDevice    = "upnp:rootdevice"
	TargetMediaRenderer = "urn:schemas-upnp-org:device:MediaRenderer:1"
	TargetAll           = "ssdp:all"
)

var searchTargets = []string{TargetRootDevice, TargetMediaRenderer, TargetAll}

// MessageKind classifies an accepted discovery datagram.
type MessageKind int

const (
	KindUnknown MessageKind = iota
	KindSearchResponse
	KindAlive
	KindByebye
)

// Message is one parsed discovery datagram. Byebye messages often carry no
// LOCATION; everything else must.
type Message struct {
	Kind     MessageKind
	Location string
	USN      string
	ST       string
	NT       string
	Server   string
}

// BuildSearchRequest renders the M-SEARCH datagram for one target.
func BuildSearchRequest(target, host, userAgent string) []byte {
	var b strings.Builder
	b.WriteString("M-SEARCH * HTTP/1.1\r\n")
	fmt.Fprintf(&b, "HOST: %s\r\n", host)
	b.WriteString("MAN: \"ssdp:discover\"\r\n")
	b.WriteString("MX: 3\r\n")
	fmt.Fprintf(&b, "ST: %s\r\n", target)
	fmt.Fprintf(&b, "USER-AGENT: %s\r\n", userAgent)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// ParseMessage parses a datagram into a Message. Search responses and both
// NOTIFY flavors are accepted; anything else (including other clients'
// M-SEARCH requests echoed back by the group) reports false.
func ParseMessage(data []byte) (Message, bool) {
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if len(lines) == 0 {
		return Message{}, false
	}
	first := strings.TrimSpace(lines[0])
	upper := strings.ToUpper(first)

	var msg Message
	switch {
	case strings.HasPrefix(upper, "HTTP/1.1 200"):
		msg.Kind = KindSearchResponse
	case strings.HasPrefix(upper, "NOTIFY"):
		// kind decided by the NTS header below
	default:
		return Message{}, false
	}

	headers := make(map[string]string, 8)
	for _, line := range lines[1:] {
		idx := strings.IndexByte(line, ':')
		if idx <= 0 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])
		if _, exists := headers[name]; !exists {
			headers[name] = value
		}
	}

	if msg.Kind == KindUnknown {
		switch {
		case strings.Contains(headers["nts"], "ssdp:alive"):
			msg.Kind = KindAlive
		case strings.Contains(headers["nts"], "ssdp:byebye"):
			msg.Kind = KindByebye
		default:
			return Message{}, false
		}
	}

	msg.Location = headers["location"]
	msg.USN = headers["usn"]
	msg.ST = headers["st"]
	msg.NT = headers["nt"]
	msg.Server = headers["server"]

	if msg.Kind != KindByebye && msg.Location == "" {
		return Message{}, false
	}
	return msg, true
}
