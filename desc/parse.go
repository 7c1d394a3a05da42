package desc

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/moyoez/dlnacast-go/tool"
	"github.com/moyoez/dlnacast-go/types"
)

// deviceDescription mirrors the root of a UPnP device description document.
// Tags match by local name only, so vendor namespace prefixes do not matter.
type deviceDescription struct {
	XMLName xml.Name   `xml:"root"`
	URLBase string     `xml:"URLBase"`
	Device  deviceNode `xml:"device"`
}

type deviceNode struct {
	DeviceType   string        `xml:"deviceType"`
	FriendlyName string        `xml:"friendlyName"`
	Manufacturer string        `xml:"manufacturer"`
	ModelName    string        `xml:"modelName"`
	Services     []serviceNode `xml:"serviceList>service"`
	Devices      []deviceNode  `xml:"deviceList>device"`
}

type serviceNode struct {
	ServiceType string `xml:"serviceType"`
	ServiceID   string `xml:"serviceId"`
	ControlURL  string `xml:"controlURL"`
	EventSubURL string `xml:"eventSubURL"`
	SCPDURL     string `xml:"SCPDURL"`
}

var wantedServiceKeywords = []string{
	types.ServiceKeywordAVTransport,
	types.ServiceKeywordRenderingControl,
	types.ServiceKeywordConnectionManager,
}

// ParseDescription parses a description document fetched from location into
// a Descriptor. Services other than transport, rendering control and
// connection management are dropped.
func ParseDescription(location string, body []byte) (*types.Descriptor, error) {
	var doc deviceDescription
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("malformed device description: %v", err)
	}

	locURL, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("invalid description location %q: %v", location, err)
	}
	base := locURL
	if trimmed := strings.TrimSpace(doc.URLBase); trimmed != "" {
		if parsed, perr := url.Parse(trimmed); perr == nil && parsed.Host != "" {
			base = parsed
		}
	}

	primary := pickPrimaryDevice(&doc.Device)
	if primary.FriendlyName == "" && primary.DeviceType == "" {
		return nil, fmt.Errorf("device description carries no usable device element")
	}

	services := make([]types.Service, 0, 3)
	appendWantedServices(&doc.Device, base, &services)

	now := time.Now()
	descriptor := &types.Descriptor{
		ID:           tool.DeviceIDFromLocation(location),
		Location:     location,
		FriendlyName: strings.TrimSpace(primary.FriendlyName),
		Manufacturer: strings.TrimSpace(primary.Manufacturer),
		ModelName:    strings.TrimSpace(primary.ModelName),
		DeviceType:   strings.TrimSpace(primary.DeviceType),
		Address:      locURL.Hostname(),
		Services:     services,
		FirstSeen:    now,
		LastSeen:     now,
	}
	if descriptor.FriendlyName == "" {
		descriptor.FriendlyName = fmt.Sprintf("Media Device (%s)", descriptor.Address)
	}
	return descriptor, nil
}

// pickPrimaryDevice prefers an embedded MediaRenderer node over the root,
// since some TVs nest the renderer one level down.
func pickPrimaryDevice(root *deviceNode) *deviceNode {
	if node := findRenderer(root); node != nil {
		return node
	}
	return root
}

func findRenderer(node *deviceNode) *deviceNode {
	if strings.Contains(strings.ToLower(node.DeviceType), "mediarenderer") {
		return node
	}
	for i := range node.Devices {
		if found := findRenderer(&node.Devices[i]); found != nil {
			return found
		}
	}
	return nil
}

// appendWantedServices walks the whole device tree; some vendors hang the
// transport services off an embedded device instead of the root.
func appendWantedServices(node *deviceNode, base *url.URL, out *[]types.Service) {
	for _, svc := range node.Services {
		if !wantedServiceType(svc.ServiceType) {
			continue
		}
		*out = append(*out, types.Service{
			Type:        strings.TrimSpace(svc.ServiceType),
			ID:          strings.TrimSpace(svc.ServiceID),
			ControlURL:  resolveServiceURL(base, svc.ControlURL),
			EventSubURL: resolveServiceURL(base, svc.EventSubURL),
			SCPDURL:     resolveServiceURL(base, svc.SCPDURL),
		})
	}
	for i := range node.Devices {
		appendWantedServices(&node.Devices[i], base, out)
	}
}

// wantedServiceType matches loosely on purpose: vendors disagree about the
// exact URN text.
func wantedServiceType(serviceType string) bool {
	lowered := strings.ToLower(serviceType)
	for _, keyword := range wantedServiceKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

// resolveServiceURL resolves a possibly relative service URL against base.
func resolveServiceURL(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
