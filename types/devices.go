package types

import (
	"strings"
	"time"
)

// Well-known UPnP device and service type URNs.
const (
	DeviceTypeMediaRenderer = "urn:schemas-upnp-org:device:MediaRenderer:1"

	ServiceTypeAVTransport       = "urn:schemas-upnp-org:service:AVTransport:1"
	ServiceTypeRenderingControl  = "urn:schemas-upnp-org:service:RenderingControl:1"
	ServiceTypeConnectionManager = "urn:schemas-upnp-org:service:ConnectionManager:1"
)

// Service keyword constants used for permissive service matching. Vendors are
// inconsistent about exact URN versions, so matching is done by substring.
const (
	ServiceKeywordAVTransport       = "avtransport"
	ServiceKeywordRenderingControl  = "renderingcontrol"
	ServiceKeywordConnectionManager = "connectionmanager"
)

// Service describes one control service exposed by a renderer. All URLs are
// absolute (resolved against the description document URL during parsing).
type Service struct {
	Type        string `json:"serviceType"`
	ID          string `json:"serviceId"`
	ControlURL  string `json:"controlURL"`
	EventSubURL string `json:"eventSubURL,omitempty"`
	SCPDURL     string `json:"scpdURL,omitempty"`
}

// Descriptor is the in-memory representation of a discovered renderer.
// The identity key is Location (the description document URL); some devices
// rotate their UDN between announcements, so the USN is kept only as a
// removal hint for byebye notifications that omit LOCATION.
type Descriptor struct {
	ID           string    `json:"id"` // short stable id derived from Location
	Location     string    `json:"location"`
	USN          string    `json:"usn,omitempty"`
	FriendlyName string    `json:"friendlyName"`
	Manufacturer string    `json:"manufacturer,omitempty"`
	ModelName    string    `json:"modelName,omitempty"`
	DeviceType   string    `json:"deviceType,omitempty"`
	Address      string    `json:"address"` // bare host of the description URL, probe target
	Services     []Service `json:"services,omitempty"`
	Fallback     bool      `json:"fallback,omitempty"` // built without a parsed description
	FirstSeen    time.Time `json:"firstSeen"`
	LastSeen     time.Time `json:"lastSeen"`
}

// ServiceByKeyword returns the first service whose type contains the given
// keyword (case-insensitive), e.g. ServiceKeywordAVTransport.
func (d *Descriptor) ServiceByKeyword(keyword string) (Service, bool) {
	keyword = strings.ToLower(keyword)
	for _, svc := range d.Services {
		if strings.Contains(strings.ToLower(svc.Type), keyword) {
			return svc, true
		}
	}
	return Service{}, false
}

// HasService reports whether any retained service matches the keyword.
func (d *Descriptor) HasService(keyword string) bool {
	_, ok := d.ServiceByKeyword(keyword)
	return ok
}
