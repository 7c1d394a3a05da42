package tool

const (
	// Version is reported by the status API and embedded in UserAgent.
	Version = "1.2.0"

	// UserAgent identifies this client in search datagrams and description
	// fetches. Renderers expect the OS/version UPnP/1.0 product/version shape.
	UserAgent = "Linux/6.1 UPnP/1.0 dlnacast-go/" + Version
)
