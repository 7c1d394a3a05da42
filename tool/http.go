package tool

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

var (
	DescriptionTimeout = 5 * time.Second
	ControlTimeout     = 10 * time.Second

	DescriptionHttpClient *http.Client
	ControlHttpClient     *http.Client
)

func init() {
	DescriptionHttpClient = NewHTTPClient(DescriptionTimeout)
	ControlHttpClient = NewHTTPClient(ControlTimeout)
}

// NewHTTPClient creates an HTTP client with bounded connect/read timeouts.
// Certificate verification is skipped: the rare renderer that serves its
// description over HTTPS uses a self-signed certificate.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return newHTTPClientWithBindAddr(timeout, nil)
}

// newHTTPClientWithBindAddr creates an HTTP client. When bindAddr is non-nil, outgoing connections
// are bound to that local address (e.g. to force use of a specific network interface).
func newHTTPClientWithBindAddr(timeout time.Duration, bindAddr *net.TCPAddr) *http.Client {
	transport := &http.Transport{
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     30 * time.Second,
		DisableKeepAlives:   false,
	}
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}
	if bindAddr != nil {
		dialer.LocalAddr = bindAddr
	}
	transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialer.DialContext(ctx, network, addr)
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// InitHTTPClients (re)initializes the HTTP clients with optional bind address.
// When bindAddr is nil (e.g. useReferNetworkInterface is "*"), clients use the
// default transport without interface binding.
func InitHTTPClients(bindAddr *net.TCPAddr) {
	DescriptionHttpClient = newHTTPClientWithBindAddr(DescriptionTimeout, bindAddr)
	ControlHttpClient = newHTTPClientWithBindAddr(ControlTimeout, bindAddr)
}
