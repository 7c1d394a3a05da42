package soap

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/moyoez/dlnacast-go/tool"
)

const (
	invokeAttempts    = 3
	invokeBackoffStep = time.Second
	// maxResponseBytes bounds control response reads.
	maxResponseBytes = 256 * 1024

	envelopeOpen  = `<?xml version="1.0" encoding="utf-8"?><s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/"><s:Body>`
	envelopeClose = `</s:Body></s:Envelope>`
)

// Arg is one action argument. Order matters: renderers reject envelopes
// whose arguments are not in declaration order.
type Arg struct {
	Name  string
	Value string
}

// Response is the raw body of a successful control call. Callers scan it for
// the elements they asked for.
type Response struct {
	Body string
}

// Client posts control actions to service control URLs. Any 200 response
// counts as success; fault bodies are the caller's problem to interpret.
type Client struct {
	client    *http.Client
	userAgent string

	wait func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Client. A nil client falls back to the shared control
// client from tool.
func NewClient(client *http.Client) *Client {
	if client == nil {
		client = tool.ControlHttpClient
	}
	return &Client{
		client:    client,
		userAgent: tool.UserAgent,
		wait:      waitFor,
	}
}

// Invoke builds the action envelope and posts it to controlURL, retrying
// failed attempts with a linearly growing delay. The returned error after
// the final attempt wraps the last failure.
func (c *Client) Invoke(ctx context.Context, controlURL, serviceType, action string, args []Arg) (*Response, error) {
	if controlURL == "" {
		return nil, fmt.Errorf("action %s has no control URL", action)
	}
	payload := buildEnvelope(serviceType, action, args)
	soapAction := `"` + serviceType + "#" + action + `"`

	var lastErr error
	for attempt := 1; attempt <= invokeAttempts; attempt++ {
		resp, err := c.post(ctx, controlURL, soapAction, payload)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		tool.DefaultLogger.Debugf("soap: %s attempt %d/%d failed: %v", action, attempt, invokeAttempts, err)
		if attempt < invokeAttempts {
			if werr := c.wait(ctx, time.Duration(attempt)*invokeBackoffStep); werr != nil {
				return nil, werr
			}
		}
	}
	return nil, fmt.Errorf("%s failed after %d attempts: %v", action, invokeAttempts, lastErr)
}

func (c *Client) post(ctx context.Context, controlURL, soapAction string, payload []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, controlURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create control request: %v", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", soapAction)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			tool.DefaultLogger.Errorf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("control request returned %s", resp.Status)
	}
	return &Response{Body: string(body)}, nil
}

// buildEnvelope writes the action element in the service-type namespace with
// each argument as a child, in the order given. Argument values are escaped,
// which is also how DIDL metadata ends up embedded.
func buildEnvelope(serviceType, action string, args []Arg) []byte {
	var buf bytes.Buffer
	buf.WriteString(envelopeOpen)
	fmt.Fprintf(&buf, `<u:%s xmlns:u="%s">`, action, serviceType)
	for _, arg := range args {
		buf.WriteString("<" + arg.Name + ">")
		if err := xml.EscapeText(&buf, []byte(arg.Value)); err != nil {
			tool.DefaultLogger.Warnf("soap: failed to escape argument %s: %v", arg.Name, err)
		}
		buf.WriteString("</" + arg.Name + ">")
	}
	fmt.Fprintf(&buf, `</u:%s>`, action)
	buf.WriteString(envelopeClose)
	return buf.Bytes()
}

// Value returns the character data of the first element whose local name is
// tag, ignoring namespace prefixes. Renderers are sloppy about prefixes, so
// the scan is lenient.
func (r *Response) Value(tag string) (string, bool) {
	decoder := xml.NewDecoder(strings.NewReader(r.Body))
	decoder.Strict = false
	for {
		token, err := decoder.Token()
		if err != nil {
			return "", false
		}
		start, ok := token.(xml.StartElement)
		if !ok || !strings.EqualFold(start.Name.Local, tag) {
			continue
		}
		var text strings.Builder
		for {
			inner, err := decoder.Token()
			if err != nil {
				return "", false
			}
			switch t := inner.(type) {
			case xml.CharData:
				text.Write(t)
			case xml.EndElement:
				return strings.TrimSpace(text.String()), true
			case xml.StartElement:
				if err := decoder.Skip(); err != nil {
					return "", false
				}
			}
		}
	}
}

// waitFor sleeps for d unless ctx ends first.
func waitFor(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
