package webhook

import (
	"net"
	"net/http"
	"time"
)

const (
	// DefaultTimeout is the total request timeout.
	DefaultTimeout = 10 * time.Second
	// DialTimeout is the connection timeout.
	DialTimeout = 5 * time.Second
	// TLSHandshakeTimeout is the TLS negotiation timeout.
	TLSHandshakeTimeout = 5 * time.Second
)

// NewHTTPClient creates an HTTP client for webhook delivery.
// It does not follow redirects.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   TLSHandshakeTimeout,
			ResponseHeaderTimeout: timeout,
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   2,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// HTTPHeaders contains the standard webhook headers.
type HTTPHeaders struct {
	Signature  string
	Timestamp  string
	DeliveryID string
	Event      string
}

// Header names for webhook requests.
const (
	HeaderSignature  = "X-Keydesk-Signature"
	HeaderTimestamp  = "X-Keydesk-Timestamp"
	HeaderDeliveryID = "X-Keydesk-Delivery-Id"
	HeaderEvent      = "X-Keydesk-Event"
)

// SetWebhookHeaders applies webhook headers to an HTTP request.
func SetWebhookHeaders(req *http.Request, headers HTTPHeaders) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, headers.Signature)
	req.Header.Set(HeaderTimestamp, headers.Timestamp)
	req.Header.Set(HeaderDeliveryID, headers.DeliveryID)
	req.Header.Set(HeaderEvent, headers.Event)
	req.Header.Set("User-Agent", "Keydesk-Webhook/1.0")
}
