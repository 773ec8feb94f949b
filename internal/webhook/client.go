package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"
)

// Callback request headers.
const (
	HeaderSignature  = "X-Animagen-Signature"
	HeaderEvent      = "X-Animagen-Event"
	HeaderDeliveryID = "X-Animagen-Delivery-Id"

	userAgent = "Animagen-Webhook/1.0"
)

// ClientTimeout bounds one delivery attempt end to end.
const ClientTimeout = 10 * time.Second

// ErrBlockedAddress is returned when a callback host resolves to a
// non-public address and private networks are blocked.
var ErrBlockedAddress = errors.New("callback host resolves to a non-public address")

// NewHTTPClient returns the client used for callback delivery. Redirects are
// never followed. With blockPrivate set, connections to loopback, private and
// link-local addresses are refused after DNS resolution, which also covers
// names that pass ValidateCallbackURL but resolve inward.
func NewHTTPClient(blockPrivate bool) *http.Client {
	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	if blockPrivate {
		dialer.Control = refusePrivate
	}

	return &http.Client{
		Timeout: ClientTimeout,
		Transport: &http.Transport{
			Proxy:                 nil,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   5 * time.Second,
			ResponseHeaderTimeout: ClientTimeout,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   2,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func refusePrivate(_, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
	}
	if !isPublicAddr(ap.Addr()) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, ap.Addr())
	}
	return nil
}

// newDeliveryRequest builds the POST for one attempt. The signature is
// computed over body and omitted when signer is nil.
func newDeliveryRequest(ctx context.Context, target string, payload Payload, body []byte, signer *Signer) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	h := req.Header
	h.Set("Content-Type", "application/json")
	h.Set("User-Agent", userAgent)
	h.Set(HeaderEvent, payload.Event)
	h.Set(HeaderDeliveryID, payload.DeliveryID)
	if signer != nil {
		h.Set(HeaderSignature, signer.Sign(body))
	}
	return req, nil
}
