package webhook

import (
	"errors"
	"net/netip"
	"net/url"
	"strings"
)

// MaxCallbackURLLength bounds stored callback URLs.
const MaxCallbackURLLength = 1024

var (
	// ErrInvalidURL is returned when URL parsing fails.
	ErrInvalidURL = errors.New("invalid URL format")
	// ErrURLTooLong is returned for URLs over MaxCallbackURLLength.
	ErrURLTooLong = errors.New("callback URL too long")
	// ErrInvalidScheme is returned when URL scheme is not http or https.
	ErrInvalidScheme = errors.New("only http and https callbacks are allowed")
	// ErrEmptyHost is returned when URL has no host.
	ErrEmptyHost = errors.New("URL must have a host")
	// ErrCredentialsInURL is returned for URLs with user info.
	ErrCredentialsInURL = errors.New("callback URL must not embed credentials")
	// ErrLocalhostBlocked is returned for localhost and mDNS names.
	ErrLocalhostBlocked = errors.New("localhost not allowed")
	// ErrPrivateIP is returned when the host is a non-public IP literal.
	ErrPrivateIP = errors.New("private IP addresses not allowed")
)

// sharedAddressSpace is carrier-grade NAT (RFC 6598), not covered by
// netip.Addr.IsPrivate.
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// ValidateCallbackURL checks a client-supplied callback URL. In strict mode
// hosts that resolve inside the deployment (loopback, private, link-local,
// unspecified) are rejected when given as names or literals.
func ValidateCallbackURL(callbackURL string, strict bool) error {
	if len(callbackURL) > MaxCallbackURLLength {
		return ErrURLTooLong
	}

	u, err := url.Parse(callbackURL)
	if err != nil {
		return ErrInvalidURL
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return ErrInvalidScheme
	}

	host := u.Hostname()
	if host == "" {
		return ErrEmptyHost
	}
	if !strict {
		return nil
	}

	if u.User != nil {
		return ErrCredentialsInURL
	}
	if isLocalName(host) {
		return ErrLocalhostBlocked
	}
	if addr, err := netip.ParseAddr(host); err == nil && !isPublicAddr(addr) {
		return ErrPrivateIP
	}
	return nil
}

func isLocalName(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	return host == "localhost" ||
		strings.HasSuffix(host, ".localhost") ||
		strings.HasSuffix(host, ".local")
}

// isPublicAddr reports whether addr is routable on the public internet.
func isPublicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	switch {
	case addr.IsLoopback(),
		addr.IsPrivate(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsInterfaceLocalMulticast(),
		addr.IsMulticast(),
		addr.IsUnspecified():
		return false
	case addr.Is4() && (addr.As4()[0] == 0 || sharedAddressSpace.Contains(addr)):
		return false
	}
	return true
}

// ExtractHost returns the host of targetURL for logging. Paths and query
// strings may carry tokens and are never logged.
func ExtractHost(targetURL string) string {
	u, err := url.Parse(targetURL)
	if err != nil {
		return "(invalid)"
	}
	return u.Host
}
