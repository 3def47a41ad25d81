// Package guard holds the safety checks applied to operator-supplied source
// locations before the ingestion pipeline touches them: URL vetting (SSRF
// prevention), path traversal guards for file-backed sources, and bounded
// I/O helpers.
package guard

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"path/filepath"
	"strings"
)

// MaxBodyBytes is the default cap for HTTP response body reads (1 MiB).
const MaxBodyBytes int64 = 1 << 20

// ErrPathTraversal is returned when a source file path escapes its base dir.
var ErrPathTraversal = errors.New("guard: path traversal detected")

// ErrSSRF is returned when a URL targets a private or loopback address.
var ErrSSRF = errors.New("guard: URL targets a private or loopback address")

// ErrUnsafeScheme is returned when a URL uses a non-HTTP(S) scheme.
var ErrUnsafeScheme = errors.New("guard: only http and https schemes are allowed")

// blockedNets covers loopback, link-local, RFC 1918 and RFC 4193 ranges.
var blockedNets = mustParseCIDRs(
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(blocks ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(blocks))
	for _, b := range blocks {
		_, cidr, err := net.ParseCIDR(b)
		if err != nil {
			panic("guard: bad builtin CIDR " + b)
		}
		nets = append(nets, cidr)
	}
	return nets
}

// ValidateURL checks that rawURL uses http/https, names a host, and does not
// point at a private or loopback address. Hostnames are resolved so internal
// names cannot slip past the literal-IP check; a DNS failure is allowed
// through since the dial will surface it anyway.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("guard: invalid URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrUnsafeScheme
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("guard: URL has no host")
	}

	if ip := net.ParseIP(host); ip != nil {
		if IsPrivateIP(ip) {
			return ErrSSRF
		}
		return nil
	}

	addrs, err := net.LookupHost(host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && IsPrivateIP(ip) {
			return ErrSSRF
		}
	}
	return nil
}

// IsPrivateIP reports whether ip falls in a loopback, link-local, or
// private range.
func IsPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	for _, cidr := range blockedNets {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// SafePath joins base and userInput and verifies the result stays under
// base. Returns the cleaned path or ErrPathTraversal.
func SafePath(base, userInput string) (string, error) {
	if strings.Contains(userInput, "..") {
		return "", ErrPathTraversal
	}
	cleaned := filepath.Join(base, filepath.Clean("/"+userInput))
	if cleaned != filepath.Clean(base) &&
		!strings.HasPrefix(cleaned, filepath.Clean(base)+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return cleaned, nil
}

// ValidateName rejects source names unsuitable for file names or URL path
// segments. Allows alphanumeric, underscore, hyphen, and dot.
func ValidateName(s string) error {
	if s == "" {
		return fmt.Errorf("guard: name must not be empty")
	}
	if len(s) > 256 {
		return fmt.Errorf("guard: name too long (max 256)")
	}
	for _, r := range s {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.'
		if !ok {
			return fmt.Errorf("guard: invalid character %q in name", r)
		}
	}
	return nil
}

// LimitedReadAll reads at most maxBytes from r and errors when the limit
// is exceeded.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	lr := io.LimitReader(r, maxBytes+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("guard: body exceeds %d bytes", maxBytes)
	}
	return data, nil
}
