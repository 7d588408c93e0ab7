// Package horosafe holds the small security checks tubemaster applies at its
// edges: control-token length, generation API URL safety, and bounded reads
// of API responses.
package horosafe

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
)

// MinSecretLen is the minimum length for the control API signing secret.
const MinSecretLen = 32

// MaxResponseBody caps generation API response reads (1 MiB).
const MaxResponseBody int64 = 1 << 20

var (
	// ErrSecretTooShort is returned when a secret does not meet MinSecretLen.
	ErrSecretTooShort = fmt.Errorf("horosafe: secret must be at least %d bytes", MinSecretLen)
	// ErrSSRF is returned when a URL targets a private or loopback address.
	ErrSSRF = errors.New("horosafe: URL targets a private or loopback address")
	// ErrUnsafeScheme is returned when a URL uses a non-HTTP(S) scheme.
	ErrUnsafeScheme = errors.New("horosafe: only http and https schemes are allowed")
	// ErrTooLarge is returned by LimitedReadAll when the limit is exceeded.
	ErrTooLarge = errors.New("horosafe: response too large")
)

// ValidateSecret checks that secret is at least MinSecretLen bytes.
func ValidateSecret(secret []byte) error {
	if len(secret) < MinSecretLen {
		return ErrSecretTooShort
	}
	return nil
}

// URLOption relaxes ValidateURL.
type URLOption func(*urlPolicy)

type urlPolicy struct {
	allowLoopback bool
	schemes       []string
}

// AllowLoopback accepts 127.0.0.0/8 and ::1. Used for local API stubs and
// for a remote-debugging browser on the same host.
func AllowLoopback() URLOption { return func(p *urlPolicy) { p.allowLoopback = true } }

// AllowSchemes replaces the accepted schemes (default http, https).
func AllowSchemes(s ...string) URLOption { return func(p *urlPolicy) { p.schemes = s } }

// ValidateURL checks that rawURL uses an accepted scheme, has a host, and does
// not point at a private address. Hostnames are resolved so an internal name
// cannot slip through; resolution failures are let through and surface at
// dial time.
func ValidateURL(rawURL string, opts ...URLOption) error {
	p := urlPolicy{schemes: []string{"http", "https"}}
	for _, o := range opts {
		o(&p)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("horosafe: invalid URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	ok := false
	for _, s := range p.schemes {
		if s == scheme {
			ok = true
			break
		}
	}
	if !ok {
		return ErrUnsafeScheme
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("horosafe: URL has no host")
	}

	if ip := net.ParseIP(host); ip != nil {
		if blocked(ip, p) {
			return ErrSSRF
		}
		return nil
	}
	if host == "localhost" && p.allowLoopback {
		return nil
	}

	addrs, err := net.LookupHost(host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && blocked(ip, p) {
			return ErrSSRF
		}
	}
	return nil
}

// LimitedReadAll reads at most maxBytes from r.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}

var privateNets = mustCIDRs("10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "fc00::/7", "169.254.0.0/16")

func mustCIDRs(ss ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(ss))
	for _, s := range ss {
		_, n, err := net.ParseCIDR(s)
		if err != nil {
			panic(err)
		}
		out = append(out, n)
	}
	return out
}

func blocked(ip net.IP, p urlPolicy) bool {
	if ip.IsLoopback() {
		return !p.allowLoopback
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	for _, n := range privateNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
