// Package security provides SSRF protection for outbound HTTP fetches.
//
// The URL validator (Policy) is a pure string check: scheme allow-list,
// hostname blocklist, numeric IP normalization and classification, and
// userinfo rejection. SafeTransport complements it at connection time by
// resolving the hostname, rejecting any private or reserved resolved
// address, and dialing the validated address directly so a second DNS
// lookup cannot swap it (DNS rebinding).
package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"time"
)

// dnsTimeout is the maximum time allowed for DNS resolution.
const dnsTimeout = 500 * time.Millisecond

// ErrBlockedAddress is returned when a connection targets a blocked IP range.
var ErrBlockedAddress = errors.New("ssrf: connection to blocked address")

// ErrDNSTimeout is returned when DNS resolution exceeds the timeout.
var ErrDNSTimeout = errors.New("ssrf: DNS resolution timeout")

// ErrDNSFailed is returned when DNS resolution fails entirely.
var ErrDNSFailed = errors.New("ssrf: DNS resolution failed")

// Resolver abstracts DNS resolution for testability.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// netResolver wraps net.Resolver to satisfy the Resolver interface.
type netResolver struct {
	r *net.Resolver
}

func (nr *netResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	return nr.r.LookupIPAddr(ctx, host)
}

// DialFunc matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// SafeTransport wraps http.Transport and validates every resolved address
// during connection establishment.
type SafeTransport struct {
	// Base is the underlying http.Transport used for actual connections.
	Base *http.Transport

	// Resolver is used for DNS lookups. If nil, net.DefaultResolver is used.
	Resolver Resolver

	// Dial opens the pinned connection. If nil, a net.Dialer is used.
	Dial DialFunc
}

// NewSafeTransport creates a SafeTransport wrapping the provided base transport.
// If base is nil, a transport tuned for single-shot page fetches is used.
// Environment proxies are always disabled so the dial target is the
// validated origin.
func NewSafeTransport(base *http.Transport) (*SafeTransport, error) {
	initBlockedPrefixes()
	if initErr != nil {
		return nil, fmt.Errorf("ssrf: initialization failed: %w", initErr)
	}

	if base == nil {
		base = &http.Transport{
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          32,
			IdleConnTimeout:       30 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: time.Second,
		}
	}
	base.Proxy = nil

	st := &SafeTransport{Base: base}
	base.DialContext = st.safeDialContext

	return st, nil
}

// RoundTrip implements http.RoundTripper. It delegates to the base transport
// which has its DialContext overridden with address validation.
func (st *SafeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return st.Base.RoundTrip(req)
}

// safeDialContext resolves the host, validates every resolved address and
// dials the validated addresses in order until one connects.
func (st *SafeTransport) safeDialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("ssrf: invalid address %q: %w", addr, err)
	}

	// IP literals are validated directly.
	if ip, err := netip.ParseAddr(host); err == nil {
		if isBlockedAddr(ip) {
			return nil, fmt.Errorf("%w: %s", ErrBlockedAddress, ip)
		}
		return st.dialer()(ctx, network, addr)
	}

	dnsCtx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	ips, err := st.getResolver().LookupIPAddr(dnsCtx, host)
	if err != nil {
		if dnsCtx.Err() != nil {
			return nil, fmt.Errorf("%w: host %q", ErrDNSTimeout, host)
		}
		return nil, fmt.Errorf("%w: host %q: %v", ErrDNSFailed, host, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("%w: host %q resolved to no addresses", ErrDNSFailed, host)
	}

	// Validate ALL resolved addresses before connecting to any, so a safe
	// address cannot be mixed with a private one.
	targets := make([]string, 0, len(ips))
	for _, ipAddr := range ips {
		ip, ok := netip.AddrFromSlice(ipAddr.IP)
		if !ok || isBlockedAddr(ip) {
			return nil, fmt.Errorf("%w: %s (resolved from %s)", ErrBlockedAddress, ipAddr.IP, host)
		}
		targets = append(targets, net.JoinHostPort(ip.Unmap().String(), port))
	}

	dial := st.dialer()
	var lastErr error
	for _, target := range targets {
		conn, err := dial(ctx, network, target)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// getResolver returns the configured Resolver, or the default net.Resolver.
func (st *SafeTransport) getResolver() Resolver {
	if st.Resolver != nil {
		return st.Resolver
	}
	return &netResolver{r: net.DefaultResolver}
}

func (st *SafeTransport) dialer() DialFunc {
	if st.Dial != nil {
		return st.Dial
	}
	d := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	return d.DialContext
}

// NewSafeHTTPClient creates an http.Client backed by SafeTransport. The
// client does not follow redirects; callers re-validate each hop.
func NewSafeHTTPClient() (*http.Client, error) {
	transport, err := NewSafeTransport(nil)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}, nil
}
