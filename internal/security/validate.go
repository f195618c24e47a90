package security

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/net/idna"

	"fetchgate/internal/types"
)

// Rejection reasons returned in ValidationResult.Error.
const (
	reasonInvalidFormat  = "invalid URL format"
	reasonCredentials    = "credentials in URL are not allowed"
	reasonSchemeFormat   = "protocol not allowed: %s"
	reasonBlockedHost    = "hostname is blocked: %s"
	reasonPrivateAddress = "address is private or reserved: %s"
)

// ErrUnsupportedScheme is returned by NewPolicy for schemes the fetcher cannot speak.
var ErrUnsupportedScheme = errors.New("security: unsupported scheme")

// Policy is an immutable URL validation policy. Build it once at startup and
// share it; Validate performs no I/O and is safe for concurrent use.
type Policy struct {
	schemes map[string]struct{}
	hosts   map[string]struct{}
}

// NewPolicy builds a Policy from a protocol allow-list and extra blocked
// hostnames. The built-in blocklist (types.DefaultBlockedHostnames) is
// always included. An empty scheme list selects http and https.
func NewPolicy(allowedSchemes, extraBlocked []string) (*Policy, error) {
	if len(allowedSchemes) == 0 {
		allowedSchemes = types.DefaultAllowedSchemes
	}

	p := &Policy{
		schemes: make(map[string]struct{}, len(allowedSchemes)),
		hosts:   make(map[string]struct{}, len(types.DefaultBlockedHostnames)+len(extraBlocked)),
	}

	for _, s := range allowedSchemes {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "http" && s != "https" {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, s)
		}
		p.schemes[s] = struct{}{}
	}

	for _, h := range slices.Concat(types.DefaultBlockedHostnames, extraBlocked) {
		canon, ok := canonicalHost(strings.TrimSpace(h))
		if !ok || canon == "" {
			continue
		}
		p.hosts[canon] = struct{}{}
	}

	return p, nil
}

var (
	defaultPolicy     *Policy
	defaultPolicyOnce sync.Once
)

// DefaultPolicy returns the policy built from the default allow-list and
// blocklist.
func DefaultPolicy() *Policy {
	defaultPolicyOnce.Do(func() {
		p, err := NewPolicy(nil, nil)
		if err != nil {
			panic(fmt.Sprintf("security: default policy: %v", err))
		}
		defaultPolicy = p
	})
	return defaultPolicy
}

// Validate checks raw against DefaultPolicy.
func Validate(raw string) types.ValidationResult {
	return DefaultPolicy().Validate(raw)
}

// BlockedHostnames returns the effective blocklist, sorted.
func (p *Policy) BlockedHostnames() []string {
	out := make([]string, 0, len(p.hosts))
	for h := range p.hosts {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}

// AllowedSchemes returns the protocol allow-list, sorted.
func (p *Policy) AllowedSchemes() []string {
	out := make([]string, 0, len(p.schemes))
	for s := range p.schemes {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// Validate decides whether raw may be fetched. Checks run in order and the
// first failure determines the reason:
//  1. absolute URL with a scheme
//  2. scheme in the allow-list
//  3. non-empty host
//  4. host not on the blocklist (and not *.localhost)
//  5. numeric host normalized and classified
//  6. raw host classified
//  7. no userinfo
func (p *Policy) Validate(raw string) types.ValidationResult {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" {
		return reject(reasonInvalidFormat)
	}

	scheme := strings.ToLower(u.Scheme)
	if _, ok := p.schemes[scheme]; !ok {
		return reject(fmt.Sprintf(reasonSchemeFormat, scheme))
	}

	if u.Opaque != "" || u.Hostname() == "" {
		return reject(reasonInvalidFormat)
	}

	host, ok := canonicalHost(u.Hostname())
	if !ok || host == "" {
		return reject(reasonInvalidFormat)
	}

	if p.isBlockedHost(host) {
		return reject(fmt.Sprintf(reasonBlockedHost, host))
	}

	if literal, ok := NormalizeIPv4(host); ok && IsPrivateOrReserved(literal) {
		return reject(fmt.Sprintf(reasonPrivateAddress, literal))
	}

	if IsPrivateOrReserved(host) {
		return reject(fmt.Sprintf(reasonPrivateAddress, host))
	}

	if u.User != nil {
		return reject(reasonCredentials)
	}

	if host != strings.ToLower(u.Hostname()) {
		u.Host = joinHost(host, u.Port())
	}

	return types.ValidationResult{Valid: true, ParsedURL: u}
}

func (p *Policy) isBlockedHost(host string) bool {
	if _, ok := p.hosts[host]; ok {
		return true
	}
	return strings.HasSuffix(host, ".localhost")
}

func reject(reason string) types.ValidationResult {
	return types.ValidationResult{Valid: false, Error: reason}
}

// canonicalHost lower-cases a hostname, strips one trailing dot and maps
// non-ASCII names to their IDNA (punycode) form. IPv6 literals are returned
// lower-cased without brackets.
func canonicalHost(host string) (string, bool) {
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if strings.Contains(host, ":") || isASCII(host) {
		return host, true
	}
	mapped, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", false
	}
	return strings.TrimSuffix(strings.ToLower(mapped), "."), true
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func joinHost(host, port string) string {
	if port != "" {
		return net.JoinHostPort(host, port)
	}
	if strings.Contains(host, ":") {
		return "[" + host + "]"
	}
	return host
}
