package security

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"sync"

	"fetchgate/internal/types"
)

// blockedPrefixes holds the parsed CIDR blocks. Initialized once via sync.Once.
var (
	blockedV4 []netip.Prefix
	blockedV6 []netip.Prefix
	initOnce  sync.Once
	initErr   error
)

// nat64Prefix is the well-known NAT64 prefix (RFC 6052).
var nat64Prefix = netip.MustParsePrefix("64:ff9b::/96")

// initBlockedPrefixes parses the CIDR tables in types into netip.Prefix values.
func initBlockedPrefixes() {
	initOnce.Do(func() {
		blockedV4, initErr = parsePrefixes(types.BlockedIPv4CIDRs)
		if initErr != nil {
			return
		}
		blockedV6, initErr = parsePrefixes(types.BlockedIPv6CIDRs)
	})
}

func parsePrefixes(cidrs []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, cidr := range cidrs {
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, fmt.Errorf("security: failed to parse CIDR %q: %w", cidr, err)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

// IsPrivateOrReserved reports whether an IP literal falls in a private,
// loopback, link-local, documentation, multicast or otherwise reserved range.
//
// IPv4-shaped input (dot-separated numeric labels) must be exactly four
// canonical decimal octets; any other numeric shape such as "127.1" or
// "010.0.0.1" is reported as reserved. IPv6 input may carry brackets or a
// zone; an IPv6-looking literal that does not parse is reported as reserved.
// Domain names are not classified and return false.
func IsPrivateOrReserved(literal string) bool {
	initBlockedPrefixes()
	if initErr != nil {
		return true
	}

	s := strings.ToLower(strings.TrimSpace(literal))
	if s == "" {
		return false
	}

	if strings.Contains(s, ":") {
		return classifyIPv6(s)
	}
	if looksLikeIPv4(s) {
		addr, ok := parseCanonicalIPv4(s)
		if !ok {
			return true
		}
		return isBlockedAddr(addr)
	}
	return false
}

func classifyIPv6(s string) bool {
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if i := strings.IndexByte(s, '%'); i >= 0 {
		s = s[:i]
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return true
	}
	return isBlockedAddr(addr)
}

// isBlockedAddr classifies a parsed address. IPv6 forms that embed an IPv4
// address are classified by the embedded address.
func isBlockedAddr(addr netip.Addr) bool {
	initBlockedPrefixes()
	if initErr != nil {
		return true
	}

	addr = addr.WithZone("")
	if addr.Is4In6() {
		addr = addr.Unmap()
	}

	if addr.Is6() {
		if addr.IsUnspecified() || addr.IsLoopback() {
			return true
		}
		if embedded, ok := embeddedIPv4(addr); ok {
			addr = embedded
		}
	}

	prefixes := blockedV6
	if addr.Is4() {
		prefixes = blockedV4
	}
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// embeddedIPv4 extracts the IPv4 address from IPv4-compatible (::a.b.c.d)
// and NAT64 (64:ff9b::a.b.c.d) addresses.
func embeddedIPv4(addr netip.Addr) (netip.Addr, bool) {
	b := addr.As16()
	compatible := true
	for _, x := range b[:12] {
		if x != 0 {
			compatible = false
			break
		}
	}
	if compatible || nat64Prefix.Contains(addr) {
		return netip.AddrFrom4([4]byte{b[12], b[13], b[14], b[15]}), true
	}
	return netip.Addr{}, false
}

// looksLikeIPv4 reports whether s is a dotted run of numeric labels
// (decimal or 0x-prefixed hex). A bare integer with no dot is not treated
// as an IPv4 shape here; NormalizeIPv4 handles that form.
func looksLikeIPv4(s string) bool {
	if !strings.Contains(s, ".") {
		return false
	}
	for _, label := range strings.Split(s, ".") {
		if label == "" {
			return false
		}
		if strings.HasPrefix(label, "0x") {
			label = label[2:]
			if label == "" {
				return false
			}
			for _, r := range label {
				if !isDigitInBase(r, 16) {
					return false
				}
			}
			continue
		}
		for _, r := range label {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}

// parseCanonicalIPv4 accepts only a.b.c.d with each octet in decimal,
// 0..255 and without leading zeros.
func parseCanonicalIPv4(s string) (netip.Addr, bool) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return netip.Addr{}, false
	}
	var octets [4]byte
	for i, p := range parts {
		if len(p) == 0 || len(p) > 3 || (len(p) > 1 && p[0] == '0') {
			return netip.Addr{}, false
		}
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v > 255 {
			return netip.Addr{}, false
		}
		octets[i] = byte(v)
	}
	return netip.AddrFrom4(octets), true
}
