package types

import (
	"net/url"
)

// Fetch limits shared by config defaults, the fetcher and the CLI.
const (
	DefaultFetchTimeoutSeconds = 9
	DefaultMaxRedirects        = 5
	DefaultMaxBodyBytes        = 4718592 // 4.5 MB
	DefaultUserAgent           = "fetchgate/1.0 (+html fetch proxy)"
	MaxRequestBodyBytes        = 1 << 20
)

// ValidationResult is the verdict of the URL validator.
// ParsedURL is set only when Valid is true.
type ValidationResult struct {
	Valid     bool
	Error     string
	ParsedURL *url.URL
}

// DefaultAllowedSchemes is the protocol allow-list used when none is configured.
var DefaultAllowedSchemes = []string{"http", "https"}

// DefaultBlockedHostnames lists hostnames that resolve to loopback or to
// cloud/cluster metadata services. Entries are lower-case, no trailing dot.
var DefaultBlockedHostnames = []string{
	"localhost",
	"localhost.localdomain",
	"ip6-localhost",
	"ip6-loopback",
	"::1",
	"0:0:0:0:0:0:0:1",
	"metadata",
	"metadata.google.internal",
	"metadata.goog",
	"instance-data",
	"instance-data.ec2.internal",
	"kubernetes.default",
	"kubernetes.default.svc",
	"kubernetes.default.svc.cluster.local",
}

// BlockedIPv4CIDRs are the IPv4 ranges treated as private or reserved.
// Everything at or above 224.0.0.0 is covered by the last two entries.
var BlockedIPv4CIDRs = []string{
	"0.0.0.0/8",       // "This" network
	"10.0.0.0/8",      // Private Class A
	"100.64.0.0/10",   // Shared Address Space (CGN)
	"127.0.0.0/8",     // Loopback
	"169.254.0.0/16",  // Link-local (cloud metadata)
	"172.16.0.0/12",   // Private Class B
	"192.0.0.0/24",    // IETF protocol assignments
	"192.0.2.0/24",    // TEST-NET-1
	"192.168.0.0/16",  // Private Class C
	"198.18.0.0/15",   // Benchmark testing
	"198.51.100.0/24", // TEST-NET-2
	"203.0.113.0/24",  // TEST-NET-3
	"224.0.0.0/4",     // Multicast
	"240.0.0.0/4",     // Reserved, broadcast
}

// BlockedIPv6CIDRs are the IPv6 ranges treated as private or reserved.
// IPv4-mapped, IPv4-compatible and NAT64 addresses are classified by their
// embedded IPv4 address instead.
var BlockedIPv6CIDRs = []string{
	"::/128",    // Unspecified
	"::1/128",   // Loopback
	"fc00::/7",  // Unique local
	"fe80::/10", // Link-local
	"fec0::/10", // Site-local (deprecated)
	"ff00::/8",  // Multicast
}
