package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockResolver implements Resolver for deterministic testing.
type mockResolver struct {
	ips map[string][]net.IPAddr
	err error
}

func (m *mockResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	if m.err != nil {
		return nil, m.err
	}
	ips, ok := m.ips[host]
	if !ok {
		return nil, fmt.Errorf("no such host: %s", host)
	}
	return ips, nil
}

// slowResolver simulates a DNS resolver that takes too long.
type slowResolver struct {
	delay time.Duration
}

func (s *slowResolver) LookupIPAddr(ctx context.Context, _ string) ([]net.IPAddr, error) {
	select {
	case <-time.After(s.delay):
		return []net.IPAddr{{IP: net.ParseIP("93.184.216.34")}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newMockResolver(mappings map[string][]string) *mockResolver {
	ips := make(map[string][]net.IPAddr)
	for host, ipStrs := range mappings {
		addrs := make([]net.IPAddr, len(ipStrs))
		for i, ipStr := range ipStrs {
			addrs[i] = net.IPAddr{IP: net.ParseIP(ipStr)}
		}
		ips[host] = addrs
	}
	return &mockResolver{ips: ips}
}

var errDialRecorded = errors.New("dial recorded")

// recordingDialer captures dial targets without touching the network.
type recordingDialer struct {
	mu    sync.Mutex
	addrs []string
}

func (d *recordingDialer) dial(_ context.Context, _, addr string) (net.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addrs = append(d.addrs, addr)
	return nil, errDialRecorded
}

func newTestTransport(t *testing.T, resolver Resolver) (*SafeTransport, *recordingDialer) {
	t.Helper()
	transport, err := NewSafeTransport(nil)
	require.NoError(t, err)
	rec := &recordingDialer{}
	transport.Resolver = resolver
	transport.Dial = rec.dial
	return transport, rec
}

func get(t *testing.T, rt http.RoundTripper, rawURL string) error {
	t.Helper()
	client := &http.Client{Transport: rt, Timeout: 5 * time.Second}
	resp, err := client.Get(rawURL)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return err
}

func TestSafeTransport_BlocksResolvedPrivateIP(t *testing.T) {
	tests := []struct {
		name string
		host string
		ip   string
	}{
		{"rfc1918", "internal.example.com", "10.0.0.5"},
		{"loopback", "rebind.example.com", "127.0.0.1"},
		{"metadata", "meta.example.com", "169.254.169.254"},
		{"ipv6 unique local", "v6.example.com", "fd00::1"},
		{"ipv4 mapped", "mapped.example.com", "::ffff:10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport, rec := newTestTransport(t, newMockResolver(map[string][]string{tt.host: {tt.ip}}))

			err := get(t, transport, "http://"+tt.host+"/")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrBlockedAddress)
			assert.Empty(t, rec.addrs, "no connection should be attempted")
		})
	}
}

func TestSafeTransport_BlocksIPLiteral(t *testing.T) {
	transport, rec := newTestTransport(t, newMockResolver(nil))

	err := get(t, transport, "http://169.254.169.254/latest/meta-data/")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlockedAddress)
	assert.Empty(t, rec.addrs)
}

// Mixed answers are blocked even when the first address is public.
func TestSafeTransport_BlocksMixedIPs(t *testing.T) {
	transport, rec := newTestTransport(t, newMockResolver(map[string][]string{
		"mixed.example.com": {"93.184.216.34", "10.0.0.1"},
	}))

	err := get(t, transport, "http://mixed.example.com/")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlockedAddress)
	assert.Empty(t, rec.addrs)
}

// The dial goes to the validated address, not to the hostname.
func TestSafeTransport_PinsValidatedAddress(t *testing.T) {
	transport, rec := newTestTransport(t, newMockResolver(map[string][]string{
		"safe.example.com": {"93.184.216.34", "2606:2800:220:1:248:1893:25c8:1946"},
	}))

	err := get(t, transport, "http://safe.example.com:8080/page")
	require.Error(t, err)
	assert.ErrorIs(t, err, errDialRecorded)
	assert.NotErrorIs(t, err, ErrBlockedAddress)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.NotEmpty(t, rec.addrs)
	assert.Equal(t, "93.184.216.34:8080", rec.addrs[0])
	if len(rec.addrs) > 1 {
		assert.Equal(t, "[2606:2800:220:1:248:1893:25c8:1946]:8080", rec.addrs[1])
	}
}

func TestSafeTransport_AllowsPublicIPLiteral(t *testing.T) {
	transport, rec := newTestTransport(t, newMockResolver(nil))

	err := get(t, transport, "http://93.184.216.34/")
	require.Error(t, err)
	assert.ErrorIs(t, err, errDialRecorded)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.NotEmpty(t, rec.addrs)
	assert.Equal(t, "93.184.216.34:80", rec.addrs[0])
}

// TestSafeTransport_DNSTimeout verifies that DNS timeouts fail closed.
func TestSafeTransport_DNSTimeout(t *testing.T) {
	transport, rec := newTestTransport(t, &slowResolver{delay: 2 * time.Second})

	err := get(t, transport, "http://slow-dns.example.com/")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDNSTimeout)
	assert.Empty(t, rec.addrs)
}

func TestSafeTransport_DNSResolutionFailure(t *testing.T) {
	transport, _ := newTestTransport(t, &mockResolver{err: errors.New("server misbehaving")})

	err := get(t, transport, "http://nxdomain.example.com/")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDNSFailed)
}

func TestSafeTransport_NoAddresses(t *testing.T) {
	transport, _ := newTestTransport(t, &mockResolver{ips: map[string][]net.IPAddr{"empty.example.com": {}}})

	err := get(t, transport, "http://empty.example.com/")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDNSFailed)
}

func TestNewSafeTransport_DisablesProxy(t *testing.T) {
	base := &http.Transport{Proxy: http.ProxyFromEnvironment}
	transport, err := NewSafeTransport(base)
	require.NoError(t, err)
	assert.Nil(t, transport.Base.Proxy)
	assert.NotNil(t, transport.Base.DialContext)
}

func TestNewSafeHTTPClient(t *testing.T) {
	client, err := NewSafeHTTPClient()
	require.NoError(t, err)
	require.NotNil(t, client)

	_, ok := client.Transport.(*SafeTransport)
	assert.True(t, ok, "transport should be a SafeTransport")
	require.NotNil(t, client.CheckRedirect)
	assert.ErrorIs(t, client.CheckRedirect(nil, nil), http.ErrUseLastResponse)
}
