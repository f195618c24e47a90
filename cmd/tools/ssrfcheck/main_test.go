package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"fetchgate/internal/types"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()
	if root.Use != "ssrfcheck" {
		t.Errorf("expected Use to be 'ssrfcheck', got %q", root.Use)
	}
	for _, name := range []string{"check", "normalize", "fetch", "version"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestCheck_MixedVerdicts(t *testing.T) {
	out, err := execute(t, "check", "https://example.com/", "http://169.254.169.254/latest/meta-data/")
	if !errors.Is(err, errRejected) {
		t.Fatalf("expected errRejected, got %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", out)
	}
	if !strings.HasPrefix(lines[0], "ALLOW") || !strings.Contains(lines[0], "-> https://example.com/") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "REJECT") || !strings.Contains(lines[1], "(address is private or reserved: 169.254.169.254)") {
		t.Errorf("line 1 = %q", lines[1])
	}
}

func TestCheck_AllAllowed(t *testing.T) {
	out, err := execute(t, "check", "https://example.com/", "http://example.org/path?q=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Count(out, "ALLOW") != 2 {
		t.Errorf("expected two ALLOW lines, got %q", out)
	}
}

func TestCheck_PolicyFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocklist.yaml")
	if err := os.WriteFile(path, []byte("hostnames:\n  - admin.example.com\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"block flag", []string{"--block", "internal.example.com", "http://internal.example.com/"}, "hostname is blocked: internal.example.com"},
		{"blocklist file", []string{"--blocklist", path, "https://admin.example.com/"}, "hostname is blocked: admin.example.com"},
		{"schemes", []string{"--schemes", "https", "http://example.com/"}, "protocol not allowed: http"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append([]string{"check"}, tt.args...)...)
			if !errors.Is(err, errRejected) {
				t.Fatalf("expected errRejected, got %v", err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output %q should contain %q", out, tt.want)
			}
		})
	}
}

func TestCheck_BadBlocklist(t *testing.T) {
	_, err := execute(t, "check", "--blocklist", filepath.Join(t.TempDir(), "missing.yaml"), "https://example.com/")
	if err == nil || errors.Is(err, errRejected) {
		t.Fatalf("expected a policy error, got %v", err)
	}
}

func TestCheck_RequiresArgs(t *testing.T) {
	if _, err := execute(t, "check"); err == nil {
		t.Fatal("expected error without URLs")
	}
}

func TestNormalize(t *testing.T) {
	out, err := execute(t, "normalize", "2130706433", "0x7f.1", "8.8.8.8", "example.com", "::1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows := map[string][]string{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n")[1:] {
		f := strings.Fields(line)
		rows[f[0]] = f[1:]
	}
	want := map[string][]string{
		"2130706433":  {"127.0.0.1", "blocked"},
		"0x7f.1":      {"0x7f.1", "blocked"},
		"8.8.8.8":     {"8.8.8.8", "public"},
		"example.com": {"-", "hostname"},
		"::1":         {"-", "blocked"},
	}
	for host, w := range want {
		got := rows[host]
		if len(got) != 2 || got[0] != w[0] || got[1] != w[1] {
			t.Errorf("%s: got %v, want %v", host, got, w)
		}
	}
}

func TestFetch_RejectsBeforeDialing(t *testing.T) {
	orig := newHTTPClient
	t.Cleanup(func() { newHTTPClient = orig })
	newHTTPClient = func() (*http.Client, error) {
		t.Error("client must not be built for a rejected URL")
		return nil, errors.New("unreachable")
	}

	out, err := execute(t, "fetch", "http://10.0.0.1/")
	if !errors.Is(err, errRejected) {
		t.Fatalf("expected errRejected, got %v", err)
	}
	if !strings.Contains(out, "address is private or reserved: 10.0.0.1") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestFetch_ClientError(t *testing.T) {
	orig := newHTTPClient
	t.Cleanup(func() { newHTTPClient = orig })
	newHTTPClient = func() (*http.Client, error) { return nil, errors.New("no transport") }

	_, err := execute(t, "fetch", "https://example.com/")
	if err == nil || !strings.Contains(err.Error(), "no transport") {
		t.Fatalf("expected client error, got %v", err)
	}
}

func TestNewFetchReport(t *testing.T) {
	tests := []struct {
		name    string
		outcome types.FetchOutcome
		html    bool
		want    fetchReport
	}{
		{
			name:    "success without body",
			outcome: types.FetchSuccess{HTML: "<p>hi</p>", FinalURL: "https://example.com/", ContentType: "text/html"},
			want:    fetchReport{URL: "u", Outcome: "success", FinalURL: "https://example.com/", ContentType: "text/html", Bytes: 9, ElapsedMS: 120},
		},
		{
			name:    "success with body",
			outcome: types.FetchSuccess{HTML: "<p>hi</p>"},
			html:    true,
			want:    fetchReport{URL: "u", Outcome: "success", Bytes: 9, HTML: "<p>hi</p>", ElapsedMS: 120},
		},
		{
			name:    "upstream",
			outcome: types.UpstreamFailure{StatusCode: 404, StatusText: "Not Found", FinalURL: "https://example.com/x"},
			want:    fetchReport{URL: "u", Outcome: "upstream_failure", FinalURL: "https://example.com/x", StatusCode: 404, Error: "Not Found", ElapsedMS: 120},
		},
		{
			name:    "too large",
			outcome: types.TooLarge{FinalURL: "https://example.com/big", SizeBytes: 5 << 20},
			want:    fetchReport{URL: "u", Outcome: "too_large", FinalURL: "https://example.com/big", Bytes: 5 << 20, Error: "response too large", ElapsedMS: 120},
		},
		{
			name:    "redirect rejected",
			outcome: types.ValidationRejected{Reason: "hostname is blocked: localhost", URL: "http://localhost/"},
			want:    fetchReport{URL: "u", Outcome: "rejected", Error: "hostname is blocked: localhost", RejectedURL: "http://localhost/", ElapsedMS: 120},
		},
		{
			name:    "timeout",
			outcome: types.NetworkError{Message: "request timed out", IsTimeout: true},
			want:    fetchReport{URL: "u", Outcome: "timeout", Error: "request timed out", ElapsedMS: 120},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newFetchReport("u", tt.outcome, 120*time.Millisecond, tt.html)
			if got != tt.want {
				t.Errorf("got %+v\nwant %+v", got, tt.want)
			}
		})
	}
}

func TestWriteJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := writeJSON(buf, fetchReport{URL: "u", Outcome: "success"}); err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := got["html"]; ok {
		t.Error("empty html should be omitted")
	}
	if got["elapsedMs"] != float64(0) {
		t.Errorf("elapsedMs = %v", got["elapsedMs"])
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "ssrfcheck ") || !strings.Contains(out, "commit:") {
		t.Errorf("unexpected output %q", out)
	}
}
