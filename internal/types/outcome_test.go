package types

import "testing"

func TestFetchOutcomeKind(t *testing.T) {
	tests := []struct {
		name    string
		outcome FetchOutcome
		want    string
	}{
		{"success", FetchSuccess{HTML: "<p>ok</p>"}, OutcomeSuccess},
		{"upstream failure", UpstreamFailure{StatusCode: 404, StatusText: "Not Found"}, OutcomeUpstreamFailure},
		{"too large", TooLarge{}, OutcomeTooLarge},
		{"rejected", ValidationRejected{Reason: "hostname is blocked: metadata"}, OutcomeRejected},
		{"network error", NetworkError{Message: "connection refused"}, OutcomeNetworkError},
		{"timeout", NetworkError{Message: "request timed out", IsTimeout: true}, OutcomeTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.outcome.Kind(); got != tt.want {
				t.Errorf("Kind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDefaultBlockedHostnamesAreCanonical(t *testing.T) {
	for _, h := range DefaultBlockedHostnames {
		for _, r := range h {
			if r >= 'A' && r <= 'Z' {
				t.Errorf("blocked hostname %q must be lower-case", h)
			}
		}
		if len(h) > 0 && h[len(h)-1] == '.' {
			t.Errorf("blocked hostname %q must not end with a dot", h)
		}
	}
}
