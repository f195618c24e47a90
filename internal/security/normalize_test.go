package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeIPv4(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		// Single integer label
		{"decimal loopback", "2130706433", "127.0.0.1", true},
		{"decimal zero", "0", "0.0.0.0", true},
		{"decimal max", "4294967295", "255.255.255.255", true},
		{"decimal out of range", "4294967296", "", false},
		{"decimal public", "134744072", "8.8.8.8", true},
		{"hex integer", "0x7f000001", "127.0.0.1", true},
		{"hex integer uppercase prefix", "0X7F000001", "127.0.0.1", true},
		{"octal integer", "017700000001", "127.0.0.1", true},
		{"huge integer", "99999999999999999999999", "", false},

		// Four dotted labels
		{"canonical", "127.0.0.1", "127.0.0.1", true},
		{"all hex", "0x7f.0x0.0x0.0x1", "127.0.0.1", true},
		{"mixed hex and decimal", "0xa9.254.169.254", "169.254.169.254", true},
		{"octal octet", "0177.0.0.01", "127.0.0.1", true},
		{"octal with 8 is invalid", "018.0.0.1", "", false},
		{"octet over 255", "256.0.0.1", "", false},
		{"hex octet over 255", "0x100.0.0.1", "", false},
		{"empty label", "1..2.3", "", false},

		// Shorthand forms
		{"two part shorthand", "127.1", "127.1", true},
		{"three part shorthand", "10.0.1", "10.0.1", true},
		{"shorthand bad leading", "300.1", "", false},

		// Not address-like
		{"domain", "example.com", "", false},
		{"single label name", "intranet", "", false},
		{"five parts", "1.2.3.4.5", "", false},
		{"empty", "", "", false},
		{"bare 0x", "0x", "", false},
		{"signed", "+1.2.3.4", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeIPv4(tt.input)
			assert.Equal(t, tt.wantOK, ok, "ok for %q", tt.input)
			assert.Equal(t, tt.want, got, "normalized form of %q", tt.input)
		})
	}
}

// Normalized obfuscated forms of loopback must be flagged by the classifier.
func TestNormalizeIPv4_FeedsClassifier(t *testing.T) {
	for _, input := range []string{"2130706433", "0x7f.0x0.0x0.0x1", "0x7f000001", "127.1"} {
		literal, ok := NormalizeIPv4(input)
		assert.True(t, ok, input)
		assert.True(t, IsPrivateOrReserved(literal), "%q -> %q should be reserved", input, literal)
	}
}
