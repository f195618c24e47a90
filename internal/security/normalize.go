package security

import (
	"fmt"
	"strconv"
	"strings"
)

// NormalizeIPv4 canonicalizes alternate numeric encodings of an IPv4 address.
//
// Accepted shapes:
//   - a single integer label (decimal, 0x hex or leading-zero octal) in
//     [0, 2^32-1], e.g. "2130706433" -> "127.0.0.1"
//   - four dotted labels, each decimal, hex or octal and each 0..255,
//     e.g. "0x7f.0x0.0x0.0x1" -> "127.0.0.1"
//   - two or three dotted labels whose leading label is a valid octet; the
//     input is returned unchanged so the classifier can flag it
//
// Anything else returns ("", false).
func NormalizeIPv4(host string) (string, bool) {
	if host == "" {
		return "", false
	}

	parts := strings.Split(host, ".")
	switch len(parts) {
	case 1:
		v, ok := parseNumericLabel(parts[0])
		if !ok || v > 0xFFFFFFFF {
			return "", false
		}
		return formatIPv4(uint32(v)), true

	case 4:
		var addr uint32
		for _, p := range parts {
			v, ok := parseNumericLabel(p)
			if !ok || v > 255 {
				return "", false
			}
			addr = addr<<8 | uint32(v)
		}
		return formatIPv4(addr), true

	case 2, 3:
		v, ok := parseNumericLabel(parts[0])
		if !ok || v > 255 {
			return "", false
		}
		return host, true
	}

	return "", false
}

// parseNumericLabel decodes one address label. "0x"/"0X" selects hex, a
// leading "0" on a multi-digit label selects octal (digits 0-7 only).
func parseNumericLabel(s string) (uint64, bool) {
	if s == "" {
		return 0, false
	}

	base := 10
	digits := s
	switch {
	case len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X"):
		base = 16
		digits = s[2:]
	case len(s) > 1 && s[0] == '0':
		base = 8
		digits = s[1:]
	}

	for _, r := range digits {
		if !isDigitInBase(r, base) {
			return 0, false
		}
	}

	v, err := strconv.ParseUint(digits, base, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func isDigitInBase(r rune, base int) bool {
	switch base {
	case 8:
		return r >= '0' && r <= '7'
	case 16:
		return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
	default:
		return r >= '0' && r <= '9'
	}
}

func formatIPv4(v uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
