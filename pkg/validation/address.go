package validation

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Rail addresses are ICAN-style: a two-letter network prefix, two check
// digits and a 40-character hex body. The check digits are ISO 7064 mod 97-10
// over the rearranged address, so a single mistyped character never validates.
const (
	// AddressLength is the full printable address length.
	AddressLength = 44
	// addressBodyLength is the hex body length (20 bytes).
	addressBodyLength = 40

	// PrefixProduction marks addresses on the production rail network.
	PrefixProduction = "mn"
	// PrefixTest marks addresses on the test rail network.
	PrefixTest = "mt"
)

// ValidateAddress validates a rail address: length, network prefix, hex body
// and mod-97 checksum. No network call is made.
func ValidateAddress(addr string) error {
	normalized := NormalizeAddress(addr)
	if normalized == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if len(normalized) != AddressLength {
		return fmt.Errorf("invalid address length: expected %d characters, got %d", AddressLength, len(normalized))
	}

	prefix := normalized[:2]
	if prefix != PrefixProduction && prefix != PrefixTest {
		return fmt.Errorf("unknown address prefix %q", prefix)
	}

	body := normalized[4:]
	if _, err := hex.DecodeString(body); err != nil {
		return fmt.Errorf("invalid hex address body: %w", err)
	}

	// Validation form: body, prefix, check digits; mod 97 must be 1.
	if mod97(body+prefix+normalized[2:4]) != 1 {
		return fmt.Errorf("address checksum mismatch")
	}
	return nil
}

// NormalizeAddress lowercases an address and strips surrounding whitespace.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// ValidateAndNormalizeAddress validates an address and returns its normalized form.
func ValidateAndNormalizeAddress(addr string) (string, error) {
	if err := ValidateAddress(addr); err != nil {
		return "", err
	}
	return NormalizeAddress(addr), nil
}

// AddressNetwork reports which rail network an address belongs to:
// "production" or "test". The address must already be valid.
func AddressNetwork(addr string) (string, error) {
	normalized := NormalizeAddress(addr)
	if len(normalized) < 2 {
		return "", fmt.Errorf("address too short")
	}
	switch normalized[:2] {
	case PrefixProduction:
		return "production", nil
	case PrefixTest:
		return "test", nil
	}
	return "", fmt.Errorf("unknown address prefix %q", normalized[:2])
}

// FormatAddress builds a checksummed address from a network prefix and a
// 40-character hex body. Used by tooling and tests to mint valid addresses.
func FormatAddress(prefix, body string) (string, error) {
	prefix = strings.ToLower(prefix)
	body = strings.ToLower(body)
	if prefix != PrefixProduction && prefix != PrefixTest {
		return "", fmt.Errorf("unknown address prefix %q", prefix)
	}
	if len(body) != addressBodyLength {
		return "", fmt.Errorf("invalid body length: expected %d characters, got %d", addressBodyLength, len(body))
	}
	if _, err := hex.DecodeString(body); err != nil {
		return "", fmt.Errorf("invalid hex address body: %w", err)
	}
	check := 98 - mod97(body+prefix+"00")
	return fmt.Sprintf("%s%02d%s", prefix, check, body), nil
}

// mod97 interprets s as a number with letters mapped to 10..35 (a=10) and
// returns its remainder mod 97, processing digit by digit to avoid bignums.
func mod97(s string) int {
	r := 0
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			r = (r*10 + int(c-'0')) % 97
		case c >= 'a' && c <= 'z':
			v := int(c-'a') + 10
			r = (r*100 + v) % 97
		default:
			// Non-alphanumerics can never checksum to 1.
			return 0
		}
	}
	return r
}
