package registry

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/url"
	"strings"
)

// DefaultSerialLength is the serial number length when none is configured.
const DefaultSerialLength = 6

// DeepLinkScheme is the URL scheme the desktop client registers.
const DeepLinkScheme = "deliorder"

// Serials generates and validates fixed-length numeric serial numbers.
type Serials struct {
	length int
}

// NewSerials returns a generator for serials of length digits.
// A non-positive length selects DefaultSerialLength.
func NewSerials(length int) Serials {
	if length <= 0 {
		length = DefaultSerialLength
	}
	return Serials{length: length}
}

// Length returns the configured serial length.
func (s Serials) Length() int { return s.length }

// New returns a uniformly random serial. Leading zeros are allowed.
func (s Serials) New() (string, error) {
	var b strings.Builder
	b.Grow(s.length)
	ten := big.NewInt(10)
	for range s.length {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate serial: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// Validate checks that serial is exactly length ASCII digits.
func (s Serials) Validate(serial string) error {
	if len(serial) != s.length {
		return fmt.Errorf("serial number must be %d digits, got %q", s.length, serial)
	}
	for _, r := range serial {
		if r < '0' || r > '9' {
			return fmt.Errorf("serial number must be numeric, got %q", serial)
		}
	}
	return nil
}

// DeepLink returns the link that opens serial in the desktop client.
func DeepLink(serial string) string {
	return DeepLinkScheme + "://open?packageId=" + url.QueryEscape(serial)
}

// ParseDeepLink extracts the serial from a deep link. A bare serial is
// returned unchanged.
func ParseDeepLink(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "://") {
		return s, nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid deep link: %w", err)
	}
	if u.Scheme != DeepLinkScheme {
		return "", fmt.Errorf("invalid deep link scheme %q", u.Scheme)
	}
	serial := u.Query().Get("packageId")
	if serial == "" {
		return "", fmt.Errorf("deep link has no packageId")
	}
	return serial, nil
}
