// Package sign implements the optional signed-handle strategy (spec §4.E):
// HMAC-signed, time-bounded handles that redeem to an origin URL held in a
// short-lived handle table, grounded on the teacher's
// internal/security/signer.go HMAC-and-constant-time-compare shape.
package sign

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Signer mints and verifies HMAC-SHA256 signatures over (handleID, expiry, kind).
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer using secret as the HMAC key.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns the hex-encoded HMAC for the given handle, expiry and kind.
func (s *Signer) Sign(handleID string, expiry time.Time, kind string) string {
	mac := s.mac(handleID, expiry, kind)
	return hex.EncodeToString(mac)
}

// Verify reports whether sig is the correct signature for (handleID, expiry,
// kind) and expiry has not yet passed. The comparison is constant-time.
func (s *Signer) Verify(handleID string, expiry time.Time, kind, sig string) bool {
	if time.Now().After(expiry) {
		return false
	}
	provided, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	expected := s.mac(handleID, expiry, kind)
	return subtle.ConstantTimeCompare(provided, expected) == 1
}

func (s *Signer) mac(handleID string, expiry time.Time, kind string) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(handleID))
	h.Write([]byte("||"))
	h.Write([]byte(strconv.FormatInt(expiry.Unix(), 10)))
	h.Write([]byte("||"))
	h.Write([]byte(kind))
	return h.Sum(nil)
}

// EncodeHandle builds the external handle string "handleId|expiry|hmac".
func EncodeHandle(handleID string, expiry time.Time, sig string) string {
	return fmt.Sprintf("%s|%d|%s", handleID, expiry.Unix(), sig)
}

// DecodeHandle splits an external handle string into its parts. It does not
// verify the signature; call Signer.Verify with the parsed fields for that.
func DecodeHandle(handle string) (handleID string, expiry time.Time, sig string, err error) {
	parts := splitHandle(handle)
	if len(parts) != 3 {
		return "", time.Time{}, "", fmt.Errorf("malformed handle")
	}
	expUnix, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", time.Time{}, "", fmt.Errorf("malformed handle expiry: %w", err)
	}
	return parts[0], time.Unix(expUnix, 0), parts[2], nil
}

func splitHandle(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '|' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
