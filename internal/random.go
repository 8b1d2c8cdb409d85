// Package internal holds the random-material helpers shared by the auth
// engine: opaque token values and numeric one-time codes.
package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"
)

const tokenBytes = 32

// NewToken returns a 32-byte random value encoded base64url without padding.
// Used for refresh tokens and password-reset tickets; the plaintext leaves
// the process once and only the argon2 digest is stored.
func NewToken() (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// NewOTP returns a random numeric code of the given length, each digit drawn
// independently so leading zeros are possible.
func NewOTP(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	return b.String(), nil
}
