package service

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strings"

	"github.com/ayo6706/delivery-marketplace/internal/domain"
)

const credentialAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// newValidationCode returns a uniformly random numeric handoff code.
func newValidationCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < domain.ValidationCodeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate validation code: %w", err)
	}
	return fmt.Sprintf("%0*d", domain.ValidationCodeLength, n), nil
}

// newCredentialID returns a physical credential identifier such as NFC-7KQ2M9XA.
func newCredentialID() (string, error) {
	var b strings.Builder
	b.WriteString("NFC-")
	limit := big.NewInt(int64(len(credentialAlphabet)))
	for i := 0; i < 8; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate credential id: %w", err)
		}
		b.WriteByte(credentialAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func codesEqual(expected, given string) bool {
	return subtle.ConstantTimeCompare([]byte(expected), []byte(given)) == 1
}
