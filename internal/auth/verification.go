package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// VerificationTokenLength is the number of characters in a reset token.
const VerificationTokenLength = 100

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// VerificationTokenGenerator produces single-use reset tokens.
type VerificationTokenGenerator interface {
	Generate() (string, error)
}

type randomTokenGenerator struct {
	length int
}

// NewVerificationTokenGenerator returns a generator backed by crypto/rand.
func NewVerificationTokenGenerator() VerificationTokenGenerator {
	return &randomTokenGenerator{length: VerificationTokenLength}
}

func (g *randomTokenGenerator) Generate() (string, error) {
	max := big.NewInt(int64(len(alphanumeric)))
	buf := make([]byte, g.length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		buf[i] = alphanumeric[n.Int64()]
	}
	return string(buf), nil
}
