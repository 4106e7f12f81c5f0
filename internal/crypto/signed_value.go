package crypto

import (
	"errors"
	"strings"
)

// ErrInvalidSignature is returned when a signed value was tampered with or malformed
var ErrInvalidSignature = errors.New("invalid signature")

// ValueSigner binds opaque values to an HMAC so that a browser can carry them
// without being able to forge new ones.
type ValueSigner struct {
	signingKey []byte
}

// NewValueSigner creates a new value signer
func NewValueSigner(signingKey []byte) ValueSigner {
	return ValueSigner{signingKey: signingKey}
}

// Sign returns "value.signature"
func (s ValueSigner) Sign(value string) string {
	return value + "." + SignData(value, s.signingKey)
}

// Verify returns the original value if the signature matches
func (s ValueSigner) Verify(signed string) (string, error) {
	idx := strings.LastIndexByte(signed, '.')
	if idx <= 0 || idx == len(signed)-1 {
		return "", ErrInvalidSignature
	}
	value, signature := signed[:idx], signed[idx+1:]
	if !ValidateSignedData(value, signature, s.signingKey) {
		return "", ErrInvalidSignature
	}
	return value, nil
}
