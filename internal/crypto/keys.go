package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Purposes for keys derived from the single configured cookie secret
const (
	PurposeCookieSigning   = "authgate cookie signing v1"
	PurposeTokenEncryption = "authgate token encryption v1"
)

// DeriveKey expands secret into a 32 byte key dedicated to purpose
func DeriveKey(secret []byte, purpose string) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(purpose)), key); err != nil {
		return nil, fmt.Errorf("deriving %q key: %w", purpose, err)
	}
	return key, nil
}
