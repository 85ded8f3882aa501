package securecrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// newAESGCMAEAD creates an AES-256-GCM AEAD instance for the given key.
func newAESGCMAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher block: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM instance: %w", err)
	}
	return aead, nil
}
