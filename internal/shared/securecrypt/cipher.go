package securecrypt

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
)

// Algorithm selects the AEAD used for values stored at rest.
type Algorithm string

const (
	CHACHA20_POLY1305 Algorithm = "chacha20"
	AES_256_GCM       Algorithm = "aes-gcm"
)

type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a default (chacha20) cipher from an integer key.
func NewCipher(key int) (*Cipher, error) {
	return NewCipherWithAlgo(key, CHACHA20_POLY1305)
}

// NewCipherWithAlgo creates a cipher for the given algorithm. Both
// algorithms derive the same root key so stored values stay readable after
// switching.
func NewCipherWithAlgo(key int, algo Algorithm) (*Cipher, error) {
	keyBytes := []byte(fmt.Sprintf("moltfarm-secure-v1-key-%d", key))
	hash := sha256.Sum256(keyBytes)
	finalKey := hash[:]

	var aead cipher.AEAD
	var err error

	switch algo {
	case AES_256_GCM:
		aead, err = newAESGCMAEAD(finalKey)
	case CHACHA20_POLY1305:
		fallthrough
	default:
		aead, err = newChaCha20AEAD(finalKey)
	}

	if err != nil {
		return nil, err
	}

	return &Cipher{aead: aead}, nil
}

func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	ciphertext := c.aead.Seal(nonce, nonce, plaintext, nil)
	return ciphertext, nil
}

func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext is too short")
	}
	nonce, encryptedMessage := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, encryptedMessage, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}
