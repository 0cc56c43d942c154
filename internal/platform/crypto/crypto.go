package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// AESEncryptor encrypts short strings with AES-256-GCM. The wire format is
// "iv:tag:ciphertext" with each part hex encoded, so ciphertexts remain
// readable in database dumps and portable across services.
type AESEncryptor struct {
	key []byte
}

const gcmTagSize = 16

var ErrMalformedCiphertext = errors.New("malformed ciphertext")

// NewAESEncryptor takes a hex encoded 32-byte key.
func NewAESEncryptor(hexKey string) (*AESEncryptor, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	return &AESEncryptor{key: key}, nil
}

func (e *AESEncryptor) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-gcmTagSize]
	tag := sealed[len(sealed)-gcmTagSize:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ciphertext), nil
}

func (e *AESEncryptor) Decrypt(encoded string) (string, error) {
	parts := strings.Split(encoded, ":")
	if len(parts) != 3 {
		return "", ErrMalformedCiphertext
	}
	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", ErrMalformedCiphertext
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", ErrMalformedCiphertext
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrMalformedCiphertext
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(iv) != gcm.NonceSize() || len(tag) != gcmTagSize {
		return "", ErrMalformedCiphertext
	}

	plaintext, err := gcm.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}
