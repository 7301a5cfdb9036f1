package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ValueCipher encrypts individual stored values and derives blind indexes so
// the ledger can look values up by equality without ever storing plaintext.
type ValueCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
	BlindIndex(value string) string
}

var ErrCiphertextInvalid = errors.New("ciphertext invalid or tampered with")

const blindIndexBytes = 16

// aesValueCipher is an AES-GCM ValueCipher. The encryption key and the blind
// index key are derived from one master key via HKDF so they can never be
// confused for one another.
type aesValueCipher struct {
	aead     cipher.AEAD
	indexKey []byte
}

// NewValueCipher derives the working keys from masterKey and returns a
// ready-to-use cipher. The master key can be any length; HKDF stretches it.
func NewValueCipher(masterKey string) (ValueCipher, error) {
	if masterKey == "" {
		return nil, errors.New("cipher master key must not be empty")
	}

	encKey, err := deriveKey(masterKey, "capitalview/ledger/encrypt", 32)
	if err != nil {
		return nil, fmt.Errorf("deriving encryption key: %w", err)
	}
	indexKey, err := deriveKey(masterKey, "capitalview/ledger/blind-index", 32)
	if err != nil {
		return nil, fmt.Errorf("deriving blind index key: %w", err)
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	return &aesValueCipher{aead: aead, indexKey: indexKey}, nil
}

func deriveKey(masterKey, purpose string, size int) ([]byte, error) {
	r := hkdf.New(sha256.New, []byte(masterKey), nil, []byte(purpose))
	key := make([]byte, size)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Encrypt returns base64(nonce || AES-GCM ciphertext). An empty plaintext
// encrypts to an empty string so optional columns stay NULL-like.
func (c *aesValueCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *aesValueCipher) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrCiphertextInvalid
	}
	if len(raw) < c.aead.NonceSize() {
		return "", ErrCiphertextInvalid
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrCiphertextInvalid
	}
	return string(plaintext), nil
}

// BlindIndex returns a deterministic, truncated HMAC-SHA256 of the value.
// Equal values share an index; the value cannot be recovered from it.
func (c *aesValueCipher) BlindIndex(value string) string {
	if value == "" {
		return ""
	}
	mac := hmac.New(sha256.New, c.indexKey)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil)[:blindIndexBytes])
}

// NoopCipher stores values as-is. Used in tests and by the in-memory store.
type NoopCipher struct{}

func (NoopCipher) Encrypt(plaintext string) (string, error)  { return plaintext, nil }
func (NoopCipher) Decrypt(ciphertext string) (string, error) { return ciphertext, nil }
func (NoopCipher) BlindIndex(value string) string            { return value }
