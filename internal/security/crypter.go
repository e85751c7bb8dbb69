package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"

	"github.com/notesync/auth-service/internal/domain"
)

const serverKeySize = 32

var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")
	ErrUnknownKeyVersion = errors.New("unknown server key version")
	ErrDecryptionFailed  = errors.New("decryption failed")
)

// AESCrypter seals per-user values with AES-256-GCM. Every user gets a key derived
// from the server key via HKDF over the user's salt and uuid. The server key version
// is prefixed to the ciphertext so values written under a retired key stay readable.
type AESCrypter struct {
	currentVersion string
	keys           map[string][]byte
}

func NewAESCrypter(currentVersion string, keys map[string][]byte) (*AESCrypter, error) {
	if currentVersion == "" || strings.Contains(currentVersion, ":") {
		return nil, fmt.Errorf("crypter: invalid key version %q", currentVersion)
	}
	if _, ok := keys[currentVersion]; !ok {
		return nil, fmt.Errorf("crypter: no key for current version %q", currentVersion)
	}
	copied := make(map[string][]byte, len(keys))
	for version, key := range keys {
		if len(key) != serverKeySize {
			return nil, fmt.Errorf("crypter: key %q must be %d bytes", version, serverKeySize)
		}
		copied[version] = append([]byte(nil), key...)
	}
	return &AESCrypter{currentVersion: currentVersion, keys: copied}, nil
}

// ParseServerKey decodes a hex encoded 32 byte key.
func ParseServerKey(raw string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("decode server key: %w", err)
	}
	if len(key) != serverKeySize {
		return nil, fmt.Errorf("server key must be %d bytes, got %d", serverKeySize, len(key))
	}
	return key, nil
}

func (c *AESCrypter) EncryptForUser(value string, user *domain.User) (string, error) {
	if user == nil {
		return "", errors.New("crypter: missing user")
	}
	gcm, err := c.userCipher(c.currentVersion, user)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("crypter: nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(value), []byte(user.UUID))
	return c.currentVersion + ":" + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (c *AESCrypter) DecryptForUser(ciphertext string, user *domain.User) (string, error) {
	if user == nil {
		return "", errors.New("crypter: missing user")
	}
	version, payload, ok := strings.Cut(ciphertext, ":")
	if !ok || version == "" || payload == "" {
		return "", ErrInvalidCiphertext
	}
	gcm, err := c.userCipher(version, user)
	if err != nil {
		return "", err
	}
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil || len(raw) < gcm.NonceSize() {
		return "", ErrInvalidCiphertext
	}
	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, []byte(user.UUID))
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}

// SupportedKeyVersions lists the server key versions this crypter can read.
func (c *AESCrypter) SupportedKeyVersions() []string {
	out := make([]string, 0, len(c.keys))
	for v := range c.keys {
		out = append(out, v)
	}
	return out
}

func (c *AESCrypter) userCipher(version string, user *domain.User) (cipher.AEAD, error) {
	master, ok := c.keys[version]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKeyVersion, version)
	}
	kdf := hkdf.New(sha256.New, master, []byte(user.ServerKeySalt), []byte("notesync setting key:"+user.UUID))
	key := make([]byte, serverKeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("crypter: derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
