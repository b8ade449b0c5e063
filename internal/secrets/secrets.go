// Package secrets generates tenant credentials and seals them for
// at-rest storage.
package secrets

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/chacha20poly1305"
)

// Credentials are generated fresh on every provisioning attempt.
// Reusing them across attempts risks leaking a stale password that
// already appeared in an earlier attempt's logs.
type Credentials struct {
	DBUser          string `json:"db_user"`
	DBPassword      string `json:"db_password"`
	AdminUser       string `json:"admin_user"`
	AdminPassword   string `json:"admin_password"`
	AdminPassBcrypt string `json:"admin_pass_bcrypt"`
}

const passwordCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GeneratePassword returns a random password of length n from a
// shell-safe charset.
func GeneratePassword(n int) (string, error) {
	if n <= 0 {
		n = 24
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	var sb strings.Builder
	for _, b := range buf {
		sb.WriteByte(passwordCharset[int(b)%len(passwordCharset)])
	}
	return sb.String(), nil
}

// NewCredentials generates a full credential set for a tenant. The slug
// seeds the database username so operators can tell tenants apart in
// database process lists.
func NewCredentials(slug string) (*Credentials, error) {
	dbPass, err := GeneratePassword(24)
	if err != nil {
		return nil, err
	}
	adminPass, err := GeneratePassword(20)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPass), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash admin password: %w", err)
	}

	slug = sanitizeSlug(slug)
	return &Credentials{
		DBUser:          "shop_" + slug,
		DBPassword:      dbPass,
		AdminUser:       "admin",
		AdminPassword:   adminPass,
		AdminPassBcrypt: string(hash),
	}, nil
}

func sanitizeSlug(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == ' ', r == '-', r == '.':
			sb.WriteByte('_')
		}
	}
	out := sb.String()
	if len(out) > 16 {
		out = out[:16]
	}
	if out == "" {
		out = "tenant"
	}
	return out
}

// Sealer encrypts credential sets before they are persisted.
type Sealer struct {
	key []byte
}

// NewSealer creates a sealer from a hex-encoded 32-byte key.
func NewSealer(hexKey string) (*Sealer, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid seal key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("seal key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &Sealer{key: key}, nil
}

// Seal serializes and encrypts the credentials. The random nonce is
// prepended to the ciphertext.
func (s *Sealer) Seal(c *Credentials) ([]byte, error) {
	plain, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plain, nil), nil
}

// Open decrypts a sealed credential blob.
func (s *Sealer) Open(sealed []byte) (*Credentials, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("sealed blob too short")
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open sealed credentials: %w", err)
	}

	var c Credentials
	if err := json.Unmarshal(plain, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
