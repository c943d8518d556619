// Package auth produces the per-request signed credential set for the
// messaging provider API.
//
// Every outbound call gets a fresh credential: the provider treats the
// salt as single-use within a validity window, so credentials are never
// cached or reused.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"
)

var ErrNoCredentials = errors.New("auth: api key and secret are required")

const (
	saltLen      = 32
	saltAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Credential is a single-use signed credential set.
//
// Signature = hex(HMAC-SHA256(secret, timestamp + salt)).
type Credential struct {
	APIKey    string
	Timestamp string // creation instant, unix milliseconds
	Salt      string
	Signature string
}

// Header renders the credential as the provider's Authorization value.
func (c Credential) Header() string {
	return fmt.Sprintf("HMAC-SHA256 apiKey=%s, date=%s, salt=%s, signature=%s",
		c.APIKey, c.Timestamp, c.Salt, c.Signature)
}

// Signer signs provider requests. It holds the secret but never logs
// or persists it. The key pair is swappable at runtime via Apply.
type Signer struct {
	mu        sync.RWMutex
	apiKey    string
	apiSecret string

	// now is swappable for tests.
	now func() time.Time
}

func NewSigner(apiKey, apiSecret string) *Signer {
	return &Signer{
		apiKey:    strings.TrimSpace(apiKey),
		apiSecret: strings.TrimSpace(apiSecret),
		now:       time.Now,
	}
}

// Apply replaces the key pair. Requests already signed keep the old
// credentials.
func (s *Signer) Apply(apiKey, apiSecret string) {
	s.mu.Lock()
	s.apiKey = strings.TrimSpace(apiKey)
	s.apiSecret = strings.TrimSpace(apiSecret)
	s.mu.Unlock()
}

// Sign returns a fresh credential. Each call draws an independent salt
// from a cryptographically strong source; two calls within the same
// millisecond still produce distinct credentials.
func (s *Signer) Sign() (Credential, error) {
	if s == nil {
		return Credential{}, ErrNoCredentials
	}
	s.mu.RLock()
	key, secret := s.apiKey, s.apiSecret
	s.mu.RUnlock()
	if key == "" || secret == "" {
		return Credential{}, ErrNoCredentials
	}

	ts := strconv.FormatInt(s.now().UnixMilli(), 10)
	salt, err := newSalt()
	if err != nil {
		return Credential{}, fmt.Errorf("auth: salt generation: %w", err)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + salt))

	return Credential{
		APIKey:    key,
		Timestamp: ts,
		Salt:      salt,
		Signature: hex.EncodeToString(mac.Sum(nil)),
	}, nil
}

func newSalt() (string, error) {
	max := big.NewInt(int64(len(saltAlphabet)))
	b := make([]byte, saltLen)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = saltAlphabet[n.Int64()]
	}
	return string(b), nil
}
