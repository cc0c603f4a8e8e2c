// Package statetoken issues short-lived, HMAC-signed OAuth state values and
// remembers consumed ones so a callback URL cannot be replayed.
package statetoken

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"
)

const defaultExpiry = 10 * time.Minute

var (
	ErrMalformed = errors.New("malformed state")
	ErrSignature = errors.New("invalid state signature")
	ErrExpired   = errors.New("state expired")
	ErrReplayed  = errors.New("state already used")
)

type State struct {
	Provider  string `json:"prv"`
	Nonce     string `json:"nce"`
	ExpiresAt int64  `json:"exp"`
}

type Issuer struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time

	mu   sync.Mutex
	used map[string]time.Time
}

func NewIssuer(secret string) *Issuer {
	return &Issuer{
		secret: []byte(secret),
		expiry: defaultExpiry,
		now:    time.Now,
		used:   make(map[string]time.Time),
	}
}

func (i *Issuer) Generate(provider string) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	data, err := json.Marshal(State{
		Provider:  provider,
		Nonce:     hex.EncodeToString(nonce),
		ExpiresAt: i.now().Add(i.expiry).Unix(),
	})
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(data) + "." + i.sign(data), nil
}

// Consume validates the state and marks it used. A second call with the same
// value fails with ErrReplayed.
func (i *Issuer) Consume(value string) (*State, error) {
	dot := strings.LastIndexByte(value, '.')
	if dot <= 0 || dot == len(value)-1 {
		return nil, ErrMalformed
	}

	decoded, err := base64.RawURLEncoding.DecodeString(value[:dot])
	if err != nil {
		return nil, ErrMalformed
	}
	if !hmac.Equal([]byte(i.sign(decoded)), []byte(value[dot+1:])) {
		return nil, ErrSignature
	}

	var state State
	if err := json.Unmarshal(decoded, &state); err != nil {
		return nil, ErrMalformed
	}
	if i.now().Unix() > state.ExpiresAt {
		return nil, ErrExpired
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if _, seen := i.used[state.Nonce]; seen {
		return nil, ErrReplayed
	}
	i.used[state.Nonce] = time.Unix(state.ExpiresAt, 0)

	return &state, nil
}

// Cleanup forgets consumed nonces whose state has expired anyway.
func (i *Issuer) Cleanup() int {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.now()
	removed := 0
	for nonce, expiresAt := range i.used {
		if now.After(expiresAt) {
			delete(i.used, nonce)
			removed++
		}
	}
	return removed
}

func (i *Issuer) sign(data []byte) string {
	key := i.secret
	if len(key) == 0 {
		key = []byte("reportdesk-state-fallback")
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}
