package social

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/hkdf"
)

// StateManager seals the OAuth round trip data into the state parameter.
type StateManager interface {
	Encode(state *OAuthState) (string, error)
	Decode(token string) (*OAuthState, error)
}

// OAuthState is what TaskFlow needs back from the provider callback.
type OAuthState struct {
	Nonce        string `json:"n"`
	Provider     string `json:"p"`
	CodeVerifier string `json:"cv,omitempty"`
	RedirectURL  string `json:"r,omitempty"`
	IssuedAt     int64  `json:"iat"`
	ExpiresAt    int64  `json:"exp"`
}

const (
	stateVersion = "s1"
	stateInfo    = "taskflow oauth state v1"
)

// SealedStateManager encrypts state with AES-256-GCM. The provider name is
// authenticated as additional data so a state minted for one provider cannot
// complete another provider's callback.
type SealedStateManager struct {
	aead cipher.AEAD
	ttl  time.Duration
	now  func() time.Time
}

// StateOption configures a SealedStateManager.
type StateOption func(*SealedStateManager)

// WithStateClock overrides the clock used for issue and expiry times.
func WithStateClock(now func() time.Time) StateOption {
	return func(sm *SealedStateManager) {
		if now != nil {
			sm.now = now
		}
	}
}

// NewStateManagerFromSecret derives the sealing key from the session secret.
func NewStateManagerFromSecret(secret string, ttl time.Duration, opts ...StateOption) *SealedStateManager {
	key := make([]byte, 32)
	// hkdf over sha256 never fails for a 32 byte output
	_, _ = io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(stateInfo)), key)
	sm, err := NewSealedStateManager(key, ttl, opts...)
	if err != nil {
		panic(err)
	}
	return sm
}

// NewSealedStateManager builds a manager from a 16, 24 or 32 byte key.
func NewSealedStateManager(key []byte, ttl time.Duration, opts ...StateOption) (*SealedStateManager, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "oauth state key")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "oauth state cipher")
	}

	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	sm := &SealedStateManager{aead: aead, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}
	return sm, nil
}

// Encode seals state as "s1.<provider>.<payload>". Missing nonce and times
// are filled in.
func (sm *SealedStateManager) Encode(state *OAuthState) (string, error) {
	if state == nil || state.Provider == "" || strings.Contains(state.Provider, ".") {
		return "", ErrInvalidState
	}

	out := *state
	now := sm.now()
	if out.IssuedAt == 0 {
		out.IssuedAt = now.Unix()
	}
	if out.ExpiresAt == 0 {
		out.ExpiresAt = now.Add(sm.ttl).Unix()
	}
	if out.Nonce == "" {
		out.Nonce = generateNonce()
	}

	plain, err := json.Marshal(out)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "marshal oauth state")
	}

	nonce := make([]byte, sm.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "oauth state nonce")
	}
	sealed := sm.aead.Seal(nonce, nonce, plain, stateAAD(out.Provider))

	return stateVersion + "." + out.Provider + "." + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode opens a token produced by Encode. Tampering, a different key or a
// rewritten provider segment all yield ErrInvalidState.
func (sm *SealedStateManager) Decode(token string) (*OAuthState, error) {
	version, rest, ok := strings.Cut(token, ".")
	if !ok || version != stateVersion {
		return nil, invalidState("unknown state format")
	}
	provider, payload, ok := strings.Cut(rest, ".")
	if !ok || provider == "" {
		return nil, invalidState("missing provider")
	}

	sealed, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return nil, invalidState("payload encoding")
	}
	size := sm.aead.NonceSize()
	if len(sealed) <= size {
		return nil, invalidState("payload too short")
	}

	plain, err := sm.aead.Open(nil, sealed[:size], sealed[size:], stateAAD(provider))
	if err != nil {
		return nil, invalidState("payload authentication")
	}

	var state OAuthState
	if err := json.Unmarshal(plain, &state); err != nil {
		return nil, invalidState("payload shape")
	}
	if state.Provider != provider {
		return nil, invalidState("provider mismatch")
	}
	if sm.now().Unix() > state.ExpiresAt {
		return nil, ErrStateExpired
	}

	return &state, nil
}

func stateAAD(provider string) []byte {
	return []byte(stateVersion + ":" + provider)
}

func invalidState(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, reason)
}

func generateNonce() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// generateCodeVerifier returns a PKCE verifier of 43 characters.
func generateCodeVerifier() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
