package magiclink

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces link tokens in Redis.
const DefaultKeyPrefix = "taskflow:magiclink:"

var (
	// ErrTokenNotFound is returned for unknown, expired or already used tokens.
	ErrTokenNotFound = errors.New("verification token not found")
	// ErrTokenCollision is returned when a token is already stored.
	ErrTokenCollision = errors.New("verification token already exists")
	// ErrStoreUnavailable wraps backend failures.
	ErrStoreUnavailable = errors.New("verification store unavailable")
)

// Record is what a link token resolves to.
type Record struct {
	Email       string    `json:"email"`
	CallbackURL string    `json:"callback_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store keeps single use link tokens. Consume removes the token, so a link
// verifies at most once.
type Store interface {
	Save(ctx context.Context, token string, record Record, ttl time.Duration) error
	Consume(ctx context.Context, token string) (*Record, error)
}

// RedisStore keeps tokens in Redis under the hash of the token, so a leaked
// keyspace does not leak usable links.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisStore returns a store on rdb. An empty prefix uses
// DefaultKeyPrefix.
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

// NewRedisStoreFromURL parses a redis:// URL and returns a store on it.
func NewRedisStoreFromURL(rawURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisStore(redis.NewClient(opts), ""), nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, token string, record Record, ttl time.Duration) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode verification record: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, s.key(token), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return ErrTokenCollision
	}
	return nil
}

// Consume implements Store.
func (s *RedisStore) Consume(ctx context.Context, token string) (*Record, error) {
	val, err := s.rdb.GetDel(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var record Record
	if err := json.Unmarshal(val, &record); err != nil {
		return nil, fmt.Errorf("decode verification record: %w", err)
	}
	return &record, nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) key(token string) string {
	return s.prefix + hashToken(token)
}

// MemoryStore is a process local Store for development and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	record    Record
	expiresAt time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]memoryEntry{}, now: time.Now}
}

// Save implements Store. Expired entries are dropped on every save so
// abandoned links do not accumulate.
func (s *MemoryStore) Save(_ context.Context, token string, record Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, e := range s.records {
		if !now.Before(e.expiresAt) {
			delete(s.records, k)
		}
	}

	key := hashToken(token)
	if _, ok := s.records[key]; ok {
		return ErrTokenCollision
	}
	s.records[key] = memoryEntry{record: record, expiresAt: now.Add(ttl)}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Consume implements Store.
func (s *MemoryStore) Consume(_ context.Context, token string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := hashToken(token)
	e, ok := s.records[key]
	if !ok {
		return nil, ErrTokenNotFound
	}
	delete(s.records, key)
	if !s.now().Before(e.expiresAt) {
		return nil, ErrTokenNotFound
	}
	record := e.record
	return &record, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
