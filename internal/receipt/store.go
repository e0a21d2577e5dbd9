package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no receipt (or document) exists for a key.
var ErrNotFound = errors.New("receipt not found")

// DefaultTTL bounds how long an undismissed receipt stays retrievable.
const DefaultTTL = 24 * time.Hour

// RedisStore keeps active receipts and their exported documents in Redis as
// JSON payloads with a TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisStore constructs a store. A non-positive ttl uses DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, prefix: "receipt"}
}

func (s *RedisStore) recordKey(id uuid.UUID) string   { return s.prefix + ":" + id.String() }
func (s *RedisStore) documentKey(id uuid.UUID) string { return s.prefix + ":doc:" + id.String() }
func (s *RedisStore) codeKey(owner, code string) string {
	return s.prefix + ":code:" + owner + ":" + code
}

// Save stores r and indexes it by owner and confirmation code.
func (s *RedisStore) Save(ctx context.Context, r Record) error {
	if s == nil || s.client == nil {
		return errors.New("receipt store not configured")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode receipt: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.recordKey(r.ID), data, s.ttl)
	if r.ConfirmationCode != "" {
		pipe.Set(ctx, s.codeKey(r.Owner, r.ConfirmationCode), r.ID.String(), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save receipt: %w", err)
	}
	return nil
}

// Get loads the receipt with the given id regardless of owner. It serves
// background jobs; request paths use GetOwned.
func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	var r Record
	found, err := s.getJSON(ctx, s.recordKey(id), &r)
	if err != nil {
		return Record{}, fmt.Errorf("load receipt: %w", err)
	}
	if !found {
		return Record{}, ErrNotFound
	}
	return r, nil
}

// GetOwned loads the receipt with the given id when it belongs to owner.
// Receipts of other owners are reported as ErrNotFound.
func (s *RedisStore) GetOwned(ctx context.Context, owner string, id uuid.UUID) (Record, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if r.Owner != owner {
		return Record{}, ErrNotFound
	}
	return r, nil
}

// FindByCode loads owner's receipt carrying the confirmation code.
func (s *RedisStore) FindByCode(ctx context.Context, owner, code string) (Record, error) {
	if s == nil || s.client == nil {
		return Record{}, errors.New("receipt store not configured")
	}
	raw, err := s.client.Get(ctx, s.codeKey(owner, code)).Result()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("lookup confirmation code: %w", err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return Record{}, fmt.Errorf("lookup confirmation code: %w", err)
	}
	return s.GetOwned(ctx, owner, id)
}

// Dismiss removes owner's receipt, its code index and any exported document.
func (s *RedisStore) Dismiss(ctx context.Context, owner string, id uuid.UUID) error {
	r, err := s.GetOwned(ctx, owner, id)
	if err != nil {
		return err
	}
	keys := []string{s.recordKey(id), s.documentKey(id)}
	if r.ConfirmationCode != "" {
		keys = append(keys, s.codeKey(r.Owner, r.ConfirmationCode))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("dismiss receipt: %w", err)
	}
	return nil
}

// SaveDocument stores a rendered document for the receipt.
func (s *RedisStore) SaveDocument(ctx context.Context, id uuid.UUID, doc []byte) error {
	if err := s.client.Set(ctx, s.documentKey(id), doc, s.ttl).Err(); err != nil {
		return fmt.Errorf("save receipt document: %w", err)
	}
	return nil
}

// Document returns the rendered document previously saved for the receipt.
func (s *RedisStore) Document(ctx context.Context, id uuid.UUID) ([]byte, error) {
	doc, err := s.client.Get(ctx, s.documentKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load receipt document: %w", err)
	}
	return doc, nil
}

func (s *RedisStore) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	if s == nil || s.client == nil {
		return false, errors.New("receipt store not configured")
	}
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}
