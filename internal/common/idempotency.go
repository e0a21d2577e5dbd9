package common

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// IdempotencyHeader carries the client supplied request key.
const IdempotencyHeader = "Idempotency-Key"

// Idem provides an Idempotency-Key middleware backed by Redis. Keys are
// scoped to the storefront session so two sessions may reuse a key.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

func hashKey(session, key string) string {
	sum := sha256.Sum256([]byte(session + "\x00" + key))
	return "idem:" + hex.EncodeToString(sum[:])
}

// Middleware rejects a repeated key with 409 until the key expires.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(IdempotencyHeader)
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		ttl := i.TTL
		if ttl <= 0 {
			ttl = 10 * time.Minute
		}
		session, _ := SessionID(r.Context())
		key := hashKey(session, header)
		ok, err := i.R.SetNX(r.Context(), key, "locked", ttl).Result()
		if err != nil {
			JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store error", nil)
			return
		}
		if !ok {
			JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "duplicate request", nil)
			return
		}
		defer func() {
			// refresh expiry once the handler finishes, even on panic
			_ = i.R.Expire(context.WithoutCancel(r.Context()), key, ttl).Err()
		}()
		next.ServeHTTP(w, r)
	})
}
