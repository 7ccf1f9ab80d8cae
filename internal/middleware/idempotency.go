package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "idempotency:v2:"
	storeTimeout         = 2 * time.Second
)

// replay is what a key resolves to. A record without Status is a
// reservation held by a request still in flight.
type replay struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body,omitempty"`
}

type idempotencyStore struct {
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// Idempotency replays the stored response for a repeated Idempotency-Key on
// unsafe methods. Keys are scoped to the authenticated user, so mount it after
// SessionAuth. Reusing a key with a different body is rejected, and 5xx
// responses release the key so the client may retry.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	store := &idempotencyStore{cache: cache, ttl: ttl, logger: logger}
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := c.Get(idempotencyKeyHeader)
		if key == "" {
			return fiber.NewError(fiber.StatusBadRequest, "missing Idempotency-Key header")
		}
		cacheKey := idempotencyPrefix + UserID(c) + ":" + key
		fingerprint := fingerprintOf(c)
		log := logger.With(slog.String("idempotency_key", key))

		prev, found, err := store.reserve(cacheKey, fingerprint)
		if err != nil {
			log.Error("idempotency reservation failed", slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency store failure")
		}
		if found {
			switch {
			case prev.Fingerprint != fingerprint:
				return fiber.NewError(fiber.StatusUnprocessableEntity, "Idempotency-Key reused with a different request")
			case prev.Status == 0:
				return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
			}
			if prev.ContentType != "" {
				c.Set(fiber.HeaderContentType, prev.ContentType)
			}
			return c.Status(prev.Status).SendString(prev.Body)
		}

		if err := c.Next(); err != nil {
			store.release(cacheKey)
			return err
		}
		status := c.Response().StatusCode()
		if status >= fiber.StatusInternalServerError {
			store.release(cacheKey)
			return nil
		}
		err = store.persist(cacheKey, replay{
			Fingerprint: fingerprint,
			Status:      status,
			ContentType: string(c.Response().Header.ContentType()),
			Body:        string(c.Response().Body()),
		})
		if err != nil {
			log.Error("failed to persist idempotent response", slog.Any("error", err))
			store.release(cacheKey)
		}
		return nil
	}
}

// reserve claims key for this request, or returns the record already there.
func (s *idempotencyStore) reserve(key, fingerprint string) (replay, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	marker, err := json.Marshal(replay{Fingerprint: fingerprint})
	if err != nil {
		return replay{}, false, err
	}
	claimed, err := s.cache.SetNX(ctx, key, marker, s.ttl).Result()
	if err != nil {
		return replay{}, false, err
	}
	if claimed {
		return replay{}, false, nil
	}

	raw, err := s.cache.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		// Expired between SetNX and Get; treat as a concurrent duplicate.
		return replay{Fingerprint: fingerprint}, true, nil
	}
	if err != nil {
		return replay{}, false, err
	}
	var prev replay
	if err := json.Unmarshal(raw, &prev); err != nil {
		return replay{}, false, err
	}
	return prev, true, nil
}

func (s *idempotencyStore) persist(key string, r replay) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	return s.cache.Set(ctx, key, payload, s.ttl).Err()
}

func (s *idempotencyStore) release(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.cache.Del(ctx, key).Err(); err != nil {
		s.logger.Warn("idempotency release failed", slog.String("key", key), slog.Any("error", err))
	}
}

// secretFields never reach the stored fingerprint; a four-digit PIN hashed
// without a key is trivially recovered.
var secretFields = []string{"pin", "current_pin"}

func fingerprintOf(c *fiber.Ctx) string {
	h := sha256.New()
	h.Write([]byte(c.Method()))
	h.Write([]byte{0})
	h.Write([]byte(c.Path()))
	h.Write([]byte{0})
	h.Write(redactSecrets(c.Body()))
	return hex.EncodeToString(h.Sum(nil))
}

// redactSecrets drops secretFields from a JSON object body. Bodies that are
// not JSON objects are returned as is.
func redactSecrets(body []byte) []byte {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return body
	}
	redacted := false
	for _, name := range secretFields {
		if _, ok := fields[name]; ok {
			delete(fields, name)
			redacted = true
		}
	}
	if !redacted {
		return body
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	return out
}
