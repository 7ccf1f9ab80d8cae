package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/p2pcore/internal/logging"
)

func setupTestApp(t *testing.T) (*fiber.App, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	app := fiber.New()
	logger := logging.Discard()
	calls := 0
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(userIDLocal, c.Get("X-Test-User"))
		return c.Next()
	})
	app.Use(Idempotency(cache, time.Minute, logger))
	app.Post("/resource", func(c *fiber.Ctx) error {
		calls++
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"ok": true, "call": calls})
	})
	app.Post("/flaky", func(c *fiber.Ctx) error {
		calls++
		if calls == 1 {
			return c.Status(fiber.StatusServiceUnavailable).SendString("try later")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"call": calls})
	})

	cleanup := func() {
		cache.Close()
		mr.Close()
	}

	return app, cleanup
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	app, cleanup := setupTestApp(t)
	defer cleanup()

	req := httptest.NewRequest(fiber.MethodPost, "/resource", strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}

	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, resp.StatusCode)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	app, cleanup := setupTestApp(t)
	defer cleanup()

	body := strings.NewReader("{}")
	req := httptest.NewRequest(fiber.MethodPost, "/resource", body)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(idempotencyKeyHeader, "abc123")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}

	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.Body.Close()

	// Second request should return the cached response without invoking handler again.
	req2 := httptest.NewRequest(fiber.MethodPost, "/resource", strings.NewReader("{}"))
	req2.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req2.Header.Set(idempotencyKeyHeader, "abc123")

	resp2, err := app.Test(req2)
	if err != nil {
		t.Fatalf("second request: %v", err)
	}

	if resp2.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, resp2.StatusCode)
	}

	cachedPayload, err := io.ReadAll(resp2.Body)
	if err != nil {
		t.Fatalf("read cached body: %v", err)
	}
	resp2.Body.Close()

	if string(cachedPayload) != string(payload) {
		t.Fatalf("expected cached payload %s got %s", string(payload), string(cachedPayload))
	}

	var decoded map[string]any
	if err := json.Unmarshal(cachedPayload, &decoded); err != nil {
		t.Fatalf("cached payload invalid json: %v", err)
	}
}

func TestIdempotencyKeysAreScopedPerUser(t *testing.T) {
	app, cleanup := setupTestApp(t)
	defer cleanup()

	send := func(user string) map[string]any {
		req := httptest.NewRequest(fiber.MethodPost, "/resource", strings.NewReader("{}"))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		req.Header.Set(idempotencyKeyHeader, "shared-key")
		req.Header.Set("X-Test-User", user)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		defer resp.Body.Close()
		var decoded map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return decoded
	}

	first := send("alice")
	second := send("bob")
	replay := send("alice")

	if first["call"] == second["call"] {
		t.Fatalf("different users must not share a cached response: %v vs %v", first, second)
	}
	if replay["call"] != first["call"] {
		t.Fatalf("same user should get the cached response: %v vs %v", replay, first)
	}
}

func postWithKey(t *testing.T, app *fiber.App, path, key, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(idempotencyKeyHeader, key)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(raw)
}

func TestIdempotencyRejectsKeyReuseWithDifferentBody(t *testing.T) {
	app, cleanup := setupTestApp(t)
	defer cleanup()

	if status, _ := postWithKey(t, app, "/resource", "k1", `{"amount":"5"}`); status != fiber.StatusCreated {
		t.Fatalf("first request status %d", status)
	}
	if status, _ := postWithKey(t, app, "/resource", "k1", `{"amount":"50"}`); status != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected %d for a different body, got %d", fiber.StatusUnprocessableEntity, status)
	}
}

func TestIdempotencyReleasesKeyAfterServerError(t *testing.T) {
	app, cleanup := setupTestApp(t)
	defer cleanup()

	if status, _ := postWithKey(t, app, "/flaky", "k2", "{}"); status != fiber.StatusServiceUnavailable {
		t.Fatalf("first request status %d", status)
	}
	status, body := postWithKey(t, app, "/flaky", "k2", "{}")
	if status != fiber.StatusOK || !strings.Contains(body, `"call":2`) {
		t.Fatalf("retry should reach the handler, got %d %s", status, body)
	}
	status, replayed := postWithKey(t, app, "/flaky", "k2", "{}")
	if status != fiber.StatusOK || replayed != body {
		t.Fatalf("expected replay of %s, got %d %s", body, status, replayed)
	}
}

func TestFingerprintLeavesPINOut(t *testing.T) {
	app := fiber.New()
	app.Post("/transfers/:id/pin", func(c *fiber.Ctx) error {
		return c.SendString(fingerprintOf(c))
	})
	fingerprint := func(body string) string {
		req := httptest.NewRequest(fiber.MethodPost, "/transfers/t-1/pin", strings.NewReader(body))
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		return string(raw)
	}

	withPIN := fingerprint(`{"pin":"1234","note":"rent"}`)
	otherPIN := fingerprint(`{"pin":"9999","note":"rent"}`)
	if withPIN != otherPIN {
		t.Fatalf("PIN value must not affect the fingerprint")
	}
	if withPIN == fingerprint(`{"pin":"1234","note":"food"}`) {
		t.Fatalf("other fields must still affect the fingerprint")
	}

	for _, pin := range []string{"1234", "9999"} {
		h := sha256.New()
		h.Write([]byte(fiber.MethodPost + "\x00/transfers/t-1/pin\x00"))
		h.Write([]byte(`{"pin":"` + pin + `","note":"rent"}`))
		if withPIN == hex.EncodeToString(h.Sum(nil)) {
			t.Fatalf("fingerprint is a plain hash of the PIN-bearing body")
		}
	}
}
