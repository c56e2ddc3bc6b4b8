package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kivu-credit/kivu_credit/internal/logging"
)

func setupIdempotencyApp(t *testing.T) (*fiber.App, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	app := fiber.New()
	logger := logging.Discard()
	app.Use(Idempotency(cache, time.Minute, logger))

	calls := 0
	app.Post("/positions/borrow", func(c *fiber.Ctx) error {
		calls++
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"call": calls, "ref": uuid.NewString()})
	})

	cleanup := func() {
		cache.Close()
		mr.Close()
	}

	return app, cleanup
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	app, cleanup := setupIdempotencyApp(t)
	defer cleanup()

	req := httptest.NewRequest(fiber.MethodPost, "/positions/borrow", strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}

	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, resp.StatusCode)
	}
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	app, cleanup := setupIdempotencyApp(t)
	defer cleanup()

	doRequest := func() (int, map[string]any) {
		req := httptest.NewRequest(fiber.MethodPost, "/positions/borrow", strings.NewReader("{}"))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		req.Header.Set("Idempotency-Key", "borrow-1")

		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return resp.StatusCode, payload
	}

	status1, body1 := doRequest()
	status2, body2 := doRequest()

	if status1 != fiber.StatusCreated || status2 != fiber.StatusCreated {
		t.Fatalf("expected 201 on both calls, got %d and %d", status1, status2)
	}
	if body1["ref"] != body2["ref"] {
		t.Fatalf("replay produced a fresh response: %v vs %v", body1, body2)
	}
	if body2["call"] != float64(1) {
		t.Fatalf("handler re-executed on replay: %v", body2)
	}
}

func TestIdempotencyIgnoresSafeMethods(t *testing.T) {
	app, cleanup := setupIdempotencyApp(t)
	defer cleanup()

	app.Get("/params", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	// No Idempotency-Key header: GET requests pass through untouched.
	req := httptest.NewRequest(fiber.MethodGet, "/params", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
