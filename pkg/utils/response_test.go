package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func performResponseTestRequest(t *testing.T, app *fiber.App, path string) (int, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request to %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed decoding %s response body: %v", path, err)
	}
	return resp.StatusCode, body
}

func TestResponseHelpers(t *testing.T) {
	app := fiber.New()
	app.Get("/success", func(c *fiber.Ctx) error {
		return Success(c, fiber.StatusCreated, fiber.Map{"id": "123"})
	})
	app.Get("/error", func(c *fiber.Ctx) error {
		return Error(c, fiber.StatusBadRequest, "invalid input")
	})
	app.Get("/details", func(c *fiber.Ctx) error {
		return ErrorWithDetails(c, fiber.StatusConflict, "role is in use", fiber.Map{"userCount": 3})
	})
	app.Get("/paginated", func(c *fiber.Ctx) error {
		return Paginated(c, []string{"a", "b"}, 2, 20, 45)
	})

	t.Run("Success wraps data", func(t *testing.T) {
		status, body := performResponseTestRequest(t, app, "/success")
		if status != fiber.StatusCreated {
			t.Fatalf("expected status %d, got %d", fiber.StatusCreated, status)
		}
		if success, _ := body["success"].(bool); !success {
			t.Fatalf("expected success=true, got %v", body["success"])
		}
		data, _ := body["data"].(map[string]any)
		if data["id"] != "123" {
			t.Fatalf("expected data.id=123, got %v", data)
		}
	})

	t.Run("Error carries message", func(t *testing.T) {
		status, body := performResponseTestRequest(t, app, "/error")
		if status != fiber.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", fiber.StatusBadRequest, status)
		}
		if body["error"] != "invalid input" {
			t.Fatalf("unexpected error %v", body["error"])
		}
	})

	t.Run("ErrorWithDetails carries details", func(t *testing.T) {
		status, body := performResponseTestRequest(t, app, "/details")
		if status != fiber.StatusConflict {
			t.Fatalf("expected status %d, got %d", fiber.StatusConflict, status)
		}
		details, _ := body["details"].(map[string]any)
		if details["userCount"] != float64(3) {
			t.Fatalf("expected userCount 3, got %v", details["userCount"])
		}
	})

	t.Run("Paginated computes total pages", func(t *testing.T) {
		_, body := performResponseTestRequest(t, app, "/paginated")
		pagination, _ := body["pagination"].(map[string]any)
		if pagination["totalPages"] != float64(3) {
			t.Fatalf("expected 3 total pages, got %v", pagination["totalPages"])
		}
	})
}
