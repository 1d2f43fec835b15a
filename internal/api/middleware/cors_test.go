package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestCORS_Preflight(t *testing.T) {
	e := echo.New()
	e.Use(CORS())
	e.POST("/login", func(c echo.Context) error {
		t.Fatalf("preflight must not reach the handler")
		return nil
	})

	req := httptest.NewRequest(http.MethodOptions, "/login", nil)
	req.Header.Set(echo.HeaderOrigin, "http://example.org")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "*" {
		t.Fatalf("expected allow-origin *, got %q", got)
	}
}

func TestCORS_SimpleRequest(t *testing.T) {
	e := echo.New()
	e.Use(CORS())
	e.POST("/login", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.Header.Set(echo.HeaderOrigin, "http://example.org")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "*" {
		t.Fatalf("expected allow-origin *, got %q", got)
	}
}

func TestNoStore(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := NoStore()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if got := rec.Header().Get(echo.HeaderCacheControl); got != "no-store" {
		t.Fatalf("expected no-store, got %q", got)
	}
}
