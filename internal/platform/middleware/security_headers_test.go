package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestSecurityHeaders(t *testing.T) {
	for _, tls := range []bool{false, true} {
		e := echo.New()
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/doctors", nil), rec)

		if err := SecurityHeaders(tls)(func(c echo.Context) error {
			return c.String(http.StatusOK, "ok")
		})(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for _, kv := range apiHeaders {
			if got := rec.Header().Get(kv[0]); got != kv[1] {
				t.Errorf("header %s: got %q, want %q", kv[0], got, kv[1])
			}
		}
		if rec.Header().Get("Cache-Control") != "no-store" {
			t.Error("expected responses to be uncacheable")
		}
		hsts := rec.Header().Get("Strict-Transport-Security")
		if tls && hsts != hstsValue {
			t.Errorf("tls: expected HSTS, got %q", hsts)
		}
		if !tls && hsts != "" {
			t.Errorf("plain http: expected no HSTS, got %q", hsts)
		}
	}
}

func TestSecurityHeaders_PropagatesHandlerError(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	want := echo.NewHTTPError(http.StatusNotFound, "missing")
	err := SecurityHeaders(false)(func(echo.Context) error { return want })(c)
	if !errors.Is(err, want) {
		t.Errorf("expected handler error, got %v", err)
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("expected headers on error responses too")
	}
}
