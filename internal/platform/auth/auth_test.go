package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

func TestFromClaims(t *testing.T) {
	caps := FromClaims([]string{CapManageAdmissions, CapRegisterPayments})
	if !caps.ManageAdmissions || !caps.RegisterPayments {
		t.Error("listed capabilities should be granted")
	}
	if caps.AdjustAdmissionPricing || caps.PurgeAdmissions {
		t.Error("unlisted capabilities should not be granted")
	}
}

func TestFromClaimsAdmin(t *testing.T) {
	caps := FromClaims([]string{"admin"})
	if caps != All() {
		t.Error("admin claim should grant every capability")
	}
}

func TestFromClaimsUnknownIgnored(t *testing.T) {
	caps := FromClaims([]string{"something:else"})
	if caps != (Capabilities{}) {
		t.Error("unknown claims should grant nothing")
	}
}

func TestCapabilitiesFromContextEmpty(t *testing.T) {
	caps := CapabilitiesFromContext(context.Background())
	if caps != (Capabilities{}) {
		t.Error("empty context should yield no capabilities")
	}
}

func signToken(t *testing.T, secret string, caps []string) string {
	t.Helper()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Capabilities: caps,
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return raw
}

func TestJWTMiddleware(t *testing.T) {
	e := echo.New()
	var got Capabilities
	handler := JWTMiddleware("secret")(func(c echo.Context) error {
		got = CapabilitiesFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "secret", []string{CapManageOrders}))
	rec := httptest.NewRecorder()
	if err := handler(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !got.ManageOrders {
		t.Error("expected ManageOrders from token claims")
	}
	if got.PurgeAdmissions {
		t.Error("unexpected PurgeAdmissions")
	}
}

func TestJWTMiddlewareRejectsBadToken(t *testing.T) {
	e := echo.New()
	handler := JWTMiddleware("secret")(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	for name, header := range map[string]string{
		"missing":      "",
		"wrong scheme": "Basic abc",
		"wrong secret": "Bearer " + signToken(t, "other", nil),
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		err := handler(e.NewContext(req, rec))
		he, ok := err.(*echo.HTTPError)
		if !ok || he.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %v", name, err)
		}
	}
}

func TestRequire(t *testing.T) {
	e := echo.New()
	mw := Require("payments:register", func(c Capabilities) bool { return c.RegisterPayments })
	handler := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	// Without capability
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	err := handler(e.NewContext(req, rec))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}

	// With capability
	ctx := context.WithValue(req.Context(), CapabilitiesKey, Capabilities{RegisterPayments: true})
	req2 := httptest.NewRequest(http.MethodPost, "/", nil).WithContext(ctx)
	rec2 := httptest.NewRecorder()
	if err := handler(e.NewContext(req2, rec2)); err != nil {
		t.Fatalf("expected pass, got %v", err)
	}
}

func TestDevMiddleware(t *testing.T) {
	e := echo.New()
	var got Capabilities
	handler := DevMiddleware()(func(c echo.Context) error {
		got = CapabilitiesFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	if err := handler(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if got != All() {
		t.Error("dev middleware should grant everything")
	}
}
