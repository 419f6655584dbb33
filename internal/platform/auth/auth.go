// Package auth resolves requests to a pre-checked capability set. The domain
// services never evaluate roles themselves; they receive booleans that the
// middleware here has already settled from the token.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey       contextKey = "user_id"
	CapabilitiesKey contextKey = "capabilities"
)

// Capability names as they appear in token claims.
const (
	CapManageAdmissions      = "admissions:manage"
	CapAdjustPricing         = "admissions:adjust-pricing"
	CapPurgeAdmissions       = "admissions:purge"
	CapManageOrders          = "orders:manage"
	CapRegisterPayments      = "payments:register"
	CapRegisterLabPayments   = "payments:register-referred"
)

// Capabilities is the resolved boolean capability set for a request.
type Capabilities struct {
	ManageAdmissions          bool
	AdjustAdmissionPricing    bool
	PurgeAdmissions           bool
	ManageOrders              bool
	RegisterPayments          bool
	RegisterReferredPayments  bool
}

// All returns a capability set with everything granted. Used in development
// mode and by administrative tokens.
func All() Capabilities {
	return Capabilities{
		ManageAdmissions:         true,
		AdjustAdmissionPricing:   true,
		PurgeAdmissions:          true,
		ManageOrders:             true,
		RegisterPayments:         true,
		RegisterReferredPayments: true,
	}
}

// FromClaims maps claim capability strings onto the boolean set. The "admin"
// claim grants everything.
func FromClaims(caps []string) Capabilities {
	var out Capabilities
	for _, c := range caps {
		switch c {
		case "admin":
			return All()
		case CapManageAdmissions:
			out.ManageAdmissions = true
		case CapAdjustPricing:
			out.AdjustAdmissionPricing = true
		case CapPurgeAdmissions:
			out.PurgeAdmissions = true
		case CapManageOrders:
			out.ManageOrders = true
		case CapRegisterPayments:
			out.RegisterPayments = true
		case CapRegisterLabPayments:
			out.RegisterReferredPayments = true
		}
	}
	return out
}

// Claims is the token payload the middleware understands.
type Claims struct {
	jwt.RegisteredClaims
	Capabilities []string `json:"caps"`
}

// CapabilitiesFromContext retrieves the resolved capability set. Absent means
// nothing is granted.
func CapabilitiesFromContext(ctx context.Context) Capabilities {
	caps, _ := ctx.Value(CapabilitiesKey).(Capabilities)
	return caps
}

// UserIDFromContext retrieves the authenticated user id, or "" if anonymous.
func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

// JWTMiddleware parses a Bearer token signed with the shared secret and stores
// the user id and capability set in the request context.
func JWTMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, UserIDKey, claims.Subject)
			ctx = context.WithValue(ctx, CapabilitiesKey, FromClaims(claims.Capabilities))
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// DevMiddleware grants every capability to every request. Development only.
func DevMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, UserIDKey, "dev")
			ctx = context.WithValue(ctx, CapabilitiesKey, All())
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// Require returns middleware that rejects the request unless the resolved
// capability set satisfies check. The name is used in the error message.
func Require(name string, check func(Capabilities) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !check(CapabilitiesFromContext(c.Request().Context())) {
				return echo.NewHTTPError(http.StatusForbidden,
					fmt.Sprintf("required capability: %s", name))
			}
			return next(c)
		}
	}
}
