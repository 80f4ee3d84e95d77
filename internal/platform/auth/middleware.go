package auth

import (
	"context"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicbook/clinicbook/internal/platform/apperr"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
)

const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
	RoleAdmin   = "admin"
)

// Claims carries the identity issued by the external identity provider. The
// subject is the patient's user id or, for doctors, the doctor id.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey is used for development/testing only
	SigningKey []byte
	// Skipper bypasses authentication for matching requests.
	Skipper func(c echo.Context) bool
}

// JWTMiddleware verifies the bearer token and puts the subject and roles on
// the request context. With a SigningKey tokens are HS256; otherwise they
// are RS256 with keys from JWKSURL, discovered from the issuer when unset.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	method := "RS256"
	var keys *keySet
	if len(cfg.SigningKey) > 0 {
		method = "HS256"
	} else {
		keys = newKeySet(cfg.JWKSURL, cfg.Issuer)
	}
	keyFunc := func(ctx context.Context) jwt.Keyfunc {
		if keys != nil {
			return keys.keyFunc(ctx)
		}
		return func(*jwt.Token) (interface{}, error) { return cfg.SigningKey, nil }
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{method})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return unauthenticated("missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return unauthenticated("invalid authorization format")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, keyFunc(c.Request().Context()), opts...)
			if err != nil || !token.Valid {
				return unauthenticated("invalid token")
			}
			if claims.Subject == "" {
				return unauthenticated("token has no subject")
			}

			ctx := NewContext(c.Request().Context(), claims.Subject, claims.Roles)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func unauthenticated(msg string) error {
	return apperr.HTTPError(apperr.Unauthenticated(msg))
}

const (
	DevUserHeader = "X-Dev-User"
	DevRoleHeader = "X-Dev-Role"
)

// DevAuthMiddleware is a permissive middleware for development. The identity
// is taken from the X-Dev-User and X-Dev-Role headers, defaulting to a
// patient named dev-user.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := c.Request().Header.Get(DevUserHeader)
			if user == "" {
				user = "dev-user"
			}
			roles := []string{RolePatient}
			if r := c.Request().Header.Get(DevRoleHeader); r != "" {
				roles = strings.Split(r, ",")
			}
			ctx := NewContext(c.Request().Context(), user, roles)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// NewContext returns ctx carrying an authenticated identity.
func NewContext(ctx context.Context, userID string, roles []string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, UserRolesKey, roles)
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}

// SubjectID parses the authenticated subject as a uuid. Doctor tokens carry
// the doctor id as subject.
func SubjectID(ctx context.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
