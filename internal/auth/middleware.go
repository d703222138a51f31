package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"nfcpay/internal/cache"
	apperrors "nfcpay/internal/errors"
	"nfcpay/internal/model"
	"nfcpay/internal/repository"
)

// TerminalKeyHeader carries the static terminal API key. Terminal
// authentication is distinct from end-user session auth.
const TerminalKeyHeader = "X-Terminal-Key"

const (
	terminalContextKey    = "terminal"
	terminalCacheKeyPfx   = "terminal:"
	terminalCacheDuration = 5 * time.Minute
)

// Principal is the verified {userId, role} pair extracted from a JWT.
type Principal struct {
	UserID uuid.UUID
	Role   Role
}

// JWTMiddleware returns the echo-jwt middleware configured for this core's
// claims.
func JWTMiddleware(secret string) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(secret),
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(Claims)
		},
	})
}

// PrincipalFromContext extracts the verified principal set by the JWT
// middleware.
func PrincipalFromContext(c echo.Context) (Principal, error) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok {
		return Principal{}, apperrors.ErrUnauthorized
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return Principal{}, apperrors.ErrUnauthorized
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return Principal{}, apperrors.ErrUnauthorized
	}
	role, ok := ParseRole(claims.Role)
	if !ok {
		return Principal{}, apperrors.ErrUnauthorized
	}
	return Principal{UserID: userID, Role: role}, nil
}

// RequireRoles allows the request through only when the principal's role
// is in the allow-list.
func RequireRoles(roles ...Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			principal, err := PrincipalFromContext(c)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, apperrors.ErrorResponse{
					Error: apperrors.ErrUnauthorized.Error(),
					Code:  "UNAUTHORIZED",
				})
			}
			for _, role := range roles {
				if principal.Role == role {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, apperrors.ErrorResponse{
				Error: apperrors.ErrForbidden.Error(),
				Code:  "FORBIDDEN",
			})
		}
	}
}

// HashAPIKey returns the hex SHA-256 of a terminal API key. Raw keys are
// never stored.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// TerminalAuth authenticates the request by static API key and injects the
// resolved terminal/merchant pair into the context. Lookups are cached;
// the cache failing open only means an extra database read.
func TerminalAuth(terminals repository.TerminalRepository, cacheClient *cache.Client) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get(TerminalKeyHeader)
			if key == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, apperrors.ErrorResponse{
					Error: "missing terminal key",
					Code:  "UNAUTHORIZED",
				})
			}
			keyHash := HashAPIKey(key)
			ctx := c.Request().Context()

			if data, _ := cacheClient.Get(ctx, terminalCacheKeyPfx+keyHash); data != nil {
				var cached model.Terminal
				if err := json.Unmarshal(data, &cached); err == nil {
					c.Set(terminalContextKey, &cached)
					return next(c)
				}
			}

			terminal, err := terminals.FindByAPIKeyHash(ctx, keyHash)
			if err != nil {
				if err == gorm.ErrRecordNotFound {
					return echo.NewHTTPError(http.StatusUnauthorized, apperrors.ErrorResponse{
						Error: "unknown terminal key",
						Code:  "UNAUTHORIZED",
					})
				}
				return echo.NewHTTPError(http.StatusInternalServerError, apperrors.ErrorResponse{
					Error: "internal server error",
					Code:  "INTERNAL_ERROR",
				})
			}

			// A deactivated or rekeyed terminal keeps authenticating until the
			// cached entry expires, at most terminalCacheDuration. Terminal
			// offboarding tolerates that lag; there is no eager invalidation.
			if payload, err := json.Marshal(terminal); err == nil {
				_ = cacheClient.Set(ctx, terminalCacheKeyPfx+keyHash, payload, terminalCacheDuration)
			}
			c.Set(terminalContextKey, terminal)
			return next(c)
		}
	}
}

// TerminalFromContext extracts the terminal set by TerminalAuth.
func TerminalFromContext(c echo.Context) (*model.Terminal, error) {
	terminal, ok := c.Get(terminalContextKey).(*model.Terminal)
	if !ok {
		return nil, apperrors.ErrUnauthorized
	}
	return terminal, nil
}
