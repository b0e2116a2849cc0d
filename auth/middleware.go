package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/e-kose/FT-PINPON-sub000/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

var (
	ErrMissingTokenStr = "missing-token"
	ErrExpiredTokenStr = "expired-token"
	ErrInvalidTokenStr = "invalid-token"
	ErrUnknownStr      = "unknown-error"
)

// Context keys set on authenticated requests.
const (
	ContextUserId   = "id"
	ContextUsername = "username"
)

type TokenVerifier interface {
	Verify(token string) (domain.User, error)
}

type authHandler struct {
	verifier TokenVerifier
	log      zerolog.Logger
}

func NewAuthHandler(verifier TokenVerifier, log zerolog.Logger) *authHandler {
	return &authHandler{verifier: verifier, log: log}
}

// TokenFromRequest looks for the token in the query string, the Authorization
// header and the "token" cookie, in that order. Browsers cannot set headers on a
// websocket handshake, hence the query parameter.
func TokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := r.Cookie("token"); err == nil {
		return cookie.Value
	}
	return ""
}

// RequireAuthMiddleware rejects the request before any handler runs when the token is
// missing or invalid. Forged tokens are answered after trollTime.
func (ah *authHandler) RequireAuthMiddleware(trollTime time.Duration) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := TokenFromRequest(ctx.Request)
		if token == "" {
			ctx.String(http.StatusUnauthorized, ErrMissingTokenStr)
			ctx.Abort()
			return
		}

		user, err := ah.verifier.Verify(token)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidSigningAlg), errors.Is(err, domain.ErrInvalidTokenSignature):
				ah.log.Warn().Err(err).Str("ip", ctx.ClientIP()).Msg("forged token")
				time.Sleep(trollTime)
				ctx.String(http.StatusUnauthorized, ErrInvalidTokenStr)
			case errors.Is(err, domain.ErrCorruptedToken):
				ctx.String(http.StatusUnauthorized, ErrInvalidTokenStr)
			case errors.Is(err, domain.ErrExpiredToken):
				ctx.String(http.StatusUnauthorized, ErrExpiredTokenStr)
			default:
				ah.log.Error().Err(err).Msg("token verification failed")
				ctx.String(http.StatusInternalServerError, ErrUnknownStr)
			}
			ctx.Abort()
			return
		}

		ctx.Set(ContextUserId, user.Id)
		ctx.Set(ContextUsername, user.Username)
		ctx.Next()
	}
}
