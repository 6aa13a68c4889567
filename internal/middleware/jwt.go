package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-prep/internal/response"
	"github.com/stemsi/exstem-prep/internal/service"
)

const (
	// ContextKeyClaims is the Gin context key for JWT claims.
	ContextKeyClaims = "claims"

	// ClientIDHeader distinguishes browser contexts of the same user.
	ClientIDHeader  = "X-Client-ID"
	defaultClientID = "default"
	maxClientIDLen  = 64
)

var errTokenMissing = errors.New("authorization header or token query required")

// RequireJWT validates the identity token from the Authorization header, or
// from ?token= for WebSocket upgrades that cannot send headers.
func RequireJWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := extractAndValidateClaims(c, authService)
		if errors.Is(err, errTokenMissing) {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims retrieves the JWT claims from the Gin context.
func GetClaims(c *gin.Context) *service.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.Claims)
	if !ok {
		return nil
	}
	return claims
}

// SessionContextKey identifies the browser context of a request: the user id
// plus the X-Client-ID header (or ?client_id=), "default" when absent.
func SessionContextKey(c *gin.Context, userID string) string {
	clientID := strings.TrimSpace(c.GetHeader(ClientIDHeader))
	if clientID == "" {
		clientID = strings.TrimSpace(c.Query("client_id"))
	}
	if clientID == "" || len(clientID) > maxClientIDLen {
		clientID = defaultClientID
	}
	return userID + ":" + clientID
}

func extractAndValidateClaims(c *gin.Context, authService *service.AuthService) (*service.Claims, error) {
	tokenStr := ""

	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			tokenStr = parts[1]
		}
	}

	// WebSocket upgrades cannot send headers from the browser.
	if tokenStr == "" {
		tokenStr = c.Query("token")
	}

	if tokenStr == "" {
		return nil, errTokenMissing
	}

	return authService.ValidateToken(tokenStr)
}
