package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "focusflow/internal/errors"
	"focusflow/internal/service"
)

const (
	UserIDContextKey = "userID"
	// AccessTokenQueryKey carries the token for transports that cannot set
	// headers, such as an unload beacon.
	AccessTokenQueryKey = "access_token"
)

func Auth(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, apiErr := bearerToken(c.GetHeader("Authorization"))
		if apiErr != nil {
			writeError(c, apiErr)
			return
		}

		userID, apiErr := authService.ParseToken(token)
		if apiErr != nil {
			writeError(c, apiErr)
			return
		}

		c.Set(UserIDContextKey, userID)
		c.Next()
	}
}

// BeaconAuth accepts either the Authorization header or the access_token
// query parameter.
func BeaconAuth(authService *service.AuthService) gin.HandlerFunc {
	header := Auth(authService)
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.Query(AccessTokenQueryKey))
		if token == "" {
			header(c)
			return
		}

		userID, apiErr := authService.ParseToken(token)
		if apiErr != nil {
			writeError(c, apiErr)
			return
		}
		c.Set(UserIDContextKey, userID)
		c.Next()
	}
}

func UserID(c *gin.Context) string {
	value, ok := c.Get(UserIDContextKey)
	if !ok {
		return ""
	}
	userID, ok := value.(string)
	if !ok {
		return ""
	}
	return userID
}

func bearerToken(authHeader string) (string, *apperrors.APIError) {
	if authHeader == "" {
		return "", apperrors.Unauthorized("missing authorization header")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", apperrors.Unauthorized("invalid authorization format")
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", apperrors.Unauthorized("invalid authorization format")
	}
	return token, nil
}

func writeError(c *gin.Context, apiErr *apperrors.APIError) {
	_ = c.Error(apiErr)
	c.AbortWithStatusJSON(apiErr.Status, apiErr.Envelope())
}
