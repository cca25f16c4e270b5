package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aegisx/aegisgate-go/internal/application/services"
)

const operatorContextKey = "operator"

// OperatorAuthMiddleware requires a valid operator bearer token on the
// admin surface and stores the operator name in the request context.
func OperatorAuthMiddleware(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		operator, err := authService.Validate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(operatorContextKey, operator)
		c.Next()
	}
}

// OperatorFromContext returns the authenticated operator name, if any.
func OperatorFromContext(c *gin.Context) (string, bool) {
	operator, exists := c.Get(operatorContextKey)
	if !exists {
		return "", false
	}
	name, ok := operator.(string)
	return name, ok
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		// Websocket clients cannot set headers from the browser.
		return c.Query("token")
	}
	return strings.TrimPrefix(header, "Bearer ")
}
