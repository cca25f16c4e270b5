package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aegisx/aegisgate-go/internal/infrastructure/security"
)

// SignatureMiddleware authenticates server-to-server calls: issue
// requests from the inviting platform and resolve callbacks from a
// remote decision engine. The X-Signature header carries an HMAC over
// the named JSON body field. The body is re-buffered so the handler can
// bind it again.
func SignatureMiddleware(secret, field string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "signed endpoints disabled"})
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"ok": false, "error": "unreadable body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		var envelope map[string]any
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
			return
		}
		value, _ := envelope[field].(string)
		if value == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"ok": false, "error": "missing " + field})
			return
		}

		signature := c.GetHeader("X-Signature")
		if !security.VerifySignature(secret, value, signature) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "invalid signature"})
			return
		}

		c.Next()
	}
}
