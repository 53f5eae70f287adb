package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const operatorKey = "operator"

// SecurityHeaders sets baseline hardening headers. Operator responses carry
// comment text and account state, so they are never cached.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		c.Next()
	}
}

// RequireToken guards the operator API with a static bearer token. An
// empty token disables the check. On success the caller's operator name
// (X-Operator, or a token fingerprint) is stored for rate limiting.
func RequireToken(token string) gin.HandlerFunc {
	if token == "" {
		return func(c *gin.Context) { c.Next() }
	}
	want := sha256.Sum256([]byte(token))
	fp := hex.EncodeToString(want[:4])

	return func(c *gin.Context) {
		got, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		sum := sha256.Sum256([]byte(strings.TrimSpace(got)))
		if !found || subtle.ConstantTimeCompare(sum[:], want[:]) != 1 {
			c.Header("WWW-Authenticate", `Bearer realm="operator"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(RequestIDHeader),
				"code":       "unauthorized",
				"message":    "missing or invalid operator token",
			})
			return
		}
		name := strings.TrimSpace(c.GetHeader("X-Operator"))
		if name == "" {
			name = "token:" + fp
		}
		c.Set(operatorKey, name)
		c.Next()
	}
}
