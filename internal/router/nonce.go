package router

import (
	"net/http"

	"lasso-go/internal/handlers"
	"lasso-go/internal/utils"

	"github.com/gin-gonic/gin"
)

// NonceMiddleware creates a fresh nonce for each request and adds it to the
// Gin context for use in headers and templates.
func NonceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		nonce, err := utils.GenerateSecureToken(16)
		if err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Set(handlers.CSPNonceKey, nonce)
		c.Next()
	}
}
