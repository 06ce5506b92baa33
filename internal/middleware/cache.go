package middleware

import (
	"github.com/gin-gonic/gin"
)

// NoStore is the policy for anything carrying session state or tokens.
const NoStore = "no-store"

// CacheControl sets the Cache-Control header on every response of the group.
func CacheControl(policy string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", policy)
		c.Next()
	}
}
