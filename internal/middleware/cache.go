package middleware

import "github.com/gin-gonic/gin"

// NoStore forbids any intermediary or browser caching. Exam papers and
// answers must never outlive the request in a shared cache.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
