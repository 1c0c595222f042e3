package response

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextKeyRequestID is the Gin context key for the request ID.
const ContextKeyRequestID = "request_id"

// Inbound ids longer than this are replaced, not truncated. A UUID is 36
// characters; anything far beyond that is junk or abuse.
const maxRequestIDLength = 64

// RequestIDMiddleware tags every request with an id, honoring a reasonable
// X-Request-ID from the caller so a client-side trace can follow a request
// through the gateway into the logs.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" || len(reqID) > maxRequestIDLength {
			reqID = uuid.New().String()
		}
		c.Set(ContextKeyRequestID, reqID)
		c.Header("X-Request-ID", reqID)
		c.Next()
	}
}

// requestID returns the id set by the middleware, or "" when it never ran.
func requestID(c *gin.Context) string {
	val, ok := c.Get(ContextKeyRequestID)
	if !ok {
		return ""
	}
	id, _ := val.(string)
	return id
}
