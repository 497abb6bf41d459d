package middleware

import (
	"github.com/gin-gonic/gin"
)

const (
	HeaderUserID = "X-User-ID"
	HeaderSiteID = "X-Site-ID"

	userIDKey = "identity.user_id"
	siteIDKey = "identity.site_id"
)

// Identity copies the caller identity headers into the request context so
// handlers do not read headers directly.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if v := c.GetHeader(HeaderUserID); v != "" {
			c.Set(userIDKey, v)
		}
		if v := c.GetHeader(HeaderSiteID); v != "" {
			c.Set(siteIDKey, v)
		}
		c.Next()
	}
}

// UserID returns the authenticated user id, or "" when the header was absent.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// SiteID returns the site the request targets, or "" when the header was absent.
func SiteID(c *gin.Context) string {
	return c.GetString(siteIDKey)
}
