package middleware

import (
	"net/http"
	"strconv"

	"github.com/ds124wfegd/dealslot/internal/entity"
	"github.com/gin-gonic/gin"
)

// Context keys set by Identity.
const (
	UserIDKey   = "user_id"
	UserRoleKey = "user_role"
)

// Identity trusts the caller identity forwarded by the authentication
// gateway in X-User-ID / X-User-Role. The engine never issues sessions
// itself.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		idHeader := c.GetHeader("X-User-ID")
		if idHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
			return
		}

		userID, err := strconv.ParseInt(idHeader, 10, 64)
		if err != nil || userID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid user identity"})
			return
		}

		role := c.GetHeader("X-User-Role")
		if role == "" {
			role = string(entity.UserRoleCustomer)
		}

		c.Set(UserIDKey, userID)
		c.Set(UserRoleKey, role)
		c.Next()
	}
}

// RequireRedeemRole gates staff-facing endpoints on the forwarded role.
// The service re-checks against the user record; this is the fast path.
func RequireRedeemRole() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := entity.UserRole(c.GetString(UserRoleKey))
		if !role.CanRedeem() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "redemption requires a staff role"})
			return
		}
		c.Next()
	}
}
