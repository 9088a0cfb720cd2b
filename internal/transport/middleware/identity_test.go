package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func identityRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Identity())
	router.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetInt64(UserIDKey),
			"role":    c.GetString(UserRoleKey),
		})
	})
	router.POST("/redeem", RequireRedeemRole(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

// TestIdentity тестирует разбор заголовков идентичности от шлюза
func TestIdentity(t *testing.T) {
	router := identityRouter()

	tests := []struct {
		name       string
		userID     string
		role       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "valid customer",
			userID:     "100",
			wantStatus: http.StatusOK,
			wantBody:   `"role":"customer"`,
		},
		{
			name:       "explicit role forwarded",
			userID:     "500",
			role:       "staff",
			wantStatus: http.StatusOK,
			wantBody:   `"role":"staff"`,
		},
		{name: "missing identity", wantStatus: http.StatusUnauthorized},
		{name: "garbage identity", userID: "abc", wantStatus: http.StatusUnauthorized},
		{name: "non-positive identity", userID: "-5", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.userID != "" {
				req.Header.Set("X-User-ID", tt.userID)
			}
			if tt.role != "" {
				req.Header.Set("X-User-Role", tt.role)
			}

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
		})
	}
}

// TestRequireRedeemRole тестирует допуск к погашению по роли
func TestRequireRedeemRole(t *testing.T) {
	router := identityRouter()

	tests := []struct {
		role       string
		wantStatus int
	}{
		{role: "staff", wantStatus: http.StatusOK},
		{role: "merchant_owner", wantStatus: http.StatusOK},
		{role: "admin", wantStatus: http.StatusOK},
		{role: "customer", wantStatus: http.StatusForbidden},
		{role: "", wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run("role "+tt.role, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/redeem", nil)
			req.Header.Set("X-User-ID", "500")
			if tt.role != "" {
				req.Header.Set("X-User-Role", tt.role)
			}

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}
