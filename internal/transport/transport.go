package transport

import (
	"net/http"
	"time"

	"github.com/ds124wfegd/dealslot/internal/transport/middleware"
	"github.com/gin-gonic/gin"
)

func InitRoutes(claimHandler *ClaimHandler, waitlistHandler *WaitlistHandler, slotHandler *SlotHandler) *gin.Engine {

	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger())
	router.Use(middleware.Timeout(30))

	// API routes
	api := router.Group("/api/v1")
	api.Use(middleware.Identity())
	{
		// Claim routes
		claims := api.Group("/claims")
		{
			claims.POST("", claimHandler.ReserveClaim)
			claims.GET("/my", claimHandler.GetMyClaims)
			claims.GET("/:id", claimHandler.GetClaim)
		}

		// Staff redemption
		redemptions := api.Group("/redemptions")
		redemptions.Use(middleware.RequireRedeemRole())
		{
			redemptions.POST("", claimHandler.RedeemClaim)
		}

		// Waitlist routes
		waitlist := api.Group("/waitlist")
		{
			waitlist.POST("/offers/:offer_id", waitlistHandler.Join)
			waitlist.DELETE("/offers/:offer_id", waitlistHandler.Leave)
			waitlist.GET("/offers/:offer_id/me", waitlistHandler.GetMyEntry)
		}

		// Slot routes (merchant side)
		slots := api.Group("/slots")
		{
			slots.POST("", slotHandler.CreateSlot)
			slots.POST("/bulk", slotHandler.CreateBulkSlots)
			slots.GET("/:id", slotHandler.GetSlot)
			slots.DELETE("/:id", slotHandler.DeleteSlot)
		}

		api.GET("/offers/:offer_id/slots", slotHandler.GetOfferSlots)

		// Admin routes
		admin := api.Group("/admin")
		admin.Use(middleware.RequireRedeemRole())
		{
			admin.GET("/waitlist/offers/:offer_id", waitlistHandler.GetQueue)
			admin.POST("/sweep", claimHandler.SweepNow)
			admin.POST("/drip/tick", slotHandler.TickDrip)
		}
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return router
}
