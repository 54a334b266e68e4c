package server

import (
	"auction-engine/internal/realtime"
	handler "auction-engine/services/auction/handler"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

// SetupRouter configures all Gin routes for the application
func SetupRouter(eng handler.EngineInterface, hub *realtime.Hub) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging

	auctionHandler := handler.NewAuctionHandler(eng)

	auctions := router.Group("/auctions")
	{
		auctions.POST("", auctionHandler.CreateAuctionHandler)
		auctions.POST("/:auction_id/bids", auctionHandler.PlaceBidHandler)
		auctions.POST("/:auction_id/activate", auctionHandler.ActivateAuctionHandler)
		auctions.POST("/:auction_id/close", auctionHandler.CloseAuctionHandler)
		auctions.GET("/:auction_id", auctionHandler.GetAuctionHandler)
		auctions.GET("/:auction_id/bids", auctionHandler.GetBidsHandler)
		auctions.GET("/:auction_id/winning", auctionHandler.GetWinningBidHandler)
	}

	router.GET("/ws", func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(400, gin.H{"error": "user_id is required"})
			return
		}
		if err := realtime.ServeWS(hub, c.Writer, c.Request, userID); err != nil {
			utils.Warn("websocket upgrade failed", map[string]any{"error": err.Error()})
		}
	})

	return router
}
