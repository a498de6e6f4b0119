package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"eventhub-backend/internal/middleware"
	"eventhub-backend/internal/models"
	"eventhub-backend/internal/platform/metrics"
	"eventhub-backend/internal/services"
	"eventhub-backend/internal/utils"
)

// Dependencies is everything the HTTP surface needs
type Dependencies struct {
	DB       *sqlx.DB
	Log      *zap.Logger
	Metrics  *metrics.Manager
	Auth     *middleware.AuthMiddleware
	Security *middleware.SecurityConfig

	AllowedOrigins  []string
	AllowAllOrigins bool
	MaxFileSize     int64

	Identity  *services.IdentityService
	Webhooks  *services.WebhookVerifier
	Catalog   *services.CatalogService
	Favorites *services.FavoriteService
	Cart      *services.CartService
	Bookings  *services.BookingService
	Chat      *services.ChatService
	WebSocket *services.WebSocketService
}

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		utils.RegisterJSONTagNames(v)
	}
}

// SetupRouter builds the gin engine with middleware and every route
func SetupRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Recovery(deps.Log))
	router.Use(middleware.RequestLogger(deps.Log, deps.Metrics))
	router.Use(middleware.CORSMiddleware(deps.AllowedOrigins, deps.AllowAllOrigins))
	if deps.Security != nil {
		router.Use(middleware.SecurityMiddleware(deps.Security, deps.Log))
	}

	router.GET("/health", healthHandler(deps.DB))
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	users := NewUserHandlers(deps.Identity, deps.Log)
	webhooks := NewWebhookHandlers(deps.Webhooks, deps.Identity, deps.Log)
	listings := NewListingHandlers(deps.Catalog, deps.Log, deps.MaxFileSize)
	favorites := NewFavoriteHandlers(deps.Favorites, deps.Log)
	cart := NewCartHandlers(deps.Cart, deps.Log)
	bookings := NewBookingHandlers(deps.Bookings, deps.Log)
	chat := NewChatHandlers(deps.Chat, deps.Log)

	apiGroup := router.Group("/api/v1")
	{
		apiGroup.GET("/health", healthHandler(deps.DB))
		apiGroup.POST("/webhooks/identity", webhooks.HandleIdentityWebhook)

		// the socket authenticates from the token query parameter itself
		apiGroup.GET("/ws", deps.WebSocket.HandleWebSocket)

		public := apiGroup.Group("/")
		public.Use(deps.Auth.OptionalAuth())
		{
			public.GET("/listings", listings.ListListings)
			public.GET("/listings/:id", listings.GetListing)
			public.GET("/categories", listings.GetCategories)
		}

		protected := apiGroup.Group("/")
		protected.Use(deps.Auth.AuthRequired())
		{
			me := protected.Group("/users/me")
			{
				me.GET("", users.GetCurrentUser)
				me.GET("/role", users.GetRole)
				me.PUT("/role", users.UpdateRole)
				me.PUT("/preferences", users.UpdatePreferences)
			}

			favs := protected.Group("/favorites")
			{
				favs.GET("", favorites.GetFavorites)
				favs.POST("/toggle", favorites.ToggleFavorite)
				favs.GET("/count", favorites.GetFavoritesCount)
				favs.GET("/check/:serviceId", favorites.CheckFavorite)
			}

			carts := protected.Group("/cart")
			{
				carts.GET("", cart.GetCart)
				carts.POST("", cart.AddToCart)
				carts.GET("/count", cart.GetCartCount)
				carts.PUT("/items/:id", cart.UpdateCartItem)
				carts.DELETE("/items/:id", cart.RemoveCartItem)
			}

			protected.POST("/checkout", bookings.Checkout)
			protected.GET("/bookings", bookings.GetBookings)
			protected.GET("/bookings/:id", bookings.GetBooking)
			protected.POST("/bookings/:id/cancel", bookings.CancelBooking)

			conversations := protected.Group("/conversations")
			{
				conversations.GET("", chat.GetConversations)
				conversations.POST("", chat.CreateConversation)
				conversations.GET("/:id/messages", chat.GetMessages)
				conversations.POST("/:id/messages", chat.SendMessage)
			}
			protected.GET("/messages/unread-count", chat.GetUnreadCount)

			vendorOnly := deps.Auth.RequireRole(models.UserRoleVendor)

			vendor := protected.Group("/vendor")
			vendor.Use(vendorOnly)
			{
				vendor.GET("/profile", users.GetVendorProfile)
				vendor.PUT("/profile", users.UpdateVendorProfile)
				vendor.GET("/listings", listings.GetVendorListings)
				vendor.GET("/bookings", bookings.GetVendorBookings)
			}

			manage := protected.Group("/listings")
			manage.Use(vendorOnly)
			{
				manage.POST("", listings.CreateListing)
				manage.PUT("/:id", listings.UpdateListing)
				manage.DELETE("/:id", listings.DeleteListing)
				manage.POST("/:id/media", listings.UploadMedia)
			}

			protected.PUT("/booking-items/:id/status", vendorOnly, bookings.UpdateItemStatus)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "Route not found")
	})

	return router
}

func healthHandler(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "EventHub API is running",
		})
	}
}
