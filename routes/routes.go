package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopswift/storefront/controllers"
	"github.com/shopswift/storefront/middleware"
	"github.com/shopswift/storefront/models"
)

// Handlers bundles the controllers mounted under /api.
type Handlers struct {
	Auth     *controllers.AuthController
	Cart     *controllers.CartController
	Products *controllers.ProductController
	Orders   *controllers.OrderController
	Users    *controllers.UserController
}

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Register mounts every route. auth must authenticate bearer tokens.
func Register(r *gin.Engine, h Handlers, auth gin.HandlerFunc, health HealthCheck) {
	r.GET("/health", func(c *gin.Context) {
		if health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := health(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DEGRADED", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	admin := middleware.RequireRole(models.RoleAdmin)
	api := r.Group("/api")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", h.Auth.Register)
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/refresh-token", h.Auth.RefreshToken)
		authGroup.POST("/logout", h.Auth.Logout)
	}

	products := api.Group("/products")
	{
		products.GET("", h.Products.ListProducts)
		products.GET("/:id", h.Products.GetProduct)
		products.POST("", auth, admin, h.Products.CreateProduct)
		products.PUT("/:id", auth, admin, h.Products.UpdateProduct)
		products.DELETE("/:id", auth, admin, h.Products.DeleteProduct)
		products.POST("/:id/image-upload-url", auth, admin, h.Products.ImageUploadURL)
	}

	cart := api.Group("/cart", auth)
	{
		for _, p := range []string{"", "/"} {
			cart.GET(p, h.Cart.GetCart)
			cart.POST(p, h.Cart.AddItem)
			cart.DELETE(p, h.Cart.ClearCart)
		}
		cart.POST("/sync", h.Cart.SyncCart)
		cart.PUT("/:product_id", h.Cart.UpdateItem)
		cart.DELETE("/:product_id", h.Cart.RemoveItem)
	}

	orders := api.Group("/orders", auth)
	{
		orders.POST("", h.Orders.PlaceOrder)
		orders.GET("", h.Orders.ListMyOrders)
		orders.GET("/:id", h.Orders.GetMyOrder)
	}

	users := api.Group("/users", auth)
	{
		users.GET("/me", h.Users.GetProfile)
		users.PUT("/me", h.Users.UpdateProfile)
		users.POST("/me/password", h.Users.ChangePassword)
	}

	adminGroup := api.Group("/admin", auth, admin)
	{
		adminGroup.GET("/orders", h.Orders.ListAllOrders)
		adminGroup.PUT("/orders/:id/status", h.Orders.UpdateOrderStatus)
		adminGroup.GET("/users", h.Users.ListUsers)
	}
}
