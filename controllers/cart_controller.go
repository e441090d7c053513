package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apperrors "github.com/shopswift/storefront/common/errors"
	"github.com/shopswift/storefront/services"
)

type CartAPI interface {
	Get(ctx context.Context, userID uuid.UUID) (*services.CartView, error)
	Add(ctx context.Context, userID uuid.UUID, productID uint, quantity int) (*services.CartView, error)
	Update(ctx context.Context, userID uuid.UUID, productID uint, quantity int) (*services.CartView, error)
	Remove(ctx context.Context, userID uuid.UUID, productID uint) (*services.CartView, error)
	Clear(ctx context.Context, userID uuid.UUID) error
	Sync(ctx context.Context, userID uuid.UUID, items []services.SyncItem) (*services.CartView, error)
}

type CartController struct {
	svc CartAPI
}

func NewCartController(svc CartAPI) *CartController {
	return &CartController{svc: svc}
}

type addItemRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

// GetCart returns the current cart for a user
func (cc *CartController) GetCart(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	cart, err := cc.svc.Get(c.Request.Context(), userID)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// AddItem adds quantity of a product, accumulating onto an existing line.
// An omitted quantity means one.
func (cc *CartController) AddItem(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	cart, err := cc.svc.Add(c.Request.Context(), userID, req.ProductID, req.Quantity)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// UpdateItem sets the exact quantity of a line; zero or less removes it.
func (cc *CartController) UpdateItem(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	productID, ok := uintParam(c, "product_id")
	if !ok {
		return
	}
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	cart, err := cc.svc.Update(c.Request.Context(), userID, productID, *req.Quantity)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// RemoveItem removes a specific item from the cart
func (cc *CartController) RemoveItem(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	productID, ok := uintParam(c, "product_id")
	if !ok {
		return
	}
	cart, err := cc.svc.Remove(c.Request.Context(), userID, productID)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// ClearCart deletes every line of the user's cart
func (cc *CartController) ClearCart(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := cc.svc.Clear(c.Request.Context(), userID); err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "cart cleared"})
}

// SyncCart replaces the whole cart with the posted lines.
func (cc *CartController) SyncCart(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var items []services.SyncItem
	if err := c.ShouldBindJSON(&items); err != nil {
		bindError(c, err)
		return
	}
	cart, err := cc.svc.Sync(c.Request.Context(), userID, items)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}
