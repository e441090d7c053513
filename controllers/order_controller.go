package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apperrors "github.com/shopswift/storefront/common/errors"
	"github.com/shopswift/storefront/models"
	"github.com/shopswift/storefront/services"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type OrderAPI interface {
	Place(ctx context.Context, userID uuid.UUID, idempotencyKey string) (*models.Order, bool, error)
	ListForUser(ctx context.Context, userID uuid.UUID, page, limit int) (*services.OrderPage, error)
	GetForUser(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
	ListAll(ctx context.Context, page, limit int) (*services.OrderPage, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status string) (*models.Order, error)
}

type OrderController struct {
	svc OrderAPI
}

func NewOrderController(svc OrderAPI) *OrderController {
	return &OrderController{svc: svc}
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// PlaceOrder creates an order from the server cart. A replayed
// Idempotency-Key answers 200 with the original order instead of 201.
func (oc *OrderController) PlaceOrder(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	order, created, err := oc.svc.Place(c.Request.Context(), userID, c.GetHeader(IdempotencyKeyHeader))
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, order)
}

func (oc *OrderController) ListMyOrders(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	page, limit := parsePaginationParams(c)
	result, err := oc.svc.ListForUser(c.Request.Context(), userID, page, limit)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (oc *OrderController) GetMyOrder(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	order, err := oc.svc.GetForUser(c.Request.Context(), userID, orderID)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (oc *OrderController) ListAllOrders(c *gin.Context) {
	page, limit := parsePaginationParams(c)
	result, err := oc.svc.ListAll(c.Request.Context(), page, limit)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (oc *OrderController) UpdateOrderStatus(c *gin.Context) {
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	order, err := oc.svc.UpdateStatus(c.Request.Context(), orderID, req.Status)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
