package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopswift/storefront/cache"
	apperrors "github.com/shopswift/storefront/common/errors"
	"github.com/shopswift/storefront/models"
	"github.com/shopswift/storefront/pkg/aws"
	"github.com/shopswift/storefront/repository"
	"github.com/shopswift/storefront/services"
)

type ProductAPI interface {
	List(ctx context.Context, filter repository.ProductFilter) (*cache.ProductPage, error)
	Get(ctx context.Context, id uint) (*models.Product, error)
	Create(ctx context.Context, in services.ProductInput) (*models.Product, error)
	Update(ctx context.Context, id uint, in services.ProductUpdate) (*models.Product, error)
	Delete(ctx context.Context, id uint) error
	ImageUploadURL(ctx context.Context, id uint, contentType string) (*aws.PresignedUpload, error)
}

type ProductController struct {
	svc ProductAPI
}

func NewProductController(svc ProductAPI) *ProductController {
	return &ProductController{svc: svc}
}

type imageUploadRequest struct {
	ContentType string `json:"content_type" binding:"required"`
}

func (pc *ProductController) ListProducts(c *gin.Context) {
	page, limit := parsePaginationParams(c)
	result, err := pc.svc.List(c.Request.Context(), repository.ProductFilter{
		Page:     page,
		Limit:    limit,
		Category: c.Query("category"),
		Query:    c.Query("q"),
	})
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (pc *ProductController) GetProduct(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	product, err := pc.svc.Get(c.Request.Context(), id)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (pc *ProductController) CreateProduct(c *gin.Context) {
	var in services.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		bindError(c, err)
		return
	}
	product, err := pc.svc.Create(c.Request.Context(), in)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (pc *ProductController) UpdateProduct(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var in services.ProductUpdate
	if err := c.ShouldBindJSON(&in); err != nil {
		bindError(c, err)
		return
	}
	product, err := pc.svc.Update(c.Request.Context(), id, in)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (pc *ProductController) DeleteProduct(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := pc.svc.Delete(c.Request.Context(), id); err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ImageUploadURL returns a presigned S3 PUT URL for a product image.
func (pc *ProductController) ImageUploadURL(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req imageUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	upload, err := pc.svc.ImageUploadURL(c.Request.Context(), id, req.ContentType)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, upload)
}
