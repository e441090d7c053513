package services

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/shopswift/storefront/cache"
	apperrors "github.com/shopswift/storefront/common/errors"
	"github.com/shopswift/storefront/models"
	"github.com/shopswift/storefront/pkg/aws"
	"github.com/shopswift/storefront/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const imageUploadExpiry = 15 * time.Minute

// ImagePresigner issues upload URLs for product images. *aws.Presigner satisfies it.
type ImagePresigner interface {
	PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (*aws.PresignedUpload, error)
}

type ProductInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image"`
	Category    string          `json:"category"`
	Stock       int             `json:"stock"`
}

// ProductUpdate carries the fields to change; nil fields are left alone.
type ProductUpdate struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Image       *string          `json:"image"`
	Category    *string          `json:"category"`
	Stock       *int             `json:"stock"`
}

type ProductService struct {
	repo      repository.ProductRepository
	cache     *cache.ProductCache
	presigner ImagePresigner
	logger    *zap.Logger
}

func NewProductService(repo repository.ProductRepository, pc *cache.ProductCache, presigner ImagePresigner, logger *zap.Logger) *ProductService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pc == nil {
		pc = cache.NewProductCache(nil, 0, logger)
	}
	return &ProductService{repo: repo, cache: pc, presigner: presigner, logger: logger}
}

func (s *ProductService) List(ctx context.Context, filter repository.ProductFilter) (*cache.ProductPage, error) {
	filter.Page, filter.Limit = NormalizePage(filter.Page, filter.Limit)
	filter.Query = strings.TrimSpace(filter.Query)

	page, err := s.cache.GetList(ctx, filter, func() (*cache.ProductPage, error) {
		products, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		if products == nil {
			products = []models.Product{}
		}
		return &cache.ProductPage{Products: products, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
	})
	if err != nil {
		return nil, apperrors.ErrDatabaseQuery.Wrap(err)
	}
	return page, nil
}

func (s *ProductService) Get(ctx context.Context, id uint) (*models.Product, error) {
	product, err := s.cache.GetProduct(ctx, id, func() (*models.Product, error) {
		return s.repo.FindByID(ctx, id)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("product not found")
		}
		return nil, apperrors.ErrDatabaseQuery.Wrap(err)
	}
	return product, nil
}

func (s *ProductService) Create(ctx context.Context, in ProductInput) (*models.Product, error) {
	if err := validateProduct(in.Name, in.Price, in.Stock); err != nil {
		return nil, err
	}
	product := &models.Product{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price.Round(2),
		Image:       in.Image,
		Category:    strings.TrimSpace(in.Category),
		Stock:       in.Stock,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, apperrors.ErrDatabaseQuery.Wrap(err)
	}
	s.cache.Invalidate(ctx, 0)
	s.logger.Info("Product created", zap.Uint("product_id", product.ID))
	return product, nil
}

func (s *ProductService) Update(ctx context.Context, id uint, in ProductUpdate) (*models.Product, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("product not found")
		}
		return nil, apperrors.ErrDatabaseQuery.Wrap(err)
	}

	if in.Name != nil {
		product.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		product.Description = *in.Description
	}
	if in.Price != nil {
		product.Price = in.Price.Round(2)
	}
	if in.Image != nil {
		product.Image = *in.Image
	}
	if in.Category != nil {
		product.Category = strings.TrimSpace(*in.Category)
	}
	if in.Stock != nil {
		product.Stock = *in.Stock
	}
	if err := validateProduct(product.Name, product.Price, product.Stock); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, product); err != nil {
		return nil, apperrors.ErrDatabaseQuery.Wrap(err)
	}
	s.cache.Invalidate(ctx, id)
	return product, nil
}

func (s *ProductService) Delete(ctx context.Context, id uint) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound.WithMessage("product not found")
		}
		return apperrors.ErrDatabaseQuery.Wrap(err)
	}
	s.cache.Invalidate(ctx, id)
	return nil
}

// ImageUploadURL returns a presigned PUT URL for a new image of product id.
func (s *ProductService) ImageUploadURL(ctx context.Context, id uint, contentType string) (*aws.PresignedUpload, error) {
	if s.presigner == nil {
		return nil, apperrors.ErrServiceUnavailable.WithMessage("image uploads are not configured")
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, apperrors.ErrValidation.WithMessage("content_type must be an image type")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	ext := ""
	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
		ext = exts[0]
	}
	key := fmt.Sprintf("products/%d/%s%s", id, uuid.NewString(), ext)

	upload, err := s.presigner.PresignPut(ctx, key, contentType, imageUploadExpiry)
	if err != nil {
		return nil, apperrors.ErrServiceUnavailable.Wrap(err)
	}
	return upload, nil
}

func validateProduct(name string, price decimal.Decimal, stock int) error {
	if strings.TrimSpace(name) == "" {
		return apperrors.ErrValidation.WithMessage("name is required")
	}
	if price.IsNegative() {
		return apperrors.ErrValidation.WithMessage("price must not be negative")
	}
	if stock < 0 {
		return apperrors.ErrValidation.WithMessage("stock must not be negative")
	}
	return nil
}
