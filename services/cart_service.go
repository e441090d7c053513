package services

import (
	"context"
	"errors"
	"math"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	apperrors "github.com/shopswift/storefront/common/errors"
	"github.com/shopswift/storefront/models"
	"github.com/shopswift/storefront/pkg/aws"
	"github.com/shopswift/storefront/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CartLine is one line of the cart as returned to clients.
type CartLine struct {
	ProductID    uint            `json:"product_id"`
	ProductName  string          `json:"product_name"`
	ProductPrice decimal.Decimal `json:"product_price"`
	ProductImage string          `json:"product_image"`
	Quantity     int             `json:"quantity"`
}

type CartSummary struct {
	TotalItems    int             `json:"total_items"`
	TotalQuantity int             `json:"total_quantity"`
	TotalPrice    decimal.Decimal `json:"total_price"`
}

type CartView struct {
	Items   []CartLine  `json:"items"`
	Summary CartSummary `json:"summary"`
}

// MaxLineQuantity is the largest quantity the cart_items column holds.
const MaxLineQuantity = math.MaxInt32

var errQuantityRange = apperrors.ErrValidation.WithMessage("quantity must be between 1 and 2147483647")

// SyncItem is one entry of a full cart replacement.
type SyncItem struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

type CartService struct {
	cart     repository.CartRepository
	products repository.ProductRepository
	metrics  Metrics
	logger   *zap.Logger
}

func NewCartService(cart repository.CartRepository, products repository.ProductRepository, metrics Metrics, logger *zap.Logger) *CartService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CartService{cart: cart, products: products, metrics: metrics, logger: logger}
}

func (s *CartService) Get(ctx context.Context, userID uuid.UUID) (*CartView, error) {
	items, err := s.cart.List(ctx, userID)
	if err != nil {
		return nil, apperrors.ErrDatabaseQuery.Wrap(err)
	}
	return buildCartView(items), nil
}

// Add puts quantity of a product in the cart, accumulating onto an existing line.
func (s *CartService) Add(ctx context.Context, userID uuid.UUID, productID uint, quantity int) (*CartView, error) {
	if quantity < 1 || quantity > MaxLineQuantity {
		return nil, errQuantityRange
	}
	if _, err := s.products.FindByID(ctx, productID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("product not found")
		}
		return nil, apperrors.ErrDatabaseQuery.Wrap(err)
	}
	items, err := s.cart.List(ctx, userID)
	if err != nil {
		return nil, apperrors.ErrDatabaseQuery.Wrap(err)
	}
	for _, it := range items {
		if it.ProductID == productID && it.Quantity > MaxLineQuantity-quantity {
			return nil, errQuantityRange
		}
	}
	if err := s.cart.Add(ctx, userID, productID, quantity); err != nil {
		return nil, apperrors.ErrDatabaseQuery.Wrap(err)
	}
	return s.Get(ctx, userID)
}

// Update sets the exact quantity of a line. A quantity of zero or less removes it.
func (s *CartService) Update(ctx context.Context, userID uuid.UUID, productID uint, quantity int) (*CartView, error) {
	if quantity <= 0 {
		if err := s.cart.Remove(ctx, userID, productID); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrDatabaseQuery.Wrap(err)
		}
		return s.Get(ctx, userID)
	}
	if quantity > MaxLineQuantity {
		return nil, errQuantityRange
	}
	if err := s.cart.SetQuantity(ctx, userID, productID, quantity); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("item not in cart")
		}
		return nil, apperrors.ErrDatabaseQuery.Wrap(err)
	}
	return s.Get(ctx, userID)
}

func (s *CartService) Remove(ctx context.Context, userID uuid.UUID, productID uint) (*CartView, error) {
	if err := s.cart.Remove(ctx, userID, productID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("item not in cart")
		}
		return nil, apperrors.ErrDatabaseQuery.Wrap(err)
	}
	return s.Get(ctx, userID)
}

func (s *CartService) Clear(ctx context.Context, userID uuid.UUID) error {
	if err := s.cart.Clear(ctx, userID); err != nil {
		return apperrors.ErrDatabaseQuery.Wrap(err)
	}
	return nil
}

// Sync replaces the whole server cart with items. Entries with quantity < 1
// are dropped, duplicates are summed (capped at MaxLineQuantity) and unknown
// products are skipped.
func (s *CartService) Sync(ctx context.Context, userID uuid.UUID, items []SyncItem) (*CartView, error) {
	quantities := make(map[uint]int, len(items))
	order := make([]uint, 0, len(items))
	for _, it := range items {
		if it.Quantity < 1 {
			continue
		}
		if _, seen := quantities[it.ProductID]; !seen {
			order = append(order, it.ProductID)
		}
		quantities[it.ProductID] = min(quantities[it.ProductID]+min(it.Quantity, MaxLineQuantity), MaxLineQuantity)
	}

	known := make(map[uint]bool, len(order))
	if len(order) > 0 {
		products, err := s.products.FindByIDs(ctx, order)
		if err != nil {
			return nil, apperrors.ErrDatabaseQuery.Wrap(err)
		}
		for _, p := range products {
			known[p.ID] = true
		}
	}

	lines := make([]models.CartItem, 0, len(order))
	for _, id := range order {
		if !known[id] {
			s.logger.Debug("Dropping unknown product from cart sync", zap.Uint("product_id", id))
			continue
		}
		lines = append(lines, models.CartItem{UserID: userID, ProductID: id, Quantity: quantities[id]})
	}

	if err := s.cart.ReplaceAll(ctx, userID, lines); err != nil {
		return nil, apperrors.ErrDatabaseTransaction.Wrap(err)
	}
	recordCount(ctx, s.metrics, s.logger, aws.MetricCartSyncs)
	return s.Get(ctx, userID)
}

func buildCartView(items []models.CartItem) *CartView {
	view := &CartView{Items: make([]CartLine, 0, len(items))}
	view.Summary.TotalPrice = decimal.Zero
	for _, it := range items {
		line := CartLine{
			ProductID:    it.ProductID,
			ProductName:  it.Product.Name,
			ProductPrice: it.Product.Price,
			ProductImage: it.Product.Image,
			Quantity:     it.Quantity,
		}
		view.Items = append(view.Items, line)
		view.Summary.TotalQuantity += it.Quantity
		view.Summary.TotalPrice = view.Summary.TotalPrice.Add(it.Product.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	view.Summary.TotalItems = len(view.Items)
	return view
}
