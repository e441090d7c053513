package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopswift/storefront/cache"
	apperrors "github.com/shopswift/storefront/common/errors"
	"github.com/shopswift/storefront/events"
	"github.com/shopswift/storefront/models"
	"github.com/shopswift/storefront/pkg/aws"
	"github.com/shopswift/storefront/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const publishTimeout = 5 * time.Second

// OrderPage is one page of an order listing.
type OrderPage struct {
	Orders []models.Order `json:"orders"`
	Total  int64          `json:"total"`
	Page   int            `json:"page"`
	Limit  int            `json:"limit"`
}

type OrderService struct {
	orders    repository.OrderRepository
	idem      *cache.IdempotencyStore
	publisher events.Publisher
	metrics   Metrics
	logger    *zap.Logger
}

func NewOrderService(orders repository.OrderRepository, idem *cache.IdempotencyStore, publisher events.Publisher, metrics Metrics, logger *zap.Logger) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if idem == nil {
		idem = cache.NewIdempotencyStore(nil, 0)
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &OrderService{orders: orders, idem: idem, publisher: publisher, metrics: metrics, logger: logger}
}

// Place turns the user's server cart into an order. When idempotencyKey was
// already used by this user the original order is returned and created is false.
func (s *OrderService) Place(ctx context.Context, userID uuid.UUID, idempotencyKey string) (order *models.Order, created bool, err error) {
	scope := userID.String()
	if idempotencyKey != "" {
		prior, err := s.idem.Get(ctx, scope, idempotencyKey)
		if err != nil {
			s.logger.Warn("Idempotency lookup failed", zap.Error(err))
		} else if prior != "" {
			if id, perr := uuid.Parse(prior); perr == nil {
				if existing, ferr := s.orders.FindByIDAndUserID(ctx, id, userID); ferr == nil {
					return existing, false, nil
				}
			}
		}
	}

	order, err = s.orders.PlaceFromCart(ctx, userID, newOrderNumber(time.Now()))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrEmptyCart):
			return nil, false, apperrors.ErrEmptyCart
		case errors.Is(err, repository.ErrInsufficientStock):
			return nil, false, apperrors.ErrInsufficientStock
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, false, apperrors.ErrInvalidOrder.WithMessage("cart contains a product that no longer exists")
		}
		return nil, false, apperrors.ErrDatabaseTransaction.Wrap(err)
	}

	if idempotencyKey != "" {
		if err := s.idem.Set(ctx, scope, idempotencyKey, order.ID.String()); err != nil {
			s.logger.Warn("Failed to store idempotency key", zap.Error(err))
		}
	}

	recordCount(ctx, s.metrics, s.logger, aws.MetricOrdersCreated)
	s.publishPlaced(ctx, order)
	s.logger.Info("Order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("total", order.TotalAmount.StringFixed(2)))
	return order, true, nil
}

func (s *OrderService) publishPlaced(ctx context.Context, order *models.Order) {
	evt := events.OrderPlaced{
		Type:        events.OrderPlacedType,
		OrderID:     order.ID.String(),
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID.String(),
		TotalAmount: order.TotalAmount,
		Timestamp:   time.Now().UTC(),
	}
	for _, it := range order.Items {
		evt.Items = append(evt.Items, events.OrderLine{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.PublishOrderPlaced(pubCtx, evt); err != nil {
		s.logger.Error("Failed to publish order.placed", zap.String("order_id", evt.OrderID), zap.Error(err))
	}
}

func (s *OrderService) ListForUser(ctx context.Context, userID uuid.UUID, page, limit int) (*OrderPage, error) {
	page, limit = NormalizePage(page, limit)
	orders, total, err := s.orders.FindByUserID(ctx, userID, page, limit)
	if err != nil {
		return nil, apperrors.ErrDatabaseQuery.Wrap(err)
	}
	return newOrderPage(orders, total, page, limit), nil
}

func (s *OrderService) ListAll(ctx context.Context, page, limit int) (*OrderPage, error) {
	page, limit = NormalizePage(page, limit)
	orders, total, err := s.orders.FindAll(ctx, page, limit)
	if err != nil {
		return nil, apperrors.ErrDatabaseQuery.Wrap(err)
	}
	return newOrderPage(orders, total, page, limit), nil
}

// GetForUser returns the order only when it belongs to userID.
func (s *OrderService) GetForUser(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.FindByIDAndUserID(ctx, orderID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("order not found")
		}
		return nil, apperrors.ErrDatabaseQuery.Wrap(err)
	}
	return order, nil
}

func (s *OrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, status string) (*models.Order, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if !models.ValidOrderStatus(status) {
		return nil, apperrors.ErrValidation.WithMessage(fmt.Sprintf("invalid status %q", status))
	}
	if err := s.orders.UpdateStatus(ctx, orderID, status); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("order not found")
		}
		return nil, apperrors.ErrDatabaseQuery.Wrap(err)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, apperrors.ErrDatabaseQuery.Wrap(err)
	}
	return order, nil
}

func newOrderPage(orders []models.Order, total int64, page, limit int) *OrderPage {
	if orders == nil {
		orders = []models.Order{}
	}
	return &OrderPage{Orders: orders, Total: total, Page: page, Limit: limit}
}

func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}
