package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopswift/storefront/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CartRepository defines the interface for server cart lines
type CartRepository interface {
	List(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error)
	Add(ctx context.Context, userID uuid.UUID, productID uint, quantity int) error
	SetQuantity(ctx context.Context, userID uuid.UUID, productID uint, quantity int) error
	Remove(ctx context.Context, userID uuid.UUID, productID uint) error
	Clear(ctx context.Context, userID uuid.UUID) error
	ReplaceAll(ctx context.Context, userID uuid.UUID, items []models.CartItem) error
}

type GormCartRepository struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) *GormCartRepository {
	return &GormCartRepository{db: db}
}

// List returns the user's lines with their products, oldest first.
func (r *GormCartRepository) List(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	var items []models.CartItem
	err := r.db.WithContext(ctx).
		Preload("Product").
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Add inserts a line or adds quantity to the existing one.
func (r *GormCartRepository) Add(ctx context.Context, userID uuid.UUID, productID uint, quantity int) error {
	item := models.CartItem{UserID: userID, ProductID: productID, Quantity: quantity}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"quantity": gorm.Expr("cart_items.quantity + ?", quantity),
		}),
	}).Omit("Product").Create(&item).Error
}

// SetQuantity overwrites a line's quantity. It returns gorm.ErrRecordNotFound
// when the user has no line for productID.
func (r *GormCartRepository) SetQuantity(ctx context.Context, userID uuid.UUID, productID uint, quantity int) error {
	res := r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Update("quantity", quantity)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormCartRepository) Remove(ctx context.Context, userID uuid.UUID, productID uint) error {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&models.CartItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormCartRepository) Clear(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.CartItem{}).Error
}

// ReplaceAll swaps the user's whole cart for items in one transaction.
func (r *GormCartRepository) ReplaceAll(ctx context.Context, userID uuid.UUID, items []models.CartItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		for i := range items {
			items[i].UserID = userID
		}
		return tx.Omit("Product").Create(&items).Error
	})
}
