package models

import "gorm.io/gorm"

// Migrate function for auto migration
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&User{}, &RefreshToken{}, &Product{}, &CartItem{}, &Order{}, &OrderItem{})
}
