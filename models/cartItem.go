package models

import "gorm.io/gorm"

type CartItem struct {
	gorm.Model
	CartID    uint `gorm:"uniqueIndex:idx_cart_product;not null"`
	ProductID uint `gorm:"uniqueIndex:idx_cart_product;not null"`
	Product   Product
	Quantity  uint `gorm:"not null"`
}
