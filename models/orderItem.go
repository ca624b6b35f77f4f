package models

import "gorm.io/gorm"

// OrderItem 保存下單當下的商品名稱與單價
type OrderItem struct {
	gorm.Model
	OrderID   uint `gorm:"index;not null"`
	ProductID uint `gorm:"index;not null"`
	Product   Product
	Name      string `gorm:"not null"`
	UnitPrice uint   `gorm:"not null"`
	Quantity  uint   `gorm:"not null"`
}

func (i OrderItem) LineTotal() uint {
	return i.UnitPrice * i.Quantity
}
