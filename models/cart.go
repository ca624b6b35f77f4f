package models

import "gorm.io/gorm"

// Cart 為會員購物車(UserID)或匿名購物車(AnonymousCartUUID)
type Cart struct {
	gorm.Model
	UserID            uint       `gorm:"index"`
	AnonymousCartUUID *string    `gorm:"size:36;uniqueIndex"`
	CartItems         []CartItem `gorm:"foreignKey:CartID"`
}

func (c *Cart) IsAnonymous() bool {
	return c.AnonymousCartUUID != nil
}
