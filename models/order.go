package models

import "gorm.io/gorm"

const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

// OrderStatuses 依流程順序排列
var OrderStatuses = []string{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

type Order struct {
	gorm.Model
	UserID         uint `gorm:"uniqueIndex:idx_user_idempotency;not null"`
	User           User
	OrderItems     []OrderItem
	Subtotal       uint   `gorm:"not null"`
	ShippingFee    uint   `gorm:"not null"`
	Total          uint   `gorm:"not null"`
	ShippingMethod string `gorm:"not null"`
	Name           string `gorm:"not null"`
	Address        string `gorm:"not null"`
	Phone          string `gorm:"not null"`
	PaymentKind    string `gorm:"not null"`
	PaymentLast4   string
	Status         string  `gorm:"index;not null"`
	IdempotencyKey *string `gorm:"size:64;uniqueIndex:idx_user_idempotency"`
}
