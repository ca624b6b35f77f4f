package models

import "gorm.io/gorm"

const (
	PaymentKindCard     = "card"
	PaymentKindTransfer = "transfer"
	PaymentKindCOD      = "cod"
)

// PaymentMethod 只保存卡別與末四碼，不保存完整卡號
type PaymentMethod struct {
	gorm.Model
	UserID    uint   `gorm:"index;not null"`
	Kind      string `gorm:"size:20;not null"`
	Brand     string `gorm:"size:20"`
	Last4     string `gorm:"size:4"`
	ExpMonth  uint
	ExpYear   uint
	Holder    string
	IsDefault bool
}
