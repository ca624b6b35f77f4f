package models

import "gorm.io/gorm"

type Address struct {
	gorm.Model
	UserID     uint   `gorm:"index;not null"`
	Recipient  string `gorm:"not null"`
	Phone      string `gorm:"not null"`
	Line1      string `gorm:"not null"`
	Line2      string
	City       string `gorm:"not null"`
	PostalCode string
	Country    string `gorm:"size:2;not null"`
	IsDefault  bool
}

// OneLine 組合為訂單使用的單行地址
func (a *Address) OneLine() string {
	parts := []string{a.PostalCode, a.City, a.Line1, a.Line2, a.Country}
	line := ""
	for _, part := range parts {
		if part == "" {
			continue
		}
		if line != "" {
			line += " "
		}
		line += part
	}
	return line
}
