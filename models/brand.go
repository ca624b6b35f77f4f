package models

import "gorm.io/gorm"

type Brand struct {
	gorm.Model
	Name        string `gorm:"size:100;uniqueIndex;not null"`
	Slug        string `gorm:"size:120;uniqueIndex;not null"`
	Description string
	LogoURL     string
}
