package models

import "gorm.io/gorm"

type Category struct {
	gorm.Model
	Name     string    `gorm:"size:100;uniqueIndex;not null"`
	Slug     string    `gorm:"size:120;uniqueIndex;not null"`
	Products []Product `gorm:"many2many:category_products;" json:",omitempty"`
}
