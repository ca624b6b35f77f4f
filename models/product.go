package models

import (
	"errors"

	"storefront/slug"

	"gorm.io/gorm"
)

var ErrSlugTaken = errors.New("商品代稱已被其他商品使用")

type Product struct {
	gorm.Model
	Name        string `gorm:"not null"`
	SKU         string `gorm:"size:64;uniqueIndex;not null"`
	Slug        string `gorm:"size:191;uniqueIndex;not null"`
	Price       uint   `gorm:"not null"`
	Stock       uint   `gorm:"not null"`
	Description string `gorm:"type:text"`
	ImageURL    string
	BrandID     *uint
	Brand       *Brand
	Categories  []Category `gorm:"many2many:category_products;"`
	Featured    bool
	Active      bool
}

func (p *Product) HasCategory(categoryID uint) bool {
	for _, category := range p.Categories {
		if category.ID == categoryID {
			return true
		}
	}
	return false
}

// ProductSlug 商品代稱由名稱與SKU組成，任一變更時代稱跟著變更
func ProductSlug(name, sku string) string {
	return slug.MakeOr(name+" "+sku, sku)
}

// CheckProductSlug 確認代稱沒有被其他商品(含已刪除)使用
func CheckProductSlug(tx *gorm.DB, productSlug string, exceptID uint) error {
	var count int64
	err := tx.Unscoped().
		Model(&Product{}).
		Where("slug = ? AND id <> ?", productSlug, exceptID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrSlugTaken
	}
	return nil
}
