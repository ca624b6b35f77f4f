package handlers

import (
	"errors"
	"net/http"
	"strings"

	"storefront/models"
	"storefront/slug"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errNameTaken = errors.New("名稱或代稱已存在")

// 檢查名稱或代稱是否已被其他資料使用，包含已刪除的資料
func nameTaken(tx *gorm.DB, model interface{}, name, slugValue string, exceptID uint) (bool, error) {
	var count int64
	err := tx.Unscoped().
		Model(model).
		Where("(name = ? OR slug = ?) AND id <> ?", name, slugValue, exceptID).
		Count(&count).Error
	return count > 0, err
}

// 查詢商品分類列表及各分類商品數量
func (h *Handler) GetAdminCategoryListHandler(c *gin.Context) {
	type categoryRow struct {
		ID           uint   `json:"id"`
		Name         string `json:"name"`
		Slug         string `json:"slug"`
		ProductCount int64  `json:"productCount"`
	}

	var categories []categoryRow
	err := h.db.WithContext(c.Request.Context()).
		Model(&models.Category{}).
		Select("categories.id, categories.name, categories.slug, COUNT(category_products.product_id) AS product_count").
		Joins("LEFT JOIN category_products ON category_products.category_id = categories.id").
		Group("categories.id, categories.name, categories.slug").
		Order("categories.name").
		Scan(&categories).Error
	if err != nil {
		h.internalError(c, "無法讀取商品分類列表", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "成功查詢商品分類列表",
		"categories": categories,
	})
}

type namedRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description *string `json:"description"`
	LogoURL     *string `json:"logoURL"`
}

func (h *Handler) CreateCategoryHandler(c *gin.Context) {
	var req namedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "綁定請求資料錯誤", err)
		return
	}
	name := strings.TrimSpace(req.Name)
	category := models.Category{Name: name, Slug: slug.MakeOr(name, "category")}

	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		taken, err := nameTaken(tx, &models.Category{}, category.Name, category.Slug, 0)
		if err != nil {
			return err
		}
		if taken {
			return errNameTaken
		}
		return tx.Create(&category).Error
	})
	if err != nil {
		h.respondNamedError(c, "新增商品分類失敗", err)
		return
	}
	h.sitemap.Invalidate(c.Request.Context())

	c.JSON(http.StatusCreated, gin.H{
		"message":  "成功新增商品分類",
		"category": category,
	})
}

// 重新命名分類並同步更新代稱
func (h *Handler) RenameCategoryHandler(c *gin.Context) {
	categoryID, ok := paramID(c, "categoryID")
	if !ok {
		return
	}
	var req namedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "綁定請求資料錯誤", err)
		return
	}

	var category models.Category
	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&category, categoryID).Error; err != nil {
			return err
		}
		category.Name = strings.TrimSpace(req.Name)
		category.Slug = slug.MakeOr(category.Name, "category")
		taken, err := nameTaken(tx, &models.Category{}, category.Name, category.Slug, category.ID)
		if err != nil {
			return err
		}
		if taken {
			return errNameTaken
		}
		return tx.Omit(clause.Associations).Save(&category).Error
	})
	if err != nil {
		h.respondNamedError(c, "修改商品分類失敗", err)
		return
	}
	h.invalidateCatalog(c)

	c.JSON(http.StatusOK, gin.H{
		"message":  "成功修改商品分類",
		"category": category,
	})
}

// 刪除分類並清除與商品的關聯
func (h *Handler) DeleteCategoryHandler(c *gin.Context) {
	categoryID, ok := paramID(c, "categoryID")
	if !ok {
		return
	}

	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var category models.Category
		if err := tx.First(&category, categoryID).Error; err != nil {
			return err
		}
		if err := tx.Model(&category).Association("Products").Clear(); err != nil {
			return err
		}
		return tx.Unscoped().Delete(&category).Error
	})
	if err != nil {
		h.respondNamedError(c, "刪除商品分類失敗", err)
		return
	}
	h.invalidateCatalog(c)

	c.JSON(http.StatusOK, gin.H{
		"message": "成功刪除商品分類",
	})
}

func (h *Handler) respondNamedError(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		notFound(c, message)
	case errors.Is(err, errNameTaken):
		c.JSON(http.StatusConflict, gin.H{"message": message, "error": err.Error()})
	default:
		h.internalError(c, message, err)
	}
}

func (h *Handler) CreateBrandHandler(c *gin.Context) {
	var req namedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "綁定請求資料錯誤", err)
		return
	}
	name := strings.TrimSpace(req.Name)
	brand := models.Brand{Name: name, Slug: slug.MakeOr(name, "brand")}
	if req.Description != nil {
		brand.Description = *req.Description
	}
	if req.LogoURL != nil {
		brand.LogoURL = *req.LogoURL
	}

	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		taken, err := nameTaken(tx, &models.Brand{}, brand.Name, brand.Slug, 0)
		if err != nil {
			return err
		}
		if taken {
			return errNameTaken
		}
		return tx.Create(&brand).Error
	})
	if err != nil {
		h.respondNamedError(c, "新增品牌失敗", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "成功新增品牌",
		"brand":   brand,
	})
}

func (h *Handler) UpdateBrandHandler(c *gin.Context) {
	brandID, ok := paramID(c, "brandID")
	if !ok {
		return
	}
	var req namedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "綁定請求資料錯誤", err)
		return
	}

	var brand models.Brand
	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&brand, brandID).Error; err != nil {
			return err
		}
		brand.Name = strings.TrimSpace(req.Name)
		brand.Slug = slug.MakeOr(brand.Name, "brand")
		if req.Description != nil {
			brand.Description = *req.Description
		}
		if req.LogoURL != nil {
			brand.LogoURL = *req.LogoURL
		}
		taken, err := nameTaken(tx, &models.Brand{}, brand.Name, brand.Slug, brand.ID)
		if err != nil {
			return err
		}
		if taken {
			return errNameTaken
		}
		return tx.Save(&brand).Error
	})
	if err != nil {
		h.respondNamedError(c, "修改品牌失敗", err)
		return
	}
	h.invalidateCatalog(c)

	c.JSON(http.StatusOK, gin.H{
		"message": "成功修改品牌",
		"brand":   brand,
	})
}

// 刪除品牌，原有商品保留但取消品牌
func (h *Handler) DeleteBrandHandler(c *gin.Context) {
	brandID, ok := paramID(c, "brandID")
	if !ok {
		return
	}

	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var brand models.Brand
		if err := tx.First(&brand, brandID).Error; err != nil {
			return err
		}
		err := tx.Unscoped().
			Model(&models.Product{}).
			Where("brand_id = ?", brandID).
			Update("brand_id", nil).Error
		if err != nil {
			return err
		}
		return tx.Unscoped().Delete(&brand).Error
	})
	if err != nil {
		h.respondNamedError(c, "刪除品牌失敗", err)
		return
	}
	h.invalidateCatalog(c)

	c.JSON(http.StatusOK, gin.H{
		"message": "成功刪除品牌",
	})
}
