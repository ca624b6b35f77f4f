package handlers

import (
	"errors"
	"net/http"

	"storefront/catalog"
	"storefront/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// 查詢商品列表，支援關鍵字、分類、品牌、價格區間、庫存及排序
func (h *Handler) GetProductListHandler(c *gin.Context) {
	query, err := catalog.ParseQuery(c.Request.URL.Query())
	if err != nil {
		badRequest(c, "查詢條件輸入錯誤", err)
		return
	}

	//嘗試從Redis讀取商品列表，如失敗則從資料庫讀取並儲存至Redis
	products, err := h.products.All(c.Request.Context())
	if err != nil {
		h.internalError(c, "無法讀取商品列表", err)
		return
	}

	result := catalog.Search(products, query)
	c.JSON(http.StatusOK, gin.H{
		"message":    "成功查詢商品列表",
		"products":   result.Products,
		"totalCount": result.TotalCount,
		"limit":      query.Limit,
		"offset":     query.Offset,
		"facets": gin.H{
			"categories": result.CategoryFacets,
			"brands":     result.BrandFacets,
		},
	})
}

func (h *Handler) findActiveProduct(c *gin.Context, query string, arg interface{}) {
	var product models.Product
	err := h.db.WithContext(c.Request.Context()).
		Preload("Categories").
		Preload("Brand").
		Where("active = ?", true).
		Where(query, arg).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			notFound(c, "查無此商品")
			return
		}
		h.internalError(c, "查詢商品資料失敗", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "成功查詢商品資料",
		"product": product,
	})
}

// 查詢商品詳細資料
func (h *Handler) GetProductDataHandler(c *gin.Context) {
	productID, ok := paramID(c, "productID")
	if !ok {
		return
	}
	h.findActiveProduct(c, "id = ?", productID)
}

func (h *Handler) GetProductBySlugHandler(c *gin.Context) {
	h.findActiveProduct(c, "slug = ?", c.Param("slug"))
}

// 查詢商品分類列表
func (h *Handler) GetCategoryListHandler(c *gin.Context) {
	var categories []models.Category
	err := h.db.WithContext(c.Request.Context()).Order("name").Find(&categories).Error
	if err != nil {
		h.internalError(c, "無法讀取商品分類列表", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "成功查詢商品分類列表",
		"categories": categories,
	})
}

func (h *Handler) GetBrandListHandler(c *gin.Context) {
	var brands []models.Brand
	err := h.db.WithContext(c.Request.Context()).Order("name").Find(&brands).Error
	if err != nil {
		h.internalError(c, "無法讀取品牌列表", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "成功查詢品牌列表",
		"brands":  brands,
	})
}
