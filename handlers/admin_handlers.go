package handlers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"storefront/middleware"
	"storefront/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	maxImageSize  = 5 << 20
	maxImportSize = 10 << 20
	lowStockLimit = 20
)

var imageContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

func isValidImageExtensions(file *multipart.FileHeader) bool {
	_, ok := imageContentTypes[strings.ToLower(filepath.Ext(file.Filename))]
	return ok
}

// 檢查檔案內容是否與副檔名相符
func isValidImageContent(file *multipart.FileHeader) (bool, error) {
	f, err := file.Open()
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := f.Read(head)
	if err != nil && n == 0 {
		return false, err
	}
	want := imageContentTypes[strings.ToLower(filepath.Ext(file.Filename))]
	return http.DetectContentType(head[:n]) == want, nil
}

func makeUniqueFileName(file *multipart.FileHeader) string {
	return uuid.NewString() + strings.ToLower(filepath.Ext(file.Filename))
}

// 查詢使用者列表
func (h *Handler) GetUserListHandler(c *gin.Context) {
	limit, offset, ok := pagination(c)
	if !ok {
		return
	}

	type userRow struct {
		ID        uint   `json:"id"`
		Username  string `json:"username"`
		Email     string `json:"email"`
		Role      string `json:"role"`
		CreatedAt string `json:"createdAt"`
	}

	db := h.db.WithContext(c.Request.Context())
	var total int64
	if err := db.Model(&models.User{}).Count(&total).Error; err != nil {
		h.internalError(c, "無法獲取使用者列表", err)
		return
	}
	var users []models.User
	err := db.
		Select("id", "username", "email", "role", "created_at").
		Order("id").
		Limit(limit).
		Offset(offset).
		Find(&users).Error
	if err != nil {
		h.internalError(c, "無法獲取使用者列表", err)
		return
	}

	userList := make([]userRow, 0, len(users))
	for _, user := range users {
		userList = append(userList, userRow{
			ID:        user.ID,
			Username:  user.Username,
			Email:     user.Email,
			Role:      user.Role,
			CreatedAt: user.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "成功獲取使用者列表",
		"userList":   userList,
		"totalCount": total,
	})
}

// 修改使用者身分，並使該使用者所有登入失效
func (h *Handler) UpdateUserRoleHandler(c *gin.Context) {
	userID, ok := paramID(c, "userID")
	if !ok {
		return
	}
	var req struct {
		Role string `json:"role" binding:"required,oneof=user admin"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "綁定請求資料錯誤", err)
		return
	}
	if currentID, _ := middleware.CurrentUserID(c); currentID == userID {
		badRequest(c, "不可修改自己的身分", nil)
		return
	}

	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.User{}).Where("id = ?", userID).Update("role", req.Role)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Unscoped().Where("user_id = ?", userID).Delete(&models.LoginToken{}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			notFound(c, "查無此使用者")
			return
		}
		h.internalError(c, "修改使用者身分失敗", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "成功修改使用者身分",
		"userID":  userID,
		"role":    req.Role,
	})
}

// 查詢商品完整資料，包含未上架及已刪除的商品
func (h *Handler) GetProductAllDataHandler(c *gin.Context) {
	productID, ok := paramID(c, "productID")
	if !ok {
		return
	}

	var product models.Product
	err := h.db.WithContext(c.Request.Context()).
		Unscoped().
		Preload("Categories").
		Preload("Brand").
		First(&product, productID).Error
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

func (h *Handler) UploadImageHandler(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		badRequest(c, "綁定圖片失敗", err)
		return
	}

	if !isValidImageExtensions(file) {
		badRequest(c, "圖片檔案格式錯誤", errors.New("僅接受jpg、jpeg、png及webp"))
		return
	}
	if file.Size > maxImageSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"message": "圖片檔案過大",
			"error":   "圖片不得超過5MiB",
		})
		return
	}
	valid, err := isValidImageContent(file)
	if err != nil {
		h.internalError(c, "讀取圖片失敗", err)
		return
	}
	if !valid {
		badRequest(c, "圖片檔案格式錯誤", errors.New("檔案內容與副檔名不符"))
		return
	}

	//檢查uploads資料夾是否存在，如不存在則創建
	uploadsDir := h.cfg.Server.UploadsDir
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		h.internalError(c, "建立uploads資料夾失敗", err)
		return
	}

	imageName := makeUniqueFileName(file)
	if err := c.SaveUploadedFile(file, filepath.Join(uploadsDir, imageName)); err != nil {
		h.internalError(c, "儲存圖片失敗", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":   "成功上傳圖片",
		"imagePath": "/uploads/" + imageName,
	})
}

type productRequest struct {
	Name        *string `json:"name"`
	SKU         *string `json:"sku"`
	Price       *uint   `json:"price"`
	Stock       *uint   `json:"stock"`
	ImageURL    *string `json:"imageURL"`
	Description *string `json:"description"`
	BrandID     *uint   `json:"brandID"`
	CategoryIDs []uint  `json:"categoryIDs"`
	Featured    *bool   `json:"featured"`
	Active      *bool   `json:"active"`
}

// apply 只覆寫有提供的欄位，brandID為0時取消品牌
func (r *productRequest) apply(product *models.Product) {
	if r.Name != nil {
		product.Name = strings.TrimSpace(*r.Name)
	}
	if r.SKU != nil {
		product.SKU = strings.TrimSpace(*r.SKU)
	}
	if r.Price != nil {
		product.Price = *r.Price
	}
	if r.Stock != nil {
		product.Stock = *r.Stock
	}
	if r.ImageURL != nil {
		product.ImageURL = *r.ImageURL
	}
	if r.Description != nil {
		product.Description = *r.Description
	}
	if r.BrandID != nil {
		product.Brand = nil
		product.BrandID = nil
		if *r.BrandID != 0 {
			id := *r.BrandID
			product.BrandID = &id
		}
	}
	if r.Featured != nil {
		product.Featured = *r.Featured
	}
	if r.Active != nil {
		product.Active = *r.Active
	}
}

var (
	errSKUTaken        = errors.New("SKU已存在")
	errBrandNotFound   = errors.New("查無此品牌")
	errCategoryMissing = errors.New("部分分類不存在")
)

// saveProduct 重新產生代稱後儲存商品，並以categoryIDs取代分類，categoryIDs為nil時不變更
func saveProduct(tx *gorm.DB, product *models.Product, categoryIDs []uint) error {
	var count int64
	err := tx.Unscoped().
		Model(&models.Product{}).
		Where("sku = ? AND id <> ?", product.SKU, product.ID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return errSKUTaken
	}
	product.Slug = models.ProductSlug(product.Name, product.SKU)
	if err := models.CheckProductSlug(tx, product.Slug, product.ID); err != nil {
		return err
	}

	if product.BrandID != nil {
		if err := tx.Select("id").First(&models.Brand{}, *product.BrandID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errBrandNotFound
			}
			return err
		}
	}

	if err := tx.Omit(clause.Associations).Save(product).Error; err != nil {
		return err
	}

	if categoryIDs == nil {
		return nil
	}
	categories := []models.Category{}
	if len(categoryIDs) > 0 {
		if err := tx.Where("id IN ?", categoryIDs).Find(&categories).Error; err != nil {
			return err
		}
		if len(categories) != len(uniqueIDs(categoryIDs)) {
			return errCategoryMissing
		}
	}
	return tx.Model(product).Association("Categories").Replace(categories)
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	unique := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	return unique
}

func (h *Handler) respondProductError(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, errSKUTaken), errors.Is(err, models.ErrSlugTaken):
		c.JSON(http.StatusConflict, gin.H{"message": message, "error": err.Error()})
	case errors.Is(err, errBrandNotFound), errors.Is(err, errCategoryMissing):
		badRequest(c, message, err)
	default:
		h.internalError(c, message, err)
	}
}

// 商品變更後同步商品快取及網站地圖
func (h *Handler) productChanged(c *gin.Context, productID uint) {
	h.products.Refresh(c.Request.Context(), productID)
	h.sitemap.Invalidate(c.Request.Context())
}

func (h *Handler) CreateProductHandler(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "綁定請求資料錯誤", err)
		return
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" || req.SKU == nil || strings.TrimSpace(*req.SKU) == "" || req.Price == nil {
		badRequest(c, "綁定請求資料錯誤", errors.New("name、sku及price為必填"))
		return
	}

	product := models.Product{Active: true}
	req.apply(&product)
	if req.CategoryIDs == nil {
		req.CategoryIDs = []uint{}
	}

	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := saveProduct(tx, &product, req.CategoryIDs); err != nil {
			return err
		}
		return tx.Preload("Categories").Preload("Brand").First(&product, product.ID).Error
	})
	if err != nil {
		h.respondProductError(c, "新增商品失敗", err)
		return
	}
	h.productChanged(c, product.ID)

	c.JSON(http.StatusCreated, gin.H{
		"message": "成功新增商品",
		"product": product,
	})
}

func (h *Handler) UpdateProductHandler(c *gin.Context) {
	productID, ok := paramID(c, "productID")
	if !ok {
		return
	}
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "綁定請求資料錯誤", err)
		return
	}
	if (req.Name != nil && strings.TrimSpace(*req.Name) == "") || (req.SKU != nil && strings.TrimSpace(*req.SKU) == "") {
		badRequest(c, "綁定請求資料錯誤", errors.New("name及sku不得為空"))
		return
	}

	var product models.Product
	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&product, productID).Error; err != nil {
			return err
		}
		req.apply(&product)
		if err := saveProduct(tx, &product, req.CategoryIDs); err != nil {
			return err
		}
		return tx.Preload("Categories").Preload("Brand").First(&product, product.ID).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			notFound(c, "查無此商品")
			return
		}
		h.respondProductError(c, "修改商品失敗", err)
		return
	}
	h.productChanged(c, product.ID)

	c.JSON(http.StatusOK, gin.H{
		"message": "成功修改商品資料",
		"product": product,
	})
}

// 刪除商品並從所有購物車移除，訂單保留商品快照
func (h *Handler) DeleteProductHandler(c *gin.Context) {
	productID, ok := paramID(c, "productID")
	if !ok {
		return
	}

	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.First(&product, productID).Error; err != nil {
			return err
		}
		if err := tx.Model(&product).Association("Categories").Clear(); err != nil {
			return err
		}
		if err := tx.Unscoped().Where("product_id = ?", productID).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&product).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			notFound(c, "查無此商品")
			return
		}
		h.internalError(c, "刪除商品失敗", err)
		return
	}
	h.productChanged(c, productID)

	c.JSON(http.StatusOK, gin.H{
		"message": "成功刪除商品",
	})
}

// 以CSV批次新增或更新商品，dryRun=true時只驗證
func (h *Handler) ImportProductsHandler(c *gin.Context) {
	dryRun, err := strconv.ParseBool(c.DefaultQuery("dryRun", "false"))
	if err != nil {
		badRequest(c, "dryRun輸入錯誤", err)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportSize)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"message": "CSV檔案過大",
				"error":   fmt.Sprintf("檔案不得超過%dMiB", maxImportSize>>20),
			})
			return
		}
		badRequest(c, "綁定CSV檔案失敗", err)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		h.internalError(c, "讀取CSV檔案失敗", err)
		return
	}
	defer file.Close()

	result, err := h.importer.Import(c.Request.Context(), file, dryRun)
	if err != nil {
		h.respondError(c, "匯入商品失敗", err)
		return
	}
	if !dryRun && result.Created+result.Updated > 0 {
		h.invalidateCatalog(c)
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "匯入商品完成",
		"result":  result,
	})
}

// 後台總覽：使用者、商品、訂單數量、營收、各狀態訂單數及低庫存商品
func (h *Handler) GetDashboardHandler(c *gin.Context) {
	ctx := c.Request.Context()
	db := h.db.WithContext(ctx)

	counts := make(map[string]int64, 3)
	for name, model := range map[string]interface{}{
		"users":    &models.User{},
		"products": &models.Product{},
		"orders":   &models.Order{},
	} {
		var n int64
		if err := db.Model(model).Count(&n).Error; err != nil {
			h.internalError(c, "無法讀取總覽資料", err)
			return
		}
		counts[name] = n
	}

	revenue, err := h.orders.Revenue(ctx)
	if err != nil {
		h.internalError(c, "無法讀取總覽資料", err)
		return
	}
	statusCounts, err := h.orders.StatusCounts(ctx)
	if err != nil {
		h.internalError(c, "無法讀取總覽資料", err)
		return
	}

	var lowStock []models.Product
	err = db.
		Select("id", "name", "sku", "stock").
		Where("active = ? AND stock <= ?", true, h.cfg.Catalog.LowStockThreshold).
		Order("stock, id").
		Limit(lowStockLimit).
		Find(&lowStock).Error
	if err != nil {
		h.internalError(c, "無法讀取總覽資料", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        "成功讀取總覽資料",
		"counts":         counts,
		"revenue":        revenue,
		"ordersByStatus": statusCounts,
		"lowStock":       lowStock,
	})
}

// 重新產生網站地圖並寫入檔案
func (h *Handler) RebuildSitemapHandler(c *gin.Context) {
	n, err := h.sitemap.WriteFile(c.Request.Context(), h.cfg.Server.SitemapPath)
	if err != nil {
		h.internalError(c, "無法產生網站地圖", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "成功產生網站地圖",
		"urls":    n,
	})
}
