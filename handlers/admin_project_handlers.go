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

var (
	errSlugTaken      = errors.New("代稱已存在")
	errProductMissing = errors.New("部分商品不存在")
)

// 查詢專題列表，包含未發佈的專題
func (h *Handler) GetAdminProjectListHandler(c *gin.Context) {
	limit, offset, ok := pagination(c)
	if !ok {
		return
	}

	db := h.db.WithContext(c.Request.Context())
	var total int64
	if err := db.Model(&models.Project{}).Count(&total).Error; err != nil {
		h.internalError(c, "無法讀取專題列表", err)
		return
	}
	var projects []models.Project
	err := db.
		Omit("body").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&projects).Error
	if err != nil {
		h.internalError(c, "無法讀取專題列表", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "成功查詢專題列表",
		"projects":   projects,
		"totalCount": total,
	})
}

type projectRequest struct {
	Title      *string `json:"title"`
	Slug       *string `json:"slug"`
	Summary    *string `json:"summary"`
	Body       *string `json:"body"`
	ImageURL   *string `json:"imageURL"`
	Difficulty *string `json:"difficulty"`
	Published  *bool   `json:"published"`
	ProductIDs []uint  `json:"productIDs"`
}

func (r *projectRequest) apply(project *models.Project) error {
	if r.Title != nil {
		project.Title = strings.TrimSpace(*r.Title)
	}
	if r.Summary != nil {
		project.Summary = *r.Summary
	}
	if r.Body != nil {
		project.Body = *r.Body
	}
	if r.ImageURL != nil {
		project.ImageURL = *r.ImageURL
	}
	if r.Difficulty != nil {
		project.Difficulty = *r.Difficulty
	}
	if r.Published != nil {
		project.Published = *r.Published
	}
	if r.Slug != nil {
		project.Slug = slug.Make(*r.Slug)
	}
	if project.Slug == "" {
		project.Slug = slug.MakeOr(project.Title, "project")
	}

	if project.Title == "" {
		return errors.New("title不得為空")
	}
	if !models.ValidDifficulty(project.Difficulty) {
		return errors.New("difficulty必須為beginner、intermediate或advanced")
	}
	return nil
}

// replaceProjectProducts 以productIDs取代專題使用的商品
func replaceProjectProducts(tx *gorm.DB, project *models.Project, productIDs []uint) error {
	products := []models.Product{}
	if len(productIDs) > 0 {
		if err := tx.Where("id IN ?", productIDs).Find(&products).Error; err != nil {
			return err
		}
		if len(products) != len(uniqueIDs(productIDs)) {
			return errProductMissing
		}
	}
	return tx.Model(project).Association("Products").Replace(products)
}

func saveProject(tx *gorm.DB, project *models.Project, productIDs []uint) error {
	var count int64
	err := tx.Unscoped().
		Model(&models.Project{}).
		Where("slug = ? AND id <> ?", project.Slug, project.ID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return errSlugTaken
	}
	if err := tx.Omit(clause.Associations).Save(project).Error; err != nil {
		return err
	}
	if productIDs != nil {
		if err := replaceProjectProducts(tx, project, productIDs); err != nil {
			return err
		}
	}
	return tx.Preload("Products").First(project, project.ID).Error
}

func (h *Handler) respondProjectError(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		notFound(c, "查無此專題")
	case errors.Is(err, errSlugTaken):
		c.JSON(http.StatusConflict, gin.H{"message": message, "error": err.Error()})
	case errors.Is(err, errProductMissing):
		badRequest(c, message, err)
	default:
		h.internalError(c, message, err)
	}
}

func (h *Handler) CreateProjectHandler(c *gin.Context) {
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "綁定請求資料錯誤", err)
		return
	}
	var project models.Project
	if err := req.apply(&project); err != nil {
		badRequest(c, "專題資料錯誤", err)
		return
	}

	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		return saveProject(tx, &project, req.ProductIDs)
	})
	if err != nil {
		h.respondProjectError(c, "新增專題失敗", err)
		return
	}
	h.sitemap.Invalidate(c.Request.Context())

	c.JSON(http.StatusCreated, gin.H{
		"message": "成功新增專題",
		"project": project,
	})
}

func (h *Handler) UpdateProjectHandler(c *gin.Context) {
	projectID, ok := paramID(c, "projectID")
	if !ok {
		return
	}
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "綁定請求資料錯誤", err)
		return
	}

	var project models.Project
	var invalid error
	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&project, projectID).Error; err != nil {
			return err
		}
		if invalid = req.apply(&project); invalid != nil {
			return invalid
		}
		return saveProject(tx, &project, req.ProductIDs)
	})
	if invalid != nil {
		badRequest(c, "專題資料錯誤", invalid)
		return
	}
	if err != nil {
		h.respondProjectError(c, "修改專題失敗", err)
		return
	}
	h.sitemap.Invalidate(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"message": "成功修改專題",
		"project": project,
	})
}

// 設定專題使用的商品
func (h *Handler) SetProjectProductsHandler(c *gin.Context) {
	projectID, ok := paramID(c, "projectID")
	if !ok {
		return
	}
	var req struct {
		ProductIDs []uint `json:"productIDs"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "綁定請求資料錯誤", err)
		return
	}

	var project models.Project
	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&project, projectID).Error; err != nil {
			return err
		}
		if err := replaceProjectProducts(tx, &project, req.ProductIDs); err != nil {
			return err
		}
		return tx.Preload("Products").First(&project, project.ID).Error
	})
	if err != nil {
		h.respondProjectError(c, "設定專題商品失敗", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "成功設定專題商品",
		"project": project,
	})
}

func (h *Handler) DeleteProjectHandler(c *gin.Context) {
	projectID, ok := paramID(c, "projectID")
	if !ok {
		return
	}

	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var project models.Project
		if err := tx.First(&project, projectID).Error; err != nil {
			return err
		}
		if err := tx.Model(&project).Association("Products").Clear(); err != nil {
			return err
		}
		return tx.Delete(&project).Error
	})
	if err != nil {
		h.respondProjectError(c, "刪除專題失敗", err)
		return
	}
	h.sitemap.Invalidate(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"message": "成功刪除專題",
	})
}
