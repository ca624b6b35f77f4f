package handlers

import (
	"errors"
	"net/http"

	"storefront/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// 查詢已發佈的專題列表，可用difficulty篩選
func (h *Handler) GetProjectListHandler(c *gin.Context) {
	limit, offset, ok := pagination(c)
	if !ok {
		return
	}

	query := h.db.WithContext(c.Request.Context()).Model(&models.Project{}).Where("published = ?", true)
	if difficulty := c.Query("difficulty"); difficulty != "" {
		if !models.ValidDifficulty(difficulty) {
			badRequest(c, "不合法的難度", nil)
			return
		}
		query = query.Where("difficulty = ?", difficulty)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		h.internalError(c, "無法讀取專題列表", err)
		return
	}
	var projects []models.Project
	err := query.
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

// 查詢專題內容及使用到的上架商品
func (h *Handler) GetProjectHandler(c *gin.Context) {
	var project models.Project
	err := h.db.WithContext(c.Request.Context()).
		Preload("Products", "active = ?", true).
		Where("slug = ? AND published = ?", c.Param("slug"), true).
		First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			notFound(c, "查無此專題")
			return
		}
		h.internalError(c, "查詢專題失敗", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "成功查詢專題",
		"project": project,
	})
}
