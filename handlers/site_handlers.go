package handlers

import (
	"net/http"

	"storefront/sitemap"

	"github.com/gin-gonic/gin"
)

func (h *Handler) SitemapHandler(c *gin.Context) {
	data, err := h.sitemap.XML(c.Request.Context())
	if err != nil {
		h.internalError(c, "無法產生網站地圖", err)
		return
	}
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "application/xml; charset=utf-8", data)
}

func (h *Handler) RobotsHandler(c *gin.Context) {
	c.String(http.StatusOK, sitemap.RobotsTxt(h.cfg.BaseURL()))
}

// 檢查資料庫及Redis連線
func (h *Handler) HealthHandler(c *gin.Context) {
	ctx := c.Request.Context()
	checks := gin.H{"database": "ok", "redis": "ok"}
	healthy := true

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		checks["database"] = err.Error()
		healthy = false
	}
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	}

	if !healthy {
		h.logger(c).Warn().Interface("checks", checks).Msg("健康檢查失敗")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": checks})
}

// 商品、分類或專題變更後清除快取
func (h *Handler) invalidateCatalog(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.products.Invalidate(ctx); err != nil {
		h.logger(c).Warn().Err(err).Msg("清除商品快取失敗")
	}
	h.sitemap.Invalidate(ctx)
}
