// Package handlers 實作所有HTTP API
package handlers

import (
	"net/http"
	"strconv"

	"storefront/cache"
	"storefront/cart"
	"storefront/config"
	"storefront/events"
	"storefront/importer"
	"storefront/jwt"
	"storefront/logger"
	"storefront/orders"
	"storefront/sitemap"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 50
)

type Handler struct {
	cfg      config.Config
	db       *gorm.DB
	rdb      *redis.Client
	tokens   *jwt.Manager
	products *cache.ProductCache
	carts    *cart.Service
	orders   *orders.Service
	importer *importer.Importer
	sitemap  *sitemap.Generator
	log      zerolog.Logger

	passwordCost int
}

func New(cfg config.Config, db *gorm.DB, rdb *redis.Client, tokens *jwt.Manager, publisher events.Publisher, log zerolog.Logger) *Handler {
	products := cache.NewProductCache(rdb, db, log)
	carts := cart.NewService(db, log)
	return &Handler{
		cfg:      cfg,
		db:       db,
		rdb:      rdb,
		tokens:   tokens,
		products: products,
		carts:    carts,
		orders:   orders.NewService(db, rdb, products, carts, publisher, cfg.Shipping, log),
		importer: importer.New(db, log),
		sitemap:  sitemap.NewGenerator(db, rdb, cfg.BaseURL(), log),
		log:      log.With().Str("component", "http").Logger(),

		passwordCost: bcrypt.DefaultCost,
	}
}

// logger 回傳附帶request_id的logger
func (h *Handler) logger(c *gin.Context) *zerolog.Logger {
	l := logger.FromContext(c.Request.Context(), h.log)
	return &l
}

// 讀取路徑參數中的ID
func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 0)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": "ID格式錯誤",
			"error":   name + "必須為正整數",
		})
		return 0, false
	}
	return uint(id), true
}

// 讀取limit及offset，limit最高為50
func pagination(c *gin.Context) (int, int, bool) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageLimit)))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": "查詢數量輸入錯誤",
		})
		return 0, 0, false
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": "offset輸入錯誤",
		})
		return 0, 0, false
	}
	return limit, offset, true
}
