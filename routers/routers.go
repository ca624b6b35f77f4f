package routers

import (
	"net/http"

	"storefront/config"
	"storefront/events"
	"storefront/handlers"
	"storefront/jwt"
	"storefront/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Authorization, X-Request-ID, Retry-After")
		c.Next()
	}
}

func SetupRouters(cfg config.Config, db *gorm.DB, rdb *redis.Client, tokens *jwt.Manager, publisher events.Publisher, log zerolog.Logger) (*gin.Engine, error) {
	h := handlers.New(cfg, db, rdb, tokens, publisher, log)

	//建立Gin路由器
	router := gin.New()
	router.Use(middleware.Recovery(log), middleware.RequestLogger(log), cors())
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, err
	}

	//設定商品圖片靜態資源路徑
	router.Static("/uploads", cfg.Server.UploadsDir)

	router.OPTIONS("/*path", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	router.GET("/healthz", h.HealthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/sitemap.xml", h.SitemapHandler)
	router.GET("/robots.txt", h.RobotsHandler)

	loginLimiter := middleware.NewIPRateLimiter(cfg.RateLimit.LoginPerSecond, cfg.RateLimit.LoginBurst)

	////無須權限，使用中間件檢查是否登入
	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(tokens, db, log))
	{
		//查詢商品列表
		api.GET("/products", h.GetProductListHandler)
		//查詢商品詳細資料
		api.GET("/products/:productID", h.GetProductDataHandler)
		api.GET("/products/slug/:slug", h.GetProductBySlugHandler)
		api.GET("/categories", h.GetCategoryListHandler)
		api.GET("/brands", h.GetBrandListHandler)
		api.GET("/projects", h.GetProjectListHandler)
		api.GET("/projects/:slug", h.GetProjectHandler)
		//註冊帳號
		api.POST("/register", h.RegisterHandler)
		//登入帳號
		api.POST("/login", loginLimiter.Middleware(), h.LoginHandler)
		//新增商品至購物車
		api.POST("/carts/add", h.AddToCartHandler)
		//更新購物車商品數量
		api.POST("/carts/update", h.UpdateCartItemQuantityHandler)
		//以用戶端購物車取代伺服器購物車
		api.PUT("/carts", h.SyncCartHandler)
		//刪除購物車商品
		api.DELETE("/carts/:productID", h.DeleteCartItemHandler)
		//查詢購物車商品
		api.GET("/carts", h.GetCartHandler)
		//清除購物車商品
		api.DELETE("/carts", h.ClearCartHandler)

		////需要登入，使用中間件檢查是否登入
		loginRequired := api.Group("/user")
		loginRequired.Use(middleware.CheckLoginMiddleware())
		{
			//查詢使用者資料
			loginRequired.GET("/profile", h.GetUserProfileHandler)
			//修改使用者資料
			loginRequired.PATCH("/profile/edit", h.UpdateUserProfileHandler)
			//合併匿名和使用者購物車(登入或註冊後呼叫)
			loginRequired.POST("/carts/merge", h.MergeCartHandler)
			//送出訂單並清除購物車內對應商品
			loginRequired.POST("/orders", h.SendOrderHandler)
			//查詢訂單列表
			loginRequired.GET("/orders", h.GetOrderListHandler)
			//查詢訂單詳細資訊
			loginRequired.GET("/orders/:orderID", h.GetOrderDataHandler)
			loginRequired.POST("/orders/:orderID/cancel", h.CancelOrderHandler)
			//收件地址
			loginRequired.GET("/addresses", h.GetAddressListHandler)
			loginRequired.POST("/addresses", h.CreateAddressHandler)
			loginRequired.PATCH("/addresses/:addressID", h.UpdateAddressHandler)
			loginRequired.PUT("/addresses/:addressID/default", h.SetDefaultAddressHandler)
			loginRequired.DELETE("/addresses/:addressID", h.DeleteAddressHandler)
			//付款方式
			loginRequired.GET("/payment-methods", h.GetPaymentMethodListHandler)
			loginRequired.POST("/payment-methods", h.CreatePaymentMethodHandler)
			loginRequired.PUT("/payment-methods/:paymentMethodID/default", h.SetDefaultPaymentMethodHandler)
			loginRequired.DELETE("/payment-methods/:paymentMethodID", h.DeletePaymentMethodHandler)
			//登出
			loginRequired.POST("/logout", h.LogOutHandler)
		}

		////需要admin身分，使用中間件檢查是否登入及admin權限
		adminRequired := api.Group("/admin")
		adminRequired.Use(middleware.CheckLoginMiddleware(), middleware.CheckAdminPermissionMiddleware(log))
		{
			adminRequired.GET("/dashboard", h.GetDashboardHandler)
			//查詢使用者列表
			adminRequired.GET("/users", h.GetUserListHandler)
			adminRequired.PATCH("/users/:userID/role", h.UpdateUserRoleHandler)
			//上傳商品圖片
			adminRequired.POST("/image", h.UploadImageHandler)
			//查詢商品完整資料
			adminRequired.GET("/products/:productID", h.GetProductAllDataHandler)
			//新增商品
			adminRequired.POST("/products", h.CreateProductHandler)
			//以CSV批次上傳商品
			adminRequired.POST("/products/import", h.ImportProductsHandler)
			//修改商品
			adminRequired.PATCH("/products/:productID", h.UpdateProductHandler)
			//刪除商品
			adminRequired.DELETE("/products/:productID", h.DeleteProductHandler)
			//查詢商品分類列表
			adminRequired.GET("/categories", h.GetAdminCategoryListHandler)
			adminRequired.POST("/categories", h.CreateCategoryHandler)
			adminRequired.PATCH("/categories/:categoryID", h.RenameCategoryHandler)
			//刪除商品分類
			adminRequired.DELETE("/categories/:categoryID", h.DeleteCategoryHandler)
			//品牌
			adminRequired.GET("/brands", h.GetBrandListHandler)
			adminRequired.POST("/brands", h.CreateBrandHandler)
			adminRequired.PATCH("/brands/:brandID", h.UpdateBrandHandler)
			adminRequired.DELETE("/brands/:brandID", h.DeleteBrandHandler)
			//專題
			adminRequired.GET("/projects", h.GetAdminProjectListHandler)
			adminRequired.POST("/projects", h.CreateProjectHandler)
			adminRequired.PATCH("/projects/:projectID", h.UpdateProjectHandler)
			adminRequired.PUT("/projects/:projectID/products", h.SetProjectProductsHandler)
			adminRequired.DELETE("/projects/:projectID", h.DeleteProjectHandler)
			//訂單
			adminRequired.GET("/orders", h.GetAdminOrderListHandler)
			adminRequired.GET("/orders/:orderID", h.GetAdminOrderHandler)
			adminRequired.PATCH("/orders/:orderID/status", h.UpdateOrderStatusHandler)
			//重新產生網站地圖檔案
			adminRequired.POST("/sitemap", h.RebuildSitemapHandler)
		}
	}

	return router, nil
}
