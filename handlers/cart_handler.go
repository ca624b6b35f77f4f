package handlers

import (
	"errors"
	"net/http"

	"storefront/cart"
	"storefront/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	anonymousCartCookie = "anonymous_cart_id"
	anonymousCartMaxAge = 30 * 24 * 60 * 60
)

// 從Cookie讀取匿名購物車ID
func getAnonymousCartID(c *gin.Context) string {
	anonymousCartID, err := c.Cookie(anonymousCartCookie)
	if err != nil {
		return ""
	}
	if _, err := uuid.Parse(anonymousCartID); err != nil {
		return ""
	}
	return anonymousCartID
}

// 儲存匿名購物車ID至Cookie
func setAnonymousCartID(c *gin.Context, cartID string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     anonymousCartCookie,
		Value:    cartID,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// cartOwner 已登入使用會員購物車，否則使用匿名購物車，create為true時會發放新的匿名ID
func cartOwner(c *gin.Context, create bool) (cart.Owner, bool) {
	if userID, ok := middleware.CurrentUserID(c); ok {
		return cart.Owner{UserID: userID}, true
	}
	anonymousCartID := getAnonymousCartID(c)
	if anonymousCartID == "" {
		if !create {
			return cart.Owner{}, false
		}
		anonymousCartID = uuid.NewString()
		setAnonymousCartID(c, anonymousCartID, anonymousCartMaxAge)
	}
	return cart.Owner{AnonymousID: anonymousCartID}, true
}

// 合併匿名購物車，失敗不影響登入或註冊
func (h *Handler) mergeAnonymousCart(c *gin.Context, userID uint) int {
	anonymousCartID := getAnonymousCartID(c)
	if anonymousCartID == "" {
		return 0
	}
	merged, err := h.carts.Merge(c.Request.Context(), anonymousCartID, userID)
	if err != nil {
		h.logger(c).Warn().Err(err).Uint("userID", userID).Msg("合併匿名購物車失敗")
		return 0
	}
	setAnonymousCartID(c, "", -1)
	return merged
}

type cartItemRequest struct {
	ProductID uint `json:"productID" binding:"required"`
	Quantity  uint `json:"quantity" binding:"required,min=1"`
}

func (h *Handler) AddToCartHandler(c *gin.Context) {
	var req cartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "綁定請求資料錯誤", err)
		return
	}

	owner, _ := cartOwner(c, true)
	line, err := h.carts.Add(c.Request.Context(), owner, req.ProductID, req.Quantity)
	if err != nil {
		h.respondError(c, "新增物品至購物車失敗", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "成功新增物品至購物車",
		"item":    line,
	})
}

// 更新購物車商品數量，超過庫存時以庫存為上限
func (h *Handler) UpdateCartItemQuantityHandler(c *gin.Context) {
	var req cartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "綁定請求資料錯誤", err)
		return
	}

	owner, ok := cartOwner(c, false)
	if !ok {
		notFound(c, "查無此購物車")
		return
	}
	line, err := h.carts.Update(c.Request.Context(), owner, req.ProductID, req.Quantity)
	if err != nil {
		h.respondError(c, "更新購物車商品數量失敗", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "成功更新購物車商品數量",
		"item":    line,
	})
}

// 以前端的購物車內容取代伺服器端購物車
func (h *Handler) SyncCartHandler(c *gin.Context) {
	var req struct {
		Items []cart.SyncLine `json:"items" binding:"dive"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "綁定請求資料錯誤", err)
		return
	}

	owner, _ := cartOwner(c, true)
	view, adjustments, err := h.carts.Sync(c.Request.Context(), owner, req.Items)
	if err != nil {
		h.respondError(c, "同步購物車失敗", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "成功同步購物車",
		"cart":        view,
		"adjustments": adjustments,
	})
}

func (h *Handler) DeleteCartItemHandler(c *gin.Context) {
	productID, ok := paramID(c, "productID")
	if !ok {
		return
	}

	owner, ok := cartOwner(c, false)
	if !ok {
		notFound(c, "查無此購物車")
		return
	}
	if err := h.carts.Remove(c.Request.Context(), owner, productID); err != nil {
		h.respondError(c, "刪除購物車商品失敗", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "成功刪除購物車商品",
	})
}

// 查詢購物車商品，回傳前會依目前庫存校正數量
func (h *Handler) GetCartHandler(c *gin.Context) {
	owner, ok := cartOwner(c, false)
	if !ok {
		c.JSON(http.StatusOK, gin.H{
			"message": "成功查詢購物車",
			"cart":    cart.View{Items: []cart.Line{}},
		})
		return
	}

	view, err := h.carts.Get(c.Request.Context(), owner)
	if err != nil {
		h.respondError(c, "查詢購物車失敗", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "成功查詢購物車",
		"cart":    view,
	})
}

func (h *Handler) ClearCartHandler(c *gin.Context) {
	owner, ok := cartOwner(c, false)
	if ok {
		err := h.carts.Clear(c.Request.Context(), owner)
		if err != nil && !errors.Is(err, cart.ErrCartNotFound) {
			h.respondError(c, "清除購物車失敗", err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "成功清除購物車",
	})
}

// 合併匿名和使用者購物車(登入或註冊後呼叫)
func (h *Handler) MergeCartHandler(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)
	anonymousCartID := getAnonymousCartID(c)
	if anonymousCartID == "" {
		c.JSON(http.StatusOK, gin.H{
			"message":     "沒有需要合併的購物車",
			"mergedItems": 0,
		})
		return
	}

	merged, err := h.carts.Merge(c.Request.Context(), anonymousCartID, userID)
	if err != nil {
		h.respondError(c, "合併購物車失敗", err)
		return
	}
	setAnonymousCartID(c, "", -1)

	c.JSON(http.StatusOK, gin.H{
		"message":     "成功合併購物車",
		"mergedItems": merged,
	})
}
