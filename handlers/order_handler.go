package handlers

import (
	"net/http"

	"storefront/middleware"
	"storefront/orders"

	"github.com/gin-gonic/gin"
)

const idempotencyHeader = "Idempotency-Key"

// 送出訂單並清除購物車內對應商品，未指定商品時以整個購物車結帳
func (h *Handler) SendOrderHandler(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	var orderReq struct {
		Name            string        `json:"name"`
		Phone           string        `json:"phone"`
		Address         string        `json:"address"`
		AddressID       uint          `json:"addressID"`
		ShippingMethod  string        `json:"shippingMethod" binding:"required"`
		PaymentMethodID uint          `json:"paymentMethodID"`
		PaymentKind     string        `json:"paymentKind"`
		Items           []orders.Item `json:"items" binding:"dive"`
	}
	if err := c.ShouldBindJSON(&orderReq); err != nil {
		badRequest(c, "取得訂單資料錯誤", err)
		return
	}

	order, created, err := h.orders.Checkout(c.Request.Context(), userID, orders.CheckoutRequest{
		Name:            orderReq.Name,
		Phone:           orderReq.Phone,
		Address:         orderReq.Address,
		AddressID:       orderReq.AddressID,
		ShippingMethod:  orderReq.ShippingMethod,
		PaymentMethodID: orderReq.PaymentMethodID,
		PaymentKind:     orderReq.PaymentKind,
		Items:           orderReq.Items,
		IdempotencyKey:  c.GetHeader(idempotencyHeader),
	})
	if err != nil {
		h.respondError(c, "提交訂單失敗", err)
		return
	}

	//相同Idempotency-Key重送時回傳原訂單
	if !created {
		c.JSON(http.StatusOK, gin.H{
			"message":  "訂單已送出",
			"order":    order,
			"replayed": true,
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "成功送出訂單",
		"order":   order,
	})
}

// 查詢訂單列表，新的在前
func (h *Handler) GetOrderListHandler(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)
	limit, offset, ok := pagination(c)
	if !ok {
		return
	}

	orderList, total, err := h.orders.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.internalError(c, "無法查詢訂單列表", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "成功查詢訂單列表",
		"orders":     orderList,
		"totalCount": total,
	})
}

// 查詢訂單詳細資訊
func (h *Handler) GetOrderDataHandler(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)
	orderID, ok := paramID(c, "orderID")
	if !ok {
		return
	}

	order, err := h.orders.Get(c.Request.Context(), userID, orderID)
	if err != nil {
		h.respondError(c, "查詢訂單失敗", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "成功查詢訂單",
		"order":   order,
	})
}

// 取消待處理的訂單並回補庫存
func (h *Handler) CancelOrderHandler(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)
	orderID, ok := paramID(c, "orderID")
	if !ok {
		return
	}

	order, err := h.orders.Cancel(c.Request.Context(), userID, orderID)
	if err != nil {
		h.respondError(c, "取消訂單失敗", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "成功取消訂單",
		"order":   order,
	})
}
