package handlers

import (
	"net/http"

	"storefront/orders"

	"github.com/gin-gonic/gin"
)

// 查詢所有訂單，可用status篩選
func (h *Handler) GetAdminOrderListHandler(c *gin.Context) {
	limit, offset, ok := pagination(c)
	if !ok {
		return
	}
	status := c.Query("status")
	if status != "" && !orders.ValidStatus(status) {
		badRequest(c, "訂單狀態輸入錯誤", orders.ErrInvalidStatus)
		return
	}

	orderList, total, err := h.orders.AdminList(c.Request.Context(), status, limit, offset)
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

func (h *Handler) GetAdminOrderHandler(c *gin.Context) {
	orderID, ok := paramID(c, "orderID")
	if !ok {
		return
	}

	order, err := h.orders.AdminGet(c.Request.Context(), orderID)
	if err != nil {
		h.respondError(c, "查詢訂單失敗", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "成功查詢訂單",
		"order":        order,
		"nextStatuses": orders.NextStatuses(order.Status),
	})
}

// 變更訂單狀態，取消時回補庫存
func (h *Handler) UpdateOrderStatusHandler(c *gin.Context) {
	orderID, ok := paramID(c, "orderID")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "綁定請求資料錯誤", err)
		return
	}

	order, err := h.orders.Transition(c.Request.Context(), orderID, req.Status)
	if err != nil {
		h.respondError(c, "變更訂單狀態失敗", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "成功變更訂單狀態",
		"order":   order,
	})
}
