package handlers

import (
	"errors"
	"net/http"

	"storefront/cart"
	"storefront/catalog"
	"storefront/importer"
	"storefront/orders"

	"github.com/gin-gonic/gin"
)

var errorStatuses = []struct {
	err    error
	status int
}{
	{cart.ErrProductNotFound, http.StatusNotFound},
	{cart.ErrOutOfStock, http.StatusConflict},
	{cart.ErrInvalidQuantity, http.StatusBadRequest},
	{cart.ErrCartNotFound, http.StatusNotFound},
	{cart.ErrItemNotFound, http.StatusNotFound},
	{cart.ErrNoOwner, http.StatusBadRequest},

	{orders.ErrInsufficientStock, http.StatusConflict},
	{orders.ErrProductNotFound, http.StatusNotFound},
	{orders.ErrEmptyOrder, http.StatusBadRequest},
	{orders.ErrInvalidQuantity, http.StatusBadRequest},
	{orders.ErrAddressNotFound, http.StatusNotFound},
	{orders.ErrPaymentMethodNotFound, http.StatusNotFound},
	{orders.ErrInvalidPayment, http.StatusBadRequest},
	{orders.ErrInvalidShippingMethod, http.StatusBadRequest},
	{orders.ErrMissingContact, http.StatusBadRequest},
	{orders.ErrIdempotencyKeyTooLong, http.StatusBadRequest},
	{orders.ErrOrderNotFound, http.StatusNotFound},
	{orders.ErrInvalidTransition, http.StatusConflict},
	{orders.ErrInvalidStatus, http.StatusBadRequest},

	{catalog.ErrInvalidQuery, http.StatusBadRequest},
	{importer.ErrEmptyFile, http.StatusBadRequest},
	{importer.ErrMissingColumn, http.StatusBadRequest},
}

func statusOf(err error) int {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// respondError 將已知錯誤轉為對應狀態碼，其他錯誤記錄後回傳500
func (h *Handler) respondError(c *gin.Context, message string, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		h.internalError(c, message, err)
		return
	}

	body := gin.H{
		"message": message,
		"error":   err.Error(),
	}
	var itemErr *orders.ItemError
	if errors.As(err, &itemErr) {
		body["productID"] = itemErr.ProductID
		if errors.Is(err, orders.ErrInsufficientStock) {
			body["requested"] = itemErr.Requested
			body["available"] = itemErr.Available
		}
	}
	c.JSON(status, body)
}

func (h *Handler) internalError(c *gin.Context, message string, err error) {
	h.logger(c).Error().Err(err).Str("route", c.FullPath()).Msg(message)
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"message": message,
		"error":   "伺服器錯誤",
	})
}

func badRequest(c *gin.Context, message string, err error) {
	body := gin.H{"message": message}
	if err != nil {
		body["error"] = err.Error()
	}
	c.JSON(http.StatusBadRequest, body)
}

func notFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, gin.H{
		"message": message,
	})
}
