package handlers

import (
	"errors"
	"net/http"
	"strings"

	"storefront/middleware"
	"storefront/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// 查詢收件地址列表，預設地址在前
func (h *Handler) GetAddressListHandler(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	var addresses []models.Address
	err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("is_default DESC, id").
		Find(&addresses).Error
	if err != nil {
		h.internalError(c, "無法查詢收件地址", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "成功查詢收件地址",
		"addresses": addresses,
	})
}

type addressRequest struct {
	Recipient  *string `json:"recipient"`
	Phone      *string `json:"phone"`
	Line1      *string `json:"line1"`
	Line2      *string `json:"line2"`
	City       *string `json:"city"`
	PostalCode *string `json:"postalCode"`
	Country    *string `json:"country"`
	IsDefault  *bool   `json:"isDefault"`
}

// apply 只覆寫有提供的欄位
func (r *addressRequest) apply(address *models.Address) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&address.Recipient, r.Recipient)
	set(&address.Phone, r.Phone)
	set(&address.Line1, r.Line1)
	set(&address.Line2, r.Line2)
	set(&address.City, r.City)
	set(&address.PostalCode, r.PostalCode)
	set(&address.Country, r.Country)
	address.Country = strings.ToUpper(address.Country)
	if r.IsDefault != nil {
		address.IsDefault = *r.IsDefault
	}
}

func validateAddress(address *models.Address) error {
	switch {
	case address.Recipient == "":
		return errors.New("收件人不得為空")
	case address.Phone == "":
		return errors.New("電話不得為空")
	case address.Line1 == "":
		return errors.New("地址不得為空")
	case address.City == "":
		return errors.New("城市不得為空")
	case len(address.Country) != 2:
		return errors.New("國家代碼必須為2碼")
	}
	return nil
}

// 設為預設時取消同一使用者的其他預設地址
func saveAddress(tx *gorm.DB, address *models.Address) error {
	if address.IsDefault {
		err := tx.Model(&models.Address{}).
			Where("user_id = ? AND id <> ?", address.UserID, address.ID).
			Update("is_default", false).Error
		if err != nil {
			return err
		}
	}
	return tx.Save(address).Error
}

func (h *Handler) CreateAddressHandler(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	var req addressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "綁定請求資料錯誤", err)
		return
	}
	address := models.Address{UserID: userID}
	req.apply(&address)
	if err := validateAddress(&address); err != nil {
		badRequest(c, "收件地址資料錯誤", err)
		return
	}

	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		//第一筆地址自動設為預設
		var count int64
		if err := tx.Model(&models.Address{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			address.IsDefault = true
		}
		return saveAddress(tx, &address)
	})
	if err != nil {
		h.internalError(c, "無法新增收件地址", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "成功新增收件地址",
		"address": address,
	})
}

func (h *Handler) findOwnAddress(c *gin.Context, tx *gorm.DB) (*models.Address, bool) {
	userID, _ := middleware.CurrentUserID(c)
	addressID, ok := paramID(c, "addressID")
	if !ok {
		return nil, false
	}

	var address models.Address
	err := tx.Where("id = ? AND user_id = ?", addressID, userID).First(&address).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			notFound(c, "查無此收件地址")
			return nil, false
		}
		h.internalError(c, "查詢收件地址失敗", err)
		return nil, false
	}
	return &address, true
}

func (h *Handler) UpdateAddressHandler(c *gin.Context) {
	db := h.db.WithContext(c.Request.Context())
	address, ok := h.findOwnAddress(c, db)
	if !ok {
		return
	}

	var req addressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "綁定請求資料錯誤", err)
		return
	}
	req.apply(address)
	if err := validateAddress(address); err != nil {
		badRequest(c, "收件地址資料錯誤", err)
		return
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		return saveAddress(tx, address)
	})
	if err != nil {
		h.internalError(c, "無法修改收件地址", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "成功修改收件地址",
		"address": address,
	})
}

func (h *Handler) SetDefaultAddressHandler(c *gin.Context) {
	db := h.db.WithContext(c.Request.Context())
	address, ok := h.findOwnAddress(c, db)
	if !ok {
		return
	}

	address.IsDefault = true
	err := db.Transaction(func(tx *gorm.DB) error {
		return saveAddress(tx, address)
	})
	if err != nil {
		h.internalError(c, "無法設定預設收件地址", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "成功設定預設收件地址",
		"address": address,
	})
}

func (h *Handler) DeleteAddressHandler(c *gin.Context) {
	db := h.db.WithContext(c.Request.Context())
	address, ok := h.findOwnAddress(c, db)
	if !ok {
		return
	}

	if err := db.Delete(address).Error; err != nil {
		h.internalError(c, "無法刪除收件地址", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "成功刪除收件地址",
	})
}
