package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront/middleware"
	"storefront/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var (
	errInvalidCardNumber = errors.New("卡號格式錯誤")
	errCardExpired       = errors.New("信用卡已過期")
	errInvalidPayKind    = errors.New("付款方式必須為card、transfer或cod")
)

// luhnValid 驗證信用卡號檢查碼
func luhnValid(number string) bool {
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func prefixBetween(number string, digits int, low, high int) bool {
	if len(number) < digits {
		return false
	}
	n, err := strconv.Atoi(number[:digits])
	if err != nil {
		return false
	}
	return n >= low && n <= high
}

// cardBrand 依卡號前綴判斷卡別
func cardBrand(number string) string {
	switch {
	case strings.HasPrefix(number, "4"):
		return "visa"
	case prefixBetween(number, 2, 51, 55), prefixBetween(number, 4, 2221, 2720):
		return "mastercard"
	case strings.HasPrefix(number, "34"), strings.HasPrefix(number, "37"):
		return "amex"
	case prefixBetween(number, 4, 3528, 3589):
		return "jcb"
	}
	return "unknown"
}

// normalizeCardNumber 去除空白及連字號並檢查長度與檢查碼
func normalizeCardNumber(raw string) (string, error) {
	number := strings.NewReplacer(" ", "", "-", "").Replace(raw)
	if len(number) < 12 || len(number) > 19 {
		return "", errInvalidCardNumber
	}
	for _, r := range number {
		if r < '0' || r > '9' {
			return "", errInvalidCardNumber
		}
	}
	if !luhnValid(number) {
		return "", errInvalidCardNumber
	}
	return number, nil
}

// 到期月份當月仍可使用
func cardExpired(month, year uint, now time.Time) bool {
	if year < 100 {
		year += 2000
	}
	if int(year) != now.Year() {
		return int(year) < now.Year()
	}
	return int(month) < int(now.Month())
}

func (h *Handler) GetPaymentMethodListHandler(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	var methods []models.PaymentMethod
	err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("is_default DESC, id").
		Find(&methods).Error
	if err != nil {
		h.internalError(c, "無法查詢付款方式", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        "成功查詢付款方式",
		"paymentMethods": methods,
	})
}

func (h *Handler) CreatePaymentMethodHandler(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	var req struct {
		Kind       string `json:"kind" binding:"required"`
		CardNumber string `json:"cardNumber"`
		ExpMonth   uint   `json:"expMonth"`
		ExpYear    uint   `json:"expYear"`
		Holder     string `json:"holder"`
		IsDefault  bool   `json:"isDefault"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "綁定請求資料錯誤", err)
		return
	}

	method := models.PaymentMethod{
		UserID:    userID,
		Kind:      req.Kind,
		IsDefault: req.IsDefault,
	}
	switch req.Kind {
	case models.PaymentKindCard:
		number, err := normalizeCardNumber(req.CardNumber)
		if err != nil {
			badRequest(c, "信用卡資料錯誤", err)
			return
		}
		if req.ExpMonth < 1 || req.ExpMonth > 12 || cardExpired(req.ExpMonth, req.ExpYear, time.Now()) {
			badRequest(c, "信用卡資料錯誤", errCardExpired)
			return
		}
		method.Brand = cardBrand(number)
		method.Last4 = number[len(number)-4:]
		method.ExpMonth = req.ExpMonth
		method.ExpYear = req.ExpYear
		if method.ExpYear < 100 {
			method.ExpYear += 2000
		}
		method.Holder = strings.TrimSpace(req.Holder)
	case models.PaymentKindTransfer, models.PaymentKindCOD:
	default:
		badRequest(c, "付款方式錯誤", errInvalidPayKind)
		return
	}

	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.PaymentMethod{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			method.IsDefault = true
		}
		return savePaymentMethod(tx, &method)
	})
	if err != nil {
		h.internalError(c, "無法新增付款方式", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":       "成功新增付款方式",
		"paymentMethod": method,
	})
}

func savePaymentMethod(tx *gorm.DB, method *models.PaymentMethod) error {
	if method.IsDefault {
		err := tx.Model(&models.PaymentMethod{}).
			Where("user_id = ? AND id <> ?", method.UserID, method.ID).
			Update("is_default", false).Error
		if err != nil {
			return err
		}
	}
	return tx.Save(method).Error
}

func (h *Handler) findOwnPaymentMethod(c *gin.Context, db *gorm.DB) (*models.PaymentMethod, bool) {
	userID, _ := middleware.CurrentUserID(c)
	methodID, ok := paramID(c, "paymentMethodID")
	if !ok {
		return nil, false
	}

	var method models.PaymentMethod
	err := db.Where("id = ? AND user_id = ?", methodID, userID).First(&method).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			notFound(c, "查無此付款方式")
			return nil, false
		}
		h.internalError(c, "查詢付款方式失敗", err)
		return nil, false
	}
	return &method, true
}

func (h *Handler) SetDefaultPaymentMethodHandler(c *gin.Context) {
	db := h.db.WithContext(c.Request.Context())
	method, ok := h.findOwnPaymentMethod(c, db)
	if !ok {
		return
	}

	method.IsDefault = true
	err := db.Transaction(func(tx *gorm.DB) error {
		return savePaymentMethod(tx, method)
	})
	if err != nil {
		h.internalError(c, "無法設定預設付款方式", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "成功設定預設付款方式",
		"paymentMethod": method,
	})
}

func (h *Handler) DeletePaymentMethodHandler(c *gin.Context) {
	db := h.db.WithContext(c.Request.Context())
	method, ok := h.findOwnPaymentMethod(c, db)
	if !ok {
		return
	}

	if err := db.Delete(method).Error; err != nil {
		h.internalError(c, "無法刪除付款方式", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "成功刪除付款方式",
	})
}
