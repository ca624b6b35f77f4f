package handlers

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode"

	"storefront/middleware"
	"storefront/models"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+$`)
)

// 檢查使用者名稱是否合法
func ValidateUsername(username string) bool {
	if len(username) < 8 || len(username) > 20 {
		return false
	}
	return usernamePattern.MatchString(username)
}

// 檢查信箱是否合法
func ValidateEmail(email string) bool {
	return len(email) <= 191 && emailPattern.MatchString(email)
}

// 檢查密碼是否合法
func ValidatePassword(password string) bool {
	if len(password) < 8 || len(password) > 50 {
		return false
	}

	var (
		isUpper   = false
		isLower   = false
		isNumber  = false
		isSpecial = false
		isSpace   = false
	)

	for _, s := range password {
		switch {
		case unicode.IsSpace(s):
			isSpace = true
		case unicode.IsUpper(s):
			isUpper = true
		case unicode.IsLower(s):
			isLower = true
		case unicode.IsDigit(s):
			isNumber = true
		case unicode.IsPunct(s) || unicode.IsSymbol(s):
			isSpecial = true
		default:
		}
	}

	return isUpper && isLower && isNumber && isSpecial && !isSpace
}

// 檢查欄位值是否已被其他使用者使用
func isUserFieldTaken(db *gorm.DB, column, value string, exceptUserID uint) (bool, error) {
	var count int64
	err := db.Model(&models.User{}).
		Where(column+" = ? AND id <> ?", value, exceptUserID).
		Count(&count).Error
	return count > 0, err
}

type profile struct {
	ID        uint      `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

func profileOf(user *models.User) profile {
	return profile{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Name:      user.Name,
		Phone:     user.Phone,
		Address:   user.Address,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
	}
}

// 註冊使用者帳戶
func (h *Handler) RegisterHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
		Name     string `json:"name"`
		Phone    string `json:"phone"`
		Address  string `json:"address"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "綁定請求資料錯誤", err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)

	//檢查使用者名稱是否合法
	if !ValidateUsername(req.Username) {
		badRequest(c, "註冊失敗:不合法的使用者名稱", nil)
		return
	}
	//檢查信箱是否合法
	if !ValidateEmail(req.Email) {
		badRequest(c, "註冊失敗:不合法的信箱", nil)
		return
	}
	//檢查密碼是否合法
	if !ValidatePassword(req.Password) {
		badRequest(c, "註冊失敗:不合法的密碼", nil)
		return
	}

	db := h.db.WithContext(c.Request.Context())

	//檢查使用者名稱是否重複
	taken, err := isUserFieldTaken(db, "username", req.Username, 0)
	if err != nil {
		h.internalError(c, "註冊失敗:檢查使用者名稱失敗", err)
		return
	}
	if taken {
		c.JSON(http.StatusConflict, gin.H{
			"message": "註冊失敗:使用者名稱已被使用",
		})
		return
	}

	//檢查Email是否重複
	taken, err = isUserFieldTaken(db, "email", req.Email, 0)
	if err != nil {
		h.internalError(c, "註冊失敗:檢查信箱失敗", err)
		return
	}
	if taken {
		c.JSON(http.StatusConflict, gin.H{
			"message": "註冊失敗:信箱已被使用",
		})
		return
	}

	//將密碼Hash
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.passwordCost)
	if err != nil {
		h.internalError(c, "無法生成Hashed密碼", err)
		return
	}

	newUser := models.User{
		Username: req.Username,
		Email:    req.Email,
		Password: string(hashedPassword),
		Name:     req.Name,
		Phone:    req.Phone,
		Address:  req.Address,
		Role:     models.RoleUser,
	}
	if err := db.Create(&newUser).Error; err != nil {
		h.internalError(c, "無法儲存使用者資料至資料庫", err)
		return
	}

	merged := h.mergeAnonymousCart(c, newUser.ID)

	//成功註冊
	c.JSON(http.StatusCreated, gin.H{
		"message":     "使用者已成功註冊",
		"username":    newUser.Username,
		"mergedItems": merged,
	})
}

func (h *Handler) LoginHandler(c *gin.Context) {
	//檢查是否已經登入
	if _, ok := middleware.CurrentUserID(c); ok {
		c.JSON(http.StatusOK, gin.H{
			"message": "已經登入",
		})
		return
	}

	//從請求擷取帳號和密碼
	var loginReq struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&loginReq); err != nil {
		badRequest(c, "綁定請求資料錯誤", err)
		return
	}

	db := h.db.WithContext(c.Request.Context())

	//帳號不存在與密碼錯誤回傳相同訊息
	var user models.User
	err := db.First(&user, "username = ?", loginReq.Username).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		h.internalError(c, "資料庫錯誤", err)
		return
	}
	if err != nil || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(loginReq.Password)) != nil {
		h.logger(c).Info().Str("username", loginReq.Username).Str("client_ip", c.ClientIP()).Msg("登入失敗")
		c.JSON(http.StatusUnauthorized, gin.H{
			"message": "帳號或密碼錯誤",
		})
		return
	}

	//生成JWT Token
	token, expiresAt, err := h.tokens.GenerateToken(user.ID, user.Role)
	if err != nil {
		h.internalError(c, "生成JWT Token錯誤", err)
		return
	}

	//儲存LoginToken
	loginToken := models.LoginToken{
		Token:          token,
		ExpirationTime: expiresAt,
		UserID:         user.ID,
		Role:           user.Role,
	}
	if err := db.Create(&loginToken).Error; err != nil {
		h.internalError(c, "儲存Login Token失敗", err)
		return
	}

	merged := h.mergeAnonymousCart(c, user.ID)

	//成功登入 回傳Token和成功訊息
	c.Header("Authorization", "Bearer "+token)
	c.JSON(http.StatusOK, gin.H{
		"message":     "成功登入",
		"token":       token,
		"expiresAt":   expiresAt,
		"user":        profileOf(&user),
		"mergedItems": merged,
	})
}

func (h *Handler) LogOutHandler(c *gin.Context) {
	token := middleware.CurrentToken(c)
	if token == "" {
		badRequest(c, "無法取得Token", nil)
		return
	}

	//刪除此LoginToken
	result := h.db.WithContext(c.Request.Context()).
		Unscoped().
		Where("token = ?", token).
		Delete(&models.LoginToken{})
	if result.Error != nil {
		h.internalError(c, "資料庫錯誤", result.Error)
		return
	}
	if result.RowsAffected == 0 {
		badRequest(c, "找不到此token或已登出", nil)
		return
	}

	c.Header("Authorization", "")
	c.JSON(http.StatusOK, gin.H{
		"message": "成功登出",
	})
}

// 查詢使用者資料
func (h *Handler) GetUserProfileHandler(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)

	var user models.User
	err := h.db.WithContext(c.Request.Context()).First(&user, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			notFound(c, "查無此使用者")
			return
		}
		h.internalError(c, "無法查詢使用者資料", err)
		return
	}

	//成功查詢使用者資料
	c.JSON(http.StatusOK, gin.H{
		"message": "成功查詢使用者資料",
		"user":    profileOf(&user),
	})
}

// 變更使用者資料，需提供舊密碼
func (h *Handler) UpdateUserProfileHandler(c *gin.Context) {
	userID, _ := middleware.CurrentUserID(c)
	db := h.db.WithContext(c.Request.Context())

	var newUserData struct {
		Email       string  `json:"email"`
		OldPassword string  `json:"oldPassword" binding:"required"`
		NewPassword string  `json:"newPassword"`
		Name        *string `json:"name"`
		Phone       *string `json:"phone"`
		Address     *string `json:"address"`
	}
	if err := c.ShouldBindJSON(&newUserData); err != nil {
		badRequest(c, "綁定請求資料錯誤", err)
		return
	}

	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		h.internalError(c, "發生錯誤:無法取得使用者資料", err)
		return
	}

	err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(newUserData.OldPassword))
	if err != nil {
		badRequest(c, "舊密碼錯誤", nil)
		return
	}

	updates := map[string]interface{}{}
	if newUserData.NewPassword != "" {
		if !ValidatePassword(newUserData.NewPassword) {
			badRequest(c, "不合法的新密碼", nil)
			return
		}
		//將密碼Hash
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newUserData.NewPassword), h.passwordCost)
		if err != nil {
			h.internalError(c, "無法生成Hashed密碼", err)
			return
		}
		updates["password"] = string(hashedPassword)
	}

	if email := strings.TrimSpace(newUserData.Email); email != "" && email != user.Email {
		if !ValidateEmail(email) {
			badRequest(c, "不合法的Email", nil)
			return
		}
		taken, err := isUserFieldTaken(db, "email", email, user.ID)
		if err != nil {
			h.internalError(c, "檢查信箱失敗", err)
			return
		}
		if taken {
			c.JSON(http.StatusConflict, gin.H{
				"message": "信箱已被使用",
			})
			return
		}
		updates["email"] = email
	}

	//如果使用者有提供資料則覆蓋(包含空字串)
	if newUserData.Name != nil {
		updates["name"] = *newUserData.Name
	}
	if newUserData.Phone != nil {
		updates["phone"] = *newUserData.Phone
	}
	if newUserData.Address != nil {
		updates["address"] = *newUserData.Address
	}

	if len(updates) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"message": "沒有變更資料",
		})
		return
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&user).Updates(updates).Error; err != nil {
			return err
		}
		//變更密碼後，其他裝置的登入全部失效
		if _, changed := updates["password"]; changed {
			return tx.Unscoped().
				Where("user_id = ? AND token <> ?", user.ID, middleware.CurrentToken(c)).
				Delete(&models.LoginToken{}).Error
		}
		return nil
	})
	if err != nil {
		h.internalError(c, "無法修改使用者資料", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "成功修改使用者資料",
		"user":    profileOf(&user),
	})
}
