// Package cart 處理會員與匿名購物車、庫存數量校正及登入後合併
package cart

import (
	"context"
	"errors"
	"fmt"

	"storefront/metrics"
	"storefront/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

var (
	ErrProductNotFound = errors.New("查無此商品")
	ErrOutOfStock      = errors.New("商品庫存不足")
	ErrInvalidQuantity = errors.New("商品數量不得小於1")
	ErrCartNotFound    = errors.New("查無此購物車")
	ErrItemNotFound    = errors.New("購物車沒有此商品")
	ErrNoOwner         = errors.New("無法識別購物車擁有者")
)

// 校正原因
const (
	ReasonNotFound    = "not_found"
	ReasonUnavailable = "unavailable"
	ReasonOutOfStock  = "out_of_stock"
	ReasonClamped     = "clamped"
)

// Owner 為登入會員或以Cookie識別的匿名訪客
type Owner struct {
	UserID      uint
	AnonymousID string
}

func (o Owner) IsAnonymous() bool {
	return o.UserID == 0
}

func (o Owner) valid() bool {
	return o.UserID != 0 || o.AnonymousID != ""
}

type Line struct {
	ProductID uint   `json:"productID"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	Price     uint   `json:"price"`
	ImageURL  string `json:"imageURL"`
	Stock     uint   `json:"stock"`
	Quantity  uint   `json:"quantity"`
	LineTotal uint   `json:"lineTotal"`
	Adjusted  bool   `json:"adjusted"`
}

type View struct {
	Items         []Line `json:"items"`
	Subtotal      uint   `json:"subtotal"`
	TotalQuantity uint   `json:"totalQuantity"`
}

// Adjustment 告知前端哪些數量被伺服器修正，以便回復樂觀更新
type Adjustment struct {
	ProductID uint   `json:"productID"`
	Requested uint   `json:"requested"`
	Quantity  uint   `json:"quantity"`
	Reason    string `json:"reason"`
}

type SyncLine struct {
	ProductID uint `json:"productID" binding:"required"`
	Quantity  uint `json:"quantity"`
}

type Service struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewService(db *gorm.DB, log zerolog.Logger) *Service {
	return &Service{
		db:  db,
		log: log.With().Str("component", "cart").Logger(),
	}
}

func ownerScope(owner Owner) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if owner.IsAnonymous() {
			return db.Where("anonymous_cart_uuid = ?", owner.AnonymousID)
		}
		return db.Where("user_id = ?", owner.UserID)
	}
}

func findCart(tx *gorm.DB, owner Owner) (*models.Cart, error) {
	var cart models.Cart
	err := tx.Scopes(ownerScope(owner)).Order("id").First(&cart).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCartNotFound
		}
		return nil, err
	}
	return &cart, nil
}

func findOrCreateCart(tx *gorm.DB, owner Owner) (*models.Cart, error) {
	cart, err := findCart(tx, owner)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, ErrCartNotFound) {
		return nil, err
	}

	cart = &models.Cart{UserID: owner.UserID}
	if owner.IsAnonymous() {
		anonymousID := owner.AnonymousID
		cart.AnonymousCartUUID = &anonymousID
	}
	if err := tx.Create(cart).Error; err != nil {
		return nil, fmt.Errorf("新增購物車失敗: %w", err)
	}
	return cart, nil
}

// 查詢可販售的商品
func availableProduct(tx *gorm.DB, productID uint) (*models.Product, error) {
	var product models.Product
	err := tx.First(&product, productID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	if !product.Active {
		return nil, ErrProductNotFound
	}
	return &product, nil
}

func clamp(quantity, stock uint) (uint, bool) {
	if quantity > stock {
		return stock, true
	}
	return quantity, false
}

func newLine(product *models.Product, quantity uint, adjusted bool) Line {
	return Line{
		ProductID: product.ID,
		Name:      product.Name,
		Slug:      product.Slug,
		Price:     product.Price,
		ImageURL:  product.ImageURL,
		Stock:     product.Stock,
		Quantity:  quantity,
		LineTotal: product.Price * quantity,
		Adjusted:  adjusted,
	}
}

// Add 新增商品至購物車，已有相同商品時增加數量，數量不超過庫存
func (s *Service) Add(ctx context.Context, owner Owner, productID, quantity uint) (Line, error) {
	if !owner.valid() {
		return Line{}, ErrNoOwner
	}
	if quantity < 1 {
		return Line{}, ErrInvalidQuantity
	}

	var line Line
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		product, err := availableProduct(tx, productID)
		if err != nil {
			return err
		}
		if product.Stock == 0 {
			return ErrOutOfStock
		}

		cart, err := findOrCreateCart(tx, owner)
		if err != nil {
			return err
		}

		var item models.CartItem
		err = tx.Where("cart_id = ? AND product_id = ?", cart.ID, productID).First(&item).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		//購物車有相同物品則增加數量
		requested := item.Quantity + quantity
		newQuantity, adjusted := clamp(requested, product.Stock)
		if item.ID == 0 {
			item = models.CartItem{CartID: cart.ID, ProductID: productID, Quantity: newQuantity}
			err = tx.Create(&item).Error
		} else {
			err = tx.Model(&item).Update("quantity", newQuantity).Error
		}
		if err != nil {
			return err
		}

		line = newLine(product, newQuantity, adjusted)
		return nil
	})
	return line, err
}

// Update 設定購物車商品數量，超過庫存時改為庫存數量
func (s *Service) Update(ctx context.Context, owner Owner, productID, quantity uint) (Line, error) {
	if !owner.valid() {
		return Line{}, ErrCartNotFound
	}
	if quantity < 1 {
		return Line{}, ErrInvalidQuantity
	}

	var line Line
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := findCart(tx, owner)
		if err != nil {
			return err
		}

		var item models.CartItem
		err = tx.Where("cart_id = ? AND product_id = ?", cart.ID, productID).First(&item).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrItemNotFound
			}
			return err
		}

		product, err := availableProduct(tx, productID)
		if err != nil {
			return err
		}
		if product.Stock == 0 {
			return ErrOutOfStock
		}

		newQuantity, adjusted := clamp(quantity, product.Stock)
		if err := tx.Model(&item).Update("quantity", newQuantity).Error; err != nil {
			return err
		}
		line = newLine(product, newQuantity, adjusted)
		return nil
	})
	return line, err
}

func (s *Service) Remove(ctx context.Context, owner Owner, productID uint) error {
	if !owner.valid() {
		return ErrCartNotFound
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := findCart(tx, owner)
		if err != nil {
			return err
		}
		result := tx.Unscoped().
			Where("cart_id = ? AND product_id = ?", cart.ID, productID).
			Delete(&models.CartItem{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrItemNotFound
		}
		return nil
	})
}

func (s *Service) Clear(ctx context.Context, owner Owner) error {
	if !owner.valid() {
		return ErrCartNotFound
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := findCart(tx, owner)
		if err != nil {
			return err
		}
		return tx.Unscoped().Where("cart_id = ?", cart.ID).Delete(&models.CartItem{}).Error
	})
}

// RemoveProducts 下單後從會員購物車移除對應商品
func (s *Service) RemoveProducts(ctx context.Context, userID uint, productIDs []uint) error {
	if len(productIDs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := findCart(tx, Owner{UserID: userID})
		if err != nil {
			if errors.Is(err, ErrCartNotFound) {
				return nil
			}
			return err
		}
		return tx.Unscoped().
			Where("cart_id = ? AND product_id IN ?", cart.ID, productIDs).
			Delete(&models.CartItem{}).Error
	})
}

// Get 查詢購物車，並依目前庫存校正數量、移除已下架商品
func (s *Service) Get(ctx context.Context, owner Owner) (View, error) {
	view := View{Items: []Line{}}
	if !owner.valid() {
		return view, nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := findCart(tx, owner)
		if err != nil {
			if errors.Is(err, ErrCartNotFound) {
				return nil
			}
			return err
		}

		var items []models.CartItem
		err = tx.Where("cart_id = ?", cart.ID).Preload("Product").Order("id").Find(&items).Error
		if err != nil {
			return err
		}

		for _, item := range items {
			product := item.Product
			if product.ID == 0 || !product.Active || product.Stock == 0 {
				if err := tx.Unscoped().Delete(&item).Error; err != nil {
					return err
				}
				continue
			}
			quantity, adjusted := clamp(item.Quantity, product.Stock)
			if adjusted {
				if err := tx.Model(&item).Update("quantity", quantity).Error; err != nil {
					return err
				}
			}
			view.add(newLine(&product, quantity, adjusted))
		}
		return nil
	})
	return view, err
}

func (v *View) add(line Line) {
	v.Items = append(v.Items, line)
	v.Subtotal += line.LineTotal
	v.TotalQuantity += line.Quantity
}

// Sync 以前端送來的完整購物車取代伺服器購物車，回傳校正後的結果
func (s *Service) Sync(ctx context.Context, owner Owner, lines []SyncLine) (View, []Adjustment, error) {
	view := View{Items: []Line{}}
	adjustments := []Adjustment{}
	if !owner.valid() {
		return view, adjustments, ErrNoOwner
	}

	//合併重複商品並保留第一次出現的順序
	var order []uint
	requested := map[uint]uint{}
	for _, line := range lines {
		if _, seen := requested[line.ProductID]; !seen {
			order = append(order, line.ProductID)
		}
		requested[line.ProductID] += line.Quantity
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := findOrCreateCart(tx, owner)
		if err != nil {
			return err
		}

		var products []models.Product
		if len(order) > 0 {
			if err := tx.Where("id IN ?", order).Find(&products).Error; err != nil {
				return err
			}
		}
		byID := make(map[uint]*models.Product, len(products))
		for i := range products {
			byID[products[i].ID] = &products[i]
		}

		if err := tx.Unscoped().Where("cart_id = ?", cart.ID).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}

		for _, productID := range order {
			want := requested[productID]
			if want == 0 {
				continue
			}
			product, ok := byID[productID]
			switch {
			case !ok:
				adjustments = append(adjustments, Adjustment{ProductID: productID, Requested: want, Reason: ReasonNotFound})
				continue
			case !product.Active:
				adjustments = append(adjustments, Adjustment{ProductID: productID, Requested: want, Reason: ReasonUnavailable})
				continue
			case product.Stock == 0:
				adjustments = append(adjustments, Adjustment{ProductID: productID, Requested: want, Reason: ReasonOutOfStock})
				continue
			}

			quantity, adjusted := clamp(want, product.Stock)
			if adjusted {
				adjustments = append(adjustments, Adjustment{ProductID: productID, Requested: want, Quantity: quantity, Reason: ReasonClamped})
			}
			item := models.CartItem{CartID: cart.ID, ProductID: productID, Quantity: quantity}
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
			view.add(newLine(product, quantity, adjusted))
		}
		return nil
	})
	if err != nil {
		return View{Items: []Line{}}, nil, err
	}
	return view, adjustments, nil
}

// Merge 合併匿名購物車至會員購物車並刪除匿名購物車，回傳合併的商品項目數
func (s *Service) Merge(ctx context.Context, anonymousID string, userID uint) (int, error) {
	if anonymousID == "" || userID == 0 {
		return 0, nil
	}

	merged := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		anonymousCart, err := findCart(tx, Owner{AnonymousID: anonymousID})
		if err != nil {
			if errors.Is(err, ErrCartNotFound) {
				return nil
			}
			return err
		}

		var anonymousItems []models.CartItem
		err = tx.Where("cart_id = ?", anonymousCart.ID).Preload("Product").Find(&anonymousItems).Error
		if err != nil {
			return err
		}

		cart, err := findOrCreateCart(tx, Owner{UserID: userID})
		if err != nil {
			return err
		}

		var userItems []models.CartItem
		if err := tx.Where("cart_id = ?", cart.ID).Find(&userItems).Error; err != nil {
			return err
		}
		existing := make(map[uint]*models.CartItem, len(userItems))
		for i := range userItems {
			existing[userItems[i].ProductID] = &userItems[i]
		}

		//檢查重複商品並合併購物車商品
		for _, anonItem := range anonymousItems {
			product := anonItem.Product
			if product.ID == 0 || !product.Active || product.Stock == 0 {
				continue
			}
			if item, ok := existing[anonItem.ProductID]; ok {
				quantity, _ := clamp(item.Quantity+anonItem.Quantity, product.Stock)
				if err := tx.Model(item).Update("quantity", quantity).Error; err != nil {
					return fmt.Errorf("更新購物車商品數量失敗: %w", err)
				}
			} else {
				quantity, _ := clamp(anonItem.Quantity, product.Stock)
				item := models.CartItem{CartID: cart.ID, ProductID: anonItem.ProductID, Quantity: quantity}
				if err := tx.Create(&item).Error; err != nil {
					return fmt.Errorf("合併購物車商品失敗: %w", err)
				}
			}
			merged++
		}

		if err := tx.Unscoped().Where("cart_id = ?", anonymousCart.ID).Delete(&models.CartItem{}).Error; err != nil {
			return fmt.Errorf("清空匿名購物車失敗: %w", err)
		}
		if err := tx.Unscoped().Delete(anonymousCart).Error; err != nil {
			return fmt.Errorf("刪除匿名購物車失敗: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if merged > 0 {
		metrics.RecordCartMerge()
		s.log.Info().Uint("userID", userID).Int("items", merged).Msg("成功合併匿名購物車")
	}
	return merged, nil
}
