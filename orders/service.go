// Package orders 處理結帳、訂單查詢與訂單狀態流程
package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"storefront/config"
	"storefront/events"
	"storefront/metrics"
	"storefront/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

var (
	ErrEmptyOrder            = errors.New("訂單沒有商品")
	ErrInvalidQuantity       = errors.New("商品數量不得小於1")
	ErrProductNotFound       = errors.New("查無此商品")
	ErrInsufficientStock     = errors.New("商品庫存不足")
	ErrAddressNotFound       = errors.New("查無此收件地址")
	ErrPaymentMethodNotFound = errors.New("查無此付款方式")
	ErrInvalidPayment        = errors.New("不支援的付款方式")
	ErrInvalidShippingMethod = errors.New("不支援的運送方式")
	ErrMissingContact        = errors.New("缺少收件人資料")
	ErrOrderNotFound         = errors.New("查無此訂單")
	ErrInvalidTransition     = errors.New("訂單狀態無法變更")
	ErrInvalidStatus         = errors.New("不合法的訂單狀態")
	ErrIdempotencyKeyTooLong = errors.New("Idempotency-Key過長")
)

const (
	idempotencyTTL       = 24 * time.Hour
	maxIdempotencyKeyLen = 64
)

// ShippingPickup 門市自取一律免運
const ShippingPickup = "pickup"


// ItemError 指出哪一項商品造成結帳失敗
type ItemError struct {
	ProductID uint
	Requested uint
	Available uint
	Err       error
}

func (e *ItemError) Error() string {
	if errors.Is(e.Err, ErrInsufficientStock) {
		return fmt.Sprintf("商品%d庫存不足: 需要%d，剩餘%d", e.ProductID, e.Requested, e.Available)
	}
	return fmt.Sprintf("商品%d: %v", e.ProductID, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

type Item struct {
	ProductID uint `json:"productID" binding:"required"`
	Quantity  uint `json:"quantity" binding:"required"`
}

type CheckoutRequest struct {
	Name            string
	Phone           string
	Address         string
	AddressID       uint
	ShippingMethod  string
	PaymentMethodID uint
	PaymentKind     string
	Items           []Item
	IdempotencyKey  string
}

type ProductRefresher interface {
	Refresh(ctx context.Context, productIDs ...uint)
}

type CartPruner interface {
	RemoveProducts(ctx context.Context, userID uint, productIDs []uint) error
}

type Service struct {
	db       *gorm.DB
	rdb      *redis.Client
	products ProductRefresher
	carts    CartPruner
	events   events.Publisher
	shipping config.ShippingConfig
	log      zerolog.Logger
}

func NewService(db *gorm.DB, rdb *redis.Client, products ProductRefresher, carts CartPruner, publisher events.Publisher, shipping config.ShippingConfig, log zerolog.Logger) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		db:       db,
		rdb:      rdb,
		products: products,
		carts:    carts,
		events:   publisher,
		shipping: shipping,
		log:      log.With().Str("component", "orders").Logger(),
	}
}

func (s *Service) shippingFee(method string) (uint, error) {
	if method == ShippingPickup {
		return 0, nil
	}
	fee, ok := s.shipping.Fees[method]
	if !ok {
		return 0, ErrInvalidShippingMethod
	}
	return fee, nil
}

func idempotencyRedisKey(userID uint, key string) string {
	return fmt.Sprintf("idempotency:%d:%s", userID, key)
}

// Checkout 建立訂單並扣除庫存。回傳的bool為false代表以相同Idempotency-Key重送，回傳既有訂單
func (s *Service) Checkout(ctx context.Context, userID uint, req CheckoutRequest) (*models.Order, bool, error) {
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if len(req.IdempotencyKey) > maxIdempotencyKeyLen {
		return nil, false, ErrIdempotencyKeyTooLong
	}
	if req.IdempotencyKey != "" {
		if order, err := s.findByIdempotencyKey(ctx, userID, req.IdempotencyKey); err == nil {
			return order, false, nil
		} else if !errors.Is(err, ErrOrderNotFound) {
			return nil, false, err
		}
	}

	fee, err := s.shippingFee(req.ShippingMethod)
	if err != nil {
		return nil, false, err
	}

	var order *models.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items, err := s.resolveItems(tx, userID, req.Items)
		if err != nil {
			return err
		}

		order = &models.Order{
			UserID:         userID,
			ShippingMethod: req.ShippingMethod,
			Status:         models.OrderStatusPending,
		}
		if req.IdempotencyKey != "" {
			key := req.IdempotencyKey
			order.IdempotencyKey = &key
		}
		if err := s.resolveContact(tx, userID, req, order); err != nil {
			return err
		}
		if err := s.resolvePayment(tx, userID, req, order); err != nil {
			return err
		}

		for _, item := range items {
			orderItem, err := reserve(tx, item)
			if err != nil {
				return err
			}
			order.OrderItems = append(order.OrderItems, orderItem)
			order.Subtotal += orderItem.LineTotal()
		}

		if s.shipping.FreeThreshold > 0 && order.Subtotal >= s.shipping.FreeThreshold {
			fee = 0
		}
		order.ShippingFee = fee
		order.Total = order.Subtotal + fee

		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("提交訂單失敗: %w", err)
		}
		return nil
	})
	if err != nil {
		// 同時送出相同Idempotency-Key時，唯一索引會擋下第二筆
		if req.IdempotencyKey != "" {
			if existing, findErr := s.findByIdempotencyKey(ctx, userID, req.IdempotencyKey); findErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}

	s.afterCheckout(ctx, order, req.IdempotencyKey)
	return order, true, nil
}

// 訂單已送出，以下失敗只記錄不影響結果
func (s *Service) afterCheckout(ctx context.Context, order *models.Order, idempotencyKey string) {
	log := s.log.With().Uint("orderID", order.ID).Uint("userID", order.UserID).Logger()

	if idempotencyKey != "" && s.rdb != nil {
		err := s.rdb.Set(ctx, idempotencyRedisKey(order.UserID, idempotencyKey), order.ID, idempotencyTTL).Err()
		if err != nil {
			log.Warn().Err(err).Msg("無法儲存Idempotency-Key")
		}
	}

	productIDs := make([]uint, 0, len(order.OrderItems))
	for _, item := range order.OrderItems {
		productIDs = append(productIDs, item.ProductID)
	}
	if s.carts != nil {
		if err := s.carts.RemoveProducts(ctx, order.UserID, productIDs); err != nil {
			log.Warn().Err(err).Msg("訂單已送出，但清除購物車對應商品失敗")
		}
	}
	if s.products != nil {
		s.products.Refresh(ctx, productIDs...)
	}
	if err := s.events.Publish(ctx, events.OrderEvent(events.OrderCreated, order)); err != nil {
		log.Warn().Err(err).Msg("無法發佈訂單事件")
	}

	metrics.RecordOrder("created")
	metrics.RecordRevenue(order.Total)
	log.Info().Uint("total", order.Total).Int("items", len(order.OrderItems)).Msg("訂單已送出")
}

func (s *Service) findByIdempotencyKey(ctx context.Context, userID uint, key string) (*models.Order, error) {
	if s.rdb != nil {
		raw, err := s.rdb.Get(ctx, idempotencyRedisKey(userID, key)).Result()
		if err == nil {
			if id, convErr := strconv.ParseUint(raw, 10, 64); convErr == nil {
				if order, getErr := s.Get(ctx, userID, uint(id)); getErr == nil {
					return order, nil
				}
			}
		} else if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Msg("無法讀取Idempotency-Key，改查資料庫")
		}
	}

	var order models.Order
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		Preload("OrderItems").
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// 未指定商品時使用整個購物車，重複商品合併並依商品ID排序以固定鎖定順序
func (s *Service) resolveItems(tx *gorm.DB, userID uint, requested []Item) ([]Item, error) {
	if len(requested) == 0 {
		var cart models.Cart
		err := tx.Where("user_id = ?", userID).Order("id").First(&cart).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrEmptyOrder
			}
			return nil, err
		}
		var cartItems []models.CartItem
		if err := tx.Where("cart_id = ?", cart.ID).Find(&cartItems).Error; err != nil {
			return nil, err
		}
		for _, cartItem := range cartItems {
			requested = append(requested, Item{ProductID: cartItem.ProductID, Quantity: cartItem.Quantity})
		}
	}
	if len(requested) == 0 {
		return nil, ErrEmptyOrder
	}

	merged := map[uint]uint{}
	for _, item := range requested {
		if item.Quantity < 1 {
			return nil, &ItemError{ProductID: item.ProductID, Err: ErrInvalidQuantity}
		}
		merged[item.ProductID] += item.Quantity
	}
	items := make([]Item, 0, len(merged))
	for productID, quantity := range merged {
		items = append(items, Item{ProductID: productID, Quantity: quantity})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
	return items, nil
}

// reserve 以條件式更新扣除庫存，並保存下單當下的商品名稱與價格
func reserve(tx *gorm.DB, item Item) (models.OrderItem, error) {
	var product models.Product
	err := tx.First(&product, item.ProductID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.OrderItem{}, &ItemError{ProductID: item.ProductID, Requested: item.Quantity, Err: ErrProductNotFound}
		}
		return models.OrderItem{}, err
	}
	if !product.Active {
		return models.OrderItem{}, &ItemError{ProductID: item.ProductID, Requested: item.Quantity, Err: ErrProductNotFound}
	}

	result := tx.Model(&models.Product{}).
		Where("id = ? AND stock >= ?", product.ID, item.Quantity).
		Update("stock", gorm.Expr("stock - ?", item.Quantity))
	if result.Error != nil {
		return models.OrderItem{}, fmt.Errorf("更新庫存失敗: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.OrderItem{}, &ItemError{
			ProductID: product.ID,
			Requested: item.Quantity,
			Available: product.Stock,
			Err:       ErrInsufficientStock,
		}
	}

	return models.OrderItem{
		ProductID: product.ID,
		Name:      product.Name,
		UnitPrice: product.Price,
		Quantity:  item.Quantity,
	}, nil
}

func (s *Service) resolveContact(tx *gorm.DB, userID uint, req CheckoutRequest, order *models.Order) error {
	order.Name = strings.TrimSpace(req.Name)
	order.Phone = strings.TrimSpace(req.Phone)
	order.Address = strings.TrimSpace(req.Address)

	if req.AddressID != 0 {
		var address models.Address
		err := tx.Where("id = ? AND user_id = ?", req.AddressID, userID).First(&address).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAddressNotFound
			}
			return err
		}
		if order.Name == "" {
			order.Name = address.Recipient
		}
		if order.Phone == "" {
			order.Phone = address.Phone
		}
		order.Address = address.OneLine()
	}

	if order.Name == "" || order.Phone == "" {
		return ErrMissingContact
	}
	//自取不需要地址
	if order.Address == "" && req.ShippingMethod != ShippingPickup {
		return ErrMissingContact
	}
	return nil
}

func (s *Service) resolvePayment(tx *gorm.DB, userID uint, req CheckoutRequest, order *models.Order) error {
	if req.PaymentMethodID != 0 {
		var method models.PaymentMethod
		err := tx.Where("id = ? AND user_id = ?", req.PaymentMethodID, userID).First(&method).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPaymentMethodNotFound
			}
			return err
		}
		order.PaymentKind = method.Kind
		order.PaymentLast4 = method.Last4
		return nil
	}

	// 信用卡必須使用已儲存的付款方式
	switch req.PaymentKind {
	case models.PaymentKindTransfer, models.PaymentKindCOD:
		order.PaymentKind = req.PaymentKind
		return nil
	}
	return ErrInvalidPayment
}

func (s *Service) List(ctx context.Context, userID uint, limit, offset int) ([]models.Order, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Order{}).Where("user_id = ?", userID)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var orders []models.Order
	err := query.Order("id DESC").Limit(limit).Offset(offset).Find(&orders).Error
	return orders, total, err
}

// Get 只回傳屬於該會員的訂單
func (s *Service) Get(ctx context.Context, userID, orderID uint) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", orderID, userID).
		Preload("OrderItems", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("OrderItems.Product", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (s *Service) AdminList(ctx context.Context, status string, limit, offset int) ([]models.Order, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Order{})
	if status != "" {
		if !ValidStatus(status) {
			return nil, 0, ErrInvalidStatus
		}
		query = query.Where("status = ?", status)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var orders []models.Order
	err := query.Preload("User").Order("id DESC").Limit(limit).Offset(offset).Find(&orders).Error
	return orders, total, err
}

func (s *Service) AdminGet(ctx context.Context, orderID uint) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Preload("User").
		Preload("OrderItems", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("OrderItems.Product", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		First(&order, orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// Cancel 會員只能取消待處理的訂單
func (s *Service) Cancel(ctx context.Context, userID, orderID uint) (*models.Order, error) {
	return s.changeStatus(ctx, orderID, userID, models.OrderStatusCancelled)
}

// Transition 後台變更訂單狀態
func (s *Service) Transition(ctx context.Context, orderID uint, to string) (*models.Order, error) {
	if !ValidStatus(to) {
		return nil, ErrInvalidStatus
	}
	return s.changeStatus(ctx, orderID, 0, to)
}

// userID為0代表後台操作
func (s *Service) changeStatus(ctx context.Context, orderID, userID uint, to string) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Preload("OrderItems")
		if userID != 0 {
			query = query.Where("user_id = ?", userID)
		}
		if err := query.First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}

		from := order.Status
		if !CanTransition(from, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}
		if userID != 0 && from != models.OrderStatusPending {
			return fmt.Errorf("%w: 只能取消待處理的訂單", ErrInvalidTransition)
		}

		// 以原狀態為條件，避免同時變更
		result := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, from).
			Update("status", to)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: 訂單狀態已被變更", ErrInvalidTransition)
		}

		if to == models.OrderStatusCancelled {
			for _, item := range order.OrderItems {
				err := tx.Unscoped().Model(&models.Product{}).
					Where("id = ?", item.ProductID).
					Update("stock", gorm.Expr("stock + ?", item.Quantity)).Error
				if err != nil {
					return fmt.Errorf("回補庫存失敗: %w", err)
				}
			}
		}
		order.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}

	if to == models.OrderStatusCancelled && s.products != nil {
		productIDs := make([]uint, 0, len(order.OrderItems))
		for _, item := range order.OrderItems {
			productIDs = append(productIDs, item.ProductID)
		}
		s.products.Refresh(ctx, productIDs...)
	}
	if err := s.events.Publish(ctx, events.OrderEvent(events.TypeForStatus(to), &order)); err != nil {
		s.log.Warn().Err(err).Uint("orderID", order.ID).Msg("無法發佈訂單事件")
	}
	metrics.RecordOrder(to)
	s.log.Info().Uint("orderID", order.ID).Str("status", to).Msg("訂單狀態已變更")
	return &order, nil
}

type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

func (s *Service) StatusCounts(ctx context.Context) ([]StatusCount, error) {
	var counts []StatusCount
	err := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("status, count(*) as count").
		Group("status").
		Order("status").
		Scan(&counts).Error
	return counts, err
}

// Revenue 不含已取消的訂單
func (s *Service) Revenue(ctx context.Context) (uint, error) {
	var revenue uint
	err := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("status <> ?", models.OrderStatusCancelled).
		Select("COALESCE(SUM(total), 0)").
		Scan(&revenue).Error
	return revenue, err
}
