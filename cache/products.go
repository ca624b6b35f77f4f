// Package cache 將商品列表快取於Redis sorted set，score為商品ID
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"storefront/metrics"
	"storefront/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const ProductsKey = "products"

type ProductCache struct {
	rdb *redis.Client
	db  *gorm.DB
	log zerolog.Logger
}

func NewProductCache(rdb *redis.Client, db *gorm.DB, log zerolog.Logger) *ProductCache {
	return &ProductCache{
		rdb: rdb,
		db:  db,
		log: log.With().Str("component", "product_cache").Logger(),
	}
}

// All 嘗試從Redis讀取商品列表，如失敗則從資料庫讀取並儲存至Redis
func (pc *ProductCache) All(ctx context.Context) ([]models.Product, error) {
	members, err := pc.rdb.ZRange(ctx, ProductsKey, 0, -1).Result()
	if err == nil && len(members) > 0 {
		products := make([]models.Product, 0, len(members))
		corrupted := false
		for _, member := range members {
			var product models.Product
			if err := json.Unmarshal([]byte(member), &product); err != nil {
				pc.log.Warn().Err(err).Msg("無法反序列化商品資料")
				corrupted = true
				continue
			}
			products = append(products, product)
		}
		if !corrupted {
			return products, nil
		}
	}
	if err != nil {
		pc.log.Warn().Err(err).Msg("無法從Redis讀取商品列表，改由資料庫讀取")
	}

	return pc.Rebuild(ctx)
}

// Rebuild 從資料庫重建整個商品快取
func (pc *ProductCache) Rebuild(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := pc.db.WithContext(ctx).
		Preload("Categories").
		Preload("Brand").
		Order("id").
		Find(&products).Error
	if err != nil {
		return nil, err
	}

	members := make([]redis.Z, 0, len(products))
	for _, product := range products {
		productJSON, err := json.Marshal(product)
		if err != nil {
			pc.log.Warn().Err(err).Uint("productID", product.ID).Msg("無法序列化商品資料")
			continue
		}
		members = append(members, redis.Z{Score: float64(product.ID), Member: productJSON})
	}

	_, err = pc.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, ProductsKey)
		if len(members) > 0 {
			pipe.ZAdd(ctx, ProductsKey, members...)
		}
		return nil
	})
	if err != nil {
		// 資料庫結果仍可使用
		pc.log.Warn().Err(err).Msg("無法將商品資料加入Redis")
	}

	metrics.RecordProductCacheRebuild()
	return products, nil
}

// Put 以新的商品資料取代快取中相同ID的項目
func (pc *ProductCache) Put(ctx context.Context, product *models.Product) error {
	productJSON, err := json.Marshal(product)
	if err != nil {
		return err
	}
	score := strconv.FormatUint(uint64(product.ID), 10)
	_, err = pc.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, ProductsKey, score, score)
		pipe.ZAdd(ctx, ProductsKey, redis.Z{Score: float64(product.ID), Member: productJSON})
		return nil
	})
	return err
}

func (pc *ProductCache) Remove(ctx context.Context, productID uint) error {
	score := strconv.FormatUint(uint64(productID), 10)
	return pc.rdb.ZRemRangeByScore(ctx, ProductsKey, score, score).Err()
}

func (pc *ProductCache) Invalidate(ctx context.Context) error {
	return pc.rdb.Del(ctx, ProductsKey).Err()
}

// Refresh 重新讀取指定商品並更新快取，失敗時整個快取作廢以免讀到舊資料
func (pc *ProductCache) Refresh(ctx context.Context, productIDs ...uint) {
	if err := pc.refresh(ctx, productIDs); err != nil {
		pc.log.Warn().Err(err).Uints("productIDs", productIDs).Msg("更新商品快取失敗，清除快取")
		if err := pc.Invalidate(ctx); err != nil {
			pc.log.Error().Err(err).Msg("清除商品快取失敗")
		}
	}
}

func (pc *ProductCache) refresh(ctx context.Context, productIDs []uint) error {
	if len(productIDs) == 0 {
		return nil
	}
	// 快取尚未建立時不寫入部分資料，留給All重建
	exists, err := pc.rdb.Exists(ctx, ProductsKey).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return nil
	}

	var products []models.Product
	err = pc.db.WithContext(ctx).
		Preload("Categories").
		Preload("Brand").
		Where("id IN ?", productIDs).
		Find(&products).Error
	if err != nil {
		return err
	}

	found := make(map[uint]bool, len(products))
	for i := range products {
		found[products[i].ID] = true
		if err := pc.Put(ctx, &products[i]); err != nil {
			return err
		}
	}
	// 已刪除的商品
	for _, id := range productIDs {
		if !found[id] {
			if err := pc.Remove(ctx, id); err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
		}
	}
	return nil
}
