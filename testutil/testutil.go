// Package testutil 提供測試用的SQLite資料庫、miniredis及種子資料
package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"storefront/jwt"
	"storefront/models"
	"storefront/slug"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewDB 建立已遷移的暫存SQLite資料庫
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "storefront.db") + "?_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func NewRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
	keyErr  error
)

// NewTokenManager 共用同一把測試金鑰以節省產生時間
func NewTokenManager(t testing.TB) *jwt.Manager {
	t.Helper()
	keyOnce.Do(func() {
		testKey, keyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	if keyErr != nil {
		t.Fatalf("generate rsa key: %v", keyErr)
	}
	return jwt.NewManager(testKey, &testKey.PublicKey, time.Hour)
}

type ProductOption func(*models.Product)

func WithCategories(categories ...models.Category) ProductOption {
	return func(p *models.Product) { p.Categories = categories }
}

func WithBrand(brand *models.Brand) ProductOption {
	return func(p *models.Product) {
		p.BrandID = &brand.ID
		p.Brand = brand
	}
}

func Inactive() ProductOption {
	return func(p *models.Product) { p.Active = false }
}

func Featured() ProductOption {
	return func(p *models.Product) { p.Featured = true }
}

func WithDescription(description string) ProductOption {
	return func(p *models.Product) { p.Description = description }
}

func CreateProduct(t testing.TB, db *gorm.DB, name, sku string, price, stock uint, opts ...ProductOption) models.Product {
	t.Helper()
	product := models.Product{
		Name:   name,
		SKU:    sku,
		Slug:   models.ProductSlug(name, sku),
		Price:  price,
		Stock:  stock,
		Active: true,
	}
	for _, opt := range opts {
		opt(&product)
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("create product %s: %v", sku, err)
	}
	return product
}

func CreateCategory(t testing.TB, db *gorm.DB, name string) models.Category {
	t.Helper()
	category := models.Category{Name: name, Slug: slug.Make(name)}
	if err := db.Create(&category).Error; err != nil {
		t.Fatalf("create category %s: %v", name, err)
	}
	return category
}

func CreateBrand(t testing.TB, db *gorm.DB, name string) models.Brand {
	t.Helper()
	brand := models.Brand{Name: name, Slug: slug.Make(name)}
	if err := db.Create(&brand).Error; err != nil {
		t.Fatalf("create brand %s: %v", name, err)
	}
	return brand
}

// CreateUser 建立使用者，密碼固定為Passw0rd!
func CreateUser(t testing.TB, db *gorm.DB, username, role string) models.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := models.User{
		Username: username,
		Email:    fmt.Sprintf("%s@example.com", username),
		Password: string(hashed),
		Role:     role,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return user
}

const Password = "Passw0rd!"

func Stock(t testing.TB, db *gorm.DB, productID uint) uint {
	t.Helper()
	var product models.Product
	if err := db.Unscoped().First(&product, productID).Error; err != nil {
		t.Fatalf("load product %d: %v", productID, err)
	}
	return product.Stock
}

// Env 組合測試常用的資料庫與Redis
type Env struct {
	DB        *gorm.DB
	Redis     *redis.Client
	Miniredis *miniredis.Miniredis
}

func NewEnv(t testing.TB) *Env {
	t.Helper()
	mr, client := NewRedis(t)
	return &Env{DB: NewDB(t), Redis: client, Miniredis: mr}
}
