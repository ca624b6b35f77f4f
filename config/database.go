package config

import (
	"context"
	"fmt"
	"time"

	"storefront/logger"
	"storefront/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.Username,
		d.Password,
		d.Host,
		d.Port,
		d.Database,
	)
}

// SetupMySQLConnection 連線MySQL並自動遷移資料表，連線失敗時重試
func SetupMySQLConnection(config DatabaseConfig, log zerolog.Logger) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	for i := 0; i < 10; i++ {
		db, err = gorm.Open(mysql.Open(config.DSN()), &gorm.Config{
			Logger:                                   logger.NewGormLogger(log),
			// 匿名購物車的user_id為0，不建立外鍵
			DisableForeignKeyConstraintWhenMigrating: true,
		})
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Str("host", config.Host).Msg("無法連接到資料庫，稍後重試")
		time.Sleep(3 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("連接資料庫 %s:%s 失敗: %w", config.Host, config.Port, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := models.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("資料表遷移失敗: %w", err)
	}

	log.Info().Str("database", config.Database).Msg("已連接到資料庫")
	return db, nil
}

func SetupRedisConnection(config RedisConfig, log zerolog.Logger) (*redis.Client, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.Database,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("redis連線失敗: %w", err)
	}

	log.Info().Str("addr", config.Addr).Int("db", config.Database).Msg("已連接到Redis")
	return redisClient, nil
}
