package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/config"
	"storefront/events"
	"storefront/jwt"
	"storefront/logger"
	"storefront/routers"

	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadConfig(config.Path())
	logger.Configure(logger.Config{Level: cfg.Log.Level})
	log := logger.Base()
	if err != nil {
		log.Fatal().Err(err).Str("path", config.Path()).Msg("無法讀取設定檔")
	}
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := config.SetupMySQLConnection(cfg.Database, logger.WithComponent("gorm"))
	if err != nil {
		log.Fatal().Err(err).Msg("無法連接到資料庫")
	}
	defer func() {
		dbInstance, _ := db.DB()
		_ = dbInstance.Close()
	}()

	rdb, err := config.SetupRedisConnection(cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("無法連接到Redis")
	}
	defer rdb.Close()

	tokens, err := jwt.LoadManager(cfg.JWT.PrivateKeyPath, cfg.JWT.PublicKeyPath, cfg.JWT.TokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("無法讀取JWT金鑰")
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Kafka.Enabled {
		publisher = events.NewKafkaPublisher(config.NewKafkaWriter(cfg.Kafka), cfg.Kafka.Buffer, log)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("已啟用訂單事件")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("關閉訂單事件發送失敗")
		}
	}()

	router, err := routers.SetupRouters(cfg, db, rdb, tokens, publisher, log)
	if err != nil {
		log.Fatal().Err(err).Msg("無法建立路由")
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("伺服器啟動")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("伺服器異常停止")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("正在關閉伺服器")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("伺服器關閉逾時")
	}
}
