package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	BaseURL        string   `yaml:"baseURL"`
	UploadsDir     string   `yaml:"uploadsDir"`
	SitemapPath    string   `yaml:"sitemapPath"`
	TrustedProxies []string `yaml:"trustedProxies"`
}

type DatabaseConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Database string `yaml:"database"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	Database int    `yaml:"database"`
}

type JWTConfig struct {
	PrivateKeyPath string        `yaml:"privateKeyPath"`
	PublicKeyPath  string        `yaml:"publicKeyPath"`
	TokenTTL       time.Duration `yaml:"tokenTTL"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Buffer  int      `yaml:"buffer"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// ShippingConfig 運費以最小貨幣單位計算
type ShippingConfig struct {
	Fees          map[string]uint `yaml:"fees"`
	FreeThreshold uint            `yaml:"freeThreshold"`
}

type RateLimitConfig struct {
	LoginPerSecond float64 `yaml:"loginPerSecond"`
	LoginBurst     int     `yaml:"loginBurst"`
}

type CatalogConfig struct {
	LowStockThreshold uint `yaml:"lowStockThreshold"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	JWT       JWTConfig       `yaml:"jwt"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Log       LogConfig       `yaml:"log"`
	Shipping  ShippingConfig  `yaml:"shipping"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Catalog   CatalogConfig   `yaml:"catalog"`
}

// Path 回傳CONFIG_PATH或預設設定檔路徑
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

func Default() Config {
	var config Config
	config.applyDefaults()
	return config
}

func LoadConfig(filename string) (Config, error) {
	var config Config
	file, err := os.Open(filename)
	if err != nil {
		return config, err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil {
		return config, fmt.Errorf("解析設定檔 %s: %w", filename, err)
	}

	config.applyDefaults()
	config.applyEnv()

	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":3000"
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://localhost:3000"
	}
	if c.Server.UploadsDir == "" {
		c.Server.UploadsDir = "./uploads"
	}
	if c.Server.SitemapPath == "" {
		c.Server.SitemapPath = "./public/sitemap.xml"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == "" {
		c.Database.Port = "3306"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "127.0.0.1:6379"
	}
	if c.JWT.PrivateKeyPath == "" {
		c.JWT.PrivateKeyPath = "jwt/private_key.pem"
	}
	if c.JWT.PublicKeyPath == "" {
		c.JWT.PublicKeyPath = "jwt/public_key.pem"
	}
	if c.JWT.TokenTTL == 0 {
		c.JWT.TokenTTL = 24 * time.Hour
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "order-events"
	}
	if c.Kafka.Buffer == 0 {
		c.Kafka.Buffer = 256
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Shipping.Fees == nil {
		c.Shipping.Fees = map[string]uint{
			"standard": 60,
			"express":  150,
			"pickup":   0,
		}
	}
	if c.RateLimit.LoginPerSecond == 0 {
		c.RateLimit.LoginPerSecond = 1
	}
	if c.RateLimit.LoginBurst == 0 {
		c.RateLimit.LoginBurst = 5
	}
	if c.Catalog.LowStockThreshold == 0 {
		c.Catalog.LowStockThreshold = 5
	}
}

// 環境變數覆蓋部署相關及機密設定
func (c *Config) applyEnv() {
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		var brokers []string
		for _, broker := range strings.Split(v, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				brokers = append(brokers, broker)
			}
		}
		c.Kafka.Brokers = brokers
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Database.Database == "" {
		errs = append(errs, errors.New("database.database 不得為空"))
	}
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		errs = append(errs, fmt.Errorf("server.baseURL 必須為絕對網址: %q", c.Server.BaseURL))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.enabled 需要設定 kafka.brokers"))
	}
	if c.RateLimit.LoginPerSecond < 0 || c.RateLimit.LoginBurst < 0 {
		errs = append(errs, errors.New("rateLimit 不得為負數"))
	}
	for _, method := range []string{"standard", "express", "pickup"} {
		if _, ok := c.Shipping.Fees[method]; !ok {
			errs = append(errs, fmt.Errorf("shipping.fees 需包含 %s", method))
		}
	}
	if fee := c.Shipping.Fees["pickup"]; fee != 0 {
		errs = append(errs, fmt.Errorf("shipping.fees.pickup 必須為0: %d", fee))
	}
	return errors.Join(errs...)
}

// BaseURL 去除結尾斜線
func (c *Config) BaseURL() string {
	return strings.TrimRight(c.Server.BaseURL, "/")
}
