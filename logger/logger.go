// Package logger 設定全域zerolog並提供元件與請求層級的子logger
package logger

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level   string    // debug, info, warn...
	Output  io.Writer // 預設os.Stdout
	Service string
}

type ctxKey string

const requestIDKey ctxKey = "request_id"

var (
	once sync.Once
	base zerolog.Logger
)

// Configure 只會生效一次
func Configure(cfg Config) {
	once.Do(func() {
		base = New(cfg)
		zerolog.SetGlobalLevel(levelOf(cfg.Level))
	})
}

// New 建立獨立logger，不影響全域設定
func New(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	writer := cfg.Output
	if writer == nil {
		writer = os.Stdout
	}
	service := cfg.Service
	if service == "" {
		service = "storefront"
	}

	return zerolog.New(writer).
		Level(levelOf(cfg.Level)).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}

func levelOf(level string) zerolog.Level {
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	if level == "" {
		return zerolog.InfoLevel
	}
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return parsed
}

func Base() zerolog.Logger {
	Configure(Config{})
	return base
}

func WithComponent(component string) zerolog.Logger {
	return Base().With().Str("component", component).Logger()
}

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// FromContext 回傳附帶request_id的logger
func FromContext(ctx context.Context, l zerolog.Logger) zerolog.Logger {
	if rid := RequestIDFromContext(ctx); rid != "" {
		return l.With().Str("request_id", rid).Logger()
	}
	return l
}
