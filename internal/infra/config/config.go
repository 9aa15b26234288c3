package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
	LogFile     string `envconfig:"LOG_FILE"`

	PGDSN     string `envconfig:"PG_DSN"`
	RedisAddr string `envconfig:"REDIS_ADDR"`

	// MigrateOnStart накатывает схему при старте devotiond; publisher делает это всегда.
	MigrateOnStart bool `envconfig:"MIGRATE_ON_START" default:"false"`

	Auth struct {
		JWTSecret string `envconfig:"JWT_SECRET"`
	} `envconfig:""`

	Feed struct {
		// Backend выбирает источник realtime-событий: postgres или redis.
		Backend string `envconfig:"FEED_BACKEND" default:"postgres"`
		// Relay включает пересылку уведомлений Postgres в Redis.
		Relay bool `envconfig:"FEED_RELAY" default:"false"`
	} `envconfig:""`

	Sync struct {
		DebounceMS  int `envconfig:"SYNC_DEBOUNCE_MS" default:"500"`
		Workers     int `envconfig:"SYNC_WORKERS" default:"4"`
		QueueSize   int `envconfig:"SYNC_QUEUE_SIZE" default:"1000"`
		PingSeconds int `envconfig:"SYNC_PING_SECONDS" default:"15"`
	} `envconfig:""`

	LocalStorePath string `envconfig:"LOCAL_STORE_PATH" default:"devotional-local.db"`

	Publisher struct {
		IntervalSeconds int `envconfig:"PUBLISH_INTERVAL_SECONDS" default:"60"`
	} `envconfig:""`
}

// Debounce возвращает задержку отложенной записи ответов.
func (c AppConfig) Debounce() time.Duration {
	return time.Duration(c.Sync.DebounceMS) * time.Millisecond
}

// PingInterval возвращает период проверки связи с удалённым хранилищем.
func (c AppConfig) PingInterval() time.Duration {
	return time.Duration(c.Sync.PingSeconds) * time.Second
}

// PublishInterval возвращает период публикации запланированных девоционалов.
func (c AppConfig) PublishInterval() time.Duration {
	return time.Duration(c.Publisher.IntervalSeconds) * time.Second
}

// Load загружает конфиг из окружения, предварительно подхватывая .env.
func Load() AppConfig {
	_ = godotenv.Load()
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
