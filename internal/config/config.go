package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type HTTPServer struct {
	Addr string `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
}

type Database struct {
	Host            string        `yaml:"PG_HOST" env:"PG_HOST" env-default:"localhost"`
	Port            string        `yaml:"PG_PORT" env:"PG_PORT" env-default:"5432"`
	User            string        `yaml:"PG_USER" env:"PG_USER" env-required:"true"`
	Password        string        `yaml:"PG_PASSWORD" env:"PG_PASSWORD" env-required:"true"`
	Name            string        `yaml:"PG_DBNAME" env:"PG_DBNAME" env-required:"true"`
	SSLMode         string        `yaml:"PG_SSLMODE" env:"PG_SSLMODE" env-default:"require"`
	MaxOpenConns    int           `yaml:"MAX_OPEN_CONNS" env:"MAX_OPEN_CONNS" env-default:"25"`
	MaxIdleConns    int           `yaml:"MAX_IDLE_CONNS" env:"MAX_IDLE_CONNS" env-default:"25"`
	ConnMaxLifetime time.Duration `yaml:"CONN_MAX_LIFETIME" env:"CONN_MAX_LIFETIME" env-default:"5m"`
	ConnMaxIdleTime time.Duration `yaml:"CONN_MAX_IDLE_TIME" env:"CONN_MAX_IDLE_TIME" env-default:"1m"`
	MaxTxRetries    uint64        `yaml:"MAX_TX_RETRIES" env:"MAX_TX_RETRIES" env-default:"3"`
}

type RedisConnect struct {
	Host     string `yaml:"REDIS_HOST" env:"REDIS_HOST" env-default:"localhost"`
	Port     string `yaml:"REDIS_PORT" env:"REDIS_PORT" env-default:"6379"`
	Username string `yaml:"REDIS_USER" env:"REDIS_USER"`
	Password string `yaml:"REDIS_PASSWORD" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"REDIS_DB" env:"REDIS_DB" env-default:"0"`
}

// RateConfig bounds cart mutations per owner key.
type RateConfig struct {
	MaxAttempts int64         `yaml:"MAX_ATTEMPTS" env:"MAX_ATTEMPTS" env-default:"60"`
	WindowSize  time.Duration `yaml:"WINDOW_SIZE" env:"WINDOW_SIZE" env-default:"1m"`
}

type CacheConfig struct {
	DefaultTTL time.Duration `yaml:"DEFAULT_TTL" env:"CACHE_DEFAULT_TTL" env-default:"10m"`
	ProductTTL time.Duration `yaml:"PRODUCT_TTL" env:"CACHE_PRODUCT_TTL" env-default:"30s"`
}

type Security struct {
	JWTKey string `yaml:"JWT_KEY" env:"JWT_KEY" env-required:"true"`
}

type Cart struct {
	TaxRate               float64       `yaml:"TAX_RATE" env:"CART_TAX_RATE" env-default:"0.08"`
	FreeShippingThreshold float64       `yaml:"FREE_SHIPPING_THRESHOLD" env:"CART_FREE_SHIPPING_THRESHOLD" env-default:"50"`
	FlatShippingFee       float64       `yaml:"FLAT_SHIPPING_FEE" env:"CART_FLAT_SHIPPING_FEE" env-default:"5.99"`
	Expiry                time.Duration `yaml:"EXPIRY" env:"CART_EXPIRY" env-default:"720h"`
	LargeCartThreshold    int           `yaml:"LARGE_CART_THRESHOLD" env:"CART_LARGE_CART_THRESHOLD" env-default:"100"`
	LowStockThreshold     int           `yaml:"LOW_STOCK_THRESHOLD" env:"CART_LOW_STOCK_THRESHOLD" env-default:"5"`
	PriceDriftThreshold   float64       `yaml:"PRICE_DRIFT_THRESHOLD" env:"CART_PRICE_DRIFT_THRESHOLD" env-default:"0.10"`
	ValidationConcurrency int           `yaml:"VALIDATION_CONCURRENCY" env:"CART_VALIDATION_CONCURRENCY" env-default:"8"`
	SessionCookieName     string        `yaml:"SESSION_COOKIE_NAME" env:"CART_SESSION_COOKIE_NAME" env-default:"cart_session"`
	SecureCookies         bool          `yaml:"SECURE_COOKIES" env:"CART_SECURE_COOKIES" env-default:"true"`
}

type Merge struct {
	GateTTL time.Duration `yaml:"GATE_TTL" env:"MERGE_GATE_TTL" env-default:"24h"`
}

type Tracing struct {
	Enabled      bool    `yaml:"ENABLED" env:"TRACING_ENABLED" env-default:"false"`
	OTLPEndpoint string  `yaml:"OTLP_ENDPOINT" env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:"localhost:4318"`
	ServiceName  string  `yaml:"SERVICE_NAME" env:"OTEL_SERVICE_NAME" env-default:"storefront-cart"`
	Insecure     bool    `yaml:"INSECURE" env:"OTEL_EXPORTER_OTLP_INSECURE" env-default:"true"`
	SampleRatio  float64 `yaml:"SAMPLE_RATIO" env:"TRACING_SAMPLE_RATIO" env-default:"1"`
}

type Worker struct {
	SweepCron   string `yaml:"SWEEP_CRON" env:"WORKER_SWEEP_CRON" env-default:"@every 1h"`
	Queue       string `yaml:"QUEUE" env:"WORKER_QUEUE" env-default:"maintenance"`
	Concurrency int    `yaml:"CONCURRENCY" env:"WORKER_CONCURRENCY" env-default:"2"`
	// Addr serves the worker's /health and /metrics.
	Addr string `yaml:"ADDRESS" env:"WORKER_HTTP_ADDRESS" env-default:":9091"`
}

type Config struct {
	Env          string `yaml:"env" env:"ENV" env-required:"true"`
	HTTPServer   `yaml:"http_server"`
	Database     Database     `yaml:"database"`
	RedisConnect RedisConnect `yaml:"redis"`
	RateConfig   RateConfig   `yaml:"rateConfig"`
	Cache        CacheConfig  `yaml:"cache"`
	Security     Security     `yaml:"security"`
	Cart         Cart         `yaml:"cart"`
	Merge        Merge        `yaml:"merge"`
	Tracing      Tracing      `yaml:"tracing"`
	Worker       Worker       `yaml:"worker"`
}

func MustLoad() *Config {

	configPath := os.Getenv("CONFIG_PATH")

	if configPath == "" {

		flags := flag.String("config", "", "gets the config flag value")

		flag.Parse()

		configPath = *flags

		if configPath == "" {
			log.Fatal("Config path is not set")
		}

	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("can not read config file: %s", err.Error())
	}

	return cfg
}

// Load reads the YAML file at path and overlays environment variables.
func Load(configPath string) (*Config, error) {

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return &cfg, nil
}

func (d *Database) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

func (r *RedisConnect) GetDSN() string {
	if r.Username == "" && r.Password == "" {
		return fmt.Sprintf("redis://%s:%s/%d", r.Host, r.Port, r.DB)
	}

	return fmt.Sprintf("redis://%s:%s@%s:%s/%d", r.Username, r.Password, r.Host, r.Port, r.DB)
}

// Addr is the host:port form used by clients that do not accept a URL.
func (r *RedisConnect) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}
