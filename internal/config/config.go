package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// AppConfig 聚合运行时配置：默认值 -> 可选 YAML 文件 -> 环境变量。
type AppConfig struct {
	Env      string `yaml:"env"`
	HTTPAddr string `yaml:"http_addr"`
	DBPath   string `yaml:"db_path"`

	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`

	// Kafka 集群地址（逗号分隔）、Topic、消费者组：捐款事件审计链路
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
	KafkaGroupID string   `yaml:"kafka_group_id"`

	// Redis Stream outbox（服务写入终态事件，Relay 异步转 Kafka）
	EventsEnabled       bool   `yaml:"events_enabled"`
	DonationEventStream string `yaml:"donation_event_stream"`
	DonationEventGroup  string `yaml:"donation_event_group"`
	DonationEventWorker string `yaml:"donation_event_consumer"`

	RazorpayKeyID     string        `yaml:"razorpay_key_id"`
	RazorpayKeySecret string        `yaml:"razorpay_key_secret"`
	RazorpayBaseURL   string        `yaml:"razorpay_base_url"`
	GatewayTimeout    time.Duration `yaml:"-"`

	Currency string `yaml:"currency"`
	NGOName  string `yaml:"ngo_name"`

	APIRateLimit      int           `yaml:"api_rate_limit"`
	APIRateWindow     time.Duration `yaml:"-"`
	PaymentRateLimit  int           `yaml:"payment_rate_limit"`
	PaymentRateWindow time.Duration `yaml:"-"`

	IdempotencyTTL time.Duration `yaml:"-"`
	ReportMaxLimit int           `yaml:"report_max_limit"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
}

// IsDevelopment 开发模式下才允许把内部错误细节返回给客户端。
func (c AppConfig) IsDevelopment() bool { return c.Env == EnvDevelopment }

// Load 读取并校验配置，缺失时使用默认值。
func Load() (AppConfig, error) {
	cfg := AppConfig{
		Env:                 EnvProduction,
		HTTPAddr:            ":5000",
		DBPath:              "donations.db",
		RedisAddr:           "localhost:6379",
		KafkaBrokers:        []string{"localhost:9092"},
		KafkaTopic:          "ngo-donation-events",
		KafkaGroupID:        "ngo-donation-audit",
		DonationEventStream: "ngo_donation:events",
		DonationEventGroup:  "ngo-donation-relay-group",
		DonationEventWorker: "ngo-donation-relay-1",
		RazorpayBaseURL:     "https://api.razorpay.com",
		GatewayTimeout:      10 * time.Second,
		Currency:            "INR",
		NGOName:             "MyHeart Foundation",
		APIRateLimit:        100,
		APIRateWindow:       15 * time.Minute,
		PaymentRateLimit:    10,
		PaymentRateWindow:   10 * time.Minute,
		IdempotencyTTL:      24 * time.Hour,
		ReportMaxLimit:      500,
		MaxBodyBytes:        10 << 10,
	}

	if path := getEnv("CONFIG_PATH", ""); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return AppConfig{}, err
		}
	}

	cfg.Env = getEnv("APP_ENV", cfg.Env)
	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.DBPath = getEnv("DB_PATH", cfg.DBPath)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.KafkaBrokers = splitCSV(getEnv("KAFKA_BROKERS", strings.Join(cfg.KafkaBrokers, ",")))
	cfg.KafkaTopic = getEnv("KAFKA_TOPIC", cfg.KafkaTopic)
	cfg.KafkaGroupID = getEnv("KAFKA_GROUP_ID", cfg.KafkaGroupID)
	cfg.DonationEventStream = getEnv("DONATION_EVENT_STREAM", cfg.DonationEventStream)
	cfg.DonationEventGroup = getEnv("DONATION_EVENT_GROUP", cfg.DonationEventGroup)
	cfg.DonationEventWorker = getEnv("DONATION_EVENT_CONSUMER", cfg.DonationEventWorker)
	cfg.RazorpayKeyID = getEnv("RAZORPAY_KEY_ID", cfg.RazorpayKeyID)
	cfg.RazorpayKeySecret = getEnv("RAZORPAY_KEY_SECRET", cfg.RazorpayKeySecret)
	cfg.RazorpayBaseURL = strings.TrimRight(getEnv("RAZORPAY_BASE_URL", cfg.RazorpayBaseURL), "/")
	cfg.Currency = strings.ToUpper(getEnv("CURRENCY", cfg.Currency))
	cfg.NGOName = getEnv("NGO_NAME", cfg.NGOName)

	eventsEnabled, err := getEnvBool("EVENTS_ENABLED", cfg.EventsEnabled)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid EVENTS_ENABLED: %w", err)
	}
	cfg.EventsEnabled = eventsEnabled

	redisDB, err := getEnvInt("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	if cfg.GatewayTimeout, err = getEnvDuration("GATEWAY_TIMEOUT_SEC", cfg.GatewayTimeout, time.Second); err != nil {
		return AppConfig{}, err
	}
	if cfg.APIRateLimit, err = getEnvPositive("API_RATE_LIMIT", cfg.APIRateLimit); err != nil {
		return AppConfig{}, err
	}
	if cfg.APIRateWindow, err = getEnvDuration("API_RATE_WINDOW_SEC", cfg.APIRateWindow, time.Second); err != nil {
		return AppConfig{}, err
	}
	if cfg.PaymentRateLimit, err = getEnvPositive("PAYMENT_RATE_LIMIT", cfg.PaymentRateLimit); err != nil {
		return AppConfig{}, err
	}
	if cfg.PaymentRateWindow, err = getEnvDuration("PAYMENT_RATE_WINDOW_SEC", cfg.PaymentRateWindow, time.Second); err != nil {
		return AppConfig{}, err
	}
	if cfg.IdempotencyTTL, err = getEnvDuration("IDEMPOTENCY_TTL_HOUR", cfg.IdempotencyTTL, time.Hour); err != nil {
		return AppConfig{}, err
	}
	if cfg.ReportMaxLimit, err = getEnvPositive("REPORT_MAX_LIMIT", cfg.ReportMaxLimit); err != nil {
		return AppConfig{}, err
	}
	maxBody, err := getEnvPositive("MAX_BODY_BYTES", int(cfg.MaxBodyBytes))
	if err != nil {
		return AppConfig{}, err
	}
	cfg.MaxBodyBytes = int64(maxBody)

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if c.Env != EnvDevelopment && c.Env != EnvProduction {
		return fmt.Errorf("APP_ENV must be %q or %q", EnvDevelopment, EnvProduction)
	}
	if c.RazorpayKeyID == "" {
		return fmt.Errorf("RAZORPAY_KEY_ID must not be empty")
	}
	if c.RazorpayKeySecret == "" {
		return fmt.Errorf("RAZORPAY_KEY_SECRET must not be empty")
	}
	if len(c.Currency) != 3 {
		return fmt.Errorf("CURRENCY must be a 3-letter ISO code")
	}
	if !c.EventsEnabled {
		return nil
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS must not be empty")
	}
	if c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC must not be empty")
	}
	if c.KafkaGroupID == "" {
		return fmt.Errorf("KAFKA_GROUP_ID must not be empty")
	}
	if c.DonationEventStream == "" || c.DonationEventGroup == "" || c.DonationEventWorker == "" {
		return fmt.Errorf("DONATION_EVENT_STREAM, DONATION_EVENT_GROUP and DONATION_EVENT_CONSUMER must not be empty")
	}
	return nil
}

// loadFile 用 YAML 文件覆盖默认值，环境变量仍然优先。
func loadFile(path string, cfg *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file %s: %w", path, err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

// getEnvPositive 读取必须 > 0 的整数。
func getEnvPositive(key string, fallback int) (int, error) {
	n, err := getEnvInt(key, fallback)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}
	return n, nil
}

// getEnvDuration 以 unit 为单位读取时长，例如 *_SEC、*_HOUR。
func getEnvDuration(key string, fallback, unit time.Duration) (time.Duration, error) {
	n, err := getEnvPositive(key, int(fallback/unit))
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * unit, nil
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
