package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "TAKEAWAY"

type Config struct {
	Env       string `envconfig:"ENV"`
	Port      int    `envconfig:"PORT"`
	JWTSecret string `envconfig:"JWT_SECRET"`
	LogJSON   bool   `envconfig:"LOG_JSON"`

	// BackendMode is "memory" (built-in reference backend) or "http".
	BackendMode string `envconfig:"BACKEND_MODE"`
	BackendURL  string `envconfig:"BACKEND_URL"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	SeedDemo    bool   `envconfig:"SEED_DEMO"`

	// PushTransport is "memory", "redis" or "kafka".
	PushTransport string   `envconfig:"PUSH_TRANSPORT"`
	RedisAddr     string   `envconfig:"REDIS_ADDR"`
	RedisPassword string   `envconfig:"REDIS_PASSWORD"`
	RedisDB       int      `envconfig:"REDIS_DB"`
	KafkaBrokers  []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic    string   `envconfig:"KAFKA_TOPIC"`

	PollInterval   time.Duration `envconfig:"POLL_INTERVAL"`
	ReconnectDelay time.Duration `envconfig:"RECONNECT_DELAY"`

	Allocation      string        `envconfig:"ALLOCATION"`
	BalancePreCheck bool          `envconfig:"BALANCE_PRECHECK"`
	WechatDelay     time.Duration `envconfig:"WECHAT_DELAY"`
	StatusAttempts  int           `envconfig:"STATUS_ATTEMPTS"`
	StatusInterval  time.Duration `envconfig:"STATUS_INTERVAL"`
	PayReturnURL    string        `envconfig:"PAY_RETURN_URL"`

	LocationTTL     time.Duration `envconfig:"LOCATION_TTL"`
	LocationTimeout time.Duration `envconfig:"LOCATION_TIMEOUT"`
	Latitude        float64       `envconfig:"LATITUDE"`
	Longitude       float64       `envconfig:"LONGITUDE"`
	AMapKey         string        `envconfig:"AMAP_KEY"`
	AMapURL         string        `envconfig:"AMAP_URL"`
}

func Default() Config {
	return Config{
		Env:             "dev",
		Port:            5000,
		JWTSecret:       "",
		LogJSON:         true,
		BackendMode:     "memory",
		BackendURL:      "http://127.0.0.1:8080",
		SeedDemo:        true,
		PushTransport:   "memory",
		RedisAddr:       "127.0.0.1:6379",
		KafkaBrokers:    []string{"127.0.0.1:9092"},
		KafkaTopic:      "order-status",
		PollInterval:    15 * time.Second,
		ReconnectDelay:  5 * time.Second,
		Allocation:      "even",
		WechatDelay:     1500 * time.Millisecond,
		StatusAttempts:  5,
		StatusInterval:  2 * time.Second,
		PayReturnURL:    "http://127.0.0.1:5000/payment/result",
		LocationTTL:     5 * time.Minute,
		LocationTimeout: 10 * time.Second,
	}
}

// Load reads dotenv files without overriding variables already set.
// Missing files are skipped.
func Load(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		_ = godotenv.Load(p)
	}
}

// EnvDefaults layers TAKEAWAY_* variables over Default. A malformed variable
// is reported and the plain defaults are returned alongside the error.
func EnvDefaults() (Config, error) {
	return fromEnv(Default())
}

func fromEnv(c Config) (Config, error) {
	out := c
	if err := envconfig.Process(EnvPrefix, &out); err != nil {
		return c, fmt.Errorf("read %s_* environment: %w", EnvPrefix, err)
	}
	return out, nil
}

// LocationSet reports whether fixed coordinates were configured.
func (c Config) LocationSet() bool {
	return c.Latitude != 0 || c.Longitude != 0
}
