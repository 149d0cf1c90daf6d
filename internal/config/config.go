package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v9"
)

const (
	BackendMySQL     = "mysql"
	BackendFirestore = "firestore"
)

type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Backend  string `env:"STORE_BACKEND" envDefault:"mysql"`

	DBUser                 string `env:"DB_USER"`
	DBPassword             string `env:"DB_PASSWORD"`
	DBHost                 string `env:"DB_HOST"` // e.g. tcp(host:3306) or unix(/cloudsql/instance)
	DBName                 string `env:"DB_NAME"`
	DBPort                 string `env:"DB_PORT" envDefault:"3306"`
	InstanceConnectionName string `env:"INSTANCE_CONNECTION_NAME"`

	FirebaseProjectID string `env:"FIREBASE_PROJECT_ID"`
	CredentialsFile   string `env:"GOOGLE_APPLICATION_CREDENTIALS"`
	StorageBucket     string `env:"STORAGE_BUCKET"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"musclecat.chat"`

	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`

	OwnerEmail       string        `env:"OWNER_EMAIL"`
	BotUID           string        `env:"BOT_UID" envDefault:"bot-01"`
	BotName          string        `env:"BOT_NAME" envDefault:"근육고양이봇"`
	BotWatchdogCron  string        `env:"BOT_WATCHDOG_CRON" envDefault:"*/10 * * * *"`
	OwnerIdleTimeout time.Duration `env:"OWNER_IDLE_TIMEOUT" envDefault:"30m"`
	BotReplyDelay    time.Duration `env:"BOT_REPLY_DELAY" envDefault:"3s"`
	BotRepliesPerMin int           `env:"BOT_REPLIES_PER_MINUTE" envDefault:"6"`

	FeedWindowSize  int           `env:"FEED_WINDOW_SIZE" envDefault:"30"`
	FeedMaxPageSize int           `env:"FEED_MAX_PAGE_SIZE" envDefault:"100"`
	TypingTTL       time.Duration `env:"TYPING_TTL" envDefault:"5s"`
	PushIconURL     string        `env:"PUSH_ICON_URL" envDefault:"/images/icon.png"`
	PushLink        string        `env:"PUSH_LINK" envDefault:"/"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that depend on each other.
func (c *Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendMySQL:
		if c.DBUser == "" || c.DBHost == "" || c.DBName == "" {
			errs = append(errs, errors.New("DB_USER, DB_HOST and DB_NAME are required for the mysql backend"))
		}
	case BackendFirestore:
		if c.FirebaseProjectID == "" {
			errs = append(errs, errors.New("FIREBASE_PROJECT_ID is required for the firestore backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.Backend))
	}
	if !gronx.IsValid(c.BotWatchdogCron) {
		errs = append(errs, fmt.Errorf("invalid BOT_WATCHDOG_CRON %q", c.BotWatchdogCron))
	}
	if c.FeedWindowSize <= 0 || c.FeedMaxPageSize <= 0 {
		errs = append(errs, errors.New("FEED_WINDOW_SIZE and FEED_MAX_PAGE_SIZE must be positive"))
	}
	if c.BotRepliesPerMin <= 0 {
		errs = append(errs, errors.New("BOT_REPLIES_PER_MINUTE must be positive"))
	}
	return errors.Join(errs...)
}
