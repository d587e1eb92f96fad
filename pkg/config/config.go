package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/sakashimaa/paybot/pkg/utils"
)

type Config struct {
	Env          string       `yaml:"env" env:"ENV" env-default:"local" validate:"oneof=local dev prod"`
	Log          Log          `yaml:"log"`
	HTTP         HTTP         `yaml:"http"`
	Postgres     PG           `yaml:"postgres"`
	Redis        Redis        `yaml:"redis"`
	Kafka        Kafka        `yaml:"kafka"`
	Tracing      Tracing      `yaml:"tracing"`
	Telegram     Telegram     `yaml:"telegram"`
	Processor    Processor    `yaml:"processor"`
	Conversation Conversation `yaml:"conversation"`
	Payments     Payments     `yaml:"payments"`
	Storage      Storage      `yaml:"storage"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type HTTP struct {
	Port    string        `yaml:"port" env:"HTTP_PORT" env-default:":3000"`
	Timeout time.Duration `yaml:"timeout" env-default:"4s"`
}

type PG struct {
	URL         string `yaml:"url" env:"DB_URL" validate:"required"`
	MaxConns    int32  `yaml:"max_conns" env-default:"10"`
	MinConns    int32  `yaml:"min_conns" env-default:"2"`
	AutoMigrate bool   `yaml:"auto_migrate" env:"DB_AUTO_MIGRATE" env-default:"true"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// Kafka is optional; with no brokers the outbox keeps events in Postgres only.
type Kafka struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS"`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"payment_events"`
}

type Tracing struct {
	Endpoint string `yaml:"endpoint" env:"JAEGER_ENDPOINT"`
}

type Telegram struct {
	Token   string        `yaml:"token" env:"TELEGRAM_TOKEN" validate:"required"`
	Workers int           `yaml:"workers" env:"TELEGRAM_WORKERS" env-default:"8" validate:"gt=0"`
	Timeout time.Duration `yaml:"timeout" env-default:"60s"`
}

type Processor struct {
	Provider string        `yaml:"provider" env:"PAYMENT_PROVIDER" env-default:"stripe" validate:"oneof=stripe paypal"`
	Timeout  time.Duration `yaml:"timeout" env:"PAYMENT_TIMEOUT" env-default:"10s"`
	Stripe   Stripe        `yaml:"stripe"`
	PayPal   PayPal        `yaml:"paypal"`
}

type Stripe struct {
	APIKey     string `yaml:"api_key" env:"STRIPE_API_KEY"`
	SuccessURL string `yaml:"success_url" env:"STRIPE_SUCCESS_URL" env-default:"https://t.me/paybot?start=success"`
	CancelURL  string `yaml:"cancel_url" env:"STRIPE_CANCEL_URL" env-default:"https://t.me/paybot?start=cancel"`
}

type PayPal struct {
	ClientID  string `yaml:"client_id" env:"PAYPAL_CLIENT_ID"`
	Secret    string `yaml:"secret" env:"PAYPAL_SECRET"`
	Sandbox   bool   `yaml:"sandbox" env:"PAYPAL_SANDBOX" env-default:"true"`
	ReturnURL string `yaml:"return_url" env:"PAYPAL_RETURN_URL" env-default:"https://t.me/paybot?start=success"`
	CancelURL string `yaml:"cancel_url" env:"PAYPAL_CANCEL_URL" env-default:"https://t.me/paybot?start=cancel"`
}

type Conversation struct {
	Store string        `yaml:"store" env:"CONVERSATION_STORE" env-default:"memory" validate:"oneof=memory redis"`
	TTL   time.Duration `yaml:"ttl" env:"CONVERSATION_TTL" env-default:"30m"`
}

type Payments struct {
	MaxAmount string `yaml:"max_amount" env:"PAYMENTS_MAX_AMOUNT" env-default:"999999.99" validate:"numeric"`
}

type Storage struct {
	Driver   string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"local" validate:"oneof=local s3"`
	LocalDir string `yaml:"local_dir" env:"LOCAL_RECEIPT_DIR" env-default:"./storage/receipts"`
	S3       S3     `yaml:"s3"`
}

type S3 struct {
	Region string `yaml:"region" env:"S3_REGION"`
	Bucket string `yaml:"bucket" env:"S3_BUCKET"`
	Prefix string `yaml:"prefix" env:"S3_PREFIX" env-default:"receipts"`
}

const defaultConfigPath = "./config/local.yaml"

var (
	ErrMissingCredentials = errors.New("missing processor credentials")
	ErrMissingDatabaseURL = errors.New("missing database url: DB_URL")
)

// Load reads and validates the full configuration.
func Load() (*Config, error) {
	cfg, err := Read()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Read reads the YAML file at CONFIG_PATH when it exists and falls back to
// environment variables otherwise. Nothing is validated.
func Read() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	var cfg Config
	if _, err := os.Stat(configPath); err == nil {
		if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("error reading env: %w", err)
		}
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) {
			return fmt.Errorf("invalid config: %s", utils.FormatValidationError(vErrs))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	switch c.Processor.Provider {
	case "stripe":
		if c.Processor.Stripe.APIKey == "" {
			return fmt.Errorf("%w: STRIPE_API_KEY", ErrMissingCredentials)
		}
	case "paypal":
		if c.Processor.PayPal.ClientID == "" || c.Processor.PayPal.Secret == "" {
			return fmt.Errorf("%w: PAYPAL_CLIENT_ID, PAYPAL_SECRET", ErrMissingCredentials)
		}
	}

	if c.Storage.Driver == "s3" && (c.Storage.S3.Region == "" || c.Storage.S3.Bucket == "") {
		return errors.New("S3 config missing: S3_REGION, S3_BUCKET required")
	}

	return nil
}

// DatabaseURL is what the offline commands need.
func (c *Config) DatabaseURL() (string, error) {
	if c.Postgres.URL == "" {
		return "", ErrMissingDatabaseURL
	}
	return c.Postgres.URL, nil
}
