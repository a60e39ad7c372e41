package config

import (
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/Freeeeeet/tutorflow/internal/model"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Environment   string `env:"ENV" envDefault:"development"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"postgres"`
	DBDSN         string `env:"DB_DSN"`
	TelegramToken string `env:"TELEGRAM_TOKEN"`
	HTTPAddr      string `env:"HTTP_ADDR" envDefault:":8080"`
	RedisURL      string `env:"REDIS_URL"`
	// общий секрет со шлюзом аутентификации, который проставляет X-Actor-Id
	InternalAPIToken  string `env:"INTERNAL_API_TOKEN"`
	MigrationsEnabled bool   `env:"MIGRATIONS_ENABLED" envDefault:"true"`

	LateRescheduleHours    int           `env:"LATE_RESCHEDULE_HOURS" envDefault:"24"`
	PackageWindowDays      int           `env:"PACKAGE_WINDOW_DAYS" envDefault:"30"`
	ExpirySweepInterval    time.Duration `env:"EXPIRY_SWEEP_INTERVAL" envDefault:"1h"`
	CommandRateLimitPerMin int           `env:"COMMAND_RATE_LIMIT_PER_MIN" envDefault:"30"`

	AdminTelegramIDs []int64 `env:"ADMIN_TELEGRAM_IDS" envSeparator:","`
	TutorTelegramIDs []int64 `env:"TUTOR_TELEGRAM_IDS" envSeparator:","`
}

// Load читает .env (если есть) и переменные окружения
func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	cfg, err := Parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse только окружение, без .env и без проверки
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StorageDriver {
	case StoragePostgres:
		if c.DBDSN == "" {
			return fmt.Errorf("DB_DSN is required but not set")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StoragePostgres, StorageMemory, c.StorageDriver)
	}

	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.PackageWindowDays <= 0 {
		return fmt.Errorf("PACKAGE_WINDOW_DAYS must be positive")
	}
	if c.LateRescheduleHours < 0 {
		return fmt.Errorf("LATE_RESCHEDULE_HOURS must not be negative")
	}
	if c.ExpirySweepInterval <= 0 {
		return fmt.Errorf("EXPIRY_SWEEP_INTERVAL must be positive")
	}
	if c.TelegramToken == "" && c.HTTPAddr == "" {
		return fmt.Errorf("at least one of TELEGRAM_TOKEN or HTTP_ADDR must be set")
	}

	if c.IsProduction() && c.HTTPAddr != "" && len(c.InternalAPIToken) < 32 {
		return fmt.Errorf("INTERNAL_API_TOKEN must be at least 32 characters in production (generate with: openssl rand -base64 32)")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) LateRescheduleWindow() time.Duration {
	return time.Duration(c.LateRescheduleHours) * time.Hour
}

// BootstrapRoles роли, которые выдаются при регистрации по Telegram ID
func (c *Config) BootstrapRoles() map[int64][]model.Role {
	roles := make(map[int64][]model.Role)
	add := func(ids []int64, role model.Role) {
		for _, id := range ids {
			if !slices.Contains(roles[id], role) {
				roles[id] = append(roles[id], role)
			}
		}
	}
	add(c.AdminTelegramIDs, model.RoleAdmin)
	add(c.TutorTelegramIDs, model.RoleTutor)
	return roles
}
