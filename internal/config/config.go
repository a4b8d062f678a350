package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Panel    PanelConfig
	Selector SelectorConfig
	Telegram TelegramConfig
	Alerts   AlertsConfig
	API      APIConfig
}

type ServerConfig struct {
	Port int
	Env  string // "development", "production"
}

type DatabaseConfig struct {
	Host    string
	Port    string
	Name    string
	User    string
	Pass    string
	Charset string
}

type RedisConfig struct {
	Addr string
	Pass string
	DB   int
}

// PanelConfig tunes the remote panel clients.
type PanelConfig struct {
	Timeout      time.Duration
	RetryBackoff time.Duration
}

// SelectorConfig tunes server placement.
type SelectorConfig struct {
	LoadThreshold float64
	PoolSize      int
}

// TelegramConfig configures operator notifications. An empty token
// disables them.
type TelegramConfig struct {
	BotToken    string
	AdminChatID string
}

type AlertsConfig struct {
	ExpiryWarnDays int
}

type APIConfig struct {
	Key string
}

// Load reads configuration from .env file and environment variables.
func Load() (*Config, error) {
	// Load .env file (ignore error if missing)
	_ = godotenv.Load()

	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("APP_PORT", 8080)
	viper.SetDefault("APP_ENV", "production")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "3306")
	viper.SetDefault("DB_CHARSET", "utf8mb4")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("PANEL_TIMEOUT", "30s")
	viper.SetDefault("PANEL_RETRY_BACKOFF", "1s")
	viper.SetDefault("SELECTOR_LOAD_THRESHOLD", 90.0)
	viper.SetDefault("SELECTOR_POOL_SIZE", 3)
	viper.SetDefault("ALERT_EXPIRY_WARN_DAYS", 3)

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetInt("APP_PORT"),
			Env:  viper.GetString("APP_ENV"),
		},
		Database: DatabaseConfig{
			Host:    viper.GetString("DB_HOST"),
			Port:    viper.GetString("DB_PORT"),
			Name:    viper.GetString("DB_NAME"),
			User:    viper.GetString("DB_USER"),
			Pass:    viper.GetString("DB_PASS"),
			Charset: viper.GetString("DB_CHARSET"),
		},
		Redis: RedisConfig{
			Addr: viper.GetString("REDIS_ADDR"),
			Pass: viper.GetString("REDIS_PASS"),
			DB:   viper.GetInt("REDIS_DB"),
		},
		Panel: PanelConfig{
			Timeout:      durationOr("PANEL_TIMEOUT", 30*time.Second),
			RetryBackoff: durationOr("PANEL_RETRY_BACKOFF", time.Second),
		},
		Selector: SelectorConfig{
			LoadThreshold: viper.GetFloat64("SELECTOR_LOAD_THRESHOLD"),
			PoolSize:      viper.GetInt("SELECTOR_POOL_SIZE"),
		},
		Telegram: TelegramConfig{
			BotToken:    viper.GetString("TELEGRAM_BOT_TOKEN"),
			AdminChatID: viper.GetString("TELEGRAM_ADMIN_CHAT_ID"),
		},
		Alerts: AlertsConfig{
			ExpiryWarnDays: viper.GetInt("ALERT_EXPIRY_WARN_DAYS"),
		},
		API: APIConfig{
			Key: viper.GetString("API_KEY"),
		},
	}

	if cfg.Database.Name == "" {
		log.Println("WARNING: DB_NAME is not set")
	}
	if cfg.API.Key == "" {
		log.Println("WARNING: API_KEY is not set, admin API is unprotected")
	}

	return cfg, nil
}

// LoadDatabaseOnly reads just the database settings, for the
// --bootstrap-db path.
func LoadDatabaseOnly() (*DatabaseConfig, error) {
	_ = godotenv.Load()
	viper.AutomaticEnv()
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "3306")
	viper.SetDefault("DB_CHARSET", "utf8mb4")

	return &DatabaseConfig{
		Host:    viper.GetString("DB_HOST"),
		Port:    viper.GetString("DB_PORT"),
		Name:    viper.GetString("DB_NAME"),
		User:    viper.GetString("DB_USER"),
		Pass:    viper.GetString("DB_PASS"),
		Charset: viper.GetString("DB_CHARSET"),
	}, nil
}

func durationOr(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(viper.GetString(key))
	if err != nil {
		return fallback
	}
	return d
}

// DSN returns the MySQL DSN string for GORM.
func (d *DatabaseConfig) DSN() string {
	return d.User + ":" + d.Pass + "@tcp(" + d.Host + ":" + d.Port + ")/" + d.Name + "?charset=" + d.Charset + "&parseTime=True&loc=Local"
}
