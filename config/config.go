package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vishalnemlekar/instabot/helpers"
	pkgerrors "github.com/vishalnemlekar/instabot/pkg/errors"
)

// Config represents the application configuration
type Config struct {
	// Crawl configuration
	ParentURLs    []string      `mapstructure:"parent_urls"`
	CrawlInterval time.Duration `mapstructure:"crawl_interval"`
	Headless      bool          `mapstructure:"headless"`
	ChromePath    string        `mapstructure:"chrome_path"`

	// Store configuration
	StoreDriver    string `mapstructure:"store_driver"`
	StoreDSN       string `mapstructure:"store_dsn"`
	StoreTable     string `mapstructure:"store_table"`
	StoreBatchSize int    `mapstructure:"store_batch_size"`

	// Redis configuration
	RedisAddr            string `mapstructure:"redis_addr"`
	RedisDB              int    `mapstructure:"redis_db"`
	RedisStream          string `mapstructure:"redis_stream"`
	RedisStreamCount     int    `mapstructure:"redis_stream_count"`
	RedisStreamMaxLength int    `mapstructure:"redis_stream_max_length"`
	RedisAlertKey        string `mapstructure:"redis_alert_key"`

	// Memcache configuration
	MemcacheAddr   string        `mapstructure:"memcache_addr"`
	RateLimitBlock time.Duration `mapstructure:"rate_limit_block"`

	// Alerting configuration
	TelegramBotToken string `mapstructure:"telegram_bot_token"`
	TelegramChatID   string `mapstructure:"telegram_chat_id"`
	TelegramAPIURL   string `mapstructure:"telegram_api_url"`
	AlertThreshold   int    `mapstructure:"alert_threshold"`
	AlertPageSize    int    `mapstructure:"alert_page_size"`
	PollMinutes      int    `mapstructure:"poll_minutes"`

	// Status endpoint, disabled when empty
	StatusAddr string `mapstructure:"status_addr"`

	// Environment
	Environment string `mapstructure:"environment"`
}

// LoadConfig loads the configuration from environment variables, an optional
// instabot.yaml and defaults
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("instabot")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/instabot/")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := v.BindEnv("environment", "INSTABOT_ENVIRONMENT"); err != nil {
		return nil, pkgerrors.NewConfiguration("failed to bind environment", err)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, pkgerrors.NewConfiguration("error reading config file", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, pkgerrors.NewConfiguration("unable to decode config", err)
	}
	cfg.ParentURLs = cleanList(cfg.ParentURLs)

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("parent_urls", []string{
		"https://www.swiggy.com/instamart/category-listing?categoryName=Dairy%2C+Bread+and+Eggs&custom_back=true&filterName=&offset=0&showAgeConsent=false&storeId=788745&taxonomyType=Speciality+taxonomy+1",
	})
	v.SetDefault("crawl_interval", "5m")
	v.SetDefault("headless", true)
	v.SetDefault("chrome_path", "")

	v.SetDefault("store_driver", "postgres")
	v.SetDefault("store_dsn", "")
	v.SetDefault("store_table", "instamart_products")
	v.SetDefault("store_batch_size", 400)

	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_stream", "instamart_changes")
	v.SetDefault("redis_stream_count", 1)
	v.SetDefault("redis_stream_max_length", 10000)
	v.SetDefault("redis_alert_key", "instabot:alerted")

	v.SetDefault("memcache_addr", "")
	v.SetDefault("rate_limit_block", "10m")

	v.SetDefault("telegram_bot_token", "")
	v.SetDefault("telegram_chat_id", "")
	v.SetDefault("telegram_api_url", "https://api.telegram.org")
	v.SetDefault("alert_threshold", 70)
	v.SetDefault("alert_page_size", 1000)
	v.SetDefault("poll_minutes", 10)

	v.SetDefault("status_addr", "")
	v.SetDefault("environment", "development")
}

// PollInterval returns the alert scan interval
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollMinutes) * time.Minute
}

// IsProduction reports whether the process runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ValidateStore checks what every process touching the store needs
func (c *Config) ValidateStore() error {
	switch c.StoreDriver {
	case "postgres", "sqlite":
	default:
		return pkgerrors.NewConfiguration(fmt.Sprintf("store driver must be 'postgres' or 'sqlite', got: %q", c.StoreDriver), nil)
	}
	if c.StoreDSN == "" {
		return pkgerrors.NewConfiguration("store DSN is required (set STORE_DSN)", nil)
	}
	if c.StoreTable == "" {
		return pkgerrors.NewConfiguration("store table is required (set STORE_TABLE)", nil)
	}
	return nil
}

// ValidateCrawl checks the crawl process configuration
func (c *Config) ValidateCrawl() error {
	if err := c.ValidateStore(); err != nil {
		return err
	}
	if len(c.ParentURLs) == 0 {
		return pkgerrors.NewConfiguration("at least one parent URL is required (set PARENT_URLS)", nil)
	}
	if c.StoreBatchSize <= 0 {
		return pkgerrors.NewConfiguration("store batch size must be positive", nil)
	}
	if c.CrawlInterval < 0 {
		return pkgerrors.NewConfiguration("crawl interval must not be negative", nil)
	}
	return nil
}

// ValidateAlert checks the alerting process configuration
func (c *Config) ValidateAlert() error {
	if err := c.ValidateStore(); err != nil {
		return err
	}
	if c.TelegramBotToken == "" || c.TelegramChatID == "" {
		return pkgerrors.NewConfiguration("telegram credentials are required (set TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID)", nil)
	}
	if c.RedisAddr == "" {
		return pkgerrors.NewConfiguration("redis address is required for alert state (set REDIS_ADDR)", nil)
	}
	if c.PollMinutes <= 0 {
		return pkgerrors.NewConfiguration("poll minutes must be positive", nil)
	}
	if c.AlertPageSize <= 0 {
		return pkgerrors.NewConfiguration("alert page size must be positive", nil)
	}
	return nil
}

// cleanList flattens entries that still carry comma separated values
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, helpers.SplitList(s)...)
	}
	return out
}
