package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/nimbuslab/crewbase/pkg/helper"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type (
	// APIServerConfig is the root configuration for the apiserver binary.
	APIServerConfig struct {
		Port     int            `yaml:"port"`
		BaseURL  string         `yaml:"base_url"` // public URL used in emails
		Database DatabaseConfig `yaml:"database"`
		Logger   LoggerConfig   `yaml:"logger"`
		JWT      JWTConfig      `yaml:"jwt"`
		Stripe   StripeConfig   `yaml:"stripe"`
		SMTP     SMTPConfig     `yaml:"smtp"`
		Cache    CacheConfig    `yaml:"cache"`
		Metrics  MetricsConfig  `yaml:"metrics"`
	}

	DatabaseConfig struct {
		Type     string `yaml:"type"`     // postgres, mysql, sqlite
		Host     string `yaml:"host"`     // localhost
		Port     int    `yaml:"port"`     // 5432 (postgres), 3306 (mysql)
		User     string `yaml:"user"`     // postgres (for postgres), root (for mysql)
		Password string `yaml:"password"` // password
		DBName   string `yaml:"dbname"`   // database name, or file path for sqlite
		SSLMode  string `yaml:"sslmode"`  // disable (for postgres)
	}

	LoggerConfig struct {
		Level      string `yaml:"level"`       // debug, info, warn, error
		Format     string `yaml:"format"`      // json, console
		Output     string `yaml:"output"`      // stdout, file
		FilePath   string `yaml:"file_path"`   // path to log file when output is file
		MaxSize    int    `yaml:"max_size"`    // max size of log file in MB
		MaxBackups int    `yaml:"max_backups"` // max number of backup files
		MaxAge     int    `yaml:"max_age"`     // max age of backup files in days
		Compress   bool   `yaml:"compress"`    // whether to compress backup files
		Color      bool   `yaml:"color"`       // whether to use color in console output
		Stacktrace bool   `yaml:"stacktrace"`  // whether to include stacktrace in error logs
		TimeFormat string `yaml:"time_format"` // time format for log timestamps
	}

	JWTConfig struct {
		SecretKey string        `yaml:"secret_key"`
		Duration  time.Duration `yaml:"duration"`
	}

	// StripeConfig holds the billing processor credentials.
	StripeConfig struct {
		SecretKey     string `yaml:"secret_key"`
		WebhookSecret string `yaml:"webhook_secret"`
		SuccessURL    string `yaml:"success_url"`
		CancelURL     string `yaml:"cancel_url"`
		PortalURL     string `yaml:"portal_url"` // return URL for the billing portal
	}

	// SMTPConfig configures transactional email delivery.
	SMTPConfig struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
		Enabled  bool   `yaml:"enabled"`
	}

	// CacheConfig configures the optional Redis memoization layer.
	CacheConfig struct {
		Type     string        `yaml:"type"` // none or redis
		Addr     string        `yaml:"addr"`
		Username string        `yaml:"username"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		Prefix   string        `yaml:"prefix"`
		TTL      time.Duration `yaml:"ttl"`
	}

	MetricsConfig struct {
		Enabled   bool      `yaml:"enabled"`
		Namespace string    `yaml:"namespace"`
		Buckets   []float64 `yaml:"buckets"`
	}
)

// GetDSN returns the database connection string.
func (c *DatabaseConfig) GetDSN() string {
	switch c.Type {
	case "postgres":
		return c.postgresDSN()
	case "mysql":
		return c.mysqlDSN()
	case "sqlite":
		return c.DBName // for sqlite DBName is the file path
	default:
		return ""
	}
}

func (c *DatabaseConfig) postgresDSN() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, sslmode)
}

func (c *DatabaseConfig) mysqlDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// LoadConfig loads configuration from a YAML file with environment variable
// expansion. Placeholders have the form ${NAME} or ${NAME:default}.
func LoadConfig(filename string) (*APIServerConfig, string, error) {
	_ = godotenv.Load()

	cfgPath := helper.GetCfgPath(filename)
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}

	data = resolveEnv(data)
	var cfg APIServerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, cfgPath, err
	}

	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	if cfg.JWT.Duration <= 0 {
		cfg.JWT.Duration = 24 * time.Hour
	}
	if cfg.Cache.TTL <= 0 {
		cfg.Cache.TTL = 5 * time.Minute
	}

	return &cfg, cfgPath, nil
}

// resolveEnv replaces environment variable placeholders in YAML content.
func resolveEnv(content []byte) []byte {
	regex := regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

	return regex.ReplaceAllFunc(content, func(match []byte) []byte {
		matches := regex.FindSubmatch(match)
		envKey := string(matches[1])
		var defaultValue string

		if len(matches) > 2 {
			defaultValue = string(matches[2])
		}

		if value, exists := os.LookupEnv(envKey); exists {
			return []byte(value)
		}
		return []byte(defaultValue)
	})
}
