package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Inbox      InboxConfig      `mapstructure:"inbox"`
	OCR        OCRConfig        `mapstructure:"ocr"`
	ImageHost  ImageHostConfig  `mapstructure:"image_host"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Validation ValidationConfig `mapstructure:"validation"`
	Sweeper    SweeperConfig    `mapstructure:"sweeper"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// WebhookConfig holds the signed-webhook verification settings
type WebhookConfig struct {
	Secret    string        `mapstructure:"secret"`
	Tolerance time.Duration `mapstructure:"tolerance"`
}

// InboxConfig holds inbox provider API configuration
type InboxConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// OCRConfig holds the OCR service configuration
type OCRConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
	Language string `mapstructure:"language"`
}

// ImageHostConfig holds the image hosting service configuration
type ImageHostConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// LedgerConfig holds the spreadsheet ledger configuration
type LedgerConfig struct {
	SpreadsheetID string `mapstructure:"spreadsheet_id"`
	SheetName     string `mapstructure:"sheet_name"`
	ClientID      string `mapstructure:"client_id"`
	ClientSecret  string `mapstructure:"client_secret"`
	RefreshToken  string `mapstructure:"refresh_token"`
}

// ValidationConfig holds the expected recipient identity used to judge
// receipt validity. Both values are required; extraction refuses to
// mark a receipt valid without them.
type ValidationConfig struct {
	TargetName  string `mapstructure:"target_name"`
	TargetPhone string `mapstructure:"target_phone"`
}

// SweeperConfig holds the pending-ledger-write sweeper configuration
type SweeperConfig struct {
	IntervalMinutes int `mapstructure:"interval_minutes"`
	BatchSize       int `mapstructure:"batch_size"`
}

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set defaults
	setDefaults()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables override config file
	viper.AutomaticEnv()

	// Bind environment variables
	bindEnvVars()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)

	viper.SetDefault("webhook.tolerance", "5m")

	viper.SetDefault("inbox.base_url", "https://api.resend.com")

	viper.SetDefault("ocr.endpoint", "https://api.ocr.space/parse/image")
	viper.SetDefault("ocr.language", "spa")

	viper.SetDefault("image_host.endpoint", "https://api.imgbb.com/1/upload")

	viper.SetDefault("ledger.sheet_name", "Receipts")

	viper.SetDefault("sweeper.interval_minutes", 10)
	viper.SetDefault("sweeper.batch_size", 25)
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	// Database
	viper.BindEnv("database.host", "DB_HOST")
	viper.BindEnv("database.port", "DB_PORT")
	viper.BindEnv("database.user", "DB_USER")
	viper.BindEnv("database.password", "DB_PASSWORD")
	viper.BindEnv("database.dbname", "DB_NAME")

	// Webhook
	viper.BindEnv("webhook.secret", "WEBHOOK_SECRET")
	viper.BindEnv("webhook.tolerance", "WEBHOOK_TOLERANCE")

	// Inbox provider
	viper.BindEnv("inbox.api_key", "INBOX_API_KEY")
	viper.BindEnv("inbox.base_url", "INBOX_BASE_URL")

	// OCR
	viper.BindEnv("ocr.api_key", "OCR_API_KEY")
	viper.BindEnv("ocr.endpoint", "OCR_ENDPOINT")
	viper.BindEnv("ocr.language", "OCR_LANGUAGE")

	// Image host
	viper.BindEnv("image_host.api_key", "IMAGE_HOST_API_KEY")
	viper.BindEnv("image_host.endpoint", "IMAGE_HOST_ENDPOINT")

	// Ledger
	viper.BindEnv("ledger.spreadsheet_id", "LEDGER_SPREADSHEET_ID")
	viper.BindEnv("ledger.sheet_name", "LEDGER_SHEET_NAME")
	viper.BindEnv("ledger.client_id", "LEDGER_CLIENT_ID")
	viper.BindEnv("ledger.client_secret", "LEDGER_CLIENT_SECRET")
	viper.BindEnv("ledger.refresh_token", "LEDGER_REFRESH_TOKEN")

	// Validation targets
	viper.BindEnv("validation.target_name", "VALIDATION_TARGET_NAME")
	viper.BindEnv("validation.target_phone", "VALIDATION_TARGET_PHONE")

	// Sweeper
	viper.BindEnv("sweeper.interval_minutes", "SWEEPER_INTERVAL_MINUTES")
	viper.BindEnv("sweeper.batch_size", "SWEEPER_BATCH_SIZE")
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// Validate validates the configuration. Every credential is required;
// there are no fallback secrets.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return fmt.Errorf("database host, user, and dbname are required")
	}

	if c.Webhook.Secret == "" {
		return fmt.Errorf("webhook secret is required")
	}

	if c.Inbox.APIKey == "" {
		return fmt.Errorf("inbox provider API key is required")
	}

	if c.OCR.APIKey == "" {
		return fmt.Errorf("OCR API key is required")
	}

	if c.ImageHost.APIKey == "" {
		return fmt.Errorf("image host API key is required")
	}

	if c.Ledger.SpreadsheetID == "" {
		return fmt.Errorf("ledger spreadsheet id is required")
	}
	if c.Ledger.ClientID == "" || c.Ledger.ClientSecret == "" || c.Ledger.RefreshToken == "" {
		return fmt.Errorf("ledger OAuth2 credentials are required")
	}

	if c.Validation.TargetName == "" || c.Validation.TargetPhone == "" {
		return fmt.Errorf("validation target name and phone are required")
	}

	if c.Sweeper.IntervalMinutes <= 0 {
		return fmt.Errorf("sweeper interval must be greater than 0")
	}

	return nil
}
