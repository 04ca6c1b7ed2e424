package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	API        APIConfig        `yaml:"api"`
	Validation ValidationConfig `yaml:"validation"`
	Storage    StorageConfig    `yaml:"storage"`
	Warehouse  WarehouseConfig  `yaml:"warehouse"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// APIConfig for the Auckland Transport GTFS API
type APIConfig struct {
	BaseURL       string        `yaml:"baseURL" validate:"required,url"`
	APIKey        string        `yaml:"apiKey" validate:"required"`
	Timeout       time.Duration `yaml:"timeout" validate:"gt=0"`
	StopCodes     []string      `yaml:"stopCodes"`
	RouteIDs      []string      `yaml:"routeIDs"` // Empty: trips are pulled for every filtered stop
	TripStartHour int           `yaml:"tripStartHour" validate:"gte=0,lte=23"`
	TripHourRange int           `yaml:"tripHourRange" validate:"gt=0,lte=48"`
	Retry         RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int           `yaml:"maxAttempts" validate:"gte=1"`
	InitialInterval time.Duration `yaml:"initialInterval" validate:"gt=0"`
	MaxInterval     time.Duration `yaml:"maxInterval" validate:"gtefield=InitialInterval"`
}

type ValidationConfig struct {
	Policy string `yaml:"policy" validate:"oneof=reject drop"`
}

type StorageConfig struct {
	Backend  string `yaml:"backend" validate:"oneof=gcs file"`
	Bucket   string `yaml:"bucket" validate:"required"`
	Prefix   string `yaml:"prefix"`
	LocalDir string `yaml:"localDir" validate:"required_if=Backend file"`
	// TokenEnvVar names an environment variable holding a GCP access token
	TokenEnvVar string `yaml:"tokenEnvVar"`
}

type WarehouseConfig struct {
	Backend    string         `yaml:"backend" validate:"oneof=bigquery postgres sqlite"`
	Dataset    string         `yaml:"dataset" validate:"required"`
	ProjectID  string         `yaml:"projectID" validate:"required_if=Backend bigquery"`
	Database   DatabaseConfig `yaml:"database" validate:"-"`
	SQLitePath string         `yaml:"sqlitePath" validate:"required_if=Backend sqlite"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host" validate:"required"`
	Port     string `yaml:"port" validate:"required"`
	User     string `yaml:"user" validate:"required"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname" validate:"required"`
	SSLMode  string `yaml:"sslmode"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	FilePath   string `yaml:"filePath"`
	DiscordURL string `yaml:"discordURL" validate:"omitempty,url"`
}

var DefaultStopCodes = []string{"8147", "8545", "7149", "8331", "7133"}

// Load builds the configuration from the environment, applying defaults
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads an optional YAML file and lets the environment override it
func LoadFile(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:       "https://api.at.govt.nz/gtfs/v3",
			Timeout:       30 * time.Second,
			StopCodes:     append([]string(nil), DefaultStopCodes...),
			TripStartHour: 3,
			TripHourRange: 24,
			Retry: RetryConfig{
				MaxAttempts:     1,
				InitialInterval: time.Second,
				MaxInterval:     30 * time.Second,
			},
		},
		Validation: ValidationConfig{Policy: "reject"},
		Storage: StorageConfig{
			Backend:  "gcs",
			Bucket:   "pne-open-data",
			LocalDir: "./data",
		},
		Warehouse: WarehouseConfig{
			Backend: "bigquery",
			Dataset: "at_bus_bronze",
			Database: DatabaseConfig{
				Host:    "localhost",
				Port:    "5432",
				User:    "postgres",
				DBName:  "at_bus",
				SSLMode: "disable",
			},
			SQLitePath: "at_bus.db",
		},
		Logging: LoggingConfig{
			Level:    "info",
			FilePath: "at-bus-load.log",
		},
	}
}

func applyEnv(c *Config) {
	c.API.BaseURL = getEnv("AT_API_BASE_URL", c.API.BaseURL)
	c.API.APIKey = getEnv("AT_API_KEY", c.API.APIKey)
	c.API.Timeout = getDurationEnv("AT_API_TIMEOUT", c.API.Timeout)
	c.API.StopCodes = getListEnv("AT_STOP_CODES", c.API.StopCodes)
	c.API.RouteIDs = getListEnv("AT_TRIP_ROUTE_IDS", c.API.RouteIDs)
	c.API.TripStartHour = getIntEnv("AT_TRIP_START_HOUR", c.API.TripStartHour)
	c.API.TripHourRange = getIntEnv("AT_TRIP_HOUR_RANGE", c.API.TripHourRange)
	c.API.Retry.MaxAttempts = getIntEnv("AT_API_MAX_ATTEMPTS", c.API.Retry.MaxAttempts)
	c.API.Retry.InitialInterval = getDurationEnv("AT_API_RETRY_INITIAL", c.API.Retry.InitialInterval)
	c.API.Retry.MaxInterval = getDurationEnv("AT_API_RETRY_MAX", c.API.Retry.MaxInterval)

	c.Validation.Policy = strings.ToLower(getEnv("VALIDATION_POLICY", c.Validation.Policy))

	c.Storage.Backend = strings.ToLower(getEnv("STORAGE_BACKEND", c.Storage.Backend))
	c.Storage.Bucket = getEnv("STORAGE_BUCKET", c.Storage.Bucket)
	c.Storage.Prefix = getEnv("STORAGE_PREFIX", c.Storage.Prefix)
	c.Storage.LocalDir = getEnv("STORAGE_LOCAL_DIR", c.Storage.LocalDir)

	c.Warehouse.Backend = strings.ToLower(getEnv("WAREHOUSE_BACKEND", c.Warehouse.Backend))
	c.Warehouse.Dataset = getEnv("WAREHOUSE_DATASET", c.Warehouse.Dataset)
	c.Warehouse.ProjectID = getEnv("GCP_PROJECT", c.Warehouse.ProjectID)
	c.Warehouse.SQLitePath = getEnv("SQLITE_PATH", c.Warehouse.SQLitePath)
	c.Warehouse.Database.Host = getEnv("DB_HOST", c.Warehouse.Database.Host)
	c.Warehouse.Database.Port = getEnv("DB_PORT", c.Warehouse.Database.Port)
	c.Warehouse.Database.User = getEnv("DB_USER", c.Warehouse.Database.User)
	c.Warehouse.Database.Password = getEnv("DB_PASSWORD", c.Warehouse.Database.Password)
	c.Warehouse.Database.DBName = getEnv("DB_NAME", c.Warehouse.Database.DBName)
	c.Warehouse.Database.SSLMode = getEnv("DB_SSLMODE", c.Warehouse.Database.SSLMode)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.FilePath = getEnv("LOG_FILE", c.Logging.FilePath)
	c.Logging.DiscordURL = getEnv("LOG_DISCORD_WEBHOOK", c.Logging.DiscordURL)
}

var validate = validator.New()

// Validate checks the settings needed to call the AT API
func (c *APIConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid api configuration: %w", err)
	}
	return nil
}

func (c *ValidationConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid validation configuration: %w", err)
	}
	return nil
}

func (c *StorageConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid storage configuration: %w", err)
	}
	return nil
}

func (c *WarehouseConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid warehouse configuration: %w", err)
	}
	if c.Backend == "postgres" {
		if err := c.Database.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid database configuration: %w", err)
	}
	return nil
}

// ValidateExtract checks everything the extract step touches
func (c *Config) ValidateExtract() error {
	if err := c.API.Validate(); err != nil {
		return err
	}
	if err := c.Validation.Validate(); err != nil {
		return err
	}
	return c.Storage.Validate()
}

// ValidateLoad checks everything the load step touches
func (c *Config) ValidateLoad() error {
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.Warehouse.Validate(); err != nil {
		return err
	}
	if c.Warehouse.Backend == "bigquery" && c.Storage.Backend != "gcs" {
		return fmt.Errorf("invalid warehouse configuration: bigquery loads require the gcs storage backend")
	}
	return nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
