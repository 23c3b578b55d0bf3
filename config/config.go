package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	Database  DatabaseConfig
	Market    MarketConfig
	Storage   StorageConfig
	Training  TrainingConfig
	Scheduler SchedulerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port                  string
	GinMode               string
	CORSOrigins           []string
	ReadTimeout           time.Duration
	WriteTimeout          time.Duration
	MaxConcurrentTraining int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// DatabaseConfig selects the forecast recorder backend
type DatabaseConfig struct {
	URL        string
	SQLitePath string
}

// MarketConfig holds upstream market data configuration
type MarketConfig struct {
	Provider          string
	PolygonAPIKey     string
	PolygonRatePerMin int
	Proxy             string
	SymbolsFile       string
}

// StorageConfig holds the cache and artifact roots
type StorageConfig struct {
	CacheDir    string
	ModelDir    string
	CacheMaxAge time.Duration
	Period      string
}

// TrainingConfig holds sequence model hyperparameters
type TrainingConfig struct {
	Epochs       int
	Patience     int
	BatchSize    int
	Hidden       int
	LearningRate float64
	Seed         int64
}

// SchedulerConfig holds the refresh job configuration
type SchedulerConfig struct {
	RefreshCron    string
	RefreshTickers []string
}

// Load reads .env (if present), an optional YAML file named by CONFIG_FILE,
// and environment variables, in increasing order of precedence.
func Load() (*Config, *viper.Viper, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:                  v.GetString("PORT"),
			GinMode:               v.GetString("GIN_MODE"),
			CORSOrigins:           splitList(v.GetString("CORS_ORIGINS")),
			ReadTimeout:           v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:          v.GetDuration("SERVER_WRITE_TIMEOUT"),
			MaxConcurrentTraining: v.GetInt("MAX_CONCURRENT_TRAINING"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Database: DatabaseConfig{
			URL:        v.GetString("DATABASE_URL"),
			SQLitePath: v.GetString("SQLITE_PATH"),
		},
		Market: MarketConfig{
			Provider:          strings.ToLower(v.GetString("MARKET_DATA_PROVIDER")),
			PolygonAPIKey:     v.GetString("POLYGON_API_KEY"),
			PolygonRatePerMin: v.GetInt("POLYGON_RATE_PER_MIN"),
			Proxy:             v.GetString("HTTPS_PROXY"),
			SymbolsFile:       v.GetString("SYMBOLS_FILE"),
		},
		Storage: StorageConfig{
			CacheDir:    v.GetString("CACHE_DIR"),
			ModelDir:    v.GetString("MODEL_DIR"),
			CacheMaxAge: v.GetDuration("CACHE_MAX_AGE"),
			Period:      v.GetString("HISTORY_PERIOD"),
		},
		Training: TrainingConfig{
			Epochs:       v.GetInt("TRAIN_EPOCHS"),
			Patience:     v.GetInt("TRAIN_PATIENCE"),
			BatchSize:    v.GetInt("TRAIN_BATCH_SIZE"),
			Hidden:       v.GetInt("TRAIN_HIDDEN"),
			LearningRate: v.GetFloat64("TRAIN_LEARNING_RATE"),
			Seed:         v.GetInt64("TRAIN_SEED"),
		},
		Scheduler: SchedulerConfig{
			RefreshCron:    v.GetString("REFRESH_CRON"),
			RefreshTickers: splitList(v.GetString("REFRESH_TICKERS")),
		},
	}

	return cfg, v, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Market.Provider {
	case "yahoo":
	case "polygon":
		if c.Market.PolygonAPIKey == "" {
			return fmt.Errorf("POLYGON_API_KEY is required when MARKET_DATA_PROVIDER=polygon")
		}
	default:
		return fmt.Errorf("unknown MARKET_DATA_PROVIDER %q", c.Market.Provider)
	}
	if c.Storage.CacheDir == "" || c.Storage.ModelDir == "" {
		return fmt.Errorf("CACHE_DIR and MODEL_DIR must be set")
	}
	if c.Storage.CacheMaxAge < 0 {
		return fmt.Errorf("CACHE_MAX_AGE must not be negative")
	}
	if c.Training.Epochs <= 0 || c.Training.BatchSize <= 0 || c.Training.Hidden <= 0 {
		return fmt.Errorf("TRAIN_EPOCHS, TRAIN_BATCH_SIZE and TRAIN_HIDDEN must be positive")
	}
	if c.Server.MaxConcurrentTraining <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_TRAINING must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "5000")
	v.SetDefault("GIN_MODE", "release")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("SERVER_READ_TIMEOUT", "15s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "5m")
	v.SetDefault("MAX_CONCURRENT_TRAINING", 2)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SQLITE_PATH", "")

	v.SetDefault("MARKET_DATA_PROVIDER", "yahoo")
	v.SetDefault("POLYGON_API_KEY", "")
	v.SetDefault("POLYGON_RATE_PER_MIN", 5)
	v.SetDefault("HTTPS_PROXY", "")
	v.SetDefault("SYMBOLS_FILE", "")

	v.SetDefault("CACHE_DIR", "stock_data")
	v.SetDefault("MODEL_DIR", "models_store")
	v.SetDefault("CACHE_MAX_AGE", "0s")
	v.SetDefault("HISTORY_PERIOD", "2y")

	v.SetDefault("TRAIN_EPOCHS", 10)
	v.SetDefault("TRAIN_PATIENCE", 3)
	v.SetDefault("TRAIN_BATCH_SIZE", 32)
	v.SetDefault("TRAIN_HIDDEN", 50)
	v.SetDefault("TRAIN_LEARNING_RATE", 0.001)
	v.SetDefault("TRAIN_SEED", 42)

	v.SetDefault("REFRESH_CRON", "0 30 22 * * 1-5")
	v.SetDefault("REFRESH_TICKERS", "AAPL,TSLA,AMZN,GOOGL,NFLX,NVDA,INTC,BA,SPY,XOM")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
