package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Log         struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"`
		Output     string `yaml:"output"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
		Digest     struct {
			Enabled        bool          `yaml:"enabled"`
			Topic          string        `yaml:"topic"`
			Interval       time.Duration `yaml:"interval"`
			CountThreshold int           `yaml:"count_threshold"`
		} `yaml:"digest"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Kafka struct {
		Brokers         []string `yaml:"brokers"`
		SnapshotTopic   string   `yaml:"snapshot_topic"`
		PredictionTopic string   `yaml:"prediction_topic"`
		RequiredAcks    int      `yaml:"required_acks"`
		Compression     string   `yaml:"compression"`
		Producer        struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Feed struct {
		Enabled        bool          `yaml:"enabled"`
		WebSocketURL   string        `yaml:"websocket_url"`
		Instruments    []string      `yaml:"instruments"`
		Depth          int           `yaml:"depth"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		ThrottleMin    time.Duration `yaml:"throttle_min"`
		BufferSize     int           `yaml:"buffer_size"`
		Backend        string        `yaml:"backend"`
	} `yaml:"feed"`
	Runtime struct {
		BaseURL      string        `yaml:"base_url"`
		Timeout      time.Duration `yaml:"timeout"`
		Retries      int           `yaml:"retries"`
		Device       string        `yaml:"device"`
		MemoryGrowth bool          `yaml:"memory_growth"`
		ChunkSize    int           `yaml:"chunk_size"`
	} `yaml:"runtime"`
	Dataset struct {
		Dir          string   `yaml:"dir"`
		TrainFile    string   `yaml:"train_file"`
		TestFiles    []string `yaml:"test_files"`
		WindowLength int      `yaml:"window_length"`
		// Horizon is the prediction horizon in order-book events
		// (10, 20, 30, 50 or 100), mapping to label columns 0-4.
		Horizon     int `yaml:"horizon"`
		NumFeatures int `yaml:"num_features"`
	} `yaml:"dataset"`
	Training struct {
		BatchSize       int           `yaml:"batch_size"`
		Epochs          int           `yaml:"epochs"`
		RecurrentUnits  int           `yaml:"recurrent_units"`
		ValidationSplit float64       `yaml:"validation_split"`
		ShuffleSeed     int64         `yaml:"shuffle_seed"`
		PollInterval    time.Duration `yaml:"poll_interval"`
	} `yaml:"training"`
	Queue struct {
		Enabled    bool          `yaml:"enabled"`
		Workers    int           `yaml:"workers"`
		MaxRetries int           `yaml:"max_retries"`
		RetryDelay time.Duration `yaml:"retry_delay"`
	} `yaml:"queue"`
	Archive struct {
		Enabled bool   `yaml:"enabled"`
		Dir     string `yaml:"dir"`
	} `yaml:"archive"`
	Predict struct {
		CacheTTL  time.Duration `yaml:"cache_ttl"`
		RateLimit float64       `yaml:"rate_limit"`
		RateBurst int           `yaml:"rate_burst"`
	} `yaml:"predict"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment
// variables. A .env file in the working directory is applied first when
// present.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("RUNTIME_URL"); v != "" {
		c.Runtime.BaseURL = v
	}
	if v := os.Getenv("RUNTIME_DEVICE"); v != "" {
		c.Runtime.Device = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("FEED_URL"); v != "" {
		c.Feed.WebSocketURL = v
	}
	if v := os.Getenv("INSTRUMENTS"); v != "" {
		c.Feed.Instruments = strings.Split(v, ",")
	}
	if v := os.Getenv("DATASET_DIR"); v != "" {
		c.Dataset.Dir = v
	}
	if v := os.Getenv("SHUFFLE_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse SHUFFLE_SEED: %w", err)
		}
		c.Training.ShuffleSeed = seed
	}

	return c, nil
}

// applyDefaults fills the reference training setup where the file is
// silent: window 100, horizon 50 events, 40 feature channels, batch 64,
// up to 200 epochs, 64 recurrent units.
func (c *Config) applyDefaults() {
	if c.Dataset.WindowLength == 0 {
		c.Dataset.WindowLength = 100
	}
	if c.Dataset.Horizon == 0 {
		c.Dataset.Horizon = 50
	}
	if c.Dataset.NumFeatures == 0 {
		c.Dataset.NumFeatures = 40
	}
	if c.Training.BatchSize == 0 {
		c.Training.BatchSize = 64
	}
	if c.Training.Epochs == 0 {
		c.Training.Epochs = 200
	}
	if c.Training.RecurrentUnits == 0 {
		c.Training.RecurrentUnits = 64
	}
	if c.Training.PollInterval == 0 {
		c.Training.PollInterval = 5 * time.Second
	}
	if c.Runtime.Timeout == 0 {
		c.Runtime.Timeout = 30 * time.Second
	}
	if c.Runtime.ChunkSize == 0 {
		c.Runtime.ChunkSize = 256
	}
	if c.Runtime.Device == "" {
		c.Runtime.Device = "gpu"
	}
	if c.Queue.Workers == 0 {
		c.Queue.Workers = 1
	}
	if c.Feed.Backend == "" {
		c.Feed.Backend = "kafka"
	}
	if c.Predict.CacheTTL == 0 {
		c.Predict.CacheTTL = 2 * time.Second
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Runtime.BaseURL == "" {
		return fmt.Errorf("runtime.base_url is required")
	}
	if c.Dataset.WindowLength < 1 {
		return fmt.Errorf("dataset.window_length must be positive, got %d", c.Dataset.WindowLength)
	}
	switch c.Dataset.Horizon {
	case 10, 20, 30, 50, 100:
	default:
		return fmt.Errorf("dataset.horizon must be one of 10, 20, 30, 50, 100, got %d", c.Dataset.Horizon)
	}
	if c.Dataset.NumFeatures < 1 {
		return fmt.Errorf("dataset.num_features must be positive, got %d", c.Dataset.NumFeatures)
	}
	if c.Training.BatchSize < 1 {
		return fmt.Errorf("training.batch_size must be positive, got %d", c.Training.BatchSize)
	}
	if c.Training.Epochs < 1 {
		return fmt.Errorf("training.epochs must be positive, got %d", c.Training.Epochs)
	}
	if c.Training.ValidationSplit < 0 || c.Training.ValidationSplit >= 1 {
		return fmt.Errorf("training.validation_split must be in [0,1), got %v", c.Training.ValidationSplit)
	}
	if c.Feed.Enabled && c.Feed.WebSocketURL == "" {
		return fmt.Errorf("feed.websocket_url is required when the feed is enabled")
	}
	if c.Feed.Enabled && len(c.Feed.Instruments) == 0 {
		return fmt.Errorf("feed.instruments cannot be empty when the feed is enabled")
	}
	return nil
}
