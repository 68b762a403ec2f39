package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"CandleCast/internal/domain/models"
	"CandleCast/internal/services/indicators"
	"CandleCast/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"oneof=development staging production"`
	Service     string `yaml:"service" default:"candlecast"`

	Log struct {
		Level      string        `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format     string        `yaml:"format" default:"json" validate:"oneof=json console"`
		Collect    bool          `yaml:"collect"`
		Topic      string        `yaml:"topic" default:"logs"`
		Interval   time.Duration `yaml:"interval" default:"10s"`
		BatchLimit int           `yaml:"batch_limit" default:"100"`
	} `yaml:"log"`

	Server struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		RateLimit       float64       `yaml:"rate_limit" default:"20"`
		RateBurst       int           `yaml:"rate_burst" default:"40"`
	} `yaml:"server"`

	// Pairs lists the trading pairs followed, normalized like BTCUSDT.
	Pairs []string `yaml:"pairs" validate:"required,min=1,dive,alphanum"`

	Stream struct {
		Durations     []time.Duration `yaml:"durations" default:"[60000000000]" validate:"required,min=1,dive,gte=1s"`
		Lateness      time.Duration   `yaml:"lateness" default:"2s" validate:"gte=0"`
		FlushInterval time.Duration   `yaml:"flush_interval" default:"1s" validate:"gt=0"`
		LaneBuffer    int             `yaml:"lane_buffer" default:"1024" validate:"gte=1"`
	} `yaml:"stream"`

	Indicators indicators.Config `yaml:"indicators"`

	Features struct {
		SentimentStaleness time.Duration `yaml:"sentiment_staleness" default:"15m" validate:"gt=0"`
	} `yaml:"features"`

	Model struct {
		Duration           time.Duration `yaml:"duration" default:"1m"`
		Horizon            time.Duration `yaml:"horizon" default:"5m" validate:"gt=0"`
		TrainingWindow     time.Duration `yaml:"training_window" default:"168h" validate:"gt=0"`
		MinSamples         int           `yaml:"min_samples" default:"500" validate:"gte=10"`
		ValidationRatio    float64       `yaml:"validation_ratio" default:"0.2" validate:"gt=0,lt=1"`
		Trials             int           `yaml:"trials" default:"20" validate:"gte=1"`
		Folds              int           `yaml:"folds" default:"3" validate:"gte=2"`
		Seed               int64         `yaml:"seed" default:"42"`
		PromotionTolerance float64       `yaml:"promotion_tolerance" default:"0" validate:"gte=0"`
		BaselineTolerance  float64       `yaml:"baseline_tolerance" default:"0" validate:"gte=0"`
		ConfidenceZ        float64       `yaml:"confidence_z" default:"1.96" validate:"gt=0"`
		Schedule           string        `yaml:"schedule" default:"0 0 */6 * * *"`
		ReloadSchedule     string        `yaml:"reload_schedule" default:"*/30 * * * * *"`
		LockTTL            time.Duration `yaml:"lock_ttl" default:"30m"`
	} `yaml:"model"`

	Inference struct {
		Workers   int `yaml:"workers" default:"4" validate:"gte=1"`
		QueueSize int `yaml:"queue_size" default:"1024" validate:"gte=1"`
	} `yaml:"inference"`

	Drift struct {
		Method         string        `yaml:"method" default:"psi" validate:"oneof=psi ks"`
		Threshold      float64       `yaml:"threshold" default:"0.2" validate:"gt=0"`
		Consecutive    int           `yaml:"consecutive" default:"3" validate:"gte=1"`
		Bins           int           `yaml:"bins" default:"10" validate:"gte=2"`
		Window         time.Duration `yaml:"window" default:"6h" validate:"gt=0"`
		MAEDegradation float64       `yaml:"mae_degradation" default:"0.25" validate:"gt=0"`
		DatasetShare   float64       `yaml:"dataset_share" default:"0.1" validate:"gt=0,lt=1"`
		Schedule       string        `yaml:"schedule" default:"0 */15 * * * *"`
		RetrainOnAlert bool          `yaml:"retrain_on_alert" default:"true"`
	} `yaml:"drift"`

	Queue struct {
		Workers    int           `yaml:"workers" default:"1" validate:"gte=1"`
		RetryLimit int           `yaml:"retry_limit" default:"2"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"1m"`
	} `yaml:"queue"`

	Kafka struct {
		Brokers      []string `yaml:"brokers" validate:"required,min=1"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"lz4" validate:"oneof=gzip snappy lz4 zstd"`
		Topics       struct {
			Trades     string `yaml:"trades" default:"trades"`
			Sentiment  string `yaml:"sentiment" default:"sentiment"`
			Candles    string `yaml:"candles" default:"candles"`
			Indicators string `yaml:"indicators" default:"technical_indicators"`
			Prediction string `yaml:"predictions" default:"predictions"`
			Drift      string `yaml:"drift_alerts" default:"drift_alerts"`
			DLQ        string `yaml:"dlq" default:"candlecast.dlq"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID     string        `yaml:"group_id" default:"candlecast"`
			StartOffset string        `yaml:"start_offset" default:"earliest" validate:"oneof=earliest latest"`
			Workers     int           `yaml:"workers" default:"4" validate:"gte=1"`
			BufferSize  int           `yaml:"buffer_size" default:"256"`
			RetryMax    int           `yaml:"retry_max" default:"3"`
			BackoffMin  time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax  time.Duration `yaml:"backoff_max" default:"2s"`
			MinBytes    int           `yaml:"min_bytes" default:"1"`
			MaxBytes    int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`

	ClickHouse struct {
		Host             string        `yaml:"host" validate:"required"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"candlecast"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		InitSchema       bool          `yaml:"init_schema" default:"true"`
	} `yaml:"clickhouse"`

	Redis struct {
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"candlecast"`
		PoolSize int    `yaml:"pool_size" default:"10"`
	} `yaml:"redis"`

	Exchange struct {
		Enabled        bool          `yaml:"enabled" default:"true"`
		URL            string        `yaml:"url" default:"wss://stream.binance.com:9443/stream"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"2s"`
		MaxReconnect   time.Duration `yaml:"max_reconnect_delay" default:"1m"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
		BatchSize      int           `yaml:"batch_size" default:"200"`
		BatchTimeout   time.Duration `yaml:"batch_timeout" default:"100ms"`
	} `yaml:"exchange"`

	Sentiment struct {
		Enabled  bool          `yaml:"enabled"`
		BaseURL  string        `yaml:"base_url" default:"https://lunarcrush.com/api4/public"`
		APIKey   string        `yaml:"api_key"`
		Timeout  time.Duration `yaml:"timeout" default:"10s"`
		Schedule string        `yaml:"schedule" default:"0 */5 * * * *"`
		CacheTTL time.Duration `yaml:"cache_ttl" default:"30m"`
	} `yaml:"sentiment"`
}

// Parse applies tag defaults and decodes YAML over them, so an explicit
// false or zero in the file wins over the default.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for i, p := range c.Pairs {
		c.Pairs[i] = util.NormalizePair(p)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := Parse(b)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadWithEnv loads .env files if present, then the YAML file, then applies
// environment overrides before validating.
func LoadWithEnv(path string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := Parse(b)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v := util.SplitList(getenv(key)); len(v) > 0 {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		*dst = util.ParseIntDefault(getenv(key), *dst)
	}

	str("ENVIRONMENT", &c.Environment)
	str("LOG_LEVEL", &c.Log.Level)
	list("PAIRS", &c.Pairs)
	list("KAFKA_BROKERS", &c.Kafka.Brokers)
	str("CLICKHOUSE_HOST", &c.ClickHouse.Host)
	num("CLICKHOUSE_PORT", &c.ClickHouse.Port)
	str("CLICKHOUSE_USER", &c.ClickHouse.User)
	str("CLICKHOUSE_PASSWORD", &c.ClickHouse.Password)
	str("REDIS_HOST", &c.Redis.Host)
	num("REDIS_PORT", &c.Redis.Port)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("SENTIMENT_API_KEY", &c.Sentiment.APIKey)
	num("HTTP_PORT", &c.Server.Port)
	for i, p := range c.Pairs {
		c.Pairs[i] = util.NormalizePair(p)
	}
}

// Validate checks field constraints and cross-field rules. Every failure is a
// ConfigError, which the process treats as fatal.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var fe validator.ValidationErrors
		if errors.As(err, &fe) && len(fe) > 0 {
			return &models.ConfigError{Field: fe[0].Namespace(), Reason: fe[0].Tag() + " " + fe[0].Param()}
		}
		return &models.ConfigError{Field: "config", Reason: err.Error()}
	}
	if err := c.Indicators.Validate(); err != nil {
		return err
	}
	if !c.hasDuration(c.Model.Duration) {
		return &models.ConfigError{Field: "model.duration", Reason: "must be one of stream.durations"}
	}
	if c.Model.Horizon%c.Model.Duration != 0 {
		return &models.ConfigError{Field: "model.horizon", Reason: "must be a multiple of model.duration"}
	}
	for _, d := range c.Stream.Durations {
		if d%time.Second != 0 {
			return &models.ConfigError{Field: "stream.durations", Reason: "must be whole seconds"}
		}
	}
	if c.Sentiment.Enabled && c.Sentiment.APIKey == "" {
		return &models.ConfigError{Field: "sentiment.api_key", Reason: "required when sentiment is enabled"}
	}
	return nil
}

func (c *Config) hasDuration(d time.Duration) bool {
	for _, x := range c.Stream.Durations {
		if x == d {
			return true
		}
	}
	return false
}
