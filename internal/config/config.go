package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string `yaml:"env" env:"APP_ENV" env-default:"development"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	HTTP   HTTP   `yaml:"http"`
	DB     DB     `yaml:"db"`
	Feeds  Feeds  `yaml:"feeds"`
	Kafka  Kafka  `yaml:"kafka"`
	Engine Engine `yaml:"engine"`
}

type HTTP struct {
	Port              string        `yaml:"port" env:"PORT" env-default:"8080"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"HTTP_READ_HEADER_TIMEOUT" env-default:"5s"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

type DB struct {
	// DSN selects the Postgres store; empty runs on the in-memory store.
	DSN            string `yaml:"dsn" env:"DATABASE_DSN"`
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

type Feeds struct {
	LeadsURL    string        `yaml:"leads_url" env:"LEADS_API_URL"`
	ClicksURL   string        `yaml:"clicks_url" env:"CLICKS_API_URL"`
	SinkURL     string        `yaml:"sink_url" env:"SINK_URL"`
	SinkSecret  string        `yaml:"sink_secret" env:"SINK_SECRET"`
	HTTPTimeout time.Duration `yaml:"http_timeout" env:"HTTP_TIMEOUT" env-default:"15s"`
}

type Kafka struct {
	Brokers    []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	StageTopic string   `yaml:"stage_topic" env:"KAFKA_STAGE_TOPIC" env-default:"lead-stage-events"`
	GroupID    string   `yaml:"group_id" env:"KAFKA_GROUP_ID" env-default:"lead-funnel"`
}

type Engine struct {
	PotentialRate    float64 `yaml:"potential_rate" env:"COMMISSION_POTENTIAL_RATE" env-default:"0.10"`
	ScanChunkSize    int     `yaml:"scan_chunk_size" env:"SCAN_CHUNK_SIZE" env-default:"1000"`
	PageLimitDefault int     `yaml:"page_limit_default" env:"PAGE_LIMIT_DEFAULT" env-default:"50"`
	PageLimitMax     int     `yaml:"page_limit_max" env:"PAGE_LIMIT_MAX" env-default:"100"`
}

// Load reads CONFIG_PATH when set, then the environment on top of it.
func Load() (*Config, error) {
	var cfg Config
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Engine.PotentialRate < 0 || c.Engine.PotentialRate > 1 {
		return fmt.Errorf("config: COMMISSION_POTENTIAL_RATE %v outside [0,1]", c.Engine.PotentialRate)
	}
	if c.Engine.ScanChunkSize <= 0 {
		return fmt.Errorf("config: SCAN_CHUNK_SIZE must be positive, got %d", c.Engine.ScanChunkSize)
	}
	if c.Engine.PageLimitMax <= 0 || c.Engine.PageLimitDefault <= 0 {
		return fmt.Errorf("config: page limits must be positive")
	}
	if c.Engine.PageLimitDefault > c.Engine.PageLimitMax {
		return fmt.Errorf("config: PAGE_LIMIT_DEFAULT %d exceeds PAGE_LIMIT_MAX %d",
			c.Engine.PageLimitDefault, c.Engine.PageLimitMax)
	}
	return nil
}

func (c *Config) KafkaEnabled() bool { return len(c.Kafka.Brokers) > 0 && c.Kafka.StageTopic != "" }
