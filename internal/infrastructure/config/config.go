package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of every environment variable read by LoadConfig.
// PRODUCTS_STORE_DYNAMODB_TABLE maps to store.dynamodb.table.
const EnvPrefix = "PRODUCTS_"

const (
	BackendDynamoDB = "dynamodb"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	OTLP      OTLPConfig      `koanf:"otlp"`
	Log       LogConfig       `koanf:"log"`
	Store     StoreConfig     `koanf:"store"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Shutdown  ShutdownConfig  `koanf:"shutdown"`
	Seed      SeedConfig      `koanf:"seed"`
}

type ServerConfig struct {
	Port              string        `koanf:"port"`
	Host              string        `koanf:"host"`
	ReadTimeout       time.Duration `koanf:"readtimeout"`
	WriteTimeout      time.Duration `koanf:"writetimeout"`
	IdleTimeout       time.Duration `koanf:"idletimeout"`
	ReadHeaderTimeout time.Duration `koanf:"readheadertimeout"`
	MaxBodyBytes      int64         `koanf:"maxbodybytes"`
}

type OTLPConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Endpoint    string `koanf:"endpoint"`
	ServiceName string `koanf:"servicename"`
	Environment string `koanf:"environment"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

type StoreConfig struct {
	Backend  string         `koanf:"backend"`
	DynamoDB DynamoDBConfig `koanf:"dynamodb"`
	Redis    RedisConfig    `koanf:"redis"`
}

type DynamoDBConfig struct {
	Region string `koanf:"region"`
	// Endpoint overrides the AWS endpoint, e.g. for DynamoDB Local.
	Endpoint  string `koanf:"endpoint"`
	Table     string `koanf:"table"`
	AccessKey string `koanf:"accesskey"`
	SecretKey string `koanf:"secretkey"`
}

type RedisConfig struct {
	Addr      string `koanf:"addr"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db"`
	KeyPrefix string `koanf:"keyprefix"`
}

type RateLimitConfig struct {
	Enabled bool    `koanf:"enabled"`
	RPS     float64 `koanf:"rps"`
	Burst   int     `koanf:"burst"`
}

type ShutdownConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

type SeedConfig struct {
	File string `koanf:"file"`
}

func defaults() map[string]any {
	return map[string]any{
		"server.host":              "0.0.0.0",
		"server.port":              "8080",
		"server.readtimeout":       10 * time.Second,
		"server.writetimeout":      10 * time.Second,
		"server.idletimeout":       60 * time.Second,
		"server.readheadertimeout": 5 * time.Second,
		"server.maxbodybytes":      int64(1 << 20),
		"otlp.enabled":             false,
		"otlp.endpoint":            "localhost:4317",
		"otlp.servicename":         "products-api",
		"otlp.environment":         "development",
		"log.level":                "info",
		"store.backend":            BackendDynamoDB,
		"store.dynamodb.region":    "ap-southeast-2",
		"store.dynamodb.table":     "Products",
		"store.redis.addr":         "localhost:6379",
		"store.redis.keyprefix":    "products",
		"ratelimit.enabled":        false,
		"ratelimit.rps":            10.0,
		"ratelimit.burst":          20,
		"shutdown.timeout":         5 * time.Second,
	}
}

// LoadConfig loads configuration from defaults, config.yaml, .env and the
// environment, in increasing order of precedence
func LoadConfig() (*Config, error) {
	configFile := os.Getenv(EnvPrefix + "CONFIG_FILE")
	if configFile == "" {
		configFile = "config.yaml"
	}
	return load(configFile, ".env")
}

func load(configFile, envFile string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("WARN: error loading YAML config file '%s': %v", configFile, err)
		}
	}

	envTransformer := func(key string) string {
		key = strings.ToLower(key)
		key = strings.TrimPrefix(key, strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(key, "_", ".")
	}
	if envFileMap, err := godotenv.Read(envFile); err == nil {
		envMap := make(map[string]any)
		for key, value := range envFileMap {
			if !strings.HasPrefix(key, EnvPrefix) {
				continue
			}
			envMap[envTransformer(key)] = value
		}
		if err := k.Load(confmap.Provider(envMap, "."), nil); err != nil {
			log.Printf("WARN: error loading .env config: %v", err)
		}
	} else if !os.IsNotExist(err) {
		log.Printf("WARN: error reading .env file: %v", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformer), nil); err != nil {
		log.Printf("WARN: error loading system env vars: %v", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks if the configuration values are valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is not configured")
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 || c.Server.IdleTimeout <= 0 || c.Server.ReadHeaderTimeout <= 0 {
		return fmt.Errorf("server timeouts must be greater than 0")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("invalid server max body bytes: %d", c.Server.MaxBodyBytes)
	}
	if c.OTLP.Enabled && c.OTLP.Endpoint == "" {
		return fmt.Errorf("OTLP endpoint is not configured")
	}
	if c.Shutdown.Timeout <= 0 {
		return fmt.Errorf("shutdown timeout is not configured")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("ratelimit rps and burst must be greater than 0")
	}
	return c.Store.Validate()
}

func (c *StoreConfig) Validate() error {
	switch c.Backend {
	case BackendDynamoDB:
		if c.DynamoDB.Table == "" {
			return fmt.Errorf("dynamodb table is not configured")
		}
		if c.DynamoDB.Region == "" {
			return fmt.Errorf("dynamodb region is not configured")
		}
		if (c.DynamoDB.AccessKey == "") != (c.DynamoDB.SecretKey == "") {
			return fmt.Errorf("dynamodb access key and secret key must be set together")
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis address is not configured")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown store backend: %q", c.Backend)
	}
	return nil
}

func (c *Config) String() string {
	var b strings.Builder

	b.WriteString("\n--- Server ---\n")
	b.WriteString(fmt.Sprintf("  server.address: %s:%s\n", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("  server.timeouts: read=%v write=%v idle=%v readHeader=%v\n",
		c.Server.ReadTimeout, c.Server.WriteTimeout, c.Server.IdleTimeout, c.Server.ReadHeaderTimeout))

	b.WriteString("\n--- Store ---\n")
	b.WriteString(fmt.Sprintf("  store.backend: %s\n", c.Store.Backend))
	switch c.Store.Backend {
	case BackendDynamoDB:
		b.WriteString(fmt.Sprintf("  store.dynamodb.region: %s\n", c.Store.DynamoDB.Region))
		b.WriteString(fmt.Sprintf("  store.dynamodb.endpoint: %s\n", orDefault(c.Store.DynamoDB.Endpoint)))
		b.WriteString(fmt.Sprintf("  store.dynamodb.table: %s\n", c.Store.DynamoDB.Table))
		b.WriteString(fmt.Sprintf("  store.dynamodb.accessKey: %s\n", mask(c.Store.DynamoDB.AccessKey)))
	case BackendRedis:
		b.WriteString(fmt.Sprintf("  store.redis.addr: %s\n", c.Store.Redis.Addr))
		b.WriteString(fmt.Sprintf("  store.redis.password: %s\n", mask(c.Store.Redis.Password)))
		b.WriteString(fmt.Sprintf("  store.redis.keyPrefix: %s\n", c.Store.Redis.KeyPrefix))
	}

	b.WriteString("\n--- Observability & Logging ---\n")
	b.WriteString(fmt.Sprintf("  log.level: %s\n", c.Log.Level))
	b.WriteString(fmt.Sprintf("  otlp.enabled: %t\n", c.OTLP.Enabled))
	b.WriteString(fmt.Sprintf("  otlp.endpoint: %s\n", c.OTLP.Endpoint))

	b.WriteString("\n--- Application Behavior ---\n")
	b.WriteString(fmt.Sprintf("  ratelimit.enabled: %t\n", c.RateLimit.Enabled))
	b.WriteString(fmt.Sprintf("  shutdown.timeout: %s\n", c.Shutdown.Timeout))

	return b.String()
}

func mask(secret string) string {
	if secret == "" {
		return "<not configured>"
	}
	return "****"
}

func orDefault(v string) string {
	if v == "" {
		return "<default>"
	}
	return v
}
