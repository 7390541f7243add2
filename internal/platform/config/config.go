package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the process configuration, read once at start.
type Config struct {
	Server    Server
	Log       Log
	Database  Database
	Redis     RedisConfig
	Kafka     Kafka
	Access    Access
	RoleCache RoleCache
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string        `envconfig:"MEDORDER_ADDR" default:":8080"`
	ReadHeaderTimeout time.Duration `envconfig:"MEDORDER_READ_HEADER_TIMEOUT" default:"5s"`
	ReadTimeout       time.Duration `envconfig:"MEDORDER_READ_TIMEOUT" default:"15s"`
	WriteTimeout      time.Duration `envconfig:"MEDORDER_WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout   time.Duration `envconfig:"MEDORDER_SHUTDOWN_TIMEOUT" default:"10s"`
}

type Log struct {
	Format string `envconfig:"LOG_FORMAT" default:"json"`
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
}

// Database is optional; without a URL the in-memory stores are used.
type Database struct {
	URL             string        `envconfig:"DATABASE_URL"`
	MaxOpenConns    int           `envconfig:"DATABASE_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"DATABASE_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DATABASE_CONN_MAX_LIFETIME" default:"30m"`
	MigrateOnStart  bool          `envconfig:"DATABASE_MIGRATE_ON_START" default:"false"`
}

// RedisConfig is optional; without a URL role lookups are not cached.
type RedisConfig struct {
	URL          string        `envconfig:"REDIS_URL"`
	PoolSize     int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"2s"`
	ReadTimeout  time.Duration `envconfig:"REDIS_READ_TIMEOUT" default:"500ms"`
	WriteTimeout time.Duration `envconfig:"REDIS_WRITE_TIMEOUT" default:"500ms"`
}

// Kafka is optional; without brokers committed audit entries are not streamed.
type Kafka struct {
	Brokers     []string `envconfig:"KAFKA_BROKERS"`
	AuditTopic  string   `envconfig:"KAFKA_AUDIT_TOPIC" default:"medorder.audit"`
	Partitions  int32    `envconfig:"KAFKA_AUDIT_PARTITIONS" default:"3"`
	Replication int16    `envconfig:"KAFKA_AUDIT_REPLICATION" default:"1"`
	EnsureTopic bool     `envconfig:"KAFKA_ENSURE_TOPIC" default:"false"`
}

type Access struct {
	// PolicyFile overrides the built-in route policy table.
	PolicyFile      string `envconfig:"ACCESS_POLICY_FILE"`
	PrincipalHeader string `envconfig:"ACCESS_PRINCIPAL_HEADER" default:"X-Principal-ID"`
	// RoleSeed preloads the in-memory directory, e.g. "user_1:admin,user_2:seller".
	RoleSeed map[string]string `envconfig:"ACCESS_ROLE_SEED"`
}

type RoleCache struct {
	TTL time.Duration `envconfig:"ROLE_CACHE_TTL" default:"5m"`
}

// FromEnv builds the config from environment variables so main stays lean.
func FromEnv() (*Config, error) {
	var cfg Config
	sections := []any{&cfg.Server, &cfg.Log, &cfg.Database, &cfg.Redis, &cfg.Kafka, &cfg.Access, &cfg.RoleCache}
	for _, section := range sections {
		// Sections are processed individually so keys stay unprefixed.
		if err := envconfig.Process("", section); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects combinations that would fail later at wiring time.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q: want json or text", c.Log.Format)
	}
	if c.RoleCache.TTL <= 0 {
		return fmt.Errorf("ROLE_CACHE_TTL must be positive")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.AuditTopic == "" {
		return fmt.Errorf("KAFKA_AUDIT_TOPIC is required when KAFKA_BROKERS is set")
	}
	if c.Access.PrincipalHeader == "" {
		return fmt.Errorf("ACCESS_PRINCIPAL_HEADER must not be empty")
	}
	return nil
}
