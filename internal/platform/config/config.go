package config

import (
	"os"
	"strings"
	"time"

	pstrings "gradenorm/pkg/platform/strings"
)

// Server captures process level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration

	// Empty DSN selects the in-memory stores.
	PostgresDSN string

	Redis RedisConfig

	// Empty broker list disables the Kafka audit sink.
	KafkaBrokers []string
	KafkaTopic   string

	// Empty path selects the built-in catalog.
	CatalogPath string

	// Rule context applied when aggregation converts on demand.
	RuleAuthority string
	RuleVersion   string
	RuleMethod    string
}

// RedisConfig captures the optional latest-conversion index backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("GRADENORM_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	var brokers []string
	if raw := os.Getenv("GRADENORM_KAFKA_BROKERS"); raw != "" {
		brokers = pstrings.DedupeAndTrim(strings.Split(raw, ","))
	}
	topic := os.Getenv("GRADENORM_KAFKA_TOPIC")
	if topic == "" {
		topic = "gradenorm.audit"
	}

	return Server{
		Addr:            addr,
		ShutdownTimeout: 10 * time.Second,
		PostgresDSN:     os.Getenv("GRADENORM_POSTGRES_DSN"),
		Redis: RedisConfig{
			URL:          os.Getenv("GRADENORM_REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		KafkaBrokers:  brokers,
		KafkaTopic:    topic,
		CatalogPath:   os.Getenv("GRADENORM_CATALOG_PATH"),
		RuleAuthority: envOr("GRADENORM_RULE_AUTHORITY", "SA-MoE"),
		RuleVersion:   envOr("GRADENORM_RULE_VERSION", "v1.0"),
		RuleMethod:    envOr("GRADENORM_RULE_METHOD", "demo-table"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
