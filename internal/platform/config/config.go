// Package config builds runtime configuration from environment variables so
// main stays lean.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	// RequestTimeout bounds every handler via the timeout middleware.
	RequestTimeout time.Duration
}

// Fund captures the ledger's construction-time configuration. The fee split
// is fixed at deployment; issuer and broker are bootstrap values that the
// owner can later rotate through governance.
type Fund struct {
	// ProtocolFeePercent is the fee split applied on every mint, in (0,100).
	ProtocolFeePercent uint64
	// Bootstrap identities. Identities are UUID strings; secrets are the
	// plaintext bootstrap credentials, hashed before storage.
	OwnerIdentity        string
	OwnerSecret          string
	IssuerIdentity       string
	IssuerSecret         string
	BrokerIdentity       string
	BrokerSecret         string
	FeeBeneficiary       string
	FeeBeneficiarySecret string
}

// PostgresConfig captures the optional PostgreSQL backing store. Empty URL
// means in-memory stores.
type PostgresConfig struct {
	URL string
}

// RedisConfig captures the optional Redis connection used by the
// idempotency guard. Empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig captures the optional audit event broker. Empty brokers list
// disables the kafka sink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Config is the full runtime configuration.
type Config struct {
	Server   Server
	Fund     Fund
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
}

// FromEnv builds a Config from environment variables.
func FromEnv() (Config, error) {
	cfg := Config{
		Server: Server{
			Addr:           envOr("TRANCHE_ADDR", ":8080"),
			JWTSigningKey:  envOr("TRANCHE_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			RequestTimeout: 30 * time.Second,
		},
		Fund: Fund{
			ProtocolFeePercent:   20,
			OwnerIdentity:        os.Getenv("TRANCHE_OWNER_IDENTITY"),
			OwnerSecret:          os.Getenv("TRANCHE_OWNER_SECRET"),
			IssuerIdentity:       os.Getenv("TRANCHE_ISSUER_IDENTITY"),
			IssuerSecret:         os.Getenv("TRANCHE_ISSUER_SECRET"),
			BrokerIdentity:       os.Getenv("TRANCHE_BROKER_IDENTITY"),
			BrokerSecret:         os.Getenv("TRANCHE_BROKER_SECRET"),
			FeeBeneficiary:       os.Getenv("TRANCHE_FEE_BENEFICIARY"),
			FeeBeneficiarySecret: os.Getenv("TRANCHE_FEE_BENEFICIARY_SECRET"),
		},
		Postgres: PostgresConfig{
			URL: os.Getenv("TRANCHE_POSTGRES_URL"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("TRANCHE_REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Topic: envOr("TRANCHE_KAFKA_AUDIT_TOPIC", "tranche.audit.events"),
		},
	}

	if brokers := os.Getenv("TRANCHE_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}

	if raw := os.Getenv("TRANCHE_PROTOCOL_FEE_PERCENT"); raw != "" {
		pct, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse TRANCHE_PROTOCOL_FEE_PERCENT: %w", err)
		}
		cfg.Fund.ProtocolFeePercent = pct
	}
	if cfg.Fund.ProtocolFeePercent == 0 || cfg.Fund.ProtocolFeePercent >= 100 {
		return Config{}, fmt.Errorf("protocol fee percent %d out of range (0,100)", cfg.Fund.ProtocolFeePercent)
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
