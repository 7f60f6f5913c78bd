package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Temporal TemporalConfig `yaml:"temporal"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Booking  BookingConfig  `yaml:"booking"`
	Payment  PaymentConfig  `yaml:"payment"`
}

type HTTPConfig struct {
	Address string `yaml:"address"`
}

type TemporalConfig struct {
	HostPort  string `yaml:"host_port"`
	Namespace string `yaml:"namespace"`
	TaskQueue string `yaml:"task_queue"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	Addr           string `yaml:"addr"`
	Password       string `yaml:"password"`
	DB             int    `yaml:"db"`
	FlightsTTLSecs int    `yaml:"flights_cache_ttl_seconds"`
}

type KafkaConfig struct {
	Brokers     []string `yaml:"brokers"`
	EventsTopic string   `yaml:"events_topic"`
	GroupID     string   `yaml:"group_id"`
}

type BookingConfig struct {
	SeatHoldMinutes int `yaml:"seat_hold_minutes"`
	ReviewMinutes   int `yaml:"review_minutes"`
	// CarryDeadline makes the review window a continuation of the seat-hold
	// deadline instead of a fresh window.
	CarryDeadline bool `yaml:"carry_deadline"`
}

type PaymentConfig struct {
	AttemptTimeoutSeconds int     `yaml:"attempt_timeout_seconds"`
	MaxAttempts           int     `yaml:"max_attempts"`
	GatewayLatencyMillis  int     `yaml:"gateway_latency_ms"`
	FailureRate           float64 `yaml:"failure_rate"`
}

func (b BookingConfig) SeatHoldDuration() time.Duration {
	return time.Duration(b.SeatHoldMinutes) * time.Minute
}

func (b BookingConfig) ReviewDuration() time.Duration {
	return time.Duration(b.ReviewMinutes) * time.Minute
}

func (p PaymentConfig) AttemptTimeout() time.Duration {
	return time.Duration(p.AttemptTimeoutSeconds) * time.Second
}

func (p PaymentConfig) GatewayLatency() time.Duration {
	return time.Duration(p.GatewayLatencyMillis) * time.Millisecond
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		HTTP:     HTTPConfig{Address: ":8080"},
		Temporal: TemporalConfig{HostPort: "localhost:7233", Namespace: "default", TaskQueue: "flight-booking-queue"},
		Redis:    RedisConfig{FlightsTTLSecs: 60},
		Kafka:    KafkaConfig{EventsTopic: "booking-events", GroupID: "booking-api"},
		Booking:  BookingConfig{SeatHoldMinutes: 15, ReviewMinutes: 15},
		Payment: PaymentConfig{
			AttemptTimeoutSeconds: 10,
			MaxAttempts:           3,
			GatewayLatencyMillis:  2000,
			FailureRate:           0.15,
		},
	}
}

// Load reads a YAML config file over the defaults and then applies
// environment overrides for deployment-specific values.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.HTTP.Address = v
	}
	if v := os.Getenv("TEMPORAL_HOST"); v != "" {
		cfg.Temporal.HostPort = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = []string{v}
	}
}
