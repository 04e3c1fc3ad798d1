package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API and grader processes.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	JWTSecret   string

	QueueBackend  string
	QueueSubject  string
	QueueRedisKey string

	PluginTimeout time.Duration

	DockerHost       string
	ExecutionTimeout time.Duration
	CodeRunMemoryMB  int
	CodeRunCPUShares int
	AIProvider       string
	OpenAIAPIKey     string

	RedispatchInterval time.Duration
	RedispatchAfter    time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// ValidateAPI checks the settings the HTTP process cannot run without.
func (c Config) ValidateAPI() error {
	if c.JWTSecret == "" {
		return errors.New("jwt secret must be provided")
	}
	return c.ValidateGrader()
}

// ValidateGrader checks the settings the grading worker cannot run without.
func (c Config) ValidateGrader() error {
	if c.DatabaseURL == "" {
		return errors.New("database url must be provided")
	}
	switch c.QueueBackend {
	case "nats":
		if c.NATSURL == "" {
			return errors.New("nats queue backend requires a nats url")
		}
	case "redis":
		if c.RedisURL == "" {
			return errors.New("redis queue backend requires a redis url")
		}
	case "log":
	default:
		return fmt.Errorf("unknown queue backend %q", c.QueueBackend)
	}
	return nil
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Variant Engine")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("queue.subject", "gema.grading.external")
	v.SetDefault("queue.redis_key", "gema:grading:external")
	v.SetDefault("plugin_timeout_ms", 10000)
	v.SetDefault("execution_timeout_ms", 5000)
	v.SetDefault("code_run_memory_mb", 256)
	v.SetDefault("code_run_cpu_shares", 512)
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("worker.redispatch_interval", "1m")
	v.SetDefault("worker.redispatch_after", "5m")

	interval, err := time.ParseDuration(v.GetString("worker.redispatch_interval"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid redispatch interval: %w", err)
	}
	after, err := time.ParseDuration(v.GetString("worker.redispatch_after"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid redispatch age: %w", err)
	}

	pluginTimeoutMs := v.GetInt("plugin_timeout_ms")
	if pluginTimeoutMs < 0 {
		pluginTimeoutMs = 0
	}

	timeoutMs := v.GetInt("execution_timeout_ms")
	if timeoutMs <= 0 {
		timeoutMs = 5000
	}

	cfg := Config{
		AppName:            v.GetString("app.name"),
		AppEnv:             v.GetString("app.env"),
		AppPort:            v.GetString("app.port"),
		DatabaseURL:        v.GetString("database.url"),
		RedisURL:           v.GetString("redis.url"),
		NATSURL:            v.GetString("nats.url"),
		JWTSecret:          v.GetString("jwt.secret"),
		QueueBackend:       strings.ToLower(strings.TrimSpace(v.GetString("queue.backend"))),
		QueueSubject:       v.GetString("queue.subject"),
		QueueRedisKey:      v.GetString("queue.redis_key"),
		PluginTimeout:      time.Duration(pluginTimeoutMs) * time.Millisecond,
		DockerHost:         v.GetString("docker_host"),
		ExecutionTimeout:   time.Duration(timeoutMs) * time.Millisecond,
		CodeRunMemoryMB:    v.GetInt("code_run_memory_mb"),
		CodeRunCPUShares:   v.GetInt("code_run_cpu_shares"),
		AIProvider:         strings.ToLower(v.GetString("ai.provider")),
		OpenAIAPIKey:       v.GetString("openai_api_key"),
		RedispatchInterval: interval,
		RedispatchAfter:    after,
	}

	if cfg.QueueBackend == "" {
		switch {
		case cfg.NATSURL != "":
			cfg.QueueBackend = "nats"
		case cfg.RedisURL != "":
			cfg.QueueBackend = "redis"
		default:
			cfg.QueueBackend = "log"
		}
	}

	if cfg.CodeRunMemoryMB <= 0 {
		cfg.CodeRunMemoryMB = 256
	}

	if cfg.CodeRunCPUShares <= 0 {
		cfg.CodeRunCPUShares = 512
	}

	return cfg, nil
}
