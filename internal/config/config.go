package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the grading service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	JWTSecret   string

	DockerHost       string
	ExecutionTimeout time.Duration
	SandboxMemoryMB  int
	SandboxCPUShares int
	SQLStatementCap  int
	InfraRetries     int
	InfraRetryBase   time.Duration

	WorkerPoolSize int

	PlagiarismThreshold float64
	RejectionThreshold  float64
	PlagiarismMinTokens int
	CorpusWindow        int

	MaxGrade         float64
	PassingThreshold float64
	StatsCacheTTL    time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GRADER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Grader API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("execution_timeout_ms", 5000)
	v.SetDefault("sandbox_memory_mb", 256)
	v.SetDefault("sandbox_cpu_shares", 512)
	v.SetDefault("sql_statement_cap", 100)
	v.SetDefault("infra_retries", 3)
	v.SetDefault("infra_retry_base_ms", 200)
	v.SetDefault("worker_pool_size", 4)
	v.SetDefault("plagiarism.threshold", 0.8)
	v.SetDefault("plagiarism.rejection_threshold", 0.95)
	v.SetDefault("plagiarism.min_tokens", 8)
	v.SetDefault("plagiarism.corpus_window", 50)
	v.SetDefault("grading.max_grade", 20.0)
	v.SetDefault("grading.passing_threshold", 10.0)
	v.SetDefault("stats.cache_ttl", "5m")

	ttlString := v.GetString("stats.cache_ttl")
	if ttlString == "" {
		ttlString = "5m"
	}

	ttl, err := time.ParseDuration(ttlString)
	if err != nil {
		return Config{}, fmt.Errorf("invalid stats cache ttl: %w", err)
	}

	timeoutMs := v.GetInt("execution_timeout_ms")
	if timeoutMs <= 0 {
		timeoutMs = 5000
	}

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		DatabaseURL:         v.GetString("database.url"),
		RedisURL:            v.GetString("redis.url"),
		NATSURL:             v.GetString("nats.url"),
		JWTSecret:           v.GetString("jwt.secret"),
		DockerHost:          v.GetString("docker_host"),
		ExecutionTimeout:    time.Duration(timeoutMs) * time.Millisecond,
		SandboxMemoryMB:     v.GetInt("sandbox_memory_mb"),
		SandboxCPUShares:    v.GetInt("sandbox_cpu_shares"),
		SQLStatementCap:     v.GetInt("sql_statement_cap"),
		InfraRetries:        v.GetInt("infra_retries"),
		InfraRetryBase:      time.Duration(v.GetInt("infra_retry_base_ms")) * time.Millisecond,
		WorkerPoolSize:      v.GetInt("worker_pool_size"),
		PlagiarismThreshold: v.GetFloat64("plagiarism.threshold"),
		RejectionThreshold:  v.GetFloat64("plagiarism.rejection_threshold"),
		PlagiarismMinTokens: v.GetInt("plagiarism.min_tokens"),
		CorpusWindow:        v.GetInt("plagiarism.corpus_window"),
		MaxGrade:            v.GetFloat64("grading.max_grade"),
		PassingThreshold:    v.GetFloat64("grading.passing_threshold"),
		StatsCacheTTL:       ttl,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 4
	}

	if cfg.SandboxMemoryMB <= 0 {
		cfg.SandboxMemoryMB = 256
	}

	if cfg.SandboxCPUShares <= 0 {
		cfg.SandboxCPUShares = 512
	}

	if cfg.CorpusWindow <= 0 {
		cfg.CorpusWindow = 50
	}

	return cfg, nil
}
