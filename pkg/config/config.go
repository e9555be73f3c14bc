// Package config defines the typed, validated configuration records consumed
// by every pipeline component, and loads them from a YAML file or
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// RetryConfig bounds an LLM call's retry behavior.
type RetryConfig struct {
	Attempts       int     `mapstructure:"attempts"`
	BackoffSeconds float64 `mapstructure:"backoff_seconds"`
}

func (c RetryConfig) validate() error {
	if c.Attempts < 1 {
		return fmt.Errorf("attempts must be >= 1")
	}
	if c.BackoffSeconds < 0 {
		return fmt.Errorf("backoff_seconds must be >= 0")
	}
	return nil
}

func defaultRetryConfig() RetryConfig {
	return RetryConfig{Attempts: 3, BackoffSeconds: 1.0}
}

// AppConfig holds process-level HTTP server settings.
type AppConfig struct {
	Host            string `mapstructure:"host"`
	LogLevel        string `mapstructure:"log_level"`
	Port            int    `mapstructure:"port"`
	MaxConcurrency  int    `mapstructure:"max_concurrency"`
	RequestTimeoutS int    `mapstructure:"request_timeout_s"`
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Host:            "0.0.0.0",
		Port:            8000,
		LogLevel:        "info",
		MaxConcurrency:  100,
		RequestTimeoutS: 30,
	}
}

// PostgresConfig configures the target database pool and the SQL clamp
// limits that are inherent to the dialect (sample/limit).
type PostgresConfig struct {
	DSN                string `mapstructure:"dsn"`
	MinPoolSize        int    `mapstructure:"min_pool_size"`
	MaxPoolSize        int    `mapstructure:"max_pool_size"`
	StatementTimeoutMs int    `mapstructure:"statement_timeout_ms"`
	SampleLimit        int    `mapstructure:"sample_limit"`
	MaxLimit           int    `mapstructure:"max_limit"`
}

func defaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		MinPoolSize:        5,
		MaxPoolSize:        20,
		StatementTimeoutMs: 5000,
		SampleLimit:        500,
		MaxLimit:           1000,
	}
}

func (c PostgresConfig) validate() error {
	if c.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	if c.MinPoolSize < 1 {
		return fmt.Errorf("postgres.min_pool_size must be >= 1")
	}
	if c.MaxPoolSize < c.MinPoolSize {
		return fmt.Errorf("postgres.max_pool_size must be >= min_pool_size")
	}
	if c.StatementTimeoutMs < 100 {
		return fmt.Errorf("postgres.statement_timeout_ms must be >= 100")
	}
	if c.SampleLimit < 1 {
		return fmt.Errorf("postgres.sample_limit must be >= 1")
	}
	if c.MaxLimit < 1 {
		return fmt.Errorf("postgres.max_limit must be >= 1")
	}
	return nil
}

// RedisConfig configures the schema/embedding cache backend.
type RedisConfig struct {
	URL                string `mapstructure:"url"`
	SchemaCacheTTLS    int    `mapstructure:"schema_cache_ttl_s"`
	EmbeddingCacheTTLS int    `mapstructure:"embedding_cache_ttl_s"`
}

func defaultRedisConfig() RedisConfig {
	return RedisConfig{SchemaCacheTTLS: 7200, EmbeddingCacheTTLS: 86400}
}

func (c RedisConfig) validate() error {
	if c.SchemaCacheTTLS < 60 {
		return fmt.Errorf("redis.schema_cache_ttl_s must be >= 60")
	}
	if c.EmbeddingCacheTTLS < 60 {
		return fmt.Errorf("redis.embedding_cache_ttl_s must be >= 60")
	}
	return nil
}

// LLMConfig configures the reasoning/synthesis model collaborator.
type LLMConfig struct {
	Provider               string      `mapstructure:"provider"`
	Model                  string      `mapstructure:"model"`
	Temperature            float64     `mapstructure:"temperature"`
	MaxTokens              int         `mapstructure:"max_tokens"`
	RateLimitPerMinute     int         `mapstructure:"rate_limit_per_minute"`
	ReasonerRetryConfig    RetryConfig `mapstructure:"reasoner_retry_config"`
	SynthesizerRetryConfig RetryConfig `mapstructure:"synthesizer_retry_config"`
}

func defaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:               "openai",
		Temperature:            0.0,
		MaxTokens:              1200,
		RateLimitPerMinute:     100,
		ReasonerRetryConfig:    defaultRetryConfig(),
		SynthesizerRetryConfig: defaultRetryConfig(),
	}
}

func (c LLMConfig) validate() error {
	if c.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("llm.temperature must be in [0,1]")
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("llm.max_tokens must be >= 1")
	}
	if c.RateLimitPerMinute < 1 {
		return fmt.Errorf("llm.rate_limit_per_minute must be >= 1")
	}
	if err := c.ReasonerRetryConfig.validate(); err != nil {
		return fmt.Errorf("llm.reasoner_retry_config: %w", err)
	}
	if err := c.SynthesizerRetryConfig.validate(); err != nil {
		return fmt.Errorf("llm.synthesizer_retry_config: %w", err)
	}
	return nil
}

// SchemaConfig bounds schema snapshot refresh and slicing behavior.
type SchemaConfig struct {
	RefreshIntervalS    int `mapstructure:"refresh_interval_s"`
	MaxSchemaSliceBytes int `mapstructure:"max_schema_slice_bytes"`
	RankerTopN          int `mapstructure:"ranker_top_n"`
	FKDepth             int `mapstructure:"fk_depth"`
}

func defaultSchemaConfig() SchemaConfig {
	return SchemaConfig{
		RefreshIntervalS:    3600,
		MaxSchemaSliceBytes: 8192,
		RankerTopN:          8,
		FKDepth:             2,
	}
}

func (c SchemaConfig) validate() error {
	if c.RefreshIntervalS < 60 {
		return fmt.Errorf("schema.refresh_interval_s must be >= 60")
	}
	if c.MaxSchemaSliceBytes < 1024 {
		return fmt.Errorf("schema.max_schema_slice_bytes must be >= 1024")
	}
	if c.RankerTopN < 1 {
		return fmt.Errorf("schema.ranker_top_n must be >= 1")
	}
	if c.FKDepth < 0 || c.FKDepth > 4 {
		return fmt.Errorf("schema.fk_depth must be in [0,4]")
	}
	return nil
}

// SQLGuardrailConfig bounds the cost/row guardrails and function denylist.
type SQLGuardrailConfig struct {
	RowThreshold               int      `mapstructure:"row_threshold"`
	CostThreshold              int      `mapstructure:"cost_threshold"`
	MaxEstimatedTimeMs         int      `mapstructure:"max_estimated_time_ms"`
	RequireWhereForLargeTables bool     `mapstructure:"require_where_for_large_tables"`
	DisallowedFunctions        []string `mapstructure:"disallowed_functions"`
}

func defaultSQLGuardrailConfig() SQLGuardrailConfig {
	return SQLGuardrailConfig{
		RowThreshold:               500_000,
		CostThreshold:              100_000,
		MaxEstimatedTimeMs:         2000,
		RequireWhereForLargeTables: true,
	}
}

func (c SQLGuardrailConfig) validate() error {
	if c.RowThreshold < 1 {
		return fmt.Errorf("sql_guardrails.row_threshold must be >= 1")
	}
	if c.CostThreshold < 1 {
		return fmt.Errorf("sql_guardrails.cost_threshold must be >= 1")
	}
	if c.MaxEstimatedTimeMs < 1 {
		return fmt.Errorf("sql_guardrails.max_estimated_time_ms must be >= 1")
	}
	return nil
}

// ObservabilityConfig configures the audit log and metrics endpoint.
type ObservabilityConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	AuditLogPath string `mapstructure:"audit_log_path"`
	MetricsPort  int    `mapstructure:"metrics_port"`
}

func defaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		ServiceName:  "isaqe",
		AuditLogPath: "logs/audit.log",
		MetricsPort:  9100,
	}
}

// SecurityConfig bounds rate limiting and read-only enforcement.
type SecurityConfig struct {
	EnforceReadOnlyRole  bool     `mapstructure:"enforce_read_only_role"`
	EnableRateLimiting   bool     `mapstructure:"enable_rate_limiting"`
	MaxRequestsPerMinute int      `mapstructure:"max_requests_per_minute"`
	IPWhitelist          []string `mapstructure:"ip_whitelist"`
}

func defaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		EnforceReadOnlyRole:  true,
		EnableRateLimiting:   true,
		MaxRequestsPerMinute: 60,
	}
}

func (c SecurityConfig) validate() error {
	if c.MaxRequestsPerMinute < 1 {
		return fmt.Errorf("security.max_requests_per_minute must be >= 1")
	}
	return nil
}

// PromptsConfig locates the few-shot example bundle and JSON schema files.
type PromptsConfig struct {
	ExamplesPath      string `mapstructure:"examples_path"`
	ReasonerSchema    string `mapstructure:"reasoner_schema"`
	SynthesizerSchema string `mapstructure:"synthesizer_schema"`
}

func (c PromptsConfig) validate() error {
	if c.ExamplesPath == "" || c.ReasonerSchema == "" || c.SynthesizerSchema == "" {
		return fmt.Errorf("prompts.examples_path, reasoner_schema and synthesizer_schema are required")
	}
	return nil
}

// Settings is the complete, validated configuration for one process.
type Settings struct {
	Environment   string              `mapstructure:"environment"`
	App           AppConfig           `mapstructure:"app"`
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Schema        SchemaConfig        `mapstructure:"schema"`
	SQLGuardrails SQLGuardrailConfig  `mapstructure:"sql_guardrails"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Security      SecurityConfig      `mapstructure:"security"`
	Prompts       PromptsConfig       `mapstructure:"prompts"`
}

// Validate checks every bound named in spec §9 and fails construction early.
func (s Settings) Validate() error {
	if err := s.Postgres.validate(); err != nil {
		return err
	}
	if err := s.Redis.validate(); err != nil {
		return err
	}
	if err := s.LLM.validate(); err != nil {
		return err
	}
	if err := s.Schema.validate(); err != nil {
		return err
	}
	if err := s.SQLGuardrails.validate(); err != nil {
		return err
	}
	if err := s.Security.validate(); err != nil {
		return err
	}
	if err := s.Prompts.validate(); err != nil {
		return err
	}
	return nil
}

func defaults() Settings {
	return Settings{
		Environment:   "development",
		App:           defaultAppConfig(),
		Postgres:      defaultPostgresConfig(),
		Redis:         defaultRedisConfig(),
		LLM:           defaultLLMConfig(),
		Schema:        defaultSchemaConfig(),
		SQLGuardrails: defaultSQLGuardrailConfig(),
		Observability: defaultObservabilityConfig(),
		Security:      defaultSecurityConfig(),
	}
}

// Load reads settings from a config file (or ISAQE_-prefixed environment
// variables) and validates the result.
func Load(cfgFile string) (*Settings, error) {
	v := viper.New()
	applyDefaults(v, defaults())

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("isaqe")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("ISAQE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// Keys without a default are bound explicitly so Unmarshal sees them.
	for _, key := range []string{"postgres.dsn", "redis.url", "llm.model", "prompts.examples_path", "prompts.reasoner_schema", "prompts.synthesizer_schema"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &s, nil
}

func applyDefaults(v *viper.Viper, s Settings) {
	v.SetDefault("environment", s.Environment)
	v.SetDefault("app.host", s.App.Host)
	v.SetDefault("app.port", s.App.Port)
	v.SetDefault("app.log_level", s.App.LogLevel)
	v.SetDefault("app.max_concurrency", s.App.MaxConcurrency)
	v.SetDefault("app.request_timeout_s", s.App.RequestTimeoutS)
	v.SetDefault("postgres.min_pool_size", s.Postgres.MinPoolSize)
	v.SetDefault("postgres.max_pool_size", s.Postgres.MaxPoolSize)
	v.SetDefault("postgres.statement_timeout_ms", s.Postgres.StatementTimeoutMs)
	v.SetDefault("postgres.sample_limit", s.Postgres.SampleLimit)
	v.SetDefault("postgres.max_limit", s.Postgres.MaxLimit)
	v.SetDefault("redis.schema_cache_ttl_s", s.Redis.SchemaCacheTTLS)
	v.SetDefault("redis.embedding_cache_ttl_s", s.Redis.EmbeddingCacheTTLS)
	v.SetDefault("llm.provider", s.LLM.Provider)
	v.SetDefault("llm.temperature", s.LLM.Temperature)
	v.SetDefault("llm.max_tokens", s.LLM.MaxTokens)
	v.SetDefault("llm.rate_limit_per_minute", s.LLM.RateLimitPerMinute)
	v.SetDefault("llm.reasoner_retry_config.attempts", s.LLM.ReasonerRetryConfig.Attempts)
	v.SetDefault("llm.reasoner_retry_config.backoff_seconds", s.LLM.ReasonerRetryConfig.BackoffSeconds)
	v.SetDefault("llm.synthesizer_retry_config.attempts", s.LLM.SynthesizerRetryConfig.Attempts)
	v.SetDefault("llm.synthesizer_retry_config.backoff_seconds", s.LLM.SynthesizerRetryConfig.BackoffSeconds)
	v.SetDefault("schema.refresh_interval_s", s.Schema.RefreshIntervalS)
	v.SetDefault("schema.max_schema_slice_bytes", s.Schema.MaxSchemaSliceBytes)
	v.SetDefault("schema.ranker_top_n", s.Schema.RankerTopN)
	v.SetDefault("schema.fk_depth", s.Schema.FKDepth)
	v.SetDefault("sql_guardrails.row_threshold", s.SQLGuardrails.RowThreshold)
	v.SetDefault("sql_guardrails.cost_threshold", s.SQLGuardrails.CostThreshold)
	v.SetDefault("sql_guardrails.max_estimated_time_ms", s.SQLGuardrails.MaxEstimatedTimeMs)
	v.SetDefault("sql_guardrails.require_where_for_large_tables", s.SQLGuardrails.RequireWhereForLargeTables)
	v.SetDefault("observability.service_name", s.Observability.ServiceName)
	v.SetDefault("observability.audit_log_path", s.Observability.AuditLogPath)
	v.SetDefault("observability.metrics_port", s.Observability.MetricsPort)
	v.SetDefault("security.enforce_read_only_role", s.Security.EnforceReadOnlyRole)
	v.SetDefault("security.enable_rate_limiting", s.Security.EnableRateLimiting)
	v.SetDefault("security.max_requests_per_minute", s.Security.MaxRequestsPerMinute)
}
