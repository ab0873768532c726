package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"openprotect-lab/internal/domain/models"
	"openprotect-lab/internal/domain/services"
)

// Config holds all configuration for the application
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	CORS       CORSConfig       `mapstructure:"cors"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Playbooks  PlaybooksConfig  `mapstructure:"playbooks"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Version     string `mapstructure:"version"`
	Debug       bool   `mapstructure:"debug"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	HTTPPort        int           `mapstructure:"http_port"`
	GRPCPort        int           `mapstructure:"grpc_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
	TLS       bool   `mapstructure:"tls"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	StreamName    string `mapstructure:"stream_name"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	TimeFormat string `mapstructure:"time_format"`
}

// EngineConfig tunes the correlation and knowledge pipeline
type EngineConfig struct {
	InitialServerKnowledge float64            `mapstructure:"initial_server_knowledge"`
	InitialAgentKnowledge  float64            `mapstructure:"initial_agent_knowledge"`
	SyncMargin             float64            `mapstructure:"sync_margin"`
	SyncStep               float64            `mapstructure:"sync_step"`
	DirectiveFloor         float64            `mapstructure:"directive_floor"`
	CorrelationThreshold   int                `mapstructure:"correlation_threshold"`
	LedgerCapacity         int                `mapstructure:"ledger_capacity"`
	EventLogCapacity       int                `mapstructure:"event_log_capacity"`
	AlertFeedCapacity      int                `mapstructure:"alert_feed_capacity"`
	Scoring                ScoringConfig      `mapstructure:"scoring"`
	Sanitizer              SanitizerConfig    `mapstructure:"sanitizer"`
	TitleMultipliers       map[string]float64 `mapstructure:"title_multipliers"`
}

type ScoringConfig struct {
	Critical      float64 `mapstructure:"critical"`
	High          float64 `mapstructure:"high"`
	Medium        float64 `mapstructure:"medium"`
	Info          float64 `mapstructure:"info"`
	Correlation   float64 `mapstructure:"correlation"`
	Remediation   float64 `mapstructure:"remediation"`
	Intel         float64 `mapstructure:"intel"`
	DetailedIntel float64 `mapstructure:"detailed_intel"`
}

type SanitizerConfig struct {
	UsernameKeys  []string `mapstructure:"username_keys"`
	SignatureKeys []string `mapstructure:"signature_keys"`
}

// SimulationConfig controls the tick scheduler and the simulated source
type SimulationConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	AutoStart       bool          `mapstructure:"auto_start"`
	Source          string        `mapstructure:"source"`
	Interval        time.Duration `mapstructure:"interval"`
	Seed            int64         `mapstructure:"seed"`
	AlertChance     float64       `mapstructure:"alert_chance"`
	IntelChance     float64       `mapstructure:"intel_chance"`
	DirectiveChance float64       `mapstructure:"directive_chance"`
	ReplayFile      string        `mapstructure:"replay_file"`
}

type PlaybooksConfig struct {
	SeedFile string `mapstructure:"seed_file"`
}

// CoordinatorConfig maps the engine section onto the pipeline tuning
func (c EngineConfig) CoordinatorConfig() services.CoordinatorConfig {
	cfg := services.DefaultCoordinatorConfig()
	cfg.InitialServerKnowledge = c.InitialServerKnowledge
	cfg.InitialAgentKnowledge = c.InitialAgentKnowledge
	cfg.SyncMargin = c.SyncMargin
	cfg.SyncStep = c.SyncStep
	cfg.DirectiveFloor = c.DirectiveFloor
	cfg.Scoring.SeverityGains = map[models.Severity]float64{
		models.SeverityCritical: c.Scoring.Critical,
		models.SeverityHigh:     c.Scoring.High,
		models.SeverityMedium:   c.Scoring.Medium,
		models.SeverityInfo:     c.Scoring.Info,
	}
	if len(c.TitleMultipliers) > 0 {
		cfg.Scoring.TitleMultipliers = c.TitleMultipliers
	}
	cfg.Scoring.CorrelationGain = c.Scoring.Correlation
	cfg.Scoring.RemediationGain = c.Scoring.Remediation
	cfg.Scoring.IntelGain = c.Scoring.Intel
	cfg.Scoring.DetailedIntelGain = c.Scoring.DetailedIntel
	return cfg
}

// EngineOptions maps the engine section onto component settings. Publisher,
// metrics and clock are left for the caller to wire.
func (c EngineConfig) EngineOptions() services.EngineOptions {
	return services.EngineOptions{
		Sanitizer: services.SanitizerConfig{
			UsernameKeys:  c.Sanitizer.UsernameKeys,
			SignatureKeys: c.Sanitizer.SignatureKeys,
		},
		LedgerCapacity:       c.LedgerCapacity,
		EventLogCapacity:     c.EventLogCapacity,
		AlertFeedCapacity:    c.AlertFeedCapacity,
		CorrelationThreshold: c.CorrelationThreshold,
	}
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	e := c.Engine
	for key, v := range map[string]float64{
		"engine.initial_server_knowledge": e.InitialServerKnowledge,
		"engine.initial_agent_knowledge":  e.InitialAgentKnowledge,
	} {
		if v < models.KnowledgeMin || v > models.KnowledgeMax {
			return &models.ConfigurationError{Key: key, Reason: fmt.Sprintf("must be within [%d, %d]", int(models.KnowledgeMin), int(models.KnowledgeMax))}
		}
	}
	if e.SyncStep <= 0 {
		return &models.ConfigurationError{Key: "engine.sync_step", Reason: "must be positive"}
	}
	if e.CorrelationThreshold < 1 {
		return &models.ConfigurationError{Key: "engine.correlation_threshold", Reason: "must be at least 1"}
	}
	if c.Simulation.Interval <= 0 {
		return &models.ConfigurationError{Key: "simulation.interval", Reason: "must be positive"}
	}
	for key, p := range map[string]float64{
		"simulation.alert_chance":     c.Simulation.AlertChance,
		"simulation.intel_chance":     c.Simulation.IntelChance,
		"simulation.directive_chance": c.Simulation.DirectiveChance,
	} {
		if p < 0 || p > 1 {
			return &models.ConfigurationError{Key: key, Reason: "must be a probability"}
		}
	}
	return nil
}

// SetDefaults registers the stock settings so the binaries start without a
// config file
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "openprotect-lab")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.version", "1.0.0")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8090)
	v.SetDefault("server.grpc_port", 9090)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.key_prefix", "openprotect:")

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.stream_name", "CONSOLE_EVENTS")
	v.SetDefault("nats.subject_prefix", "console.events")

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Accept", "Content-Type", "X-Request-ID"})
	v.SetDefault("cors.max_age", 300)

	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.requests_per_minute", 120)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.time_format", time.RFC3339)

	d := services.DefaultCoordinatorConfig()
	v.SetDefault("engine.initial_server_knowledge", d.InitialServerKnowledge)
	v.SetDefault("engine.initial_agent_knowledge", d.InitialAgentKnowledge)
	v.SetDefault("engine.sync_margin", d.SyncMargin)
	v.SetDefault("engine.sync_step", d.SyncStep)
	v.SetDefault("engine.directive_floor", d.DirectiveFloor)
	v.SetDefault("engine.correlation_threshold", services.DefaultCorrelationThreshold)
	v.SetDefault("engine.ledger_capacity", services.DefaultLedgerCapacity)
	v.SetDefault("engine.event_log_capacity", services.DefaultEventLogCapacity)
	v.SetDefault("engine.alert_feed_capacity", services.DefaultAlertFeedCapacity)
	v.SetDefault("engine.scoring.critical", d.Scoring.SeverityGains[models.SeverityCritical])
	v.SetDefault("engine.scoring.high", d.Scoring.SeverityGains[models.SeverityHigh])
	v.SetDefault("engine.scoring.medium", d.Scoring.SeverityGains[models.SeverityMedium])
	v.SetDefault("engine.scoring.info", d.Scoring.SeverityGains[models.SeverityInfo])
	v.SetDefault("engine.scoring.correlation", d.Scoring.CorrelationGain)
	v.SetDefault("engine.scoring.remediation", d.Scoring.RemediationGain)
	v.SetDefault("engine.scoring.intel", d.Scoring.IntelGain)
	v.SetDefault("engine.scoring.detailed_intel", d.Scoring.DetailedIntelGain)
	v.SetDefault("engine.sanitizer.username_keys", services.DefaultSanitizerConfig().UsernameKeys)
	v.SetDefault("engine.sanitizer.signature_keys", services.DefaultSanitizerConfig().SignatureKeys)

	v.SetDefault("simulation.enabled", true)
	v.SetDefault("simulation.auto_start", true)
	v.SetDefault("simulation.source", "simulated")
	v.SetDefault("simulation.interval", 5*time.Second)
	v.SetDefault("simulation.seed", 0)
	v.SetDefault("simulation.alert_chance", 1.0)
	v.SetDefault("simulation.intel_chance", 0.4)
	v.SetDefault("simulation.directive_chance", 0.15)
}

// Load reads configuration from file and environment variables. A missing
// config file is only an error when configPath names one explicitly.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/openprotect-lab")
	}

	v.SetEnvPrefix("OPENPROTECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind nested env vars explicitly (viper doesn't auto-bind nested struct fields)
	v.BindEnv("redis.enabled", "OPENPROTECT_REDIS_ENABLED")
	v.BindEnv("redis.host", "OPENPROTECT_REDIS_HOST")
	v.BindEnv("redis.port", "OPENPROTECT_REDIS_PORT")
	v.BindEnv("redis.password", "OPENPROTECT_REDIS_PASSWORD")
	v.BindEnv("redis.tls", "OPENPROTECT_REDIS_TLS")
	v.BindEnv("nats.enabled", "OPENPROTECT_NATS_ENABLED")
	v.BindEnv("nats.url", "OPENPROTECT_NATS_URL")
	v.BindEnv("app.environment", "OPENPROTECT_APP_ENVIRONMENT")
	v.BindEnv("logger.level", "OPENPROTECT_LOGGER_LEVEL")
	v.BindEnv("simulation.source", "OPENPROTECT_SIMULATION_SOURCE")
	v.BindEnv("simulation.interval", "OPENPROTECT_SIMULATION_INTERVAL")
	v.BindEnv("simulation.seed", "OPENPROTECT_SIMULATION_SEED")
	v.BindEnv("playbooks.seed_file", "OPENPROTECT_PLAYBOOKS_SEED_FILE")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
