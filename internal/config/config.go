package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"
)

// =============================================================================
// Sentinel Engine Configuration with Environment Overrides
// =============================================================================

type Config struct {
	Server     ServerConfig                `yaml:"server"`
	Engine     EngineConfig                `yaml:"engine"`
	Signature  SignatureConfig             `yaml:"signature"`
	LLM        LLMConfig                   `yaml:"llm"`
	Redis      RedisConfig                 `yaml:"redis"`
	PubSub     PubSubConfig                `yaml:"pubsub"`
	CloudTasks CloudTasksConfig            `yaml:"cloud_tasks"`
	Webhook    WebhookConfig               `yaml:"webhook"`
	Cluster    ClusterConfig               `yaml:"cluster"`
	Demo       DemoConfig                  `yaml:"demo"`
	Aggregator AggregatorConfig            `yaml:"aggregator"`
	Detection  map[string]DetectorOverride `yaml:"detection"`
}

type ServerConfig struct {
	Port             string   `yaml:"port"`
	Env              string   `yaml:"env"`
	Interface        string   `yaml:"interface"`
	ReadTimeoutSec   int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec  int      `yaml:"write_timeout_sec"`
	IdleTimeoutSec   int      `yaml:"idle_timeout_sec"`
	ShutdownTimeout  int      `yaml:"shutdown_timeout_sec"`
	CORSAllowOrigins []string `yaml:"cors_allow_origins"`
}

// EngineConfig governs the wave orchestrator's budget and backpressure model.
type EngineConfig struct {
	OverallDeadlineMs     int     `yaml:"overall_deadline_ms"`
	DeadlineTailReserve   float64 `yaml:"deadline_tail_reserve"`
	DefaultDetectorMs     int     `yaml:"default_detector_budget_ms"`
	MaxConcurrentWave     int     `yaml:"max_concurrent_per_wave"`
	BackpressureHighWater int     `yaml:"backpressure_high_water"`
	ManifestPath          string  `yaml:"manifest_path"`
	ManifestOverridePath  string  `yaml:"manifest_override_path"`

	// Wave2MinRemainingFraction and the Definitive*P pair gate the advanced
	// fingerprinting wave: it is skipped when less than this fraction of the
	// overall deadline remains, or when the bot-probability implied by the
	// contributions collected so far already sits outside [DefinitiveLowP,
	// DefinitiveHighP].
	Wave2MinRemainingFraction float64 `yaml:"wave2_min_remaining_fraction"`
	DefinitiveLowP            float64 `yaml:"definitive_low_p"`
	DefinitiveHighP           float64 `yaml:"definitive_high_p"`
}

// SignatureConfig governs primary-signature derivation and rotation.
type SignatureConfig struct {
	RootSecret     string `yaml:"root_secret"`
	RotationSalt   string `yaml:"rotation_salt"`
	HitWindowSec   int    `yaml:"hit_window_sec"`
	HitBucketCount int    `yaml:"hit_bucket_count"`
	RecentNamesCap int    `yaml:"recent_names_cap"`
}

// LLMConfig governs the escalation client's trigger band and HTTP transport.
type LLMConfig struct {
	Enabled          bool    `yaml:"enabled"`
	Endpoint         string  `yaml:"endpoint"`
	APIKey           string  `yaml:"api_key"`
	Model            string  `yaml:"model"`
	TimeoutMs        int     `yaml:"timeout_ms"`
	TriggerLow       float64 `yaml:"trigger_low"`
	TriggerHigh      float64 `yaml:"trigger_high"`
	BreakerThreshold int     `yaml:"breaker_failure_threshold"`
	BreakerResetSec  int     `yaml:"breaker_reset_sec"`
}

// RedisConfig backs the optional distributed signature/hit-counter store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

// PubSubConfig transports feature records emitted by add_learning.
type PubSubConfig struct {
	ProjectID string `yaml:"project_id"`
	TopicID   string `yaml:"topic_id"`
	Enabled   bool   `yaml:"enabled"`
}

// CloudTasksConfig durably delivers VeryHigh-risk security alerts.
type CloudTasksConfig struct {
	ProjectID  string `yaml:"project_id"`
	LocationID string `yaml:"location_id"`
	QueueID    string `yaml:"queue_id"`
	Enabled    bool   `yaml:"enabled"`
}

type WebhookConfig struct {
	AlertURL    string `yaml:"alert_url"`
	Secret      string `yaml:"secret"`
	WorkerCount int    `yaml:"worker_count"`
}

// ClusterConfig governs the adaptive similarity weighter and clustering pass.
type ClusterConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	MinWeight           float64 `yaml:"min_weight"`
	MaxWeight           float64 `yaml:"max_weight"`
	ShiftCVDelta        float64 `yaml:"shift_cv_delta"`
}

type DemoConfig struct {
	Enabled      bool `yaml:"enabled"`
	StreamBuffer int  `yaml:"stream_buffer"`
}

// AggregatorConfig governs the bounded-logistic aggregation, risk banding,
// and confidence calculation in §4.E.
type AggregatorConfig struct {
	LogisticK       float64   `yaml:"logistic_k"`
	Saturation      float64   `yaml:"saturation"`
	BotThreshold    float64   `yaml:"bot_threshold"`
	RiskBandCutoffs []float64 `yaml:"risk_band_cutoffs"`
	StrongInconsist float64   `yaml:"strong_signal_inconsistency"`
	StrongHeadless  float64   `yaml:"strong_signal_headless"`
}

// DetectorOverride carries per-detector manifest field overrides keyed by
// detector name, e.g. Detection.Heuristic.enabled: false in YAML.
type DetectorOverride struct {
	Enabled  *bool             `yaml:"enabled"`
	Priority *int              `yaml:"priority"`
	BudgetMs *int              `yaml:"budget_ms"`
	Params   map[string]string `yaml:"params"`
}

// =============================================================================
// Singleton Pattern with Environment Overrides
// =============================================================================

var (
	instance *Config
	once     sync.Once
)

// Get returns the singleton config instance.
func Get() *Config {
	once.Do(func() {
		cfg, err := LoadConfig(getEnv("SENTINEL_CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file (using defaults)", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		instance = cfg
	})
	return instance
}

// LoadConfig loads config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides applies SENTINEL_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	c.Server.Port = getEnv("SENTINEL_PORT", c.Server.Port)
	c.Server.Env = getEnv("SENTINEL_ENV", c.Server.Env)
	c.Server.Interface = getEnv("SENTINEL_INTERFACE", c.Server.Interface)
	if v := getEnvInt("SENTINEL_SERVER_READ_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ReadTimeoutSec = v
	}
	if v := getEnvInt("SENTINEL_SERVER_WRITE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.WriteTimeoutSec = v
	}
	if v := getEnvInt("SENTINEL_SERVER_IDLE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.IdleTimeoutSec = v
	}
	if origins := getEnv("SENTINEL_CORS_ALLOW_ORIGINS", ""); origins != "" {
		c.Server.CORSAllowOrigins = splitCSV(origins)
	}

	if v := getEnvInt("SENTINEL_OVERALL_DEADLINE_MS", 0); v > 0 {
		c.Engine.OverallDeadlineMs = v
	}
	if v := getEnvFloat("SENTINEL_DEADLINE_TAIL_RESERVE", 0); v > 0 {
		c.Engine.DeadlineTailReserve = v
	}
	if v := getEnvInt("SENTINEL_DEFAULT_DETECTOR_BUDGET_MS", 0); v > 0 {
		c.Engine.DefaultDetectorMs = v
	}
	if v := getEnvInt("SENTINEL_BACKPRESSURE_HIGH_WATER", 0); v > 0 {
		c.Engine.BackpressureHighWater = v
	}
	c.Engine.ManifestPath = getEnv("SENTINEL_MANIFEST_PATH", c.Engine.ManifestPath)
	c.Engine.ManifestOverridePath = getEnv("SENTINEL_MANIFEST_OVERRIDE_PATH", c.Engine.ManifestOverridePath)

	c.Signature.RootSecret = getEnv("SENTINEL_SIGNATURE_SECRET", c.Signature.RootSecret)
	c.Signature.RotationSalt = getEnv("SENTINEL_SIGNATURE_SALT", c.Signature.RotationSalt)
	if v := getEnvInt("SENTINEL_HIT_WINDOW_SEC", 0); v > 0 {
		c.Signature.HitWindowSec = v
	}
	if v := getEnvInt("SENTINEL_RECENT_NAMES_CAP", 0); v > 0 {
		c.Signature.RecentNamesCap = v
	}

	c.LLM.Enabled = getEnvBool("SENTINEL_LLM_ENABLED", c.LLM.Enabled)
	c.LLM.Endpoint = getEnv("SENTINEL_LLM_ENDPOINT", c.LLM.Endpoint)
	c.LLM.APIKey = getEnv("SENTINEL_LLM_API_KEY", c.LLM.APIKey)
	c.LLM.Model = getEnv("SENTINEL_LLM_MODEL", c.LLM.Model)
	if v := getEnvFloat("SENTINEL_LLM_TRIGGER_LOW", 0); v > 0 {
		c.LLM.TriggerLow = v
	}
	if v := getEnvFloat("SENTINEL_LLM_TRIGGER_HIGH", 0); v > 0 {
		c.LLM.TriggerHigh = v
	}

	c.Redis.Addr = getEnv("SENTINEL_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("SENTINEL_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.Enabled = getEnvBool("SENTINEL_REDIS_ENABLED", c.Redis.Enabled)

	if projectID := getEnv("SENTINEL_GCP_PROJECT_ID", ""); projectID != "" {
		c.PubSub.ProjectID = projectID
		c.CloudTasks.ProjectID = projectID
	}
	c.PubSub.TopicID = getEnv("SENTINEL_PUBSUB_TOPIC_ID", c.PubSub.TopicID)
	c.PubSub.Enabled = getEnvBool("SENTINEL_PUBSUB_ENABLED", c.PubSub.Enabled)

	c.CloudTasks.LocationID = getEnv("SENTINEL_CLOUD_TASKS_LOCATION", c.CloudTasks.LocationID)
	c.CloudTasks.QueueID = getEnv("SENTINEL_CLOUD_TASKS_QUEUE", c.CloudTasks.QueueID)
	c.CloudTasks.Enabled = getEnvBool("SENTINEL_CLOUD_TASKS_ENABLED", c.CloudTasks.Enabled)

	c.Webhook.AlertURL = getEnv("SENTINEL_ALERT_WEBHOOK_URL", c.Webhook.AlertURL)
	c.Webhook.Secret = getEnv("SENTINEL_ALERT_WEBHOOK_SECRET", c.Webhook.Secret)
	if v := getEnvInt("SENTINEL_WEBHOOK_WORKERS", 0); v > 0 {
		c.Webhook.WorkerCount = v
	}

	c.Demo.Enabled = getEnvBool("SENTINEL_DEMO_MODE", c.Demo.Enabled)

	c.applyDefaults()
}

// applyDefaults sets sensible defaults for zero-valued config fields.
func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = 15
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = 15
	}
	if c.Server.IdleTimeoutSec == 0 {
		c.Server.IdleTimeoutSec = 60
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30
	}
	if len(c.Server.CORSAllowOrigins) == 0 {
		c.Server.CORSAllowOrigins = []string{"*"}
	}

	if c.Engine.OverallDeadlineMs == 0 {
		c.Engine.OverallDeadlineMs = 150
	}
	if c.Engine.DeadlineTailReserve == 0 {
		c.Engine.DeadlineTailReserve = 0.10
	}
	if c.Engine.DefaultDetectorMs == 0 {
		c.Engine.DefaultDetectorMs = 20
	}
	if c.Engine.MaxConcurrentWave == 0 {
		c.Engine.MaxConcurrentWave = 8
	}
	if c.Engine.BackpressureHighWater == 0 {
		c.Engine.BackpressureHighWater = 64
	}
	if c.Engine.ManifestPath == "" {
		c.Engine.ManifestPath = "manifests/detectors.yaml"
	}
	if c.Engine.Wave2MinRemainingFraction == 0 {
		c.Engine.Wave2MinRemainingFraction = 0.3
	}
	if c.Engine.DefinitiveLowP == 0 {
		c.Engine.DefinitiveLowP = 0.03
	}
	if c.Engine.DefinitiveHighP == 0 {
		c.Engine.DefinitiveHighP = 0.97
	}

	if c.Signature.HitWindowSec == 0 {
		c.Signature.HitWindowSec = 60
	}
	if c.Signature.HitBucketCount == 0 {
		c.Signature.HitBucketCount = 12
	}
	if c.Signature.RecentNamesCap == 0 {
		c.Signature.RecentNamesCap = 200
	}
	if c.Signature.RootSecret == "" {
		c.Signature.RootSecret = "sentinel-dev-secret-change-me"
	}

	if c.LLM.TimeoutMs == 0 {
		c.LLM.TimeoutMs = 2000
	}
	if c.LLM.TriggerLow == 0 {
		c.LLM.TriggerLow = 0.35
	}
	if c.LLM.TriggerHigh == 0 {
		c.LLM.TriggerHigh = 0.75
	}
	if c.LLM.BreakerThreshold == 0 {
		c.LLM.BreakerThreshold = 5
	}
	if c.LLM.BreakerResetSec == 0 {
		c.LLM.BreakerResetSec = 30
	}

	if c.PubSub.TopicID == "" {
		c.PubSub.TopicID = "sentinel-learning-records"
	}
	if c.CloudTasks.LocationID == "" {
		c.CloudTasks.LocationID = "us-central1"
	}
	if c.CloudTasks.QueueID == "" {
		c.CloudTasks.QueueID = "sentinel-security-alerts"
	}
	if c.Webhook.WorkerCount == 0 {
		c.Webhook.WorkerCount = 4
	}

	if c.Cluster.SimilarityThreshold == 0 {
		c.Cluster.SimilarityThreshold = 0.82
	}
	if c.Cluster.MinWeight == 0 {
		c.Cluster.MinWeight = 0.01
	}
	if c.Cluster.MaxWeight == 0 {
		c.Cluster.MaxWeight = 0.25
	}
	if c.Cluster.ShiftCVDelta == 0 {
		c.Cluster.ShiftCVDelta = 0.30
	}

	if c.Demo.StreamBuffer == 0 {
		c.Demo.StreamBuffer = 32
	}

	if c.Aggregator.LogisticK == 0 {
		c.Aggregator.LogisticK = 1.0
	}
	if c.Aggregator.Saturation == 0 {
		c.Aggregator.Saturation = 2.0
	}
	if c.Aggregator.BotThreshold == 0 {
		c.Aggregator.BotThreshold = 0.7
	}
	if len(c.Aggregator.RiskBandCutoffs) == 0 {
		c.Aggregator.RiskBandCutoffs = []float64{0.2, 0.4, 0.6, 0.8, 0.95}
	}
	if c.Aggregator.StrongInconsist == 0 {
		c.Aggregator.StrongInconsist = 0.5
	}
	if c.Aggregator.StrongHeadless == 0 {
		c.Aggregator.StrongHeadless = 0.7
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func splitCSV(s string) []string {
	parts := make([]string, 0)
	for _, p := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// =============================================================================
// Convenience Methods
// =============================================================================

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

func (c *Config) GetPort() string {
	if c.Server.Port == "" {
		return "8080"
	}
	return c.Server.Port
}

// OverrideFor returns the per-detector manifest override for name, if any.
func (c *Config) OverrideFor(name string) (DetectorOverride, bool) {
	o, ok := c.Detection[name]
	return o, ok
}

// ApplyTestDefaults fills zero-valued fields with the same defaults Get()
// would apply, without touching the environment or singleton state. Intended
// for other packages' tests that need a populated Config.
func (c *Config) ApplyTestDefaults() {
	c.applyDefaults()
}
