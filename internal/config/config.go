package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/siteverify/internal/decision"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
	Thresholds  ThresholdsConfig  `yaml:"thresholds" mapstructure:"thresholds"`
	Defaults    DefaultsConfig    `yaml:"defaults" mapstructure:"defaults"`
	CachePolicy CachePolicyConfig `yaml:"cache_policy" mapstructure:"cache_policy"`
	Equivalence EquivalenceConfig `yaml:"equivalence" mapstructure:"equivalence"`
	Decide      DecideConfig      `yaml:"decide" mapstructure:"decide"`
}

// StoreConfig configures the run-history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	// Pool sizing for the postgres driver. Zero keeps the store defaults.
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
	// ConnectAttempts bounds retries of transient open failures.
	ConnectAttempts int `yaml:"connect_attempts" mapstructure:"connect_attempts"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ThresholdsConfig holds the upstream thresholds. The decision engine only
// reads the flags they produced, but they are part of the run fingerprint.
type ThresholdsConfig struct {
	StaleYears       int     `yaml:"stale_years" mapstructure:"stale_years"`
	FootprintRadiusM float64 `yaml:"footprint_radius_m" mapstructure:"footprint_radius_m"`
}

// DefaultsConfig holds fallbacks applied while normalizing input.
type DefaultsConfig struct {
	CountryIfUSZip string `yaml:"country_if_us_zip" mapstructure:"country_if_us_zip"`
}

// CachePolicyConfig bounds how long upstream geocode results may be cached.
type CachePolicyConfig struct {
	LatLngTTLDays int `yaml:"latlng_ttl_days" mapstructure:"latlng_ttl_days"`
}

// EquivalenceConfig tunes the input-correctness check.
type EquivalenceConfig struct {
	SamePlaceM      float64  `yaml:"same_place_m" mapstructure:"same_place_m"`
	NearbyM         float64  `yaml:"nearby_m" mapstructure:"nearby_m"`
	MajorComponents []string `yaml:"major_components" mapstructure:"major_components"`
}

// DecideConfig configures the decision run.
type DecideConfig struct {
	// AnchorTimestamp pins run_timestamp_utc for reproducible runs.
	AnchorTimestamp string `yaml:"anchor_timestamp" mapstructure:"anchor_timestamp"`
}

// MaxLatLngTTLDays is the longest coordinate caching window allowed by the
// geocoding terms of service.
const MaxLatLngTTLDays = 30

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SITEVERIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("decide.anchor_timestamp", "SITEVERIFY_DECIDE_ANCHOR_TIMESTAMP", "RUN_ANCHOR_TIMESTAMP_UTC")

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "siteverify.db")
	v.SetDefault("store.connect_attempts", 3)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("thresholds.stale_years", 5)
	v.SetDefault("thresholds.footprint_radius_m", 30.0)
	v.SetDefault("defaults.country_if_us_zip", "US")
	v.SetDefault("cache_policy.latlng_ttl_days", 30)
	v.SetDefault("equivalence.same_place_m", decision.DefaultSamePlaceM)
	v.SetDefault("equivalence.nearby_m", decision.DefaultNearbyM)
	v.SetDefault("equivalence.major_components", decision.DefaultEquivalencePolicy().MajorComponents)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. All problems are
// reported together.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "decide":
		problems = append(problems, c.validateDecision()...)
	case "serve":
		problems = append(problems, c.validateDecision()...)
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "normalize":
		if strings.TrimSpace(c.Defaults.CountryIfUSZip) == "" {
			problems = append(problems, "defaults.country_if_us_zip is required")
		}
	case "runs":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode != "normalize" {
		problems = append(problems, c.validateStore()...)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateDecision() []string {
	var problems []string
	if c.Thresholds.StaleYears <= 0 {
		problems = append(problems, "thresholds.stale_years must be > 0")
	}
	if c.Thresholds.FootprintRadiusM <= 0 {
		problems = append(problems, "thresholds.footprint_radius_m must be > 0")
	}
	if c.CachePolicy.LatLngTTLDays > MaxLatLngTTLDays {
		problems = append(problems, fmt.Sprintf("cache_policy.latlng_ttl_days must be <= %d", MaxLatLngTTLDays))
	}
	if c.Equivalence.SamePlaceM <= 0 {
		problems = append(problems, "equivalence.same_place_m must be > 0")
	}
	if c.Equivalence.NearbyM < c.Equivalence.SamePlaceM {
		problems = append(problems, "equivalence.nearby_m must be >= equivalence.same_place_m")
	}
	if a := strings.TrimSpace(c.Decide.AnchorTimestamp); a != "" {
		if _, err := decision.ParseAnchor(a); err != nil {
			problems = append(problems, fmt.Sprintf("decide.anchor_timestamp %q is not an ISO-8601 timestamp", a))
		}
	}
	return problems
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return []string{fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver)}
	}
	if c.Store.DatabaseURL == "" {
		return []string{"store.database_url is required"}
	}
	return nil
}

// Policy returns the equivalence policy the decision engine should apply.
func (c *Config) Policy() decision.EquivalencePolicy {
	major := make([]string, len(c.Equivalence.MajorComponents))
	copy(major, c.Equivalence.MajorComponents)
	return decision.EquivalencePolicy{
		SamePlaceM:      c.Equivalence.SamePlaceM,
		NearbyM:         c.Equivalence.NearbyM,
		MajorComponents: major,
	}
}

// fingerprint is the decision-relevant subset of the configuration.
type fingerprint struct {
	Thresholds  ThresholdsConfig  `yaml:"thresholds"`
	Defaults    DefaultsConfig    `yaml:"defaults"`
	Equivalence EquivalenceConfig `yaml:"equivalence"`
}

// Fingerprint returns a deterministic encoding of the settings that can
// change a run's output. The anchor timestamp is not part of it.
func (c *Config) Fingerprint() ([]byte, error) {
	out, err := yaml.Marshal(fingerprint{
		Thresholds:  c.Thresholds,
		Defaults:    c.Defaults,
		Equivalence: c.Equivalence,
	})
	if err != nil {
		return nil, eris.Wrap(err, "config: fingerprint")
	}
	return out, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
