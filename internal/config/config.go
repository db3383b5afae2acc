package config

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"collector-simulator/internal/sim"
)

type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Sim      SimConfig      `mapstructure:"sim"`
	Route    RouteConfig    `mapstructure:"route"`
	Database DatabaseConfig `mapstructure:"database"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Valkey   ValkeyConfig   `mapstructure:"valkey"`
	Bins     BinsConfig     `mapstructure:"bins"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

type APIConfig struct {
	URL      string        `mapstructure:"url"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Token    string        `mapstructure:"token"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type SimConfig struct {
	Spacing      float64       `mapstructure:"spacing"`
	Tolerance    float64       `mapstructure:"tolerance"`
	Speed        float64       `mapstructure:"speed"`
	PauseSeconds float64       `mapstructure:"pause"`
	StepUnit     time.Duration `mapstructure:"step_unit"`
	// UseIndex switches stop matching to the R-tree index.
	UseIndex bool `mapstructure:"use_index"`
}

// maxPause is the longest dwell a time.Duration can hold.
const maxPause = time.Duration(math.MaxInt64)

// Walker converts the tunables into the walker's config.
func (s SimConfig) Walker() sim.Config {
	return sim.Config{
		SpacingFactor:    s.Spacing,
		ArrivalTolerance: s.Tolerance,
		SpeedMultiplier:  s.Speed,
		Dwell:            time.Duration(s.PauseSeconds * float64(time.Second)),
		StepUnit:         s.StepUnit,
	}
}

const (
	SourceBuiltin  = "builtin"
	SourceGeoJSON  = "geojson"
	SourcePostgres = "postgres"
)

type RouteConfig struct {
	Source string `mapstructure:"source"`
	File   string `mapstructure:"file"`
	ID     string `mapstructure:"id"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type NATSConfig struct {
	// URL empty disables NATS publishing.
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
	Stream        string `mapstructure:"stream"`
	LogSubjects   bool   `mapstructure:"log_subjects"`
}

type ValkeyConfig struct {
	// Addr empty disables the token cache.
	Addr     string        `mapstructure:"addr"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

type BinsConfig struct {
	// Reset is "binID:level,binID:level".
	Reset     string `mapstructure:"reset"`
	SkipReset bool   `mapstructure:"skip_reset"`
}

type MetricsConfig struct {
	// Addr like ":9102"; empty disables the metrics server.
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads .env, then merges defaults, an optional simulator.yaml,
// SIMULATOR_* environment variables and command-line flags (highest wins).
// It returns pflag.ErrHelp when -h/--help is given.
func Load(args []string) (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	fs := pflag.NewFlagSet("simulator", pflag.ContinueOnError)
	configFile := fs.String("config", "", "path to a config file (default ./simulator.yaml)")
	bindFlags(v, fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", *configFile, err)
		}
	} else {
		v.SetConfigName("simulator")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		var notFound viper.ConfigFileNotFoundError
		if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// SIMULATOR_API_URL -> api.url
	v.SetEnvPrefix("SIMULATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.url", "http://localhost:5000")
	v.SetDefault("api.username", "collector1")
	v.SetDefault("api.password", "password")
	v.SetDefault("api.token", "")
	v.SetDefault("api.timeout", 10*time.Second)
	v.SetDefault("sim.spacing", 0.0002)
	v.SetDefault("sim.tolerance", 0.0005)
	v.SetDefault("sim.speed", 0.4)
	v.SetDefault("sim.pause", 5.0)
	v.SetDefault("sim.step_unit", time.Second)
	v.SetDefault("sim.use_index", false)
	v.SetDefault("route.source", SourceBuiltin)
	v.SetDefault("route.file", "")
	v.SetDefault("route.id", "")
	v.SetDefault("database.url", "")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "collector")
	v.SetDefault("nats.stream", "")
	v.SetDefault("nats.log_subjects", false)
	v.SetDefault("valkey.addr", "")
	v.SetDefault("valkey.token_ttl", 12*time.Hour)
	v.SetDefault("bins.reset", "67cbf9384d042a183ab3e09c:75,67cbf9384d042a183ab3e096:95")
	v.SetDefault("bins.skip_reset", false)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	flags := []struct {
		name, key, usage string
		kind             byte // s=string f=float b=bool
	}{
		{"url", "api.url", "API base URL", 's'},
		{"username", "api.username", "collector username", 's'},
		{"password", "api.password", "collector password", 's'},
		{"token", "api.token", "use this token instead of logging in", 's'},
		{"speed", "sim.speed", "simulation speed multiplier", 'f'},
		{"pause", "sim.pause", "seconds to pause at each bin", 'f'},
		{"spacing", "sim.spacing", "interpolation spacing in degrees", 'f'},
		{"tolerance", "sim.tolerance", "bin arrival tolerance in degrees", 'f'},
		{"skip-reset", "bins.skip_reset", "skip resetting bin fill levels", 'b'},
		{"bins", "bins.reset", "bin fill levels to reset, id:level,...", 's'},
		{"route-source", "route.source", "builtin, geojson or postgres", 's'},
		{"route-file", "route.file", "GeoJSON route file", 's'},
		{"route-id", "route.id", "route id in the database", 's'},
		{"nats-url", "nats.url", "NATS URL; empty disables publishing", 's'},
		{"metrics-addr", "metrics.addr", "metrics listen address", 's'},
		{"log-level", "log.level", "debug, info, warn or error", 's'},
	}
	for _, f := range flags {
		switch f.kind {
		case 'f':
			fs.Float64(f.name, v.GetFloat64(f.key), f.usage)
		case 'b':
			fs.Bool(f.name, v.GetBool(f.key), f.usage)
		default:
			fs.String(f.name, v.GetString(f.key), f.usage)
		}
		_ = v.BindPFlag(f.key, fs.Lookup(f.name))
	}
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if p := c.Sim.PauseSeconds; math.IsNaN(p) || p*float64(time.Second) >= math.MaxInt64 {
		errs = append(errs, fmt.Sprintf("sim.pause must be below %.0f seconds, got %v", maxPause.Seconds(), p))
	}
	if err := c.Sim.Walker().Validate(); err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			errs = append(errs, "sim: "+line)
		}
	}
	if c.API.URL == "" {
		errs = append(errs, "api.url is required")
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, "api.timeout must be positive")
	}
	switch c.Route.Source {
	case SourceBuiltin:
	case SourceGeoJSON:
		if c.Route.File == "" {
			errs = append(errs, "route.file is required when route.source is geojson")
		}
	case SourcePostgres:
		if c.Database.URL == "" {
			errs = append(errs, "database.url is required when route.source is postgres")
		}
		if c.Route.ID == "" {
			errs = append(errs, "route.id is required when route.source is postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("route.source must be builtin, geojson or postgres, got %q", c.Route.Source))
	}
	if _, err := ParseBinResets(c.Bins.Reset); err != nil {
		errs = append(errs, err.Error())
	}
	if f := strings.ToLower(c.Log.Format); f != "json" && f != "text" {
		errs = append(errs, fmt.Sprintf("log.format must be json or text, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ParseBinResets parses "id:level,id:level". Levels are percentages 0..100.
func ParseBinResets(s string) (map[string]int, error) {
	out := map[string]int{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, lvl, ok := strings.Cut(part, ":")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("bins.reset: invalid entry %q, want id:level", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(lvl))
		if err != nil || n < 0 || n > 100 {
			return nil, fmt.Errorf("bins.reset: invalid level in %q", part)
		}
		out[id] = n
	}
	return out, nil
}

// FormatBinResets is the inverse of ParseBinResets with ids sorted.
func FormatBinResets(m map[string]int) string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id + ":" + strconv.Itoa(m[id])
	}
	return strings.Join(parts, ",")
}
