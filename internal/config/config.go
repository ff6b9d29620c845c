// ABOUTME: Server configuration from defaults, a YAML file, .env files and TEXTTREE_* variables
// ABOUTME: Later sources override earlier ones; Validate runs last

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nainya/texttree/pkg/idgen"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "TEXTTREE_"

// Store backends
const (
	BackendMemory  = "memory"
	BackendJournal = "journal"
)

// Config is the complete server configuration
type Config struct {
	GRPCPort    int `yaml:"grpc_port"`
	MetricsPort int `yaml:"metrics_port"` // 0 disables the observability server

	Store StoreConfig `yaml:"store"`

	// IDs names the identifier generator: uuid or ksuid
	IDs string `yaml:"ids"`

	// MatchThreshold is the token overlap a partial child match must exceed
	MatchThreshold float64 `yaml:"match_threshold"`

	// SeedFile fills an empty document on first start
	SeedFile string `yaml:"seed_file"`

	Log LogConfig `yaml:"log"`
}

// StoreConfig selects and locates the backing store
type StoreConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// LogConfig mirrors logger.Config
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
	Caller bool   `yaml:"caller"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		GRPCPort:    50051,
		MetricsPort: 9090,
		Store: StoreConfig{
			Backend: BackendJournal,
			Path:    "./data/texttree.journal",
		},
		IDs:            "uuid",
		MatchThreshold: 0.25,
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration. path names an optional YAML file; envFiles
// are read with godotenv (".env" when none are given and it exists). Process
// environment variables win over .env values.
func Load(path string, envFiles ...string) (Config, error) {
	fileEnv, err := readEnvFiles(envFiles)
	if err != nil {
		return Config{}, err
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok
	}
	return load(path, lookup)
}

func readEnvFiles(files []string) (map[string]string, error) {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil, nil
		}
		files = []string{".env"}
	}
	env, err := godotenv.Read(files...)
	if err != nil {
		return nil, fmt.Errorf("read env files: %w", err)
	}
	return env, nil
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	integer("GRPC_PORT", &c.GRPCPort)
	integer("METRICS_PORT", &c.MetricsPort)
	str("STORE_BACKEND", &c.Store.Backend)
	str("STORE_PATH", &c.Store.Path)
	str("IDS", &c.IDs)
	str("SEED_FILE", &c.SeedFile)
	str("LOG_LEVEL", &c.Log.Level)
	boolean("LOG_PRETTY", &c.Log.Pretty)
	boolean("LOG_CALLER", &c.Log.Caller)

	if v, ok := lookup(EnvPrefix + "MATCH_THRESHOLD"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sMATCH_THRESHOLD: %w", EnvPrefix, err))
		} else {
			c.MatchThreshold = f
		}
	}
	return errors.Join(errs...)
}

// Validate reports every invalid setting
func (c Config) Validate() error {
	var errs []error
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		errs = append(errs, fmt.Errorf("grpc_port %d out of range", c.GRPCPort))
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("metrics_port %d out of range", c.MetricsPort))
	}
	if c.MetricsPort != 0 && c.MetricsPort == c.GRPCPort {
		errs = append(errs, fmt.Errorf("metrics_port and grpc_port are both %d", c.GRPCPort))
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendJournal:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the journal backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}

	if _, err := idgen.ByName(c.IDs); err != nil {
		errs = append(errs, err)
	}
	if c.MatchThreshold < 0 || c.MatchThreshold >= 1 {
		errs = append(errs, fmt.Errorf("match_threshold %v must be in [0, 1)", c.MatchThreshold))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log.level %q", c.Log.Level))
	}
	return errors.Join(errs...)
}

// SeedText reads the seed file, empty when none is configured
func (c Config) SeedText() (string, error) {
	if c.SeedFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.SeedFile)
	if err != nil {
		return "", fmt.Errorf("read seed file: %w", err)
	}
	return string(data), nil
}
