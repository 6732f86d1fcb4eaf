// Package config loads the YAML configuration shared by the binaries, with
// environment overrides for secrets and endpoints.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"web/resalegeo/artifact"
	"web/resalegeo/cluster"
	"web/resalegeo/events"
	"web/resalegeo/geocode"
	"web/resalegeo/join"
)

type Config struct {
	Data     DataConfig                 `yaml:"data"`
	Transit  cluster.Job                `yaml:"transit"`
	School   cluster.Job                `yaml:"school"`
	Joins    []join.Spec                `yaml:"joins"`
	Geocode  GeocodeConfig              `yaml:"geocode"`
	Overpass OverpassConfig             `yaml:"overpass"`
	Postgres PostgresConfig             `yaml:"postgres"`
	Objects  artifact.ObjectStoreConfig `yaml:"object_store"`
	NATS     events.Config              `yaml:"nats"`
	Server   ServerConfig               `yaml:"server"`
	LogLevel string                     `yaml:"log_level"`
}

// DataConfig points at the input datasets and the artifact directory.
type DataConfig struct {
	StationExits string `yaml:"station_exits"`
	Schools      string `yaml:"schools"`
	Resale       string `yaml:"resale"`
	Stock        string `yaml:"stock"`
	Unemployment string `yaml:"unemployment"`
	ArtifactDir  string `yaml:"artifact_dir"`
	Compress     bool   `yaml:"compress"`
	Target       string `yaml:"target"`
	Output       string `yaml:"output"`
}

type GeocodeConfig struct {
	geocode.Config `yaml:",inline"`
	Workers        int           `yaml:"workers"`
	RedisAddr      string        `yaml:"redis_addr"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	// Timeout bounds a single OneMap request.
	Timeout time.Duration `yaml:"timeout"`
}

type OverpassConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`
	// ReloadInterval polls the artifact dir for newer runs. Zero disables
	// polling; NATS events still trigger reloads.
	ReloadInterval time.Duration `yaml:"reload_interval"`
	MaxLoadedRuns  int           `yaml:"max_loaded_runs"`
}

// Default is the configuration used when no file is given.
func Default() Config {
	return Config{
		Data: DataConfig{
			StationExits: "data/mrt_exits.csv",
			Schools:      "data/schools.csv",
			Resale:       "data/resale.csv",
			Stock:        "data/stock.csv",
			Unemployment: "data/unemployment.csv",
			ArtifactDir:  "data/artifacts",
			Compress:     true,
			Target:       "resale_price",
			Output:       "data/features.csv",
		},
		Transit: cluster.TransitJob(),
		School:  cluster.SchoolJob(),
		Joins:   []join.Spec{join.TransitSpec(), join.SchoolSpec()},
		Geocode: GeocodeConfig{
			Config:   geocode.Config{BaseURL: geocode.DefaultBaseURL, RequestsPerSecond: 4, Burst: 1},
			Workers:  8,
			CacheTTL: 30 * 24 * time.Hour,
			Timeout:  10 * time.Second,
		},
		Overpass: OverpassConfig{Timeout: 60 * time.Second},
		Server: ServerConfig{
			HTTPAddr:      ":8080",
			GRPCAddr:      ":50051",
			MaxLoadedRuns: 3,
		},
		LogLevel: "info",
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path uses the defaults alone.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	c.Data.ArtifactDir = envOr("ARTIFACT_DIR", c.Data.ArtifactDir)
	c.Geocode.Token = envOr("ONEMAP_TOKEN", c.Geocode.Token)
	c.Geocode.Email = envOr("ONEMAP_EMAIL", c.Geocode.Email)
	c.Geocode.Password = envOr("ONEMAP_PASSWORD", c.Geocode.Password)
	c.Geocode.RedisAddr = envOr("REDIS_ADDR", c.Geocode.RedisAddr)
	c.Postgres.DSN = envOr("POSTGRES_DSN", c.Postgres.DSN)
	c.Objects.Endpoint = envOr("MINIO_ENDPOINT", c.Objects.Endpoint)
	c.Objects.AccessKey = envOr("MINIO_ACCESS_KEY", c.Objects.AccessKey)
	c.Objects.SecretKey = envOr("MINIO_SECRET_KEY", c.Objects.SecretKey)
	c.Objects.Bucket = envOr("MINIO_BUCKET", c.Objects.Bucket)
	c.NATS.URL = envOr("NATS_URL", c.NATS.URL)
	c.Server.HTTPAddr = envOr("HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.GRPCAddr = envOr("GRPC_ADDR", c.Server.GRPCAddr)
	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)
	if v, err := strconv.ParseBool(os.Getenv("ARTIFACT_COMPRESS")); err == nil {
		c.Data.Compress = v
	}
}

// Validate checks the fields every binary relies on.
func (c Config) Validate() error {
	if c.Data.ArtifactDir == "" {
		return fmt.Errorf("config: data.artifact_dir is required")
	}
	if len(c.Joins) == 0 {
		return fmt.Errorf("config: at least one join is required")
	}
	seen := make(map[string]bool, len(c.Joins))
	for _, j := range c.Joins {
		if j.Entity == "" {
			return fmt.Errorf("config: join without entity")
		}
		if seen[j.Entity] {
			return fmt.Errorf("config: duplicate join for %s", j.Entity)
		}
		seen[j.Entity] = true
	}
	if c.Objects.Endpoint != "" && c.Objects.Bucket == "" {
		return fmt.Errorf("config: object_store.bucket is required with an endpoint")
	}
	return nil
}

// NewLogger builds the process logger at the configured level: JSON for
// services, text for command-line tools.
func (c Config) NewLogger(jsonOutput bool) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if jsonOutput {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
