package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agreemo/dashboard/backend/internal/model"
)

type Config struct {
	ServerPort        string
	DatabaseURL       string
	AgreemoBaseURL    string
	AgreemoAPIKey     string
	CORSAllowOrigin   string
	PollInterval      time.Duration
	PollCooldown      time.Duration
	FetchTimeout      time.Duration
	UpstreamRateLimit float64
	HistoryRetention  time.Duration
	LogLevel          string
	DomainsFile       string
	Domains           []model.Descriptor
}

// Load reads the environment. DATABASE_URL is optional; poll history is
// disabled without it.
func Load() *Config {
	cfg := &Config{
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		AgreemoBaseURL:    requireEnv("AGREEMO_BASE_URL"),
		AgreemoAPIKey:     requireEnv("AGREEMO_API_KEY"),
		CORSAllowOrigin:   getEnv("CORS_ALLOW_ORIGIN", "http://localhost:3000"),
		PollInterval:      getDuration("POLL_INTERVAL", 15*time.Second),
		PollCooldown:      getDuration("POLL_COOLDOWN", 15*time.Second),
		FetchTimeout:      getDuration("FETCH_TIMEOUT", 10*time.Second),
		UpstreamRateLimit: getFloat("UPSTREAM_RATE_LIMIT", 0),
		HistoryRetention:  getDuration("HISTORY_RETENTION", 7*24*time.Hour),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DomainsFile:       os.Getenv("DOMAINS_FILE"),
	}

	domains := DefaultDomains()
	if cfg.DomainsFile != "" {
		loaded, err := LoadDomains(cfg.DomainsFile)
		if err != nil {
			panic(fmt.Sprintf("load domains file: %v", err))
		}
		domains = loaded
	}
	cfg.Domains = ApplyPeriods(domains, cfg.PollInterval, cfg.PollCooldown)
	return cfg
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// DefaultDomains is the domain set of the greenhouse dashboard.
func DefaultDomains() []model.Descriptor {
	logNames := []string{
		"adminLogs",
		"userLogs",
		"hardwareLogs",
		"hardwareStatusLogs",
		"harvestLogs",
		"inventoryLogs",
		"maintenanceLogs",
		"rejectionLogs",
	}
	subs := make([]model.SubEndpoint, 0, len(logNames))
	for _, n := range logNames {
		subs = append(subs, model.SubEndpoint{
			Name:     n,
			Endpoint: "/api/v1/" + n,
			DataKey:  n,
			Kind:     model.KindList,
		})
	}

	return []model.Descriptor{
		{Name: "harvest", Endpoint: "/api/v1/harvests", EventName: "HarvestData", DataKey: "harvestTable", Kind: model.KindList},
		{Name: "rejected", Endpoint: "/api/v1/rejections", EventName: "RejectData", DataKey: "rejectedTable", Kind: model.KindList},
		{Name: "maintenance", Endpoint: "/api/v1/maintenance", EventName: "MaintenanceData", DataKey: "maintenanceTable", Kind: model.KindList},
		{Name: "logs", EventName: "LogsData", SubEndpoints: subs},
	}
}

type domainsFile struct {
	Domains []model.Descriptor `yaml:"domains"`
}

// LoadDomains parses a YAML descriptor file.
func LoadDomains(path string) ([]model.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var f domainsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(f.Domains) == 0 {
		return nil, fmt.Errorf("%s: no domains defined", path)
	}
	return f.Domains, nil
}

// ApplyPeriods fills unset per-domain periods with the global values.
func ApplyPeriods(domains []model.Descriptor, poll, cooldown time.Duration) []model.Descriptor {
	out := make([]model.Descriptor, len(domains))
	for i, d := range domains {
		if d.PollPeriod <= 0 {
			d.PollPeriod = poll
		}
		if d.Cooldown <= 0 {
			d.Cooldown = cooldown
		}
		out[i] = d
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration for env var, using default",
			"key", key, "value", v, "default", fallback)
		return fallback
	}
	return d
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		slog.Warn("invalid number for env var, using default",
			"key", key, "value", v, "default", fallback)
		return fallback
	}
	return f
}
