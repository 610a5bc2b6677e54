package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all dynamic configuration for the domain controller.
type Config struct {
	Environment    string // "development" or "production"
	Port           string
	GRPCHealthAddr string
	AllowedOrigins []string

	// Empty in development means nothing is persisted.
	DatabaseURL string
	// 🛡️ Zero-Trust: seals stored snapshots. Retired keys still decrypt.
	MasterKeyHex  string
	RetiredKeyHex []string

	// The host this process controls. Never derived from the machine.
	HostName        string
	DomainFile      string
	HostFiles       []string
	ContentRoot     string
	WatchDomainFile bool

	// Extension modules the process knows, with the namespaces each one
	// contributes. Empty means documents are not checked against a registry.
	Extensions map[string][]string

	RuntimeTimeout  time.Duration
	MonitorInterval time.Duration
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}

	env := getEnv("KARIDC_ENV", "production")
	prod := env == "production"

	cfg := &Config{
		Environment:    env,
		Port:           getEnv("PORT", "8080"),
		GRPCHealthAddr: getEnv("GRPC_HEALTH_ADDR", ":9090"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		MasterKeyHex:   getEnv("ENCRYPTION_KEY", ""),
		RetiredKeyHex:  splitList(getEnv("ENCRYPTION_KEYS_RETIRED", "")),
		HostName:       getEnv("KARIDC_HOST_NAME", ""),
		DomainFile:     getEnv("KARIDC_DOMAIN_FILE", ""),
		HostFiles:      splitList(getEnv("KARIDC_HOST_FILES", "")),
		ContentRoot:    getEnv("KARIDC_CONTENT_ROOT", "/var/lib/karidc/content"),
	}

	var err error
	if cfg.RuntimeTimeout, err = getDuration("KARIDC_RUNTIME_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.MonitorInterval, err = getDuration("KARIDC_MONITOR_INTERVAL", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.Extensions, err = parseExtensions(getEnv("KARIDC_EXTENSIONS", "")); err != nil {
		return nil, err
	}
	if cfg.WatchDomainFile, err = strconv.ParseBool(getEnv("KARIDC_WATCH", "false")); err != nil {
		return nil, fmt.Errorf("KARIDC_WATCH: %w", err)
	}

	// 1. 🛡️ Zero-Trust: Fail Fast on Missing Secrets
	if cfg.DatabaseURL == "" && prod {
		return nil, errors.New("DATABASE_URL environment variable is required in production")
	}
	if cfg.DatabaseURL != "" {
		if err := checkKey("ENCRYPTION_KEY", cfg.MasterKeyHex); err != nil {
			return nil, err
		}
		for i, k := range cfg.RetiredKeyHex {
			if err := checkKey(fmt.Sprintf("ENCRYPTION_KEYS_RETIRED[%d]", i), k); err != nil {
				return nil, err
			}
		}
	}

	// 2. 🛡️ Strict CORS: Must be explicitly defined in Production
	corsOrigins := getEnv("CORS_ALLOWED_ORIGINS", "")
	if corsOrigins == "" {
		if prod {
			return nil, errors.New("CORS_ALLOWED_ORIGINS environment variable is required in production")
		}
		corsOrigins = "http://localhost:5173"
	}
	cfg.AllowedOrigins = splitList(corsOrigins)

	if cfg.DomainFile == "" && len(cfg.HostFiles) > 0 {
		return nil, errors.New("KARIDC_HOST_FILES needs KARIDC_DOMAIN_FILE")
	}
	if cfg.WatchDomainFile && cfg.DomainFile == "" {
		return nil, errors.New("KARIDC_WATCH needs KARIDC_DOMAIN_FILE")
	}
	return cfg, nil
}

// Persistent reports whether snapshots and the batch journal are stored.
func (c *Config) Persistent() bool { return c.DatabaseURL != "" }

func checkKey(name, v string) error {
	if v == "" {
		return fmt.Errorf("%s environment variable is required when DATABASE_URL is set", name)
	}
	if b, err := hex.DecodeString(v); err != nil || len(b) != 32 {
		return fmt.Errorf("%s must be 64 hex characters", name)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

// parseExtensions reads "module=ns1|ns2,module2=ns3".
func parseExtensions(v string) (map[string][]string, error) {
	entries := splitList(v)
	if len(entries) == 0 {
		return nil, nil
	}
	out := make(map[string][]string, len(entries))
	for _, e := range entries {
		module, namespaces, ok := strings.Cut(e, "=")
		module = strings.TrimSpace(module)
		if !ok || module == "" {
			return nil, fmt.Errorf("KARIDC_EXTENSIONS: %q is not module=namespace", e)
		}
		if _, dup := out[module]; dup {
			return nil, fmt.Errorf("KARIDC_EXTENSIONS: module %q listed twice", module)
		}
		var nss []string
		for _, ns := range strings.Split(namespaces, "|") {
			if ns = strings.TrimSpace(ns); ns != "" {
				nss = append(nss, ns)
			}
		}
		if len(nss) == 0 {
			return nil, fmt.Errorf("KARIDC_EXTENSIONS: module %q has no namespace", module)
		}
		out[module] = nss
	}
	return out, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
