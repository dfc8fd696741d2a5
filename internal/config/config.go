// Package config loads service configuration from an optional YAML file with
// LABSTOCK_* environment variable overrides. Environment always wins.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file consulted when none is given.
const DefaultPath = "labstock.yaml"

// Config is the full service configuration.
type Config struct {
	ListenAddr    string `yaml:"listen_addr"`
	StorageDriver string `yaml:"storage_driver"`
	CSVPath       string `yaml:"csv_path"`
	// Watch reloads the store when the CSV file is edited externally.
	Watch     bool   `yaml:"watch"`
	StrictCAS bool   `yaml:"strict_cas"`
	LogLevel  string `yaml:"log_level"`

	Backup BackupConfig `yaml:"backup"`
	Lookup LookupConfig `yaml:"lookup"`
}

// BackupConfig selects and parameterizes the backup target.
type BackupConfig struct {
	Driver string `yaml:"driver"`
	FSRoot string `yaml:"fs_root"`

	S3Bucket    string `yaml:"s3_bucket"`
	S3Region    string `yaml:"s3_region"`
	S3Prefix    string `yaml:"s3_prefix"`
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// LookupConfig parameterizes the PubChem client and its cache.
type LookupConfig struct {
	Disabled  bool          `yaml:"disabled"`
	BaseURL   string        `yaml:"base_url"`
	CachePath string        `yaml:"cache_path"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:    ":8080",
		StorageDriver: "csv",
		CSVPath:       "chemicals_master.csv",
		LogLevel:      "info",
		Backup: BackupConfig{
			Driver: "fs",
			FSRoot: "./backups",
		},
		Lookup: LookupConfig{
			CachePath: "lookup_cache.db",
			CacheTTL:  30 * 24 * time.Hour,
		},
	}
}

// Load reads path (when it exists) over the defaults, then applies
// environment overrides. An empty path means DefaultPath, and a missing
// default file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// fine, run on defaults
	default:
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.ListenAddr, "LABSTOCK_LISTEN_ADDR")
	setString(&c.StorageDriver, "LABSTOCK_STORAGE_DRIVER")
	setString(&c.CSVPath, "LABSTOCK_CSV_PATH")
	setBool(&c.Watch, "LABSTOCK_WATCH")
	setBool(&c.StrictCAS, "LABSTOCK_STRICT_CAS")
	setString(&c.LogLevel, "LABSTOCK_LOG_LEVEL")

	setString(&c.Backup.Driver, "LABSTOCK_BACKUP_DRIVER")
	setString(&c.Backup.FSRoot, "LABSTOCK_BACKUP_FS_ROOT")
	setString(&c.Backup.S3Bucket, "LABSTOCK_BACKUP_S3_BUCKET")
	setString(&c.Backup.S3Region, "LABSTOCK_BACKUP_S3_REGION")
	setString(&c.Backup.S3Prefix, "LABSTOCK_BACKUP_S3_PREFIX")
	setString(&c.Backup.S3Endpoint, "LABSTOCK_BACKUP_S3_ENDPOINT")
	setBool(&c.Backup.S3PathStyle, "LABSTOCK_BACKUP_S3_PATH_STYLE")

	setBool(&c.Lookup.Disabled, "LABSTOCK_LOOKUP_DISABLED")
	setString(&c.Lookup.BaseURL, "LABSTOCK_LOOKUP_BASE_URL")
	setString(&c.Lookup.CachePath, "LABSTOCK_LOOKUP_CACHE_PATH")
	if v := os.Getenv("LABSTOCK_LOOKUP_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Lookup.CacheTTL = d
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if b, err := strconv.ParseBool(strings.ToLower(v)); err == nil {
		*dst = b
	}
}
