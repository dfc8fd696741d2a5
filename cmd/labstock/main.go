// Command labstock runs the laboratory chemical inventory service and its
// operational helpers: serve the HTTP API, import or export spreadsheets,
// look up chemical metadata, and manage backups.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"labstock/internal/backup"
	"labstock/internal/config"
	"labstock/internal/core"
	"labstock/internal/infra/persistence/csvfile"
	"labstock/internal/infra/persistence/memory"
	"labstock/internal/pubchem"
	"labstock/pkg/domain"
)

func main() {
	root := &cobra.Command{
		Use:           "labstock",
		Short:         "Laboratory chemical inventory over a flat CSV file",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default labstock.yaml)")

	root.AddCommand(
		newServeCmd(),
		newImportCmd(),
		newExportCmd(),
		newLookupCmd(),
		newBackupCmd(),
		newBackupsCmd(),
		newRestoreCmd(),
		newPruneCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "labstock:", err)
		os.Exit(1)
	}
}

var configPath string

func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}

// openStore opens the configured persistence backend. A corrupt CSV file is
// reported but still yields a usable empty store, matching how the entry
// form treats an unreadable data file.
func openStore(cfg config.Config, logger zerolog.Logger) (domain.PersistentStore, error) {
	switch core.StorageDriver(cfg.StorageDriver) {
	case core.StorageMemory:
		return memory.NewStore(), nil
	case core.StorageCSV, "":
		store, err := csvfile.NewStore(cfg.CSVPath)
		if err != nil {
			if errors.Is(err, csvfile.ErrCorrupt) {
				logger.Warn().Err(err).Msg("data file unreadable, starting with empty inventory")
				return store, nil
			}
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// newLookup builds the PubChem client with its sqlite cache. Cache open
// failures degrade to uncached lookups.
func newLookup(cfg config.Config, logger zerolog.Logger) *pubchem.Client {
	if cfg.Lookup.Disabled {
		return nil
	}
	opts := []pubchem.ClientOption{}
	if cfg.Lookup.BaseURL != "" {
		opts = append(opts, pubchem.WithBaseURL(cfg.Lookup.BaseURL))
	}
	if cfg.Lookup.CachePath != "" {
		cache, err := pubchem.OpenCache(cfg.Lookup.CachePath, cfg.Lookup.CacheTTL)
		if err != nil {
			logger.Warn().Err(err).Msg("lookup cache unavailable, continuing without")
		} else {
			opts = append(opts, pubchem.WithCache(cache))
		}
	}
	return pubchem.NewClient(opts...)
}

func openBackupTarget(ctx context.Context, cfg config.Config) (backup.Target, error) {
	switch backup.Driver(cfg.Backup.Driver) {
	case backup.DriverFilesystem, "":
		return backup.NewFilesystem(cfg.Backup.FSRoot)
	case backup.DriverMemory:
		return backup.NewMemory(), nil
	case backup.DriverS3:
		return backup.NewS3(ctx, backup.S3Config{
			Bucket:    cfg.Backup.S3Bucket,
			Region:    cfg.Backup.S3Region,
			Prefix:    cfg.Backup.S3Prefix,
			Endpoint:  cfg.Backup.S3Endpoint,
			PathStyle: cfg.Backup.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown backup driver %q", cfg.Backup.Driver)
	}
}

func newService(store domain.PersistentStore, cfg config.Config, opts ...core.Option) *core.Service {
	if cfg.StrictCAS {
		opts = append(opts, core.WithStrictCAS())
	}
	return core.NewService(store, opts...)
}
