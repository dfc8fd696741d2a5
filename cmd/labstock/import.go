package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"labstock/internal/core"
	"labstock/internal/importer"
)

func newImportCmd() *cobra.Command {
	var (
		mode   string
		prefer string
		keys   []string
	)

	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Merge CSV or XLSX files into the inventory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			mergeMode, err := core.ParseMergeMode(mode)
			if err != nil {
				return err
			}
			policy, err := core.ParseConflictPolicy(prefer)
			if err != nil {
				return err
			}

			uploads := make([]importer.Upload, 0, len(args))
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				uploads = append(uploads, importer.Upload{Name: filepath.Base(path), Reader: f})
			}
			decoded, err := importer.Decode(uploads...)
			if err != nil {
				return err
			}
			for _, issue := range decoded.Issues {
				logger.Warn().Str("file", issue.File).Int("line", issue.Line).Str("reason", issue.Reason).Msg("skipped row")
			}

			store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			svc := newService(store, cfg)
			report, err := svc.MergeUpload(cmd.Context(), decoded.Records, core.MergeOptions{
				Keys:     keys,
				Mode:     mergeMode,
				Conflict: policy,
			})
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "upsert", "merge mode: overwrite, append or upsert")
	cmd.Flags().StringVar(&prefer, "prefer", "uploaded", "conflict winner: uploaded or existing")
	cmd.Flags().StringSliceVar(&keys, "keys", nil, "match key columns (default name,cas)")
	return cmd
}
