package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"labstock/internal/backup"
	"labstock/pkg/domain"
)

func openBackupService(cmd *cobra.Command) (*backup.Service, domain.PersistentStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cfg)

	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	target, err := openBackupTarget(cmd.Context(), cfg)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return backup.NewService(store, target), store, nil
}

func newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the inventory to the backup target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, store, err := openBackupService(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			info, err := svc.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", info.Key, info.Size)
			return nil
		},
	}
}

func newBackupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backups",
		Short: "List stored snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, store, err := openBackupService(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			snapshots, err := svc.List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tSIZE\tRECORDS")
			for _, s := range snapshots {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", s.Key, s.Size, s.Metadata["records"])
			}
			return tw.Flush()
		},
	}
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore KEY",
		Short: "Replace the inventory with a stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, store, err := openBackupService(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			count, err := svc.Restore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %d records from %s\n", count, args[0])
			return nil
		},
	}
}

func newPruneCmd() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old snapshots beyond a retention count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, store, err := openBackupService(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := svc.Prune(cmd.Context(), keep)
			if err != nil {
				return err
			}
			for _, key := range removed {
				fmt.Fprintln(cmd.OutOrStdout(), "removed", key)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "kept %d most recent snapshots\n", keep)
			return nil
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 10, "number of most recent snapshots to keep")
	return cmd
}
