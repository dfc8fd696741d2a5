package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"labstock/internal/pubchem"
)

func newLookupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup QUERY",
		Short: "Fetch chemical metadata from PubChem by name or CAS number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			client := newLookup(cfg, logger)
			if client == nil {
				return fmt.Errorf("lookup is disabled in configuration")
			}

			query := args[0]
			details, err := client.Lookup(cmd.Context(), query)
			if err != nil {
				logger.Warn().Err(err).Str("query", query).Msg("lookup failed, returning fallback")
				details = pubchem.Fallback(query)
			}
			out, err := json.MarshalIndent(details, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	return cmd
}
