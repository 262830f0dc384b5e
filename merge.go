package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Seednode/partydisplay/catalog"
)

func newMergeCmd(cfg *Config) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Combine the character and recruitment files into a processed catalog.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = cfg.catalog
			}

			entities, err := catalog.MergeFiles(cfg.characters, cfg.recruitment, cfg.logger.Named("merge"))
			if err != nil {
				return err
			}

			if err := catalog.WriteFile(output, entities); err != nil {
				return err
			}

			cfg.logger.Info("wrote catalog", zap.String("file", output), zap.Int("characters", len(entities)))

			fmt.Fprintf(cmd.OutOrStdout(), "Processed %d characters into %s\n", len(entities), output)

			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write, json or yaml by extension (default: value of --catalog)")

	return cmd
}
