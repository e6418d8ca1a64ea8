package main

import (
	"os"

	"github.com/spf13/cobra"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	profile   string
	configDir string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	profile := os.Getenv("APP_ENVIRONMENT")
	if profile == "" {
		profile = "local"
	}

	cmd := &cobra.Command{
		Use:   "quotevault",
		Short: "Quote catalogue with duplicate detection and consistent tag metadata",
		Long: `quotevault stores quotes with author and tag indexes, rejects likely
duplicates on create, and keeps tag counts consistent with the quotes that carry them.

Run without a subcommand to serve the HTTP API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.profile, "profile", "p", profile, "configuration profile (configs/<profile>.yaml)")
	cmd.PersistentFlags().StringVar(&opts.configDir, "config-dir", "configs", "directory holding base.yaml and profile files")

	cmd.AddCommand(
		newServeCmd(opts),
		newExportCmd(opts),
		newTagsCmd(opts),
		newAuthorsCmd(opts),
		newDeadLettersCmd(opts),
	)

	return cmd
}
