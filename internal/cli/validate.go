package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewValidateCmd creates the validate command.
func NewValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration valid:\n")
			fmt.Fprintf(out, "  Endpoint:   %s\n", cfg.Request.Endpoint())
			fmt.Fprintf(out, "  Retries:    %d\n", cfg.Request.Retries)
			fmt.Fprintf(out, "  Backoff:    %s\n", cfg.Request.Backoff)
			fmt.Fprintf(out, "  Stub:       %t\n", stubEnabled(cfg))
			fmt.Fprintf(out, "  Workers:    %d\n", cfg.Sender.Workers)
			fmt.Fprintf(out, "  Batch size: %d\n", cfg.Sender.BatchSize)
			return nil
		},
	}
}
