package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GabrielNunesIT/analytics-transport/internal/config"
	"github.com/GabrielNunesIT/analytics-transport/internal/reader"
	"github.com/GabrielNunesIT/analytics-transport/internal/request"
	"github.com/GabrielNunesIT/analytics-transport/internal/sender"
)

// NewSendCmd creates the send command.
func NewSendCmd(opts *rootOptions) *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send records from a file or stdin",
		Long: `Reads records as JSON lines or as a JSON array, splits them into chunks of
--batch-size records and posts each chunk once. One line is printed per chunk.
The command fails when any chunk was not accepted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, opts, input)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", reader.StdinPath, "input file, '-' for stdin")
	cmd.Flags().Int("batch-size", 0, "records per request (0 sends everything in one request)")
	cmd.Flags().Int("workers", 0, "number of parallel dispatchers")

	return cmd
}

func runSend(cmd *cobra.Command, opts *rootOptions, input string) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	log, closer := SetupLogging(cfg.LogLevel, cfg.LogFile)
	defer closer.Close()

	stub := request.NewStub(stubEnabled(cfg))
	if cfg.AppID == "" && !stub.Enabled() {
		return fmt.Errorf("app id is required (--app-id or %sAPPID)", config.EnvPrefix)
	}

	batch, err := reader.NewReaderWithStdin(cmd.InOrStdin(), log).ReadFile(input)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Infof("sending records: count=%d, endpoint=%s, stub=%t", len(batch), cfg.Request.Endpoint(), stub.Enabled())

	pool := sender.NewPool(cfg.Sender.Workers, newFactory(cfg, log, stub, nil), log)
	results, err := pool.Send(ctx, cfg.AppID, batch, cfg.Sender.BatchSize)
	if err != nil {
		return fmt.Errorf("sending records: %w", err)
	}

	if failed := printResults(cmd.OutOrStdout(), results); failed > 0 {
		return fmt.Errorf("%d of %d chunks failed", failed, len(results))
	}
	return nil
}
