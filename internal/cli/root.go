package cli

import (
	"fmt"
	"io"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/spf13/cobra"

	"github.com/GabrielNunesIT/analytics-transport/internal/config"
	"github.com/GabrielNunesIT/analytics-transport/internal/observability"
	"github.com/GabrielNunesIT/analytics-transport/internal/request"
	"github.com/GabrielNunesIT/analytics-transport/internal/sender"
)

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	cfgFile  string
	logLevel string
	logFile  string
	appID    string
	stub     bool
}

// Execute builds and runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "analytics-transport",
		Short: "Deliver batches of analytics events to a collection endpoint",
		Long: `analytics-transport posts batches of pre-serialized analytics events to a
collection endpoint over HTTPS, authenticating with the application id as the
Basic auth username.

Transport failures are retried with a fixed backoff. Once retries are exhausted
the batch is reported with status -1 and a "Connection error" message.

Stub mode (--stub, request.stub or STUB=1) logs what would have been sent and
reports success without any network traffic.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "", "config file (default: ./analytics-transport.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "write logs to a rotating file instead of stderr")
	rootCmd.PersistentFlags().StringVar(&opts.appID, "app-id", "", "application id used as the Basic auth username")
	rootCmd.PersistentFlags().BoolVar(&opts.stub, "stub", false, "log requests instead of sending them")

	rootCmd.AddCommand(
		NewSendCmd(opts),
		NewWatchCmd(opts),
		NewValidateCmd(opts),
		NewVersionCmd(),
	)

	return rootCmd
}

// loadConfig loads the config file, applies flag overrides and validates the result.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	applyCLIOverrides(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

// applyCLIOverrides copies explicitly set flags over the loaded configuration.
func applyCLIOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()

	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-file") {
		cfg.LogFile.Path, _ = flags.GetString("log-file")
	}
	if flags.Changed("app-id") {
		cfg.AppID, _ = flags.GetString("app-id")
	}
	if flags.Changed("stub") {
		cfg.Request.Stub, _ = flags.GetBool("stub")
	}
	if flags.Changed("batch-size") {
		cfg.Sender.BatchSize, _ = flags.GetInt("batch-size")
	}
	if flags.Changed("workers") {
		cfg.Sender.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("dir") {
		cfg.Watch.Dir, _ = flags.GetString("dir")
	}
	if flags.Changed("pattern") {
		cfg.Watch.Pattern, _ = flags.GetString("pattern")
	}
	if flags.Changed("metrics-address") {
		cfg.Metrics.Address, _ = flags.GetString("metrics-address")
	}
}

// stubEnabled resolves the stub switch from config and the STUB environment variable.
func stubEnabled(cfg *config.Config) bool {
	return cfg.Request.Stub || request.StubFromEnv().Enabled()
}

// newFactory returns a sender.Factory building dispatchers for cfg that share stub.
func newFactory(cfg *config.Config, log logger.ILogger, stub *request.Stub, metrics *observability.Metrics) sender.Factory {
	opts := []request.Option{
		request.WithStub(stub),
		request.WithUserAgent(request.DefaultUserAgent + "/" + Version),
	}
	if metrics != nil {
		opts = append(opts, request.WithMetrics(metrics))
	}

	reqCfg := cfg.Request
	return sender.DispatcherFactory(func() *request.Dispatcher {
		return request.NewDispatcher(reqCfg, log, opts...)
	})
}

// printResults writes one line per chunk and returns the number of failures.
func printResults(w io.Writer, results []sender.Result) int {
	for _, r := range results {
		fmt.Fprintf(w, "chunk %d: records=%d %s\n", r.Index, r.Records, r.Response)
	}
	ok, failed := sender.Summary(results)
	fmt.Fprintf(w, "sent %d chunks: ok=%d, failed=%d\n", len(results), ok, failed)
	return failed
}
