package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/GabrielNunesIT/analytics-transport/internal/config"
	"github.com/GabrielNunesIT/analytics-transport/internal/observability"
	"github.com/GabrielNunesIT/analytics-transport/internal/reader"
	"github.com/GabrielNunesIT/analytics-transport/internal/request"
	"github.com/GabrielNunesIT/analytics-transport/internal/sender"
)

const shutdownTimeout = 5 * time.Second

// NewWatchCmd creates the watch command.
func NewWatchCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Send every new file that appears in a directory",
		Long: `Watches a directory and sends each new file matching --pattern as one batch,
split into chunks of --batch-size records.

Hot-reload: When a config file is specified, connection options are reloaded
on change and apply to the next file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts)
		},
	}

	cmd.Flags().String("dir", "", "directory to watch (required)")
	cmd.Flags().String("pattern", "", "file name glob (default from config: *.json*)")
	cmd.Flags().Int("batch-size", 0, "records per request (0 sends each file in one request)")
	cmd.Flags().Int("workers", 0, "number of parallel dispatchers")
	cmd.Flags().String("metrics-address", "", "serve Prometheus metrics on this address")
	cmd.Flags().Bool("hot-reload", true, "enable hot-reload of config file")

	return cmd
}

// watchState is the configuration shared between the reload loop and the shipper.
type watchState struct {
	cfg     atomic.Pointer[config.Config]
	stub    *request.Stub
	metrics *observability.Metrics
	logger  logger.ILogger
}

func (s *watchState) apply(cfg *config.Config) {
	s.cfg.Store(cfg)
	s.stub.Set(stubEnabled(cfg))
}

func runWatch(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	if cfg.Watch.Dir == "" {
		return fmt.Errorf("watch directory is required (--dir or %sWATCH_DIR)", config.EnvPrefix)
	}

	log, closer := SetupLogging(cfg.LogLevel, cfg.LogFile)
	defer closer.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	state := &watchState{
		stub:   request.NewStub(false),
		logger: log,
	}
	state.apply(cfg)

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Metrics.Address != "" {
		metrics, handler, err := observability.NewMetrics(gCtx)
		if err != nil {
			return fmt.Errorf("creating metrics: %w", err)
		}
		state.metrics = metrics
		serveMetrics(gCtx, g, cfg.Metrics.Address, handler, log)
	}

	hotReload, _ := cmd.Flags().GetBool("hot-reload")
	if opts.cfgFile != "" && hotReload {
		startConfigWatcher(gCtx, g, cmd, opts.cfgFile, state)
	}

	files := make(chan string, 16)
	dw := reader.NewDirWatcher(cfg.Watch, log)
	g.Go(func() error {
		return dw.Start(gCtx, files)
	})

	g.Go(func() error {
		rdr := reader.NewReader(log)
		for path := range files {
			state.ship(gCtx, rdr, path)
		}
		return nil
	})

	log.Infof("watching for batches: dir=%s, endpoint=%s, stub=%t", cfg.Watch.Dir, cfg.Request.Endpoint(), state.stub.Enabled())
	notifySystemd(log, daemon.SdNotifyReady)

	err = g.Wait()
	notifySystemd(log, daemon.SdNotifyStopping)

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watch error: %w", err)
	}

	log.Info("analytics transport stopped")
	return nil
}

// ship reads one file and posts it with the current configuration.
func (s *watchState) ship(ctx context.Context, rdr *reader.Reader, path string) {
	batch, err := rdr.ReadFile(path)
	if err != nil {
		s.logger.Warningf("skipping file: path=%s, error=%v", path, err)
		return
	}

	cfg := s.cfg.Load()
	if cfg.AppID == "" && !s.stub.Enabled() {
		s.logger.Errorf("skipping file, no app id configured: path=%s", path)
		return
	}

	pool := sender.NewPool(cfg.Sender.Workers, newFactory(cfg, s.logger, s.stub, s.metrics), s.logger)
	results, err := pool.Send(ctx, cfg.AppID, batch, cfg.Sender.BatchSize)
	if err != nil {
		s.logger.Warningf("file interrupted: path=%s, error=%v", path, err)
		return
	}

	for _, r := range results {
		if !r.Response.OK() {
			s.logger.Warningf("chunk not accepted: path=%s, chunk=%d, records=%d, %s", path, r.Index, r.Records, r.Response)
		}
	}
	ok, failed := sender.Summary(results)
	s.logger.Infof("file sent: path=%s, records=%d, ok=%d, failed=%d", path, len(batch), ok, failed)
}

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, handler http.Handler, log logger.ILogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		log.Infof("serving metrics: address=%s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func startConfigWatcher(ctx context.Context, g *errgroup.Group, cmd *cobra.Command, cfgFile string, state *watchState) {
	log := state.logger
	watcher := config.NewConfigWatcher(cfgFile, state.cfg.Load(), log)
	if err := watcher.Start(ctx); err != nil {
		log.Warningf("failed to start config watcher: %v", err)
		return
	}

	log.Infof("hot-reload enabled: config=%s", cfgFile)

	g.Go(func() error {
		for {
			select {
			case newCfg := <-watcher.Changes():
				applyCLIOverrides(cmd, newCfg)
				if err := newCfg.Validate(); err != nil {
					log.Errorf("reloaded config rejected: %v", err)
					continue
				}
				state.apply(newCfg)
				log.Infof("configuration applied: endpoint=%s, stub=%t", newCfg.Request.Endpoint(), state.stub.Enabled())
			case err := <-watcher.Errors():
				log.Errorf("config watcher error: %v", err)
			case <-ctx.Done():
				return nil
			}
		}
	})
}

// notifySystemd reports state to systemd when running under it.
func notifySystemd(log logger.ILogger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warningf("systemd notify failed: %v", err)
		return
	}
	if sent {
		log.Debugf("systemd notified: %s", state)
	}
}
