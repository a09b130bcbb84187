package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wenqinglim/euterpe/internal/api"
	"github.com/wenqinglim/euterpe/internal/config"
	"github.com/wenqinglim/euterpe/internal/logging"
	"github.com/wenqinglim/euterpe/internal/service"
	"github.com/wenqinglim/euterpe/internal/storage"
	"github.com/wenqinglim/euterpe/internal/tracing"
)

const shutdownTimeout = 15 * time.Second

func serveCmd() *cobra.Command {
	var addr string

	c := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	c.Flags().StringVar(&addr, "addr", "", "Listen address (overrides HTTP_ADDR and PORT)")
	return c
}

func runServer(ctx context.Context, cfg config.Config) error {
	logger := logging.Setup(logging.Config{Level: cfg.LogLevel(), Format: cfg.LogFormat, Output: os.Stderr})

	shutdownTracing, err := tracing.Init("euterpe", Version, cfg.TraceFile)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	dataURL := cfg.DataURL
	if dataURL == "" {
		dataURL = storage.DefaultDataURL()
	}
	store, err := storage.NewAFSCorpusStore(ctx, dataURL)
	if err != nil {
		return err
	}

	resolver := sourceResolver(cfg, dataURL)
	logger.Info("corpus sources restricted", "root", resolver.Root(), "schemes", cfg.Schemes())

	broadcaster := service.NewEventBroadcaster(256)
	builder := service.NewCorpusBuilder(store, resolver, nil, broadcaster,
		service.BuilderConfig{Workers: cfg.Workers, SkipPercussion: cfg.SkipPercussion}, logger)
	analyzer := service.NewAnalyzer(store,
		service.AnalyzerConfig{SkipPercussion: cfg.SkipPercussion, Timeout: cfg.AnalysisTimeout}, logger)

	handler := api.NewHandler(analyzer, builder, store, broadcaster, api.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		AllowedOrigins: cfg.AllowedOrigins(),
		Logger:         logger,
	})
	defer handler.Close()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr, "env", cfg.Env, "data_url", dataURL)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Event streams and websockets outlive Shutdown unless closed first.
	handler.Close()

	if err := srv.Shutdown(sctx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	if err := builder.Shutdown(sctx); err != nil {
		logger.Error("corpus builder shutdown failed", "error", err)
	}
	logger.Info("server stopped")
	return nil
}

// sourceResolver confines server-side corpus sources to the configured root and schemes. Without
// an explicit root the sources directory under the data URL is used.
func sourceResolver(cfg config.Config, dataURL string) *storage.SourceResolver {
	root := cfg.SourceRoot
	if root == "" {
		root = storage.DefaultSourceRoot(dataURL)
	}
	return storage.NewSourceResolver(root, storage.WithSchemes(cfg.Schemes()...))
}
