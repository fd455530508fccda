package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"streamgate/internal/acquire"
	apihttp "streamgate/internal/api/http"
	"streamgate/internal/app"
	"streamgate/internal/coordinator"
	"streamgate/internal/domain"
	"streamgate/internal/janitor"
	"streamgate/internal/media"
	"streamgate/internal/metrics"
	"streamgate/internal/packager"
	"streamgate/internal/registry"
	"streamgate/internal/storage/paths"
	"streamgate/internal/telemetry"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "streamgate",
		Short: "On-demand magnet-to-HLS video gateway",
		RunE:  runServe,
	}
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE:  runServe,
	}
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "stream-gateway")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "stream-gateway"),
		slog.Int("port", cfg.Port),
		slog.String("env", cfg.Env),
		slog.String("tempRoot", cfg.TempRoot),
		slog.String("swarmProfile", cfg.SwarmProfile),
		slog.Int("maxStreams", cfg.MaxStreams),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pathSvc := paths.New(cfg.TempRoot)
	for _, dir := range []string{
		filepath.Join(pathSvc.Root(), "streams"),
		filepath.Join(pathSvc.Root(), "hls"),
	} {
		if err := pathSvc.EnsureDir(dir); err != nil {
			logger.Error("temp root not usable", slog.String("error", err.Error()))
			return err
		}
	}

	reg := registry.New()

	engine, err := acquire.New(acquire.Config{
		Dirs:       pathSvc,
		Logger:     logger,
		BTPort:     cfg.BTPort,
		Aggressive: cfg.SwarmProfile == "aggressive",
	})
	if err != nil {
		logger.Error("torrent engine init failed", slog.String("error", err.Error()))
		return err
	}

	packMode := packager.ModeStreamCopy
	if cfg.ReEncodeFirst {
		packMode = packager.ModeReEncode
	}
	pack := packager.New(packager.Config{
		FFmpegPath:  cfg.FFMPEGPath,
		Prober:      media.NewProber(cfg.FFProbePath),
		Logger:      logger,
		DefaultMode: packMode,
	})

	coord := coordinator.New(reg, engine, pack, pathSvc, logger, coordinator.Config{
		MaxStreams: cfg.MaxStreams,
		MaxWait:    cfg.ReadinessWait,
	})
	engine.SetDeadHandler(coord.HandleDeadTorrent)

	sweeper := janitor.New(reg, coord, logger, cfg.JanitorInterval, cfg.JanitorMaxAge)
	go sweeper.Run(rootCtx)

	handler := apihttp.NewServer(coord,
		apihttp.WithRegistry(reg),
		apihttp.WithPaths(pathSvc),
		apihttp.WithLogger(logger),
	)

	go updateGatewayMetrics(rootCtx, reg, engine, handler)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", srv.Addr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	handler.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	if err := engine.Close(); err != nil {
		logger.Warn("engine close error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
	return nil
}

// updateGatewayMetrics refreshes Prometheus gauges from the registry and the
// swarm, and pushes stream summaries to WebSocket clients.
func updateGatewayMetrics(ctx context.Context, reg *registry.Registry, engine *acquire.Engine, handler *apihttp.Server) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			streams := reg.List()
			metrics.ActiveStreams.Set(float64(len(streams)))

			counts := make(map[domain.StreamStatus]int)
			for _, stream := range streams {
				counts[stream.Status]++
			}
			for _, status := range []domain.StreamStatus{
				domain.StatusInitializing, domain.StatusDownloading,
				domain.StatusConverting, domain.StatusWaitingForData,
				domain.StatusReady, domain.StatusError,
			} {
				metrics.StreamsByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
			}

			var download, upload int64
			var peers int
			for _, id := range engine.Sessions() {
				swarm, err := engine.Swarm(id)
				if err != nil {
					continue
				}
				download += swarm.DownloadSpeed
				upload += swarm.UploadSpeed
				peers += swarm.Peers
			}
			metrics.DownloadSpeedBytes.Set(float64(download))
			metrics.UploadSpeedBytes.Set(float64(upload))
			metrics.PeersConnected.Set(float64(peers))

			handler.BroadcastStreams(streams)
		}
	}
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	if strings.ToLower(strings.TrimSpace(formatRaw)) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
