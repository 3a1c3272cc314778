// FruitBasket Server
//
// Features:
// - Browse, view, rename, annotate and delete files under named folder roots
// - Zip download of a directory subtree
// - JPEG preview thumbnails
// - SSE change events
// - Prometheus metrics & structured logging (zap)
package main

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/fruitbasket/internal/api"
	"github.com/fruitsalade/fruitbasket/internal/archive"
	"github.com/fruitsalade/fruitbasket/internal/config"
	"github.com/fruitsalade/fruitbasket/internal/events"
	"github.com/fruitsalade/fruitbasket/internal/files"
	"github.com/fruitsalade/fruitbasket/internal/logging"
	"github.com/fruitsalade/fruitbasket/internal/metrics"
	"github.com/fruitsalade/fruitbasket/internal/ratelimit"
	"github.com/fruitsalade/fruitbasket/internal/roots"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	// Initialize structured logging
	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("FruitBasket Server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr))

	resolver, err := roots.New(roots.Config{
		Folders:    cfg.Folders,
		CreateDirs: cfg.CreateRoots,
	})
	if err != nil {
		logging.Fatal("folder roots", zap.Error(err))
	}
	for _, name := range resolver.FolderTypes() {
		root, _ := resolver.Resolve(name)
		logging.Info("folder type", zap.String("name", name), zap.String("root", root))
	}

	fileService := files.NewService(resolver, cfg.Extensions)
	builder, err := archive.NewBuilder(resolver, cfg.Extensions.Archive, cfg.ZipCompressionLevel)
	if err != nil {
		logging.Fatal("zip builder", zap.Error(err))
	}

	broadcaster := events.NewBroadcaster()

	var zipLimiter *ratelimit.Limiter
	if cfg.ZipRequestsPerMinute > 0 {
		zipLimiter = ratelimit.New(cfg.ZipRequestsPerMinute)
		logging.Info("zip downloads rate limited", zap.Int("per_minute", cfg.ZipRequestsPerMinute))
	}

	srv := api.NewServer(resolver, fileService, builder, broadcaster, zipLimiter, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start metrics server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	// Start HTTP(S) server. Request contexts derive from ctx so SSE streams
	// end when shutdown begins.
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	useTLS := cfg.TLSEnabled()
	if useTLS {
		httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
	}

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()

		shutdownCtx, done := context.WithTimeout(context.Background(), 15*time.Second)
		defer done()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Warn("forced shutdown", zap.Error(err))
			httpServer.Close()
		}
		metricsServer.Close()
	}()

	// Start periodic cleanup of rate limiter buckets
	if zipLimiter != nil {
		go func() {
			ticker := time.NewTicker(1 * time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					zipLimiter.Cleanup(24 * time.Hour)
				}
			}
		}()
	}

	if useTLS {
		logging.Info("server listening (TLS 1.3)",
			zap.String("addr", cfg.ListenAddr),
			zap.String("cert", cfg.TLSCertFile))
		if err := httpServer.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile); err != http.ErrServerClosed {
			logging.Fatal("server error", zap.Error(err))
		}
	} else {
		logging.Info("server listening (HTTP)", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Fatal("server error", zap.Error(err))
		}
	}
	<-stopped
	logging.Info("server stopped")
}
