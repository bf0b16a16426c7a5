package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"ppcgate/internal/profile"
	"ppcgate/internal/proxy"
	"ppcgate/internal/telemetry"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the proxy",
	Long: `Runs the reverse proxy. Configuration comes from the environment:

  UPSTREAM_URL            WordPress origin (required)
  PORT                    listen port, default 8081
  PPCGATE_HOME_PATH       front page path, default /
  PPCGATE_PROFILE         site profile YAML, reloaded on change
  PPCGATE_CACHE_TTL       rewrite cache lifetime, default 5m
  PPCGATE_CACHE_SIZE      rewrite cache entries, default 64
  PPCGATE_MAX_BODY_BYTES  larger front pages are passed through
  PPCGATE_OTEL_ENDPOINT   OTLP/HTTP trace endpoint, tracing off when empty`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address, e.g. :81 or 0.0.0.0:8081; overrides PORT")
}

func runServe(cmd *cobra.Command, _ []string) error {
	e, err := proxy.ParseEnv()
	if err != nil {
		return err
	}
	addr := e.Addr()
	if serveAddr != "" {
		addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, e.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.WithError(err).Warn("tracing shutdown")
		}
	}()

	store, err := profile.NewStore(profilePath, logger)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	if err := store.Watch(ctx); err != nil {
		return fmt.Errorf("watch profile: %w", err)
	}

	cfg, err := e.Config(logger, store)
	if err != nil {
		return err
	}
	handler, err := proxy.New(cfg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		// Conservative timeouts against slowloris and leaked connections.
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          log.New(logger.WriterLevel(logrus.ErrorLevel), "", 0),
		ConnState: func(c net.Conn, s http.ConnState) {
			logger.WithFields(logrus.Fields{"state": s.String(), "remote": c.RemoteAddr().String()}).Trace("conn")
		},
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	logger.WithFields(logrus.Fields{
		"addr":     addr,
		"upstream": cfg.Upstream.String(),
		"home":     e.HomePath,
		"profile":  profilePath,
	}).Info("listening")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}
