package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/crew/internal/capability"
	"github.com/ShayCichocki/crew/internal/telemetry"
)

var (
	serveSession string
	serveAddr    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the auto-resume coordinator with an HTTP API and /metrics",
	Long: `Start (or resume) a session and keep it durable until interrupted.

The coordinator autosaves the session, takes interval checkpoints and
sweeps expired sessions in the background. Hosts report work and errors
over HTTP:

  POST /operations   record messages and agent/stage changes
  POST /errors       detect an error and run recovery
  GET  /status       coordinator snapshot
  GET  /metrics      Prometheus metrics`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveSession, "session", "", "Session id to resume (default: new session)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: telemetry.metrics_addr)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	metrics, err := telemetry.InitMeterProvider(ctx, "crew")
	if err != nil {
		log.Printf("[crew] metrics disabled: %v", err)
	} else if err := telemetry.InitMetrics(ctx); err != nil {
		log.Printf("[crew] init metrics: %v", err)
	}

	if a.cfg.Catalog.Watch && a.cfg.Catalog.Path != "" {
		w, err := capability.NewWatcher(a.matrix, a.cfg.Catalog.Path, func(err error) {
			if err != nil {
				a.logger.Log("catalog reload failed: %v", err)
				return
			}
			a.logger.Log("catalog reloaded, %d agents", a.matrix.Len())
		})
		if err != nil {
			return err
		}
		defer w.Close()
	}

	coord, err := a.coordinator()
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	s, err := coord.Start(ctx, serveSession)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	printStatus(out, "●", fmt.Sprintf("session %s (%s)", s.ID, s.Status), color.FgGreen)

	addr := serveAddr
	if addr == "" {
		addr = a.cfg.Telemetry.MetricsAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           newAPIHandler(coord, metrics),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	printStatus(out, "→", "listening on "+addr, color.FgCyan)

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[crew] shutdown http: %v", err)
	}
	if err := coord.Stop(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[crew] stop coordinator: %v", err)
	}
	printStatus(out, "■", fmt.Sprintf("session %s saved", s.ID), color.FgYellow)
	return serveErr
}
