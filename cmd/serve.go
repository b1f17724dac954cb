package cmd

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

	"github.com/spf13/cobra"

	"github.com/camden-git/attendancesys/handlers"
	"github.com/camden-git/attendancesys/realtime"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API without running cameras",
	Long: `Serve the management API (persons, attendance, reports, exports) without
opening any camera. Registration through the API still loads the face
models; if they are missing, registering new faces is refused.

Examples:
  attendancesys serve
  attendancesys serve --addr :9090`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default HTTP_ADDR)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	addr := mustGetString(cmd, "addr")
	if addr == "" {
		addr = a.cfg.HTTPAddr
	}

	detector, err := a.newDetector()
	if err != nil {
		log.Printf("WARNING: face models unavailable, registration disabled: %v", err)
		detector = nil
	} else {
		defer detector.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := realtime.NewHub()
	go hub.Run(ctx)

	handler := handlers.NewRouter(*a.routerOptions(detector, nil, hub))
	return listenAndServe(ctx, addr, handler)
}

// listenAndServe runs the HTTP server until ctx is cancelled, then shuts it
// down gracefully.
func listenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}
	log.Println("Server stopped")
	return nil
}
