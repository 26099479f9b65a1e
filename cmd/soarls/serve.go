package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jward/soarls/internal/lsp"
	"github.com/jward/soarls/internal/telemetry"
)

var (
	flagListen      string
	flagMetricsAddr string
	flagWatch       bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the language server",
	Long:  "Serves the language server protocol on stdin/stdout, or over WebSocket connections with --listen. Logs go to stderr.",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagListen, "listen", "", "serve WebSocket connections on this address instead of stdio")
	serveCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	serveCmd.Flags().BoolVar(&flagWatch, "watch", false, "watch the agent directory for changes to closed files")
}

// shutdownTimeout bounds how long HTTP servers drain on exit.
const shutdownTimeout = 5 * time.Second

func serverOptions() ([]lsp.Option, error) {
	wsOpts, err := workspaceOptions()
	if err != nil {
		return nil, err
	}
	opts := []lsp.Option{
		lsp.WithLogger(logger),
		lsp.WithVersion(version),
		lsp.WithWatch(flagWatch),
		lsp.WithWorkspaceOptions(wsOpts...),
	}
	if flagRoot != "" {
		opts = append(opts, lsp.WithRoot(flagRoot))
	}
	return opts, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	opts, err := serverOptions()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	if flagMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.Handler())
		g.Go(func() error { return serveHTTP(ctx, flagMetricsAddr, mux, "metrics") })
	}

	if flagListen != "" {
		handler := lsp.WebSocketHandler(lsp.Serve(opts...), logger)
		g.Go(func() error { return serveHTTP(ctx, flagListen, handler, "websocket") })
	} else {
		g.Go(func() error {
			// The client closing stdin ends the whole process.
			defer cancel()
			srv := lsp.New(lsp.NewStreamConn(os.Stdin, os.Stdout), opts...)
			return srv.Run(ctx)
		})
	}

	err = g.Wait()
	if errors.Is(err, lsp.ErrNoShutdown) {
		return exitError(1)
	}
	return err
}

// serveHTTP runs an HTTP server until ctx is done.
func serveHTTP(ctx context.Context, addr string, h http.Handler, name string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%s: listen %s: %w", name, addr, err)
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	logger.Info("listening", slog.String("server", name), slog.String("addr", ln.Addr().String()))

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	select {
	case err := <-errc:
		return fmt.Errorf("%s: %w", name, err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s: shutdown: %w", name, err)
	}
	return nil
}
