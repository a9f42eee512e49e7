package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soheilhy/cmux"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"

	"go.klb.dev/clipvault/internal/clip"
	"go.klb.dev/clipvault/internal/engine"
	"go.klb.dev/clipvault/internal/grpcservice"
	"go.klb.dev/clipvault/internal/history"
	"go.klb.dev/clipvault/internal/httpapi"
	"go.klb.dev/clipvault/internal/ipc"
	"go.klb.dev/clipvault/internal/metrics"
	"go.klb.dev/clipvault/internal/monitor"
	"go.klb.dev/clipvault/internal/settings"
	"go.klb.dev/clipvault/internal/store"
	"go.klb.dev/clipvault/internal/tlsconf"
)

const shutdownTimeout = 5 * time.Second

func newDaemonCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Record clipboard history and serve it to the CLI",
		Long: `Starts the clipboard monitor. Every distinct clipboard change is stored
in a SQLite database; entries older than the retention window are pruned at
startup, whenever the window changes and on the optional cron schedule.

The CLI reaches the daemon over a Unix socket. With --addr the same gRPC API
plus a JSON/WebSocket HTTP API and /metrics are also served on TCP.

Config file search order:
  /etc/clipvault/clipvault.toml
  $HOME/.config/clipvault/clipvault.toml
  path supplied via --config

Precedence (lowest → highest): defaults → config file → CLIPVAULT_* env vars → flags`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runDaemon(cmd.Context(), v) },
	}

	f := cmd.Flags()
	f.String("db", defaultDBPath(), "history database path")
	f.String("settings", settings.DefaultPath(), "settings file holding the retention window")
	f.Bool("ephemeral", false, "keep history in memory only")
	f.Bool("headless", false, "use an in-process clipboard instead of the system one")
	f.Duration("poll-interval", monitor.DefaultInterval, "clipboard poll interval")
	f.Duration("store-timeout", monitor.DefaultStoreTimeout, "bound on history store calls per poll")
	f.Int("recent-limit", engine.DefaultRecentLimit, "size of the recent-items view")
	f.String("prune-schedule", "", `cron expression for periodic pruning, e.g. "0 * * * *" (empty = startup and on demand only)`)
	f.String("socket", ipc.SocketPath(), "IPC socket path")
	f.String("addr", "", "optional TCP listen address for gRPC, HTTP and /metrics, e.g. 127.0.0.1:8753")
	f.String("token", "", "shared secret for the TCP listener: bearer auth plus TLS keyed from it (empty = plaintext, no auth)")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runDaemon(ctx context.Context, v *viper.Viper) error {
	setupLogging(v)
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(v)
	if err != nil {
		return err
	}
	defer st.Close()

	sf, err := settings.Load(v.GetString("settings"))
	if err != nil {
		return err
	}

	var src clip.Source
	if v.GetBool("headless") {
		src = clip.NewMemory()
	} else {
		src = clip.New()
	}
	defer src.Close()

	m := metrics.New()
	eng, err := engine.New(engine.Options{
		Store:         st,
		Source:        src,
		Settings:      sf,
		Metrics:       m,
		PollInterval:  v.GetDuration("poll-interval"),
		StoreTimeout:  v.GetDuration("store-timeout"),
		RecentLimit:   v.GetInt("recent-limit"),
		PruneSchedule: v.GetString("prune-schedule"),
		WatchSettings: true,
	})
	if err != nil {
		return err
	}

	slog.Info("clipvault daemon starting",
		"version", Version,
		"backend", src.Name(),
		"settings", sf.Path(),
		"retention_days", sf.RetentionDays(),
	)

	token := v.GetString("token")
	grpcSrv := grpc.NewServer()
	grpcservice.Register(grpcSrv, grpcservice.New(eng, token, Version))

	socket := v.GetString("socket")
	ipcLn, err := ipc.Listen(socket)
	if err != nil {
		return fmt.Errorf("IPC socket %s: %w", socket, err)
	}
	defer os.Remove(socket)
	slog.Info("IPC socket listening", "path", socket)
	go func() {
		if err := grpcSrv.Serve(ipcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			slog.Error("IPC server stopped", "err", err)
		}
	}()

	var httpSrv *http.Server
	if addr := v.GetString("addr"); addr != "" {
		httpSrv, err = serveTCP(addr, token, grpcSrv, httpapi.New(eng, m.Handler(), token, Version))
		if err != nil {
			grpcSrv.Stop()
			return err
		}
	}

	runErr := eng.Run(ctx)

	slog.Info("clipvault daemon shutting down")
	shutdown(grpcSrv, httpSrv)
	return runErr
}

func openStore(v *viper.Viper) (history.Store, error) {
	if v.GetBool("ephemeral") {
		slog.Warn("ephemeral mode: history is kept in memory and lost on exit")
		return store.NewMemory(), nil
	}
	return store.OpenSQLite(store.SQLiteConfig{Path: v.GetString("db")})
}

// serveTCP splits one listener between gRPC (HTTP/2 with a grpc content type)
// and plain HTTP. With a token the listener is wrapped in TLS keyed from it;
// HTTP clients must then speak HTTP/1.1.
func serveTCP(addr, token string, grpcSrv *grpc.Server, api *httpapi.Server) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	if token != "" {
		pair, err := tlsconf.Derive(token)
		if err != nil {
			_ = ln.Close()
			return nil, err
		}
		ln = tls.NewListener(ln, pair.Server)
	}
	mux := cmux.New(ln)
	grpcLn := mux.MatchWithWriters(cmux.HTTP2MatchHeaderFieldPrefixSendSettings("content-type", "application/grpc"))
	httpLn := mux.Match(cmux.Any())

	httpSrv := &http.Server{
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := grpcSrv.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) && !errors.Is(err, cmux.ErrListenerClosed) {
			slog.Debug("TCP gRPC server stopped", "err", err)
		}
	}()
	go func() {
		if err := httpSrv.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, cmux.ErrListenerClosed) {
			slog.Debug("HTTP server stopped", "err", err)
		}
	}()
	go func() {
		if err := mux.Serve(); err != nil && !errors.Is(err, net.ErrClosed) {
			slog.Debug("listener mux stopped", "err", err)
		}
	}()

	slog.Info("listening", "addr", ln.Addr(), "tls", token != "")
	return httpSrv, nil
}

// shutdown stops the servers, forcing gRPC closed if watch streams keep it
// from draining in time.
func shutdown(grpcSrv *grpc.Server, httpSrv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if httpSrv != nil {
		if err := httpSrv.Shutdown(ctx); err != nil {
			slog.Warn("HTTP shutdown incomplete", "err", err)
		}
	}

	done := make(chan struct{})
	go func() {
		grpcSrv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		grpcSrv.Stop()
	}
}
