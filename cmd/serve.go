package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/igwatch/internal/api"
	"github.com/joescharf/igwatch/internal/daemon"
	"github.com/joescharf/igwatch/internal/logging"
)

const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the fleet API and manifest proxy server",
	Long: `Start an HTTP server exposing the fleet API and the /proxy routes.

  GET /api/v1/fleet            fleet result (?stale=true, ?unpublished=true)
  GET /api/v1/fleet/{project}  one project record, by name or owner/repo
  GET /proxy/{smart,fhir,githubio}/...  reverse proxy to the manifest hosts

By default it listens on port 8080. Use --port to change it.
Use 'serve start' to run it in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun(cmd.Context())
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)

	serveCmd.PersistentFlags().IntP("port", "p", 8080, "port to listen on")
	_ = viper.BindPFlag("port", serveCmd.PersistentFlags().Lookup("port"))
}

func serveRun(ctx context.Context) error {
	ctx = orBackground(ctx)
	log := logging.Default()

	agg := buildAggregator()
	router, err := proxyRouter()
	if err != nil {
		return fmt.Errorf("proxy upstreams: %w", err)
	}

	srv := api.NewServer(&fleetRunner{agg: agg}, router.Handler(), *log)
	addr := fmt.Sprintf(":%d", viper.GetInt("port"))
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()
	ui.Info("Serving fleet API at http://localhost%s/api/v1/fleet", addr)
	log.Info().Str("addr", addr).Msg("server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// pidFile returns the PID file tracking the background server.
func pidFile() *daemon.PIDFile {
	dir, err := configDirFunc()
	if err != nil {
		dir = os.TempDir()
	}
	return daemon.NewPIDFile(filepath.Join(dir, "igwatch-serve.pid"))
}

// serveLogPath is where the background server's output goes.
func serveLogPath() string {
	dir, err := configDirFunc()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "igwatch-serve.log")
}

func serveStartRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		return fmt.Errorf("server already running (pid %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	args := []string{"serve", "--port", fmt.Sprintf("%d", viper.GetInt("port"))}
	if cfg, _ := rootCmd.PersistentFlags().GetString("config"); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if src := viper.GetString("projects.source"); src != "" {
		args = append(args, "--projects", src)
	}

	if dryRun {
		ui.DryRunMsg("Would start: %s %v (log: %s)", exe, args, serveLogPath())
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(pf.Path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	logFile, err := os.OpenFile(serveLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)

	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	if err := pf.WritePID(child.Process.Pid); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	_ = child.Process.Release()

	ui.Success("Server started (pid %d), logging to %s", child.Process.Pid, serveLogPath())
	return nil
}

func serveStopRun() error {
	pf := pidFile()
	if dryRun {
		if pid, running := pf.IsRunning(); running {
			ui.DryRunMsg("Would stop server (pid %d)", pid)
		}
		return nil
	}

	if err := pf.Stop(sigTERM(), sigKILL(), shutdownGrace); err != nil {
		if errors.Is(err, daemon.ErrNotRunning) {
			return fmt.Errorf("server not running")
		}
		return err
	}
	ui.Success("Server stopped")
	return nil
}

func serveStatusRun() error {
	pid, running := pidFile().IsRunning()
	if !running {
		ui.Info("Server not running")
		return nil
	}
	ui.Success("Server running (pid %d) on port %d", pid, viper.GetInt("port"))
	return nil
}
