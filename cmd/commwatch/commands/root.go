// Package commands implements the commwatch command line interface.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/seaglider-ops/commwatch/internal/comms"
	"github.com/seaglider-ops/commwatch/internal/config"
	"github.com/seaglider-ops/commwatch/internal/metrics"
	"github.com/seaglider-ops/commwatch/internal/monitor"
	"github.com/seaglider-ops/commwatch/internal/notify"
	"github.com/seaglider-ops/commwatch/internal/sink"
	"github.com/seaglider-ops/commwatch/internal/subs"
	appversion "github.com/seaglider-ops/commwatch/internal/version"
)

// shutdownTimeout is the maximum time to wait for the metrics server to
// drain during graceful shutdown.
const shutdownTimeout = 10 * time.Second

var (
	// configPath is the YAML configuration file (flag --config).
	configPath string

	// parentPID is the spawning login shell's pid (flag --parent-pid).
	// Zero disables the shell watchdog.
	parentPID int

	// daemonize re-executes the monitor in its own session and returns
	// immediately (flag --daemon).
	daemonize bool

	// debug forces debug-level logging regardless of configuration.
	debug bool

	// prefix is appended to notification subjects, typically the mission
	// name (flag --prefix).
	prefix string
)

// rootCmd is the top-level cobra command. The single positional argument is
// the mission directory, or a comm log path inside it.
var rootCmd = &cobra.Command{
	Use:   "commwatch <mission-dir | comm-log>",
	Short: "Shore-side session monitor for glider call-ins",
	Long: "commwatch tails a mission directory's comm log, folds it into call " +
		"sessions, and delivers subscribed notifications as the glider surfaces, " +
		"dives, and recovers.",
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if code := run(args[0]); code != 0 {
			os.Exit(code)
		}
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to configuration file (YAML)")
	rootCmd.Flags().IntVar(&parentPID, "parent-pid", 0,
		"pid of the spawning login shell; the monitor exits when it disappears")
	rootCmd.Flags().BoolVar(&daemonize, "daemon", false,
		"detach into a new session and return immediately")
	rootCmd.Flags().BoolVar(&debug, "debug", false,
		"force debug-level logging")
	rootCmd.Flags().StringVar(&prefix, "prefix", "",
		"subject suffix, typically the mission name")

	rootCmd.AddCommand(subsCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(target string) int {
	// 1. Resolve the mission directory and comm log path.
	missionDir, logPath, err := resolveTarget(target)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}

	// 2. Detach if requested. The child runs with --daemon stripped.
	if daemonize {
		if err := detach(); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			return 1
		}
		return 0
	}

	// 3. Load config.
	cfg, err := config.Load(configPath)
	if err != nil {
		// Logger is not set up yet; use a temporary stderr logger.
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	// 4. Set up logger.
	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	if debug {
		logLevel.Set(slog.LevelDebug)
	}
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("commwatch starting",
		slog.String("version", appversion.Version),
		slog.String("mission_dir", missionDir),
		slog.String("comm_log", logPath),
		slog.Int("parent_pid", parentPID),
	)

	if err := runMonitor(cfg, missionDir, logPath, logger); err != nil {
		logger.Error("commwatch exited with error",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logger.Info("commwatch stopped")
	return 0
}

// runMonitor wires the full pipeline and runs it under an errgroup with a
// signal-aware context: the monitor loop, and the optional metrics server.
func runMonitor(cfg *config.Config, missionDir, logPath string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	sinks := sink.NewRegistry(sink.Options{
		Timeout: cfg.Sink.Timeout,
		SMTP: sink.SMTPConfig{
			Host: cfg.SMTP.Host,
			Port: cfg.SMTP.Port,
			User: cfg.SMTP.User,
			Pass: cfg.SMTP.Pass,
			From: cfg.SMTP.From,
		},
		VizBaseURL:   cfg.Viz.BaseURL,
		NtfyServer:   cfg.Sink.NtfyServer,
		RockblockURL: cfg.Sink.RockblockURL,
	}, logger)

	loader := subs.NewLoader(
		cfg.LayerPaths(filepath.Join(missionDir, cfg.Subs.File)),
		cfg.Subs.AllowOverride,
		logger,
	)

	commLog := comms.NewCommLog(0)
	dispatcher := notify.NewDispatcher(ctx, notify.Options{
		Loader:    loader,
		Sinks:     sinks,
		Log:       commLog,
		Collector: collector,
		Viz:       notify.NewViz(cfg.Viz.NotifyURL, cfg.Sink.Timeout, logger),
		Prefix:    prefix,
		Timeout:   cfg.Sink.Timeout,
		Logger:    logger,
	})
	reducer := comms.NewReducer(commLog, dispatcher, logger)

	procs := monitor.UnixProcesses{}
	ctrl := monitor.New(monitor.Options{
		MissionDir: missionDir,
		LogPath:    logPath,
		Lock: monitor.NewLock(
			filepath.Join(missionDir, monitor.LockFileName), procs, logger),
		ParentPID: parentPID,
		Procs:     procs,
		Reducer:   reducer,
		Collector: collector,
		Tick:      cfg.Monitor.Tick,
		Logger:    logger,
	})

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer stop() // a finished monitor ends the metrics server too
		return ctrl.Run(gCtx)
	})

	if cfg.Metrics.Addr != "" {
		startMetricsServer(gCtx, g, cfg.Metrics, reg, logger)
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run monitor: %w", err)
	}
	return nil
}

// startMetricsServer registers the Prometheus endpoint goroutines: one
// serving, one draining on context cancellation.
func startMetricsServer(
	ctx context.Context,
	g *errgroup.Group,
	cfg config.MetricsConfig,
	reg *prometheus.Registry,
	logger *slog.Logger,
) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Addr),
			slog.String("path", cfg.Path),
		)
		ln, err := lc.Listen(ctx, "tcp", cfg.Addr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", cfg.Addr, err)
		}
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve on %s: %w", cfg.Addr, err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(
			context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		return nil
	})
}

// resolveTarget maps the positional argument onto a mission directory and a
// comm log path. A directory argument implies <dir>/comm.log; a file
// argument is the log itself, inside its mission directory.
func resolveTarget(target string) (missionDir, logPath string, err error) {
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", "", fmt.Errorf("resolve %s: %w", target, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", "", fmt.Errorf("stat %s: %w", abs, err)
	}

	if info.IsDir() {
		return abs, filepath.Join(abs, "comm.log"), nil
	}
	return filepath.Dir(abs), abs, nil
}

// detach re-executes the binary in a new session with --daemon stripped, so
// the monitor survives the login shell that spawned it. The parent returns
// once the child is started.
func detach() error {
	args := make([]string, 0, len(os.Args)-1)
	for _, a := range os.Args[1:] {
		if a == "--daemon" || a == "--daemon=true" {
			continue
		}
		args = append(args, a)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	cmd := exec.Command(exe, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	// Stdio stays detached; the child logs through its own handler.

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start detached monitor: %w", err)
	}

	fmt.Printf("commwatch detached, pid %d\n", cmd.Process.Pid)
	return cmd.Process.Release()
}

// newLoggerWithLevel creates a structured logger using a shared LevelVar.
func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
