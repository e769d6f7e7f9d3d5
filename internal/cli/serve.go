package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/deskai-dev/deskai/go/internal/engine"
	"github.com/deskai-dev/deskai/go/internal/engine/audit"
	"github.com/deskai-dev/deskai/go/internal/engine/config"
	"github.com/deskai-dev/deskai/go/internal/engine/metrics"
	"github.com/deskai-dev/deskai/go/internal/engine/protocol"
	"github.com/deskai-dev/deskai/go/internal/engine/shell"
)

// ServeConfig holds configuration for the serve command
type ServeConfig struct {
	ConfigFile string
	DebugAddr  string
}

// NewServeCmd creates the serve command
func NewServeCmd() *cobra.Command {
	cfg := &ServeConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine over stdin/stdout",
		Long: `Run the engine as a protocol server on stdin/stdout.

The host application writes one JSON message per line to stdin and reads one
JSON event per line from stdout. Diagnostics go to stderr. The process exits
when stdin closes or on SIGINT/SIGTERM.

Examples:
  deskai-engine serve
  deskai-engine serve --config ~/.deskai/engine.yaml
  deskai-engine serve --debug-addr 127.0.0.1:6060 --log-level debug`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&cfg.ConfigFile, "config", "", "Apply this bootstrap configuration file (YAML) at startup")
	cmd.Flags().StringVar(&cfg.DebugAddr, "debug-addr", "", "Serve /healthz, /metrics and /sessions on this address")

	return cmd
}

func runServe(ctx context.Context, cfg *ServeConfig, in io.Reader, out io.Writer) error {
	auditLog, err := audit.OpenDefault()
	if err != nil {
		logrus.WithError(err).Warn("audit log unavailable, continuing without")
	} else {
		defer auditLog.Close()
		logrus.WithField("path", auditLog.Path()).Debug("audit log open")
	}

	bridge := protocol.NewBridge(in, out)

	// The metrics registry polls the engine for its session gauge, and the
	// engine emits through the instrumented emitter. Break the cycle with a
	// late-bound engine reference; the debug listener starts only after the
	// engine exists.
	var eng *engine.Engine
	emitter := protocol.Emitter(bridge)
	var registry *metrics.Registry
	if cfg.DebugAddr != "" {
		registry = metrics.New(func() int {
			if eng == nil {
				return 0
			}
			return eng.SessionCount()
		})
		emitter = registry.Instrument(bridge)
	}

	eng = engine.New(emitter, auditLog, engine.WithMetrics(registry))

	if err := emitter.Emit(protocol.NewStatus(protocol.StatusStarting, "Awaiting configuration.")); err != nil {
		return err
	}

	if cfg.ConfigFile != "" {
		if err := applyBootstrap(eng, cfg.ConfigFile, emitter); err != nil {
			return err
		}
	}

	var debugServer *http.Server
	if cfg.DebugAddr != "" {
		debugServer = newDebugServer(cfg.DebugAddr, eng, registry)
		go func() {
			logrus.WithField("addr", cfg.DebugAddr).Info("debug listener started")
			if err := debugServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logrus.WithError(err).Error("debug listener failed")
			}
		}()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- bridge.Run(runCtx, eng)
	}()

	var signalName string
	var runErr error
	select {
	case sig := <-sigChan:
		signalName = sig.String()
		logrus.WithField("signal", signalName).Info("shutdown signal received")
		cancel()
		<-errChan
	case err := <-errChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = err
			logrus.WithError(err).Error("protocol stream failed")
		} else {
			logrus.Info("input stream closed")
		}
	}

	eng.Shutdown()

	if debugServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := debugServer.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Warn("debug listener shutdown error")
		}
	}

	code := 0
	if runErr != nil {
		code = 1
	}
	if err := emitter.Emit(protocol.NewExit(code, signalName)); err != nil {
		logrus.WithError(err).Warn("failed to emit exit event")
	}
	return runErr
}

// applyBootstrap loads a startup configuration file and applies it as if the
// host had sent it. A failure here is fatal: the host asked for a concrete
// configuration and did not get it.
func applyBootstrap(eng *engine.Engine, path string, emitter protocol.Emitter) error {
	boot, err := config.LoadBootstrap(path)
	if err != nil {
		if emitErr := emitter.Emit(protocol.NewStatus(protocol.StatusError, err.Error())); emitErr != nil {
			logrus.WithError(emitErr).Warn("failed to emit status")
		}
		return err
	}

	msg := bootstrapMessage(boot)
	if err := eng.Configure(msg); err != nil {
		return err
	}
	logrus.WithField("config", path).Info("bootstrap configuration applied")
	return nil
}

func bootstrapMessage(boot *config.Bootstrap) *protocol.ConfigMessage {
	return &protocol.ConfigMessage{
		Provider:              boot.Provider,
		APIKey:                boot.APIKey,
		Model:                 boot.Model,
		Workdir:               boot.Workdir,
		AutoApproveReads:      boot.AutoApproveReads,
		ConfirmWrites:         boot.ConfirmWrites,
		ConfirmShell:          boot.ConfirmShell,
		AllowSystemWide:       boot.AllowSystemWide,
		AllowElevatedCommands: boot.AllowElevatedCommands,
		ShowCommandOutput:     boot.ShowCommandOutput,
	}
}

func newDebugServer(addr string, eng *engine.Engine, registry *metrics.Registry) *http.Server {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"state":      string(eng.State()),
			"configured": eng.Configured(),
			"sessions":   eng.SessionCount(),
		})
	}).Methods("GET")

	router.Handle("/metrics", registry.Handler()).Methods("GET")

	router.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		sessions := eng.Sessions()
		if sessions == nil {
			sessions = []shell.SessionInfo{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sessions)
	}).Methods("GET")

	return &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
