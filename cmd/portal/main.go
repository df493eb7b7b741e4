// Command portal runs the syslog ingest gateway.
//
// Logging:
//   - Base logger is built in run(), once [logging] config is known
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
//   - Components scope loggers with their own attributes
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof is intentionally available when PROFILE=true
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ProjectMeniscus/portal/internal/cert"
	"github.com/ProjectMeniscus/portal/internal/config"
	"github.com/ProjectMeniscus/portal/internal/ingest"
	"github.com/ProjectMeniscus/portal/internal/logging"
	"github.com/ProjectMeniscus/portal/internal/transport"
)

const defaultConfigPath = "/etc/meniscus-portal/portal.conf"

// Exit codes, per the gateway's external interface contract.
const (
	exitConfig  = 1
	exitBind    = 2
	exitRuntime = 3
)

var version = "dev"

func main() {
	// bootstrapLogger covers the window before [logging] config is loaded;
	// the real, config-driven logger is built inside run().
	bootstrapLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if os.Getenv("PROFILE") == "true" {
		go func() {
			bootstrapLogger.Info("pprof server listening", "addr", "localhost:6060")
			srv := &http.Server{Addr: "localhost:6060", ReadHeaderTimeout: 10 * time.Second}
			if err := srv.ListenAndServe(); err != nil {
				bootstrapLogger.Error("pprof server error", "error", err)
			}
		}()
	}

	rootCmd := &cobra.Command{
		Use:     "portal",
		Short:   "Syslog ingest gateway",
		Version: version,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Load config, start the pipeline, and run until signaled",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			if configPath == "" {
				configPath = resolveConfigPath()
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return run(ctx, configPath)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	serveCmd.Flags().String("config", "", "path to portal.conf (default: "+defaultConfigPath+" or $PORTAL_CONFIG)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "portal:", err)
		os.Exit(exitCodeFor(err))
	}
}

// resolveConfigPath returns the configured path, honoring PORTAL_CONFIG as
// the environment override the external-interfaces contract requires.
func resolveConfigPath() string {
	if p := os.Getenv("PORTAL_CONFIG"); p != "" {
		return p
	}
	return defaultConfigPath
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return exitErr{code: exitConfig, err: fmt.Errorf("load config %s: %w", configPath, err)}
	}

	logger, closeLog, err := buildLogger(cfg.Logging)
	if err != nil {
		return exitErr{code: exitConfig, err: err}
	}
	defer closeLog()

	if cfg.Core.SyslogBindHost.PortDefaulted {
		logger.Warn("syslog_bind_host has no explicit port; defaulting to 80 for compatibility",
			"host", cfg.Core.SyslogBindHost.Host)
	}
	if cfg.Core.ZMQBindHost.PortDefaulted {
		logger.Warn("zmq_bind_host has no explicit port; defaulting to 80 for compatibility",
			"host", cfg.Core.ZMQBindHost.Host)
	}

	var tlsCfg *tlsConfigResult
	if cfg.SSL.Enabled {
		tlsCfg, err = loadTLS(cfg.SSL, logger)
		if err != nil {
			return exitErr{code: exitBind, err: err}
		}
		defer tlsCfg.manager.Close()
	}

	pipeline := ingest.NewPipeline(ingest.PipelineConfig{
		SyslogAddr: cfg.Core.SyslogBindHost.String(),
		TLSConfig:  tlsConfigOrNil(tlsCfg),
		TransportConfig: transport.Config{
			Brokers: []string{cfg.Core.ZMQBindHost.String()},
		},
		Logger: logger,
	})

	logger.Info("portal starting",
		"syslog_addr", cfg.Core.SyslogBindHost.String(),
		"push_addr", cfg.Core.ZMQBindHost.String(),
		"tls", cfg.SSL.Enabled,
	)

	if err := pipeline.Start(); err != nil {
		return exitErr{code: exitBind, err: fmt.Errorf("start pipeline: %w", err)}
	}

	<-ctx.Done()

	logger.Info("portal stopping")
	pipeline.Stop()
	logger.Info("portal stopped")
	return nil
}

// buildLogger constructs the process-wide base logger from [logging] config:
// console and/or logfile output, fanned out with io.MultiWriter when both are
// set, wrapped in a ComponentFilterHandler whose default level is the
// configured verbosity. The returned closer flushes/closes the log file, if
// one was opened, and is always safe to call.
func buildLogger(lcfg config.Logging) (*slog.Logger, func() error, error) {
	var writers []io.Writer
	closer := func() error { return nil }

	if lcfg.Console {
		writers = append(writers, os.Stderr)
	}
	if lcfg.LogFile != "" {
		f, err := os.OpenFile(lcfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", lcfg.LogFile, err)
		}
		writers = append(writers, f)
		closer = f.Close
	}

	var w io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		w = writers[0]
	default:
		w = io.MultiWriter(writers...)
	}

	base := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: slog.LevelDebug, // filtering happens in ComponentFilterHandler
	})
	filter := logging.NewComponentFilterHandler(base, lcfg.Verbosity)
	return slog.New(filter), closer, nil
}

type tlsConfigResult struct {
	manager *cert.Manager
}

func loadTLS(ssl config.SSL, logger *slog.Logger) (*tlsConfigResult, error) {
	mgr := cert.New(cert.Config{Logger: logger})
	if err := mgr.Load(ssl.CertFile, ssl.KeyFile); err != nil {
		return nil, fmt.Errorf("load TLS cert/key: %w", err)
	}
	return &tlsConfigResult{manager: mgr}, nil
}

func tlsConfigOrNil(r *tlsConfigResult) *tls.Config {
	if r == nil {
		return nil
	}
	return r.manager.TLSConfig()
}

// exitErr carries the process exit code a failure should produce, per the
// gateway's documented exit-code contract (0 clean, 1 config, 2 bind, 3
// runtime).
type exitErr struct {
	code int
	err  error
}

func (e exitErr) Error() string { return e.err.Error() }
func (e exitErr) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	var ee exitErr
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitRuntime
}
