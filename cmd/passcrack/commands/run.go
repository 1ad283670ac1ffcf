// Package commands implements CLI command handlers for passcrack.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/passcrack/pkg/candidates"
	"github.com/Sumatoshi-tech/passcrack/pkg/checker"
	"github.com/Sumatoshi-tech/passcrack/pkg/config"
	"github.com/Sumatoshi-tech/passcrack/pkg/crack"
	"github.com/Sumatoshi-tech/passcrack/pkg/observability"
	"github.com/Sumatoshi-tech/passcrack/pkg/version"
)

var (
	// ErrNotFound is returned when every candidate was checked without a match.
	ErrNotFound = errors.New("passphrase not found")
	// ErrKeyring indicates the keyring could not be loaded.
	ErrKeyring = errors.New("failed to load keyring")
)

// Process exit codes.
const (
	ExitFound    = 0
	ExitNotFound = 1
	ExitFailure  = 2
)

const (
	metricsPath       = "/metrics"
	readHeaderTimeout = 5 * time.Second
	// waitGrace bounds how long a finished run waits for in-flight checks.
	// A producer blocked on a terminal stdin cannot be interrupted.
	waitGrace = 2 * time.Second
)

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitFound
	case errors.Is(err, ErrNotFound):
		return ExitNotFound
	default:
		return ExitFailure
	}
}

type checkerOpener func(path, keyID string) (checker.Checker, error)

type inputOpener func(path string) (io.ReadCloser, error)

// RunCommand holds configuration and dependencies for the run command.
type RunCommand struct {
	configPath    string
	keyringPath   string
	keyID         string
	halt          bool
	cores         int
	inputPath     string
	logLevel      string
	logJSON       bool
	revealSecrets bool
	metricsAddr   string
	otlpEndpoint  string
	noColor       bool
	summary       bool

	openChecker checkerOpener
	openInput   inputOpener
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	return newRunCommandWithDeps(openKeyring, candidates.OpenInput)
}

func openKeyring(path, keyID string) (checker.Checker, error) {
	return checker.Open(path, keyID)
}

func newRunCommandWithDeps(openChecker checkerOpener, openInput inputOpener) *cobra.Command {
	rc := &RunCommand{
		openChecker: openChecker,
		openInput:   openInput,
	}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Try candidate passphrases against an OpenPGP secret key",
		Long: `Read candidate passphrases, one per line, and check each against the
selected secret key. The empty passphrase is always tried first.

Candidates come from stdin unless --input is given. Output of the crunch
wordlist generator is recognized and its line count is used for ETA.

Exit status is 0 when a passphrase was found, 1 when none matched and 2 on error.`,
		Example: `  crunch 1 4 abc | passcrack run -f secring.gpg -k DEADBEEF
  passcrack run -f key.asc -i words.txt.lz4 --halt=false --summary`,
		Args: cobra.NoArgs,
		RunE: rc.run,
	}

	cmd.Flags().StringVar(&rc.configPath, "config", "", "Config file (default: .passcrack.yaml in . or $HOME)")
	cmd.Flags().StringVarP(&rc.keyringPath, "keyring", "f", config.DefaultKeyringPath, "Secret keyring file, binary or armored")
	cmd.Flags().StringVarP(&rc.keyID, "key", "k", "", "Key ID (last 8 hex digits of the fingerprint) of the key to attack")
	cmd.Flags().BoolVar(&rc.halt, "halt", config.DefaultHaltOnFirstHit, "Stop at the first matching passphrase")
	cmd.Flags().IntVarP(&rc.cores, "cores", "c", config.DefaultWorkers, "Number of parallel checks (0 = CPU count)")
	cmd.Flags().StringVarP(&rc.inputPath, "input", "i", "", "Candidate file, '-' for stdin; .lz4 files are decompressed")
	cmd.Flags().StringVar(&rc.logLevel, "log-level", config.DefaultLogLevel, "Log level: debug, info, warn, error")
	cmd.Flags().BoolVar(&rc.logJSON, "log-json", false, "Write logs as JSON")
	cmd.Flags().BoolVar(&rc.revealSecrets, "reveal-secrets", false, "Log candidate passphrases in clear text")
	cmd.Flags().StringVar(&rc.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9464)")
	cmd.Flags().StringVar(&rc.otlpEndpoint, "otlp-endpoint", "", "OTLP gRPC collector endpoint for traces and metrics")
	cmd.Flags().BoolVar(&rc.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().BoolVar(&rc.summary, "summary", false, "Print a summary table when the run ends")

	return cmd
}

func (rc *RunCommand) run(cmd *cobra.Command, _ []string) error {
	cfg, err := rc.loadConfig(cmd)
	if err != nil {
		return err
	}

	if rc.noColor {
		color.NoColor = true //nolint:reassign // intentional override of library global
	}

	obsCfg, err := observabilityConfig(cfg)
	if err != nil {
		return err
	}

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	defer func() {
		shutdownErr := providers.Shutdown(context.Background())
		if shutdownErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "observability shutdown: %v\n", shutdownErr)
		}
	}()

	logger := observability.NewLogger(obsCfg, cmd.ErrOrStderr())

	chk, err := rc.openChecker(expandHome(cfg.Keyring.Path), cfg.Keyring.KeyID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrKeyring, err)
	}

	if key, ok := chk.(interface {
		Fingerprint() string
		KeyID() string
	}); ok {
		logger.Info("keyring loaded",
			"keyring.path", cfg.Keyring.Path,
			"keyring.key_id", key.KeyID(),
			"keyring.fingerprint", key.Fingerprint(),
		)
	}

	input, err := rc.openInput(cfg.Input.Path)
	if err != nil {
		return err
	}
	defer input.Close()

	metrics, err := observability.NewCrackMetrics(providers.Meter)
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	stopMetrics, err := serveMetrics(cfg.Observability.MetricsAddr, providers.MetricsHandler, observability.HealthHandler(obsCfg), logger)
	if err != nil {
		return err
	}
	defer stopMetrics()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline := crack.New(chk, candidates.NewSource(input), crackConfig(cfg),
		crack.WithOutput(cmd.OutOrStdout()),
		crack.WithLogger(logger),
		crack.WithTracer(providers.Tracer),
		crack.WithMetrics(metrics),
		crack.WithHitStyle(color.New(color.FgGreen, color.Bold).SprintfFunc()),
	)

	summary, runErr := pipeline.Run(ctx)
	waitPipeline(pipeline, logger)

	if rc.summary {
		renderSummary(cmd.OutOrStdout(), summary)
	}

	if runErr != nil {
		return fmt.Errorf("crack: %w", runErr)
	}

	if !summary.Found() {
		return ErrNotFound
	}

	return nil
}

// loadConfig reads the config file and applies explicitly set flags on top.
func (rc *RunCommand) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(rc.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()

	if flags.Changed("keyring") {
		cfg.Keyring.Path = rc.keyringPath
	}

	if flags.Changed("key") {
		cfg.Keyring.KeyID = rc.keyID
	}

	if flags.Changed("halt") {
		cfg.Crack.HaltOnFirstHit = rc.halt
	}

	if flags.Changed("cores") {
		cfg.Crack.Workers = rc.cores
	}

	if flags.Changed("input") {
		cfg.Input.Path = rc.inputPath
	}

	if flags.Changed("log-level") {
		cfg.Logging.Level = rc.logLevel
	}

	if flags.Changed("log-json") && rc.logJSON {
		cfg.Logging.Format = config.FormatJSON
	}

	if flags.Changed("reveal-secrets") {
		cfg.Logging.RevealSecrets = rc.revealSecrets
	}

	if flags.Changed("metrics-addr") {
		cfg.Observability.MetricsAddr = rc.metricsAddr
	}

	if flags.Changed("otlp-endpoint") {
		cfg.Observability.OTLPEndpoint = rc.otlpEndpoint
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func observabilityConfig(cfg *config.Config) (observability.Config, error) {
	level, err := cfg.Logging.SlogLevel()
	if err != nil {
		return observability.Config{}, err
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.LogLevel = level
	obsCfg.LogJSON = cfg.Logging.Format == config.FormatJSON
	obsCfg.RevealSecrets = cfg.Logging.RevealSecrets
	obsCfg.OTLPEndpoint = cfg.Observability.OTLPEndpoint
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Observability.OTLPHeaders)
	obsCfg.OTLPInsecure = cfg.Observability.OTLPInsecure
	obsCfg.SampleRatio = cfg.Observability.SampleRatio
	obsCfg.Prometheus = cfg.Observability.MetricsAddr != ""

	if obsCfg.LogJSON {
		obsCfg.Mode = observability.ModeBatch
	}

	return obsCfg, nil
}

func crackConfig(cfg *config.Config) crack.Config {
	return crack.Config{
		HaltOnFirstHit: cfg.Crack.HaltOnFirstHit,
		Workers:        cfg.Crack.Workers,
		QueueFactor:    cfg.Crack.QueueFactor,
		ReportInterval: cfg.Crack.ReportInterval,
	}
}

// serveMetrics exposes the metrics and health handlers on addr until the
// returned stop function is called.
func serveMetrics(addr string, handler, health http.Handler, logger *slog.Logger) (func(), error) {
	if addr == "" || handler == nil {
		return func() {}, nil
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on metrics address %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(metricsPath, handler)
	mux.Handle(observability.HealthPath, health)

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout}

	go func() {
		serveErr := srv.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", serveErr)
		}
	}()

	logger.Info("serving metrics", "addr", listener.Addr().String(), "path", metricsPath)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), readHeaderTimeout)
		defer cancel()

		_ = srv.Shutdown(ctx)
	}, nil
}

func waitPipeline(pipeline *crack.Pipeline, logger *slog.Logger) {
	done := make(chan struct{})

	go func() {
		pipeline.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(waitGrace):
		logger.Warn("in-flight checks still running at exit")
	}
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
