package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/lamim/askgpt/internal/api"
	"github.com/lamim/askgpt/internal/config"
	"github.com/lamim/askgpt/internal/logging"
	"github.com/lamim/askgpt/internal/metrics"
	"github.com/lamim/askgpt/internal/repl"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// ConfigEnvVar overrides the default config path when --config is not given
const ConfigEnvVar = "ASKGPT_CONFIG"

type options struct {
	configPath  string
	envFile     string
	cacheConfig time.Duration
	timeout     time.Duration
	metricsAddr string
	logFile     string
	noHistory   bool
	verbose     bool
	jsonOutput  bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		var reported *reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "askgpt",
		Short: "askgpt - ask a chat model questions from the terminal",
		Long: `askgpt reads questions from the terminal, sends each one as a single-turn
prompt to an OpenAI-compatible chat completions endpoint and prints the answer.
Type q to quit.

Credentials and model are read from a TOML file (default .openAi.yml):

  api_key = "sk-..."
  model   = "gpt-4"`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd, opts)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", config.DefaultPath, "Path to configuration file (env "+ConfigEnvVar+")")
	flags.StringVar(&opts.envFile, "env-file", ".env", "Path to environment file")
	flags.DurationVar(&opts.cacheConfig, "cache-config", 0, "Reuse the loaded configuration for this long (0 re-reads it for every question)")
	flags.DurationVar(&opts.timeout, "timeout", 0, "Per-request timeout (overrides timeout_seconds)")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :2112)")
	flags.StringVar(&opts.logFile, "log-file", "", "Also write debug logs as JSON to this file")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.Flags().BoolVar(&opts.noHistory, "no-history", false, "Do not load or save input history")

	askCmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Ask a single question and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, opts, strings.Join(args, " "))
		},
	}
	askCmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the full decoded response as JSON")

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, opts)
		},
	}

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(checkCmd)

	return rootCmd
}

// resolve loads the env file and applies environment defaults to flags
func (o *options) resolve(cmd *cobra.Command) error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil {
			// The default .env is optional, an explicit one is not
			if cmd.Flags().Changed("env-file") {
				return fmt.Errorf("failed to load env file: %w", err)
			}
		}
	}

	if !cmd.Flags().Changed("config") {
		if path := os.Getenv(ConfigEnvVar); path != "" {
			o.configPath = path
		}
	}

	if o.cacheConfig < 0 {
		return fmt.Errorf("--cache-config must not be negative")
	}
	if o.timeout < 0 {
		return fmt.Errorf("--timeout must not be negative")
	}
	return nil
}

// app bundles what every command needs
type app struct {
	logger    *slog.Logger
	logFile   *os.File
	client    *api.Client
	collector *metrics.Collector
}

func newApp(cmd *cobra.Command, opts *options) (*app, error) {
	consoleLevel := slog.LevelWarn
	if opts.verbose {
		consoleLevel = slog.LevelDebug
	}

	logger, logFile, err := logging.Setup(logging.Options{
		Console:      cmd.ErrOrStderr(),
		ConsoleLevel: consoleLevel,
		FilePath:     opts.logFile,
		FileLevel:    slog.LevelDebug,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	var provider config.Provider = config.NewFileProvider(opts.configPath)
	if opts.cacheConfig > 0 {
		provider = config.NewCachedProvider(provider, opts.cacheConfig, logger)
	}

	collector := metrics.NewCollector(logger)
	client := api.NewClient(provider, logger)
	client.SetMetrics(collector)
	client.SetTimeout(opts.timeout)

	logger.Debug("askgpt starting",
		"version", Version,
		"config", opts.configPath,
		"cache_config", opts.cacheConfig)

	return &app{logger: logger, logFile: logFile, client: client, collector: collector}, nil
}

func (a *app) close() {
	if a.logFile != nil {
		_ = a.logFile.Sync()
		_ = a.logFile.Close()
	}
}

func (a *app) serveMetrics(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	go func() {
		if err := a.collector.Serve(ctx, addr); err != nil {
			a.logger.Error("Metrics server failed", "addr", addr, "error", err)
		}
	}()
}

func runInteractive(cmd *cobra.Command, opts *options) error {
	a, err := newApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	a.serveMetrics(ctx, opts.metricsAddr)

	out := cmd.OutOrStdout()
	interactive := isTerminal(cmd.InOrStdin()) && isTerminal(out)

	var in repl.LineReader
	if interactive {
		historyPath := ""
		if !opts.noHistory {
			if path, err := repl.DefaultHistoryPath(); err == nil {
				historyPath = path
			} else {
				a.logger.Warn("History disabled", "error", err)
			}
		}
		in = repl.NewTerminalReader(historyPath)
	} else {
		in = repl.NewScannerReader(cmd.InOrStdin(), out)
	}
	defer func() {
		if err := in.Close(); err != nil {
			a.logger.Warn("Failed to close input", "error", err)
		}
	}()

	session := repl.New(a.client, in, out, a.logger)
	if interactive {
		session.SetInterruptible(true)
		if isTerminal(cmd.ErrOrStderr()) {
			session.SetSpinner(cmd.ErrOrStderr())
		}
	}

	return session.Run(ctx)
}

func runAsk(cmd *cobra.Command, opts *options, question string) error {
	a, err := newApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	a.serveMetrics(ctx, opts.metricsAddr)

	if opts.jsonOutput {
		resp, err := a.client.Complete(ctx, question)
		if err != nil {
			return reportError(cmd, err)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(resp)
	}

	answer, err := a.client.Ask(ctx, question)
	if err != nil {
		return reportError(cmd, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), answer)
	return nil
}

func runCheck(cmd *cobra.Command, opts *options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return reportError(cmd, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config:    %s\n", opts.configPath)
	fmt.Fprintf(out, "Model:     %s\n", cfg.Model)
	fmt.Fprintf(out, "Endpoint:  %s\n", cfg.Endpoint)
	fmt.Fprintf(out, "API key:   %s\n", cfg.Redacted())
	fmt.Fprintf(out, "Timeout:   %s\n", cfg.Timeout())
	if cfg.RateLimitPerMinute > 0 {
		fmt.Fprintf(out, "Rate limit: %d/min\n", cfg.RateLimitPerMinute)
	}
	return nil
}

// reportedError marks an error already shown to the user
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// reportError prints err on stderr and returns it so the process exits non-zero
func reportError(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), repl.Describe(err))
	return &reportedError{err: err}
}

func isTerminal(v any) bool {
	f, ok := v.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
