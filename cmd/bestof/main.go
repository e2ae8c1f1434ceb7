// Command bestof asks a model the same question many times, then has a judge
// model pick the best answers. Answers and the ranking are saved as Markdown.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ahrav/go-bestof/infrastructure/llm"
	"github.com/ahrav/go-bestof/infrastructure/middleware"
	"github.com/ahrav/go-bestof/internal/application"
	"github.com/ahrav/go-bestof/internal/tui"
)

const serviceName = "bestof"

type options struct {
	configPath  string
	prompt      string
	model       string
	judgeModel  string
	count       int
	topK        int
	temperature float64
	outputDir   string
	perRun      bool
	metricsFile string
	logFile     string
	logLevel    string
	noTUI       bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "bestof",
		Short:        "Sample a prompt N times and let a judge model pick the best answers",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	f.StringVarP(&opts.prompt, "prompt", "p", "", "question to ask; prompts interactively when empty")
	f.StringVar(&opts.model, "model", "", "generator model")
	f.StringVar(&opts.judgeModel, "judge-model", "", "judge model")
	f.IntVarP(&opts.count, "count", "n", 0, "number of answers to sample")
	f.IntVarP(&opts.topK, "top-k", "k", 0, "number of answers the judge should pick")
	f.Float64VarP(&opts.temperature, "temperature", "t", 0, "sampling temperature")
	f.StringVarP(&opts.outputDir, "output-dir", "o", "", "directory for answers and the ranking")
	f.BoolVar(&opts.perRun, "per-run", false, "write each run into its own subdirectory")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")
	f.StringVar(&opts.logFile, "log-file", "", "write logs to this file instead of stderr")
	f.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	f.BoolVar(&opts.noTUI, "no-tui", false, "print plain progress lines instead of the interactive display")

	return cmd
}

func run(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(cmd, opts, afero.NewOsFs(), os.LookupEnv)
	if err != nil {
		return err
	}

	logger, err := newLogger(opts.logLevel, opts.logFile)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	metrics := middleware.NewPrometheusMetrics(nil)
	client, err := newClient(cfg, metrics)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, tui.RenderTitle())
	fmt.Fprintln(out, tui.RenderSettings(cfg))

	question, err := readQuestion(opts, cmd.InOrStdin(), out)
	if err != nil {
		return err
	}

	pipelineOpts := []application.PipelineOption{
		application.WithLogger(logger),
		application.WithMetrics(metrics),
		application.WithTracer(otel.Tracer(serviceName)),
	}
	stores := application.NewStoreFactory(afero.NewOsFs(), cfg.Output.Dir, cfg.Output.PerRun)

	var report *application.RunReport
	if opts.noTUI {
		progress := newLineProgress(out)
		pipelineOpts = append(pipelineOpts,
			application.WithProgress(progress),
			application.WithPhaseObserver(progress.Phase),
		)
		p, err := application.NewPipeline(cfg, client, stores, pipelineOpts...)
		if err != nil {
			return err
		}
		report, err = p.Run(ctx, question)
		if err != nil {
			return err
		}
	} else {
		report, err = tui.RunWithProgress(ctx, func(ctx context.Context, r *tui.ProgramReporter) (*application.RunReport, error) {
			p, err := application.NewPipeline(cfg, client, stores,
				append(pipelineOpts, application.WithProgress(r), application.WithPhaseObserver(r.Phase))...)
			if err != nil {
				return nil, err
			}
			return p.Run(ctx, question)
		})
		if err != nil {
			return err
		}
	}

	fmt.Fprintln(out, tui.RenderReport(report))

	if opts.metricsFile != "" {
		if err := metrics.WriteTextfile(opts.metricsFile); err != nil {
			logger.Error("failed to write metrics file", zap.String("path", opts.metricsFile), zap.Error(err))
			return fmt.Errorf("failed to write metrics file: %w", err)
		}
	}
	return nil
}

// loadConfig reads the config file, applies flags the user set explicitly,
// validates the result and resolves the API key from the environment or the
// working directory's .env file.
func loadConfig(
	cmd *cobra.Command,
	opts *options,
	fs afero.Fs,
	lookup func(string) (string, bool),
) (application.Config, error) {
	cfg, err := application.LoadConfig(fs, opts.configPath)
	if err != nil {
		return cfg, err
	}

	changed := cmd.Flags().Changed
	if changed("model") {
		cfg.Generator.Model = opts.model
	}
	if changed("judge-model") {
		cfg.Judge.Model = opts.judgeModel
	}
	if changed("count") {
		cfg.Generator.Count = opts.count
	}
	if changed("top-k") {
		cfg.Judge.TopK = opts.topK
	}
	if changed("temperature") {
		cfg.Generator.Temperature = opts.temperature
	}
	if changed("output-dir") {
		cfg.Output.Dir = opts.outputDir
	}
	if changed("per-run") {
		cfg.Output.PerRun = opts.perRun
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	dotenv, err := application.LoadDotEnv(fs, application.DotEnvFile)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ResolveAPIKey(application.WithDotEnv(lookup, dotenv)); err != nil {
		return cfg, fmt.Errorf("set %s to your API key or add it to a %s file: %w", cfg.APIKeyEnv, application.DotEnvFile, err)
	}
	return cfg, nil
}

// newClient builds the LLM client with its middleware chain. The first
// middleware is the outermost.
func newClient(cfg application.Config, metrics *middleware.PrometheusMetrics) (*llm.Client, error) {
	chain := []llm.Middleware{
		llm.TracingMiddleware(serviceName),
		llm.MetricsMiddleware(metrics, cfg.Provider),
		llm.RateLimitMiddleware(cfg.Provider, cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		llm.TimeoutMiddleware(cfg.Provider, cfg.Timeout),
	}

	return llm.NewClient(cfg.Provider, llm.ClientConfig{
		APIKey:     cfg.APIKey,
		Model:      cfg.Generator.Model,
		BaseURL:    cfg.ProviderBaseURL(),
		Middleware: chain,
	})
}

func newLogger(level, file string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(lvl)
	zapConfig.OutputPaths = []string{"stderr"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}
	if file != "" {
		zapConfig.OutputPaths = []string{file}
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger.Named(serviceName), nil
}

// readQuestion returns the --prompt value, or asks for one. In plain mode the
// first non-empty line of in is used.
func readQuestion(opts *options, in io.Reader, out io.Writer) (string, error) {
	if q := strings.TrimSpace(opts.prompt); q != "" {
		return q, nil
	}
	if !opts.noTUI {
		return tui.AskQuestion()
	}

	fmt.Fprint(out, "Enter your question/prompt: ")
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if q := strings.TrimSpace(scanner.Text()); q != "" {
			return q, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read question: %w", err)
	}
	return "", errors.New("no question provided")
}
