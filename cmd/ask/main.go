// Package main is the entry point for the ask CLI, which answers a research
// question in-process and prints the answer as it streams.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/helixir/research-answer-service/internal/app"
	"github.com/helixir/research-answer-service/internal/config"
	"github.com/helixir/research-answer-service/internal/domain"
	"github.com/helixir/research-answer-service/internal/observability"
	"github.com/helixir/research-answer-service/internal/pipeline"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newAskCmd(buildRunner).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// questionRunner answers one question, reporting progress to the emitter.
type questionRunner interface {
	Run(ctx context.Context, question string, emitter pipeline.Emitter) (*domain.Result, error)
}

// askOptions are the command-line overrides of the pipeline configuration.
type askOptions struct {
	JSON      bool
	MaxPapers int
	Target    int
	Verbose   bool
}

// runnerFactory builds a runner and returns a func releasing its resources.
type runnerFactory func(ctx context.Context, opts askOptions, logOut io.Writer) (questionRunner, func(), error)

func newAskCmd(build runnerFactory) *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   `ask "question"`,
		Short: "Answer a research question from the literature",
		Long: `ask evaluates a question and answers it directly or, when it needs
evidence, searches Semantic Scholar, arXiv, PubMed and CORE, filters the
papers for relevance and writes an answer with numbered citations.

The answer streams to stdout while stage updates go to stderr. With --json
only the final result is printed.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return domain.NewMissingInputError("question")
			}

			runner, closeFn, err := build(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeFn()

			return ask(cmd.Context(), runner, question, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print the final result as JSON")
	cmd.Flags().IntVar(&opts.MaxPapers, "max-papers", 0, "maximum papers kept after relevance filtering")
	cmd.Flags().IntVar(&opts.Target, "target", 0, "number of papers requested from the sources")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log pipeline internals to stderr")

	return cmd
}

// ask runs the question and renders the outcome.
func ask(ctx context.Context, runner questionRunner, question string, opts askOptions, stdout, stderr io.Writer) error {
	var emitter pipeline.Emitter = pipeline.Discard
	var printer *consolePrinter
	if !opts.JSON {
		printer = newConsolePrinter(stdout, stderr)
		emitter = printer
	}

	result, err := runner.Run(ctx, question, emitter)
	if err != nil {
		var stageErr *domain.StageError
		if errors.As(err, &stageErr) {
			return fmt.Errorf("%s failed: %w", stageErr.Stage, stageErr.Err)
		}
		return err
	}

	if opts.JSON {
		return writeResultJSON(stdout, result)
	}
	return printer.finish(result)
}

// buildRunner wires the full pipeline from configuration.
func buildRunner(ctx context.Context, opts askOptions, logOut io.Writer) (questionRunner, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if opts.Target > 0 {
		cfg.Pipeline.TargetCount = opts.Target
	}
	if opts.MaxPapers > 0 {
		cfg.Pipeline.MaxPapers = opts.MaxPapers
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid options: %w", err)
	}

	level := "warn"
	if opts.Verbose {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      level,
		Format:     "console",
		Writer:     logOut,
		TimeFormat: time.Kitchen,
	})
	logger = logger.With().Str("component", "ask").Logger()

	// Metrics are collected but never exposed from the CLI.
	metrics := observability.NewMetricsWithRegistry(cfg.Metrics.Namespace, prometheus.NewRegistry())

	application, err := app.Build(ctx, cfg, metrics, logger)
	if err != nil {
		return nil, nil, err
	}
	return application.Pipeline, application.Close, nil
}
