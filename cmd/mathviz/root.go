package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"mathviz/internal/config"
)

type rootOptions struct {
	configFile  string
	debug       bool
	provider    string
	model       string
	outputDir   string
	metricsAddr string
	ttsProvider string
	quality     string
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "mathviz [problem]",
		Short: "Turn a math problem into a narrated, animated explanation video",
		Long: `mathviz solves a math problem with a language model, checks the solution,
writes a narration, synthesizes speech, generates Manim scenes timed to the
narration and assembles everything into one video.

With no arguments it starts an interactive prompt.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return runOnce(cmd.Context(), opts, strings.Join(args, " "), stdout, stderr)
			}
			return runInteractive(cmd.Context(), opts, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "config file (default ./mathviz.yaml or ~/.mathviz/mathviz.yaml)")
	flags.BoolVar(&opts.debug, "debug", false, "debug logging; keep intermediate artifacts")
	flags.StringVar(&opts.provider, "provider", "", "LLM provider: openai, openai-responses, ollama, mock")
	flags.StringVar(&opts.model, "model", "", "LLM model name")
	flags.StringVarP(&opts.outputDir, "output", "o", "", "root directory for session folders")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flags.StringVar(&opts.ttsProvider, "tts", "", "speech backend: command, http, silent, none")
	flags.StringVarP(&opts.quality, "quality", "q", "", "manim render quality: l, m, h, k")

	cmd.AddCommand(newRunCommand(opts, stdout, stderr), newVersionCommand(stdout))
	return cmd
}

func newRunCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "run <problem>",
		Short: "Process one problem and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), opts, strings.Join(args, " "), stdout, stderr)
		},
	}
}

func newVersionCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the mathviz version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "mathviz %s\n", appVersion())
		},
	}
}

// loadConfig applies command-line flags on top of file and environment.
func loadConfig(opts *rootOptions) (config.Config, error) {
	return config.Load(
		config.WithConfigFile(opts.configFile),
		config.WithOverrides(opts.apply),
	)
}

func (o *rootOptions) apply(cfg *config.Config) {
	if o.debug {
		cfg.Debug = true
		cfg.Observability.Logging.Level = "debug"
	}
	if o.provider != "" {
		cfg.LLM.Provider = o.provider
	}
	if o.model != "" {
		cfg.LLM.Model = o.model
	}
	if o.outputDir != "" {
		cfg.OutputDir = o.outputDir
	}
	if o.metricsAddr != "" {
		cfg.Observability.Metrics.Enabled = true
		cfg.Observability.Metrics.Addr = o.metricsAddr
	}
	if o.ttsProvider != "" {
		cfg.TTS.Provider = o.ttsProvider
	}
	if o.quality != "" {
		cfg.Render.Quality = o.quality
	}
}

func runOnce(ctx context.Context, opts *rootOptions, query string, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	container, err := buildContainer(ctx, cfg, stdout, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = container.Close() }()

	container.Printer.Banner("MathViz", appVersion())
	_, err = container.Orchestrator.Run(withRunID(ctx), query)
	return err
}
