package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/uuid"

	mverrors "mathviz/internal/errors"
	"mathviz/internal/observability"
	"mathviz/internal/output"
	"mathviz/internal/pipeline"
)

// lineReader is the part of *readline.Instance the loop uses.
type lineReader interface {
	Readline() (string, error)
}

type queryRunner interface {
	Run(ctx context.Context, query string) (*pipeline.Result, error)
}

func runInteractive(ctx context.Context, opts *rootOptions, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	container, err := buildContainer(ctx, cfg, stdout, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = container.Close() }()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "mathviz> ",
		HistoryFile:       cfg.HistoryFile,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		UniqueEditLine:    true,
		Stdin:             readline.NewCancelableStdin(os.Stdin),
		Stdout:            stdout,
		Stderr:            stderr,
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	p := container.Printer
	p.Banner("MathViz", appVersion())
	for _, c := range container.Orchestrator.Capabilities() {
		if c.Ready {
			p.Success("%s: %s", c.Name, c.Detail)
		} else {
			p.Warning("%s unavailable: %s", c.Name, c.Detail)
		}
	}
	p.Info("Enter a math problem, or exit to quit.")
	return replLoop(ctx, rl, container.Orchestrator, p)
}

// replLoop reads one problem per line until exit, EOF or an interrupt on
// an empty line. A failed query is reported and the loop continues.
func replLoop(ctx context.Context, in lineReader, runner queryRunner, p *output.Printer) error {
	for {
		line, err := in.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			if strings.TrimSpace(line) == "" {
				p.Info("Goodbye!")
				return nil
			}
			continue
		case errors.Is(err, io.EOF):
			p.Info("Goodbye!")
			return nil
		case err != nil:
			return err
		}

		query := strings.TrimSpace(line)
		if isExit(query) {
			p.Info("Goodbye!")
			return nil
		}
		if query == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := runner.Run(withRunID(ctx), query); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Failure("query failed: %s", mverrors.FormatForUser(err))
			p.Info("Ready for the next problem.")
		}
	}
}

func isExit(input string) bool {
	switch strings.ToLower(input) {
	case "exit", "quit", "q":
		return true
	}
	return false
}

func withRunID(ctx context.Context) context.Context {
	return observability.ContextWithRunID(ctx, uuid.NewString())
}
