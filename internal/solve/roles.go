package solve

import (
	"context"
	"fmt"

	"mathviz/internal/llm"
	"mathviz/internal/logging"
	"mathviz/internal/prompts"
)

// Evaluation is one evaluator pass over a solution.
type Evaluation struct {
	Text    string
	Verdict Verdict
}

// Approved reports the parsed verdict.
func (e Evaluation) Approved() bool { return e.Verdict.Approved }

// Solver produces a solution for the current query text.
type Solver struct {
	generator   llm.TextGenerator
	system      string
	temperature float64
	useTools    bool
}

// NewSolver builds a Solver. useTools offers the generator's tools (web
// search) to the model.
func NewSolver(generator llm.TextGenerator, loader *prompts.Loader, temperature float64, useTools bool) (*Solver, error) {
	system, err := loader.Get(prompts.Solver)
	if err != nil {
		return nil, err
	}
	return &Solver{generator: generator, system: system, temperature: temperature, useTools: useTools}, nil
}

// Solve returns the model's solution to query.
func (s *Solver) Solve(ctx context.Context, query string) (string, error) {
	return s.generator.Generate(ctx, llm.Prompt{
		Purpose:     llm.PurposeSolver,
		System:      s.system,
		User:        query,
		Temperature: s.temperature,
		UseTools:    s.useTools,
	})
}

// Evaluator reviews a solution and parses the verdict.
type Evaluator struct {
	generator   llm.TextGenerator
	system      string
	temperature float64
	logger      logging.Logger
}

// NewEvaluator builds an Evaluator.
func NewEvaluator(generator llm.TextGenerator, loader *prompts.Loader, temperature float64, logger logging.Logger) (*Evaluator, error) {
	system, err := loader.Get(prompts.Evaluator)
	if err != nil {
		return nil, err
	}
	return &Evaluator{
		generator:   generator,
		system:      system,
		temperature: temperature,
		logger:      logging.Component(logger, "evaluator"),
	}, nil
}

// Evaluate reviews solution against the original problem.
func (e *Evaluator) Evaluate(ctx context.Context, problem, solution string) (Evaluation, error) {
	text, err := e.generator.Generate(ctx, llm.Prompt{
		Purpose:     llm.PurposeEvaluator,
		System:      e.system,
		User:        fmt.Sprintf("PROBLEM:\n%s\n\nSOLUTION TO EVALUATE:\n%s", problem, solution),
		Temperature: e.temperature,
	})
	if err != nil {
		return Evaluation{}, err
	}
	verdict := ParseVerdict(text)
	if verdict.Rule == RuleNone {
		e.logger.Warn("verdict: no rule matched, treating evaluation as a rejection")
	}
	return Evaluation{Text: text, Verdict: verdict}, nil
}
