package solve

import (
	"context"
	"fmt"

	"mathviz/internal/diff"
	"mathviz/internal/logging"
	"mathviz/internal/observability"
	"mathviz/internal/prompts"
	"mathviz/internal/session"
)

// DefaultMaxRetries is the solve/evaluate ceiling.
const DefaultMaxRetries = 5

// State is a solve/evaluate loop state.
type State string

const (
	StateSolving    State = "solving"
	StateEvaluating State = "evaluating"
	StateApproved   State = "approved"
	StateExhausted  State = "exhausted"
)

// Event reports a state transition to an observer.
type Event struct {
	State   State
	Attempt int
	Max     int
	Path    string
	Verdict Verdict
}

// Collaborators driven by the loop; *Solver and *Evaluator satisfy them.
type (
	solver interface {
		Solve(ctx context.Context, query string) (string, error)
	}
	evaluator interface {
		Evaluate(ctx context.Context, problem, solution string) (Evaluation, error)
	}
)

// Attempt records one solve/evaluate round.
type Attempt struct {
	Number         int    `json:"attempt"`
	SolutionPath   string `json:"solution_path"`
	EvaluationPath string `json:"evaluation_path"`
	DiffPath       string `json:"diff_path,omitempty"`
	Approved       bool   `json:"approved"`
	Rule           Rule   `json:"rule"`
	Value          string `json:"value,omitempty"`
}

// Result is the loop's terminal output.
type Result struct {
	Solution   string
	Evaluation Evaluation
	State      State
	Attempts   []Attempt
}

// Approved reports whether the loop ended in StateApproved.
func (r Result) Approved() bool { return r.State == StateApproved }

// Loop alternates solving and evaluating until approval or MaxRetries.
type Loop struct {
	solver     solver
	evaluator  evaluator
	prompts    *prompts.Loader
	maxRetries int
	metrics    *observability.MetricsCollector
	logger     logging.Logger

	// OnEvent, when set, is called on every state transition.
	OnEvent func(Event)
}

// NewLoop builds a Loop. maxRetries <= 0 uses DefaultMaxRetries.
func NewLoop(s solver, e evaluator, loader *prompts.Loader, maxRetries int, metrics *observability.MetricsCollector, logger logging.Logger) *Loop {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Loop{
		solver:     s,
		evaluator:  e,
		prompts:    loader,
		maxRetries: maxRetries,
		metrics:    metrics,
		logger:     logging.Component(logger, "solve-loop"),
	}
}

// Run drives the state machine for query. Transport failures abort the run;
// rejection after the last attempt returns that attempt, not an error.
func (l *Loop) Run(ctx context.Context, query string, store *session.Store) (Result, error) {
	var (
		result       Result
		current      = query
		prevSolution string
	)

	for attempt := 1; attempt <= l.maxRetries; attempt++ {
		l.emit(Event{State: StateSolving, Attempt: attempt, Max: l.maxRetries})
		solution, err := l.solver.Solve(ctx, current)
		if err != nil {
			return result, fmt.Errorf("solve attempt %d: %w", attempt, err)
		}
		record := Attempt{Number: attempt}
		if record.SolutionPath, err = store.SaveText(session.DirSolver, session.SolutionAttempt(attempt), solution); err != nil {
			return result, err
		}
		if attempt > 1 {
			d := diff.Lines(prevSolution, solution, session.SolutionAttempt(attempt-1), session.SolutionAttempt(attempt), 3)
			if !d.Empty() {
				if record.DiffPath, err = store.SaveText(session.DirSolver, session.SolutionDiff(attempt), d.Text); err != nil {
					return result, err
				}
			}
			l.logger.Debug("attempt %d changed %s", attempt, d.Summary())
		}

		l.emit(Event{State: StateEvaluating, Attempt: attempt, Max: l.maxRetries, Path: record.SolutionPath})
		evaluation, err := l.evaluator.Evaluate(ctx, query, solution)
		if err != nil {
			return result, fmt.Errorf("evaluate attempt %d: %w", attempt, err)
		}
		if record.EvaluationPath, err = store.SaveText(session.DirEvaluator, session.EvaluationAttempt(attempt), evaluation.Text); err != nil {
			return result, err
		}
		record.Approved = evaluation.Approved()
		record.Rule = evaluation.Verdict.Rule
		record.Value = evaluation.Verdict.Value
		l.metrics.RecordSolveAttempt(ctx, record.Approved)

		result.Solution = solution
		result.Evaluation = evaluation
		result.Attempts = append(result.Attempts, record)

		if record.Approved {
			result.State = StateApproved
			l.emit(Event{State: StateApproved, Attempt: attempt, Max: l.maxRetries, Path: record.EvaluationPath, Verdict: evaluation.Verdict})
			l.logger.Info("solution approved after %d attempt(s)", attempt)
			return result, nil
		}
		if attempt < l.maxRetries {
			current, err = l.retryQuery(query, solution, evaluation.Text)
			if err != nil {
				return result, err
			}
		}
		prevSolution = solution
	}

	result.State = StateExhausted
	l.emit(Event{State: StateExhausted, Attempt: l.maxRetries, Max: l.maxRetries, Verdict: result.Evaluation.Verdict})
	l.logger.Warn("maximum retries (%d) reached, using the last solution despite rejection", l.maxRetries)
	return result, nil
}

// retryQuery replaces the query with the original problem plus the previous
// attempt and its evaluation.
func (l *Loop) retryQuery(problem, solution, evaluation string) (string, error) {
	return l.prompts.Render(prompts.SolveRetry, map[string]string{
		"Query":            problem,
		"PreviousSolution": solution,
		"Evaluation":       evaluation,
	})
}

func (l *Loop) emit(event Event) {
	if l.OnEvent != nil {
		l.OnEvent(event)
	}
}
