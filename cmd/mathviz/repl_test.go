package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/chzyer/readline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mathviz/internal/observability"
	"mathviz/internal/output"
	"mathviz/internal/pipeline"
)

type scriptedReader struct {
	lines []string
	errs  []error
}

func (r *scriptedReader) Readline() (string, error) {
	if len(r.lines) == 0 {
		return "", io.EOF
	}
	line, err := r.lines[0], r.errs[0]
	r.lines, r.errs = r.lines[1:], r.errs[1:]
	return line, err
}

func lines(input ...string) *scriptedReader {
	return &scriptedReader{lines: input, errs: make([]error, len(input))}
}

type recordingRunner struct {
	queries []string
	runIDs  []string
	fail    map[string]error
}

func (r *recordingRunner) Run(ctx context.Context, query string) (*pipeline.Result, error) {
	r.queries = append(r.queries, query)
	r.runIDs = append(r.runIDs, observability.RunIDFromContext(ctx))
	if err := r.fail[query]; err != nil {
		return nil, err
	}
	return &pipeline.Result{}, nil
}

func TestReplLoopRunsQueriesUntilExit(t *testing.T) {
	runner := &recordingRunner{}
	var out bytes.Buffer

	err := replLoop(context.Background(), lines("  2+2  ", "", "integrate x", "QUIT", "never"), runner, output.New(&out))
	require.NoError(t, err)

	assert.Equal(t, []string{"2+2", "integrate x"}, runner.queries)
	require.Len(t, runner.runIDs, 2)
	assert.NotEmpty(t, runner.runIDs[0])
	assert.NotEqual(t, runner.runIDs[0], runner.runIDs[1])
	assert.Contains(t, out.String(), "Goodbye!")
}

func TestReplLoopContinuesAfterFailure(t *testing.T) {
	runner := &recordingRunner{fail: map[string]error{
		"bad":  errors.New("solver generation: empty completion"),
		"slow": errors.New("solver generation: context deadline exceeded"),
	}}
	var out bytes.Buffer

	err := replLoop(context.Background(), lines("bad", "slow", "good"), runner, output.New(&out))
	require.NoError(t, err)

	assert.Equal(t, []string{"bad", "slow", "good"}, runner.queries)
	assert.Contains(t, out.String(), "query failed: solver generation: empty completion")
	assert.Contains(t, out.String(), "query failed: Request timed out")
}

func TestReplLoopInterrupt(t *testing.T) {
	runner := &recordingRunner{}
	reader := &scriptedReader{
		lines: []string{"half typed", "", "ignored"},
		errs:  []error{readline.ErrInterrupt, readline.ErrInterrupt, nil},
	}

	require.NoError(t, replLoop(context.Background(), reader, runner, output.New(io.Discard)))
	assert.Empty(t, runner.queries)
	assert.Len(t, reader.lines, 1)
}

func TestReplLoopStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := &recordingRunner{}

	err := replLoop(ctx, lines("2+2"), runner, output.New(io.Discard))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, runner.queries)
}

func TestIsExit(t *testing.T) {
	for _, in := range []string{"exit", "Quit", "q", "EXIT"} {
		assert.True(t, isExit(in), in)
	}
	for _, in := range []string{"", "quiet", "exit now"} {
		assert.False(t, isExit(in), in)
	}
}
