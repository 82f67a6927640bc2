package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolArguments(t *testing.T) {
	args, err := ParseToolArguments(`{"query": "pythagorean theorem", "max_results": 3}`)
	require.NoError(t, err)
	assert.Equal(t, "pythagorean theorem", StringArg(args, "query"))
	assert.Equal(t, 3, IntArg(args, "max_results", 5))
}

func TestParseToolArgumentsRepairsTrailingComma(t *testing.T) {
	args, err := ParseToolArguments(`{"query": "primes",}`)
	require.NoError(t, err)
	assert.Equal(t, "primes", StringArg(args, "query"))
}

func TestParseToolArgumentsEmpty(t *testing.T) {
	args, err := ParseToolArguments("  ")
	require.NoError(t, err)
	assert.Empty(t, args)
	assert.Equal(t, 7, IntArg(args, "missing", 7))
}
