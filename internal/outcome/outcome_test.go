package outcome

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResultShapes(t *testing.T) {
	ok := Ok([]string{"a.wav"})
	v, isOk := ok.Value()
	assert.True(t, isOk)
	assert.Equal(t, []string{"a.wav"}, v)
	assert.Equal(t, KindOk, ok.Kind())

	empty := Emptyf[[]string]("no segments in %s", "segments.json")
	assert.True(t, empty.IsEmpty())
	assert.Equal(t, "no segments in segments.json", empty.Reason())
	assert.Equal(t, []string{"x"}, empty.ValueOr([]string{"x"}))
	_, err := empty.Unwrap()
	assert.NoError(t, err)

	fatal := Fatal[int](errors.New("disk full"))
	assert.True(t, fatal.IsFatal())
	_, err = fatal.Unwrap()
	assert.EqualError(t, err, "disk full")
	assert.Error(t, Fatal[int](nil).Err())
}
