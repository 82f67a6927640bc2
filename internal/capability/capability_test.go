package capability

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadyAndUnavailable(t *testing.T) {
	ready := Ready("ffmpeg")
	v, ok := ready.Get()
	assert.True(t, ok)
	assert.Equal(t, "ffmpeg", v)
	assert.Equal(t, "available", ready.Status())

	missing := Unavailablef[string]("%s not on PATH", "manim")
	_, ok = missing.Get()
	assert.False(t, ok)
	assert.Equal(t, "manim not on PATH", missing.Reason())
	assert.Equal(t, "unavailable: manim not on PATH", missing.Status())
}

func TestFromResult(t *testing.T) {
	assert.True(t, FromResult(1, nil).IsReady())
	c := FromResult(0, errors.New("no voice reference"))
	assert.False(t, c.IsReady())
	assert.Equal(t, "no voice reference", c.Reason())
}

func TestMap(t *testing.T) {
	length := func(s string) int { return len(s) }

	n, ok := Map(Ready("ffmpeg"), length).Get()
	assert.True(t, ok)
	assert.Equal(t, 6, n)

	missing := Map(Unavailable[string]("not on PATH"), length)
	assert.False(t, missing.IsReady())
	assert.Equal(t, "not on PATH", missing.Reason())
}
