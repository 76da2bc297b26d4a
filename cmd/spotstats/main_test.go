package main

import (
	"math"
	"testing"

	"spotarray/internal/blob"
	"spotarray/internal/fit"
	"spotarray/internal/synth"
	"spotarray/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeasure(t *testing.T) {
	frame := synth.Render(64, 64, 0, synth.RoundSpot(geometry.Point2D{X: 32, Y: 30}, 2))
	blobs, err := blob.Detect(frame, blob.DefaultParams(), blob.FilterNone)
	require.NoError(t, err)
	require.Len(t, blobs, 1)

	stats, err := measure(frame, blobs, 21, true, fit.DefaultOptions())
	require.NoError(t, err)
	require.Len(t, stats, 1)
	s := stats[0]

	assert.InDelta(t, 2*math.Pi*4, s.Power, 0.2)
	assert.InDelta(t, 4, s.VarX, 0.1)
	assert.InDelta(t, 4, s.VarY, 0.1)
	require.NotNil(t, s.Ellipticity)
	assert.Less(t, *s.Ellipticity, 0.05)

	require.NotNil(t, s.FitR2)
	assert.Greater(t, *s.FitR2, 0.99)
	require.NotNil(t, s.FitWx)
	assert.InDelta(t, 2, math.Abs(*s.FitWx), 0.1)
	assert.InDelta(t, 2, math.Abs(*s.FitWy), 0.1)
}

func TestFinite(t *testing.T) {
	assert.Nil(t, finite(math.NaN()))
	assert.Nil(t, finite(math.Inf(-1)))
	require.NotNil(t, finite(1.5))
	assert.Equal(t, 1.5, *finite(1.5))
	assert.True(t, math.IsNaN(orNaN(nil)))
}
