package config

import (
	"os"
	"path/filepath"
	"testing"

	"spotarray/internal/blob"
	"spotarray/internal/calibration"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "none.json")
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, c.Path())
	assert.Equal(t, Default().Spots, c.Spots)
	assert.Equal(t, calibration.SquareSize(10), c.Array)
	assert.NoError(t, c.Validate())
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	c := Default()
	c.Array = calibration.Size{Nx: 12, Ny: 8}
	c.Calibration.Outliers = "mad"
	c.Calibration.RefineAffine = true
	c.Filter = "max_amp"
	c.Spots.MinThreshold = 30
	require.NoError(t, c.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c.Array, loaded.Array)
	assert.Equal(t, c.Calibration, loaded.Calibration)
	assert.Equal(t, c.Spots, loaded.Spots)
	assert.Equal(t, c.Peaks, loaded.Peaks)
	assert.Equal(t, c.Fit, loaded.Fit)

	opts, err := loaded.CalibrationOptions()
	require.NoError(t, err)
	assert.Equal(t, calibration.OutlierMAD, opts.Outliers)
	assert.True(t, opts.RefineAffine)
	assert.Equal(t, c.Peaks, opts.PeakParams)

	filter, err := loaded.BlobFilter()
	require.NoError(t, err)
	assert.Equal(t, blob.FilterMaxAmp, filter)
}

func TestLoad_PartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"array": {"nx": 6, "ny": 4}, "fit": {"max_iterations": 500}}`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, calibration.Size{Nx: 6, Ny: 4}, c.Array)
	assert.Equal(t, 500, c.Fit.MaxIterations)
	assert.Equal(t, Default().Fit.Tolerance, c.Fit.Tolerance)
	assert.Equal(t, Default().Calibration, c.Calibration)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"array":`},
		{"bad size", `{"array": {"nx": 0, "ny": 4}}`},
		{"bad policy", `{"calibration": {"outliers": "median"}}`},
		{"bad filter", `{"filter": "largest"}`},
		{"bad thresholds", `{"spots": {"minThreshold": 200, "maxThreshold": 100}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	c := Default()
	err := c.ApplyOverrides([]string{
		"minThreshold=20",
		"filterByArea = true",
		"minArea=12.5",
		"peaks.thresholdStep=5",
	})
	require.NoError(t, err)

	assert.Equal(t, 20.0, c.Spots.MinThreshold)
	assert.True(t, c.Spots.FilterByArea)
	assert.Equal(t, 12.5, c.Spots.MinArea)
	assert.Equal(t, 5.0, c.Peaks.ThresholdStep)
	assert.Equal(t, Default().Spots.ThresholdStep, c.Spots.ThresholdStep)
}

func TestApplyOverrides_Errors(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		wantErr error
	}{
		{"missing equals", []string{"minThreshold"}, ErrBadOverride},
		{"empty key", []string{"=3"}, ErrBadOverride},
		{"unknown key", []string{"threshold=3"}, blob.ErrUnknownParam},
		{"unknown peak key", []string{"peaks.size=3"}, blob.ErrUnknownParam},
		{"bad number", []string{"minArea=big"}, blob.ErrBadParamType},
		{"bad bool", []string{"filterByArea=maybe"}, blob.ErrBadParamType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			before := *c
			err := c.ApplyOverrides(tt.pairs)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before.Spots, c.Spots)
			assert.Equal(t, before.Peaks, c.Peaks)
		})
	}
}

func TestOverridesFlag(t *testing.T) {
	var o Overrides
	require.NoError(t, o.Set("minArea=3"))
	require.NoError(t, o.Set("peaks.minThreshold=60"))
	assert.ErrorIs(t, o.Set("minArea"), ErrBadOverride)
	assert.Equal(t, "minArea=3,peaks.minThreshold=60", o.String())

	c := Default()
	require.NoError(t, c.ApplyOverrides(o))
	assert.Equal(t, 3.0, c.Spots.MinArea)
	assert.Equal(t, 60.0, c.Peaks.MinThreshold)
}
