package blob

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
)

var (
	// ErrUnknownParam is returned for an override key that names no detector parameter.
	ErrUnknownParam = errors.New("blob: unknown detector parameter")

	// ErrBadParamType is returned when an override value has the wrong type.
	ErrBadParamType = errors.New("blob: bad parameter value")

	// ErrInvalidParams is returned by Validate.
	ErrInvalidParams = errors.New("blob: invalid detector parameters")
)

// Params configures the OpenCV SimpleBlobDetector. Field names follow the
// OpenCV parameter names so overrides read the same as in OpenCV docs.
type Params struct {
	BlobColor           int     `json:"blobColor"`
	FilterByColor       bool    `json:"filterByColor"`
	MinThreshold        float64 `json:"minThreshold"`
	MaxThreshold        float64 `json:"maxThreshold"`
	ThresholdStep       float64 `json:"thresholdStep"`
	MinRepeatability    int     `json:"minRepeatability"`
	MinDistBetweenBlobs float64 `json:"minDistBetweenBlobs"`

	FilterByArea bool    `json:"filterByArea"`
	MinArea      float64 `json:"minArea"`
	MaxArea      float64 `json:"maxArea"`

	FilterByCircularity bool    `json:"filterByCircularity"`
	MinCircularity      float64 `json:"minCircularity"`
	MaxCircularity      float64 `json:"maxCircularity"`

	FilterByConvexity bool    `json:"filterByConvexity"`
	MinConvexity      float64 `json:"minConvexity"`
	MaxConvexity      float64 `json:"maxConvexity"`

	FilterByInertia bool    `json:"filterByInertia"`
	MinInertiaRatio float64 `json:"minInertiaRatio"`
	MaxInertiaRatio float64 `json:"maxInertiaRatio"`
}

// DefaultParams returns parameters tuned for bright spots on a dark
// background. Shape filters are off; the remaining values are OpenCV's own
// defaults so that enabling a filter behaves as it would in OpenCV.
func DefaultParams() Params {
	return Params{
		// Bright blobs, thresholded from dim to saturated
		BlobColor:     255,
		FilterByColor: true,
		MinThreshold:  10,
		MaxThreshold:  255,
		ThresholdStep: 10,

		MinRepeatability:    2,
		MinDistBetweenBlobs: 10,

		MinArea: 25,
		MaxArea: 5000,

		MinCircularity: 0.8,
		MaxCircularity: math.MaxFloat32,

		MinConvexity: 0.95,
		MaxConvexity: math.MaxFloat32,

		MinInertiaRatio: 0.1,
		MaxInertiaRatio: math.MaxFloat32,
	}
}

// WithThresholds returns a copy of params with a custom threshold sweep.
func (p Params) WithThresholds(lo, hi, step float64) Params {
	p.MinThreshold = lo
	p.MaxThreshold = hi
	p.ThresholdStep = step
	return p
}

// WithArea returns a copy of params that keeps only blobs with an area in
// [minArea, maxArea] pixels.
func (p Params) WithArea(minArea, maxArea float64) Params {
	p.FilterByArea = true
	p.MinArea = minArea
	p.MaxArea = maxArea
	return p
}

// Validate checks that the parameters describe a usable threshold sweep and
// consistent filter ranges.
func (p Params) Validate() error {
	if p.BlobColor < 0 || p.BlobColor > 255 {
		return fmt.Errorf("%w: blobColor %d outside [0, 255]", ErrInvalidParams, p.BlobColor)
	}
	if p.ThresholdStep <= 0 {
		return fmt.Errorf("%w: thresholdStep %g must be positive", ErrInvalidParams, p.ThresholdStep)
	}
	if p.MinThreshold >= p.MaxThreshold {
		return fmt.Errorf("%w: minThreshold %g >= maxThreshold %g", ErrInvalidParams, p.MinThreshold, p.MaxThreshold)
	}
	if p.MinRepeatability < 1 {
		return fmt.Errorf("%w: minRepeatability %d must be at least 1", ErrInvalidParams, p.MinRepeatability)
	}
	if p.MinDistBetweenBlobs < 0 {
		return fmt.Errorf("%w: minDistBetweenBlobs %g is negative", ErrInvalidParams, p.MinDistBetweenBlobs)
	}

	ranges := []struct {
		name     string
		enabled  bool
		min, max float64
	}{
		{"area", p.FilterByArea, p.MinArea, p.MaxArea},
		{"circularity", p.FilterByCircularity, p.MinCircularity, p.MaxCircularity},
		{"convexity", p.FilterByConvexity, p.MinConvexity, p.MaxConvexity},
		{"inertia", p.FilterByInertia, p.MinInertiaRatio, p.MaxInertiaRatio},
	}
	for _, r := range ranges {
		if r.enabled && r.min > r.max {
			return fmt.Errorf("%w: %s range [%g, %g] is empty", ErrInvalidParams, r.name, r.min, r.max)
		}
	}
	return nil
}

// setter applies one override value to a Params.
type setter func(p *Params, v any) error

var setters = map[string]setter{
	"blobColor":           intField(func(p *Params) *int { return &p.BlobColor }),
	"filterByColor":       boolField(func(p *Params) *bool { return &p.FilterByColor }),
	"minThreshold":        floatField(func(p *Params) *float64 { return &p.MinThreshold }),
	"maxThreshold":        floatField(func(p *Params) *float64 { return &p.MaxThreshold }),
	"thresholdStep":       floatField(func(p *Params) *float64 { return &p.ThresholdStep }),
	"minRepeatability":    intField(func(p *Params) *int { return &p.MinRepeatability }),
	"minDistBetweenBlobs": floatField(func(p *Params) *float64 { return &p.MinDistBetweenBlobs }),
	"filterByArea":        boolField(func(p *Params) *bool { return &p.FilterByArea }),
	"minArea":             floatField(func(p *Params) *float64 { return &p.MinArea }),
	"maxArea":             floatField(func(p *Params) *float64 { return &p.MaxArea }),
	"filterByCircularity": boolField(func(p *Params) *bool { return &p.FilterByCircularity }),
	"minCircularity":      floatField(func(p *Params) *float64 { return &p.MinCircularity }),
	"maxCircularity":      floatField(func(p *Params) *float64 { return &p.MaxCircularity }),
	"filterByConvexity":   boolField(func(p *Params) *bool { return &p.FilterByConvexity }),
	"minConvexity":        floatField(func(p *Params) *float64 { return &p.MinConvexity }),
	"maxConvexity":        floatField(func(p *Params) *float64 { return &p.MaxConvexity }),
	"filterByInertia":     boolField(func(p *Params) *bool { return &p.FilterByInertia }),
	"minInertiaRatio":     floatField(func(p *Params) *float64 { return &p.MinInertiaRatio }),
	"maxInertiaRatio":     floatField(func(p *Params) *float64 { return &p.MaxInertiaRatio }),
}

// ParamNames returns the recognized override keys, sorted.
func ParamNames() []string {
	names := make([]string, 0, len(setters))
	for name := range setters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParamsFromOverrides applies overrides on top of DefaultParams.
func ParamsFromOverrides(overrides map[string]any) (Params, error) {
	return DefaultParams().WithOverrides(overrides)
}

// WithOverrides returns a copy of params with each named field replaced.
// Values may be Go numbers and bools or their string forms (as parsed from
// key=value command-line pairs). Unknown keys fail with ErrUnknownParam.
func (p Params) WithOverrides(overrides map[string]any) (Params, error) {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		set, ok := setters[k]
		if !ok {
			return p, fmt.Errorf("%w: %q", ErrUnknownParam, k)
		}
		if err := set(&p, overrides[k]); err != nil {
			return p, fmt.Errorf("%s: %w", k, err)
		}
	}
	return p, nil
}

func floatField(field func(*Params) *float64) setter {
	return func(p *Params, v any) error {
		f, err := toFloat(v)
		if err != nil {
			return err
		}
		*field(p) = f
		return nil
	}
}

func intField(field func(*Params) *int) setter {
	return func(p *Params, v any) error {
		f, err := toFloat(v)
		if err != nil {
			return err
		}
		if f != math.Trunc(f) {
			return fmt.Errorf("%w: %v is not an integer", ErrBadParamType, v)
		}
		*field(p) = int(f)
		return nil
	}
}

func boolField(field func(*Params) *bool) setter {
	return func(p *Params, v any) error {
		switch b := v.(type) {
		case bool:
			*field(p) = b
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return fmt.Errorf("%w: %q is not a bool", ErrBadParamType, b)
			}
			*field(p) = parsed
		default:
			return fmt.Errorf("%w: %T is not a bool", ErrBadParamType, v)
		}
		return nil
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrBadParamType, n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %T is not a number", ErrBadParamType, v)
	}
}
