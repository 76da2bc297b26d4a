// Package calibration finds the affine map from the lattice coordinates of a
// rectangular spot array to camera pixels.
//
// The pipeline estimates the lattice vectors from the Fourier transform of
// the frame, locates the array by template matching, fixes rotation and
// reflection from two spots missing at one corner, then hones the center.
package calibration

import (
	"fmt"
	"log"

	img "spotarray/internal/image"
	"spotarray/pkg/geometry"
)

// DetectArray locates an array of size spots in frame and returns its
// orientation.
func DetectArray(frame img.Frame, size Size, opts Options) (*Orientation, error) {
	if err := size.validate(); err != nil {
		return nil, err
	}
	if frame.Empty() {
		return nil, fmt.Errorf("empty input image")
	}

	// Candidate lattices. Without a prior the Fourier estimate cannot tell
	// which vector spans the longer side of a rectangular array.
	var candidates []geometry.Mat2
	if opts.Prior != nil {
		if err := opts.Prior.Validate(); err != nil {
			return nil, fmt.Errorf("prior orientation: %w", err)
		}
		candidates = []geometry.Mat2{opts.Prior.M}
	} else {
		m, err := EstimateLattice(frame, opts)
		if err != nil {
			return nil, fmt.Errorf("lattice estimation: %w", err)
		}
		candidates = []geometry.Mat2{m}
		if !size.Square() {
			candidates = append(candidates, m.SwapColumns())
		}
	}

	image8, err := img.ToMat8(frame)
	if err != nil {
		return nil, err
	}
	defer image8.Close()

	checkParity := opts.Prior == nil && opts.OrientationCheck
	hypotheses := make([]Hypothesis[Orientation], 0, len(candidates))
	for _, m := range candidates {
		kernel, err := BuildKernel(m, size)
		if err != nil {
			return nil, fmt.Errorf("array kernel: %w", err)
		}
		b, score := MatchKernel(image8, kernel)
		kernel.Close()

		o := Orientation{M: m, B: b, Score: score, ParitySuccess: true}
		if checkParity {
			fixed, parity := ResolveParity(frame, m, b, size, opts)
			o.M = fixed
			o.ParitySuccess = parity.Success
			o.Rotation = parity.Rotation
			o.Reflected = parity.Reflected
			if !parity.Success {
				log.Printf("Calibration: parity check failed for M=%v: %s", m, parity.Reason)
			}
		}

		if opts.Debug {
			fmt.Printf("Calibration: candidate M=%v b=(%.1f, %.1f) score=%.3f parity=%t\n",
				o.M, o.B.X, o.B.Y, o.Score, o.ParitySuccess)
		}
		hypotheses = append(hypotheses, Hypothesis[Orientation]{
			Value:         o,
			ParitySuccess: o.ParitySuccess,
			Score:         o.Score,
		})
	}

	best, err := RankHypotheses(hypotheses)
	if err != nil {
		return nil, err
	}
	result := hypotheses[best].Value

	for pass := 0; pass < opts.HonePasses; pass++ {
		result, err = Hone(frame, result, size, opts)
		if err != nil {
			return nil, fmt.Errorf("hone pass %d: %w", pass+1, err)
		}
	}

	if opts.RefineAffine {
		refined, err := Refine(frame, result, size, opts)
		if err != nil {
			log.Printf("Calibration: affine refinement skipped: %v", err)
		} else {
			result = refined
		}
	}

	if err := result.Validate(); err != nil {
		return nil, err
	}
	return &result, nil
}
