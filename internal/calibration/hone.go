package calibration

import (
	"fmt"
	"image"
	"math"
	"sort"

	img "spotarray/internal/image"
	"spotarray/internal/sample"
	"spotarray/pkg/geometry"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// madScale converts a median absolute deviation to a normal standard deviation.
const madScale = 1.4826

// honeWindow returns the odd window size and Gaussian blur used while honing.
func honeWindow(m geometry.Mat2) (psf int, sigma float64) {
	psf = 2*int(math.Floor(m.MinPitch())/2) + 1
	sigma = float64(2*(psf/16) + 1)
	return psf, sigma
}

// Hone shifts the array center b by the mean offset between the predicted
// spot positions and the brightest pixel of each smoothed spot window.
// Offsets rejected by opts.Outliers are left out of the mean.
func Hone(frame img.Frame, o Orientation, size Size, opts Options) (Orientation, error) {
	psf, sigma := honeWindow(o.M)
	positions := o.Project(size)

	windows, err := sample.Take(frame.Array(), positions, sample.Square(psf), sample.DefaultOptions().WithClip(true))
	if err != nil {
		return o, fmt.Errorf("hone: %w", err)
	}

	half := float64(psf-1) / 2
	dx := make([]float64, windows.Count)
	dy := make([]float64, windows.Count)
	for i := range dx {
		smoothed, err := smooth(windows.Frame(i), sigma)
		if err != nil {
			return o, fmt.Errorf("hone: %w", err)
		}
		px, py := peakProjections(smoothed)
		dx[i] = float64(px) - half
		dy[i] = float64(py) - half
	}

	keep := inliers(dx, dy, opts.Outliers)
	var sx, sy []float64
	for i, ok := range keep {
		if ok {
			sx = append(sx, dx[i])
			sy = append(sy, dy[i])
		}
	}
	if len(sx) == 0 {
		return o, nil
	}
	shift := geometry.Point2D{X: stat.Mean(sx, nil), Y: stat.Mean(sy, nil)}

	if opts.Debug {
		fmt.Printf("Hone: psf=%d sigma=%.0f kept %d/%d offsets, shift=(%.2f, %.2f)\n",
			psf, sigma, len(sx), len(dx), shift.X, shift.Y)
	}

	o.B = o.B.Add(shift)
	return o, nil
}

// smooth applies a separable Gaussian blur with reflected borders, after
// zeroing NaN samples from clipped windows.
func smooth(f img.Frame, sigma float64) (img.Frame, error) {
	clean := f.Clone()
	for i, v := range clean.Data {
		if math.IsNaN(v) {
			clean.Data[i] = 0
		}
	}

	k := 2*int(4*sigma+0.5) + 1
	src := img.ToMat64(clean)
	defer src.Close()
	rows := gocv.NewMat()
	defer rows.Close()
	cols := gocv.NewMat()
	defer cols.Close()

	gocv.GaussianBlur(src, &rows, image.Point{k, 1}, sigma, 0, gocv.BorderReflect)
	gocv.GaussianBlur(rows, &cols, image.Point{1, k}, 0, sigma, gocv.BorderReflect)
	return img.FromMat(cols)
}

// peakProjections returns the argmax of the column-wise and row-wise maxima.
// Ties resolve to the lowest index.
func peakProjections(f img.Frame) (x, y int) {
	colMax := make([]float64, f.Width)
	rowMax := make([]float64, f.Height)
	for i := range colMax {
		colMax[i] = math.Inf(-1)
	}
	for j := range rowMax {
		rowMax[j] = math.Inf(-1)
	}
	for j := 0; j < f.Height; j++ {
		for i := 0; i < f.Width; i++ {
			v := f.At(i, j)
			colMax[i] = math.Max(colMax[i], v)
			rowMax[j] = math.Max(rowMax[j], v)
		}
	}
	return floats.MaxIdx(colMax), floats.MaxIdx(rowMax)
}

// inliers marks the offsets that survive the outlier policy.
func inliers(dx, dy []float64, policy OutlierPolicy) []bool {
	mag := make([]float64, len(dx))
	for i := range mag {
		mag[i] = math.Hypot(dx[i], dy[i])
	}

	var threshold float64
	switch policy {
	case OutlierMAD:
		sorted := append([]float64(nil), mag...)
		sort.Float64s(sorted)
		median := stat.Quantile(0.5, stat.Empirical, sorted, nil)
		dev := make([]float64, len(mag))
		for i, m := range mag {
			dev[i] = math.Abs(m - median)
		}
		sort.Float64s(dev)
		threshold = median + 3*madScale*stat.Quantile(0.5, stat.Empirical, dev, nil)
	default:
		threshold = stat.Mean(mag, nil)
	}

	keep := make([]bool, len(mag))
	for i, m := range mag {
		keep[i] = m <= threshold
	}
	return keep
}
