// Package blob detects bright spots in camera frames with OpenCV's
// SimpleBlobDetector and optionally reduces the result to a single blob.
package blob

import (
	"errors"
	"fmt"
	"image"
	"log"
	"math"

	img "spotarray/internal/image"
	"spotarray/internal/sample"
	"spotarray/pkg/geometry"

	"gocv.io/x/gocv"
)

// ErrNoBlobs is returned when neither the frame nor its blurred copy yields a blob.
var ErrNoBlobs = errors.New("blob: no blobs found")

// Filter selects which of the detected blobs are returned.
type Filter int

const (
	// FilterNone returns every blob.
	FilterNone Filter = iota
	// FilterDistToCenter returns the blob nearest the frame center.
	FilterDistToCenter
	// FilterMaxAmp returns the blob with the largest integrated intensity.
	FilterMaxAmp
)

func (f Filter) String() string {
	switch f {
	case FilterNone:
		return "none"
	case FilterDistToCenter:
		return "dist_to_center"
	case FilterMaxAmp:
		return "max_amp"
	default:
		return "unknown"
	}
}

// ParseFilter maps a filter name ("", "none", "dist_to_center", "max_amp") to a Filter.
func ParseFilter(s string) (Filter, error) {
	switch s {
	case "", "none":
		return FilterNone, nil
	case "dist_to_center":
		return FilterDistToCenter, nil
	case "max_amp":
		return FilterMaxAmp, nil
	default:
		return FilterNone, fmt.Errorf("blob: unknown filter %q", s)
	}
}

// Blob is one detected spot.
type Blob struct {
	Center   geometry.Point2D `json:"center"`   // pixel coordinates, x right, y down
	Size     float64          `json:"size"`     // diameter in pixels
	Response float64          `json:"response"` // integrated 8-bit intensity for FilterMaxAmp
}

// Centers returns the blob positions as vectors.
func Centers(blobs []Blob) geometry.Vectors {
	v := geometry.NewVectors(len(blobs))
	for i, b := range blobs {
		v.X[i] = b.Center.X
		v.Y[i] = b.Center.Y
	}
	return v
}

// Detect finds blobs in the frame after rescaling it to 8 bits. If nothing is
// found the detector is retried once on a 3x3 Gaussian-blurred copy.
func Detect(frame img.Frame, params Params, filter Filter) ([]Blob, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	mat, err := img.ToMat8(frame)
	if err != nil {
		return nil, fmt.Errorf("blob detection: %w", err)
	}
	defer mat.Close()

	return DetectMat(mat, params, filter)
}

// DetectMat runs the detector on a single-channel 8-bit Mat.
func DetectMat(mat gocv.Mat, params Params, filter Filter) ([]Blob, error) {
	if mat.Empty() {
		return nil, fmt.Errorf("blob detection: empty image")
	}

	detector := gocv.NewSimpleBlobDetectorWithParams(params.toCV())
	defer detector.Close()

	keypoints := detector.Detect(mat)
	if len(keypoints) == 0 {
		blurred := gocv.NewMat()
		defer blurred.Close()
		gocv.GaussianBlur(mat, &blurred, image.Point{3, 3}, 0, 0, gocv.BorderDefault)

		keypoints = detector.Detect(blurred)
		if len(keypoints) == 0 {
			return nil, ErrNoBlobs
		}
		log.Printf("Blob: found %d blobs only after blurring", len(keypoints))
	}

	blobs := make([]Blob, len(keypoints))
	for i, kp := range keypoints {
		blobs[i] = Blob{
			Center:   geometry.Point2D{X: kp.X, Y: kp.Y},
			Size:     kp.Size,
			Response: kp.Response,
		}
	}

	switch filter {
	case FilterDistToCenter:
		center := geometry.Point2D{X: float64(mat.Cols()) / 2, Y: float64(mat.Rows()) / 2}
		return []Blob{nearest(blobs, center)}, nil
	case FilterMaxAmp:
		eight, err := img.FromMat(mat)
		if err != nil {
			return nil, fmt.Errorf("blob amplitude: %w", err)
		}
		best, err := brightest(eight, blobs)
		if err != nil {
			return nil, err
		}
		return []Blob{best}, nil
	}
	return blobs, nil
}

func nearest(blobs []Blob, center geometry.Point2D) Blob {
	best := 0
	bestDist := math.Inf(1)
	for i, b := range blobs {
		if d := b.Center.Distance(center); d < bestDist {
			best, bestDist = i, d
		}
	}
	return blobs[best]
}

// brightest scores each blob by the 8-bit intensity summed over the square
// [pt-bin, pt+bin) where bin is the mean blob diameter. Pixels outside the
// frame are left out of the sum.
func brightest(eight img.Frame, blobs []Blob) (Blob, error) {
	var sizes float64
	for _, b := range blobs {
		sizes += b.Size
	}
	bin := int(sizes / float64(len(blobs)))
	if bin < 1 {
		bin = 1
	}

	// Windows address from the truncated blob position.
	pts := geometry.NewVectors(len(blobs))
	for i, b := range blobs {
		pts.X[i] = math.Trunc(b.Center.X)
		pts.Y[i] = math.Trunc(b.Center.Y)
	}
	sums, err := sample.TakeIntegrated(eight.Array(), pts, sample.Square(2*bin), sample.DefaultOptions().WithClip(true).WithNaNSum(true))
	if err != nil {
		return Blob{}, fmt.Errorf("blob amplitude: %w", err)
	}

	best := 0
	for i, sum := range sums {
		blobs[i].Response = sum
		if sum > blobs[best].Response {
			best = i
		}
	}
	return blobs[best], nil
}

func (p Params) toCV() gocv.SimpleBlobDetectorParams {
	cv := gocv.NewSimpleBlobDetectorParams()
	cv.SetBlobColor(p.BlobColor)
	cv.SetFilterByColor(p.FilterByColor)
	cv.SetMinThreshold(p.MinThreshold)
	cv.SetMaxThreshold(p.MaxThreshold)
	cv.SetThresholdStep(p.ThresholdStep)
	cv.SetMinRepeatability(p.MinRepeatability)
	cv.SetMinDistBetweenBlobs(p.MinDistBetweenBlobs)

	cv.SetFilterByArea(p.FilterByArea)
	cv.SetMinArea(p.MinArea)
	cv.SetMaxArea(p.MaxArea)

	cv.SetFilterByCircularity(p.FilterByCircularity)
	cv.SetMinCircularity(p.MinCircularity)
	cv.SetMaxCircularity(p.MaxCircularity)

	cv.SetFilterByConvexity(p.FilterByConvexity)
	cv.SetMinConvexity(p.MinConvexity)
	cv.SetMaxConvexity(p.MaxConvexity)

	cv.SetFilterByInertia(p.FilterByInertia)
	cv.SetMinInertiaRatio(p.MinInertiaRatio)
	cv.SetMaxInertiaRatio(p.MaxInertiaRatio)
	return cv
}
