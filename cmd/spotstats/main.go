// Command spotstats detects spots in an image and reports per-spot moments,
// ellipticity and optionally a 2D Gaussian fit.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"

	"spotarray/internal/blob"
	"spotarray/internal/config"
	"spotarray/internal/fit"
	img "spotarray/internal/image"
	"spotarray/internal/moment"
	"spotarray/internal/sample"
	"spotarray/internal/version"
)

// SpotStats is one output row.
type SpotStats struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Size        float64 `json:"size"`
	Power       float64 `json:"power"`
	CentroidX   float64 `json:"centroid_x"`
	CentroidY   float64 `json:"centroid_y"`
	VarX        float64 `json:"var_x"`
	VarY        float64 `json:"var_y"`
	VarXY       float64 `json:"var_xy"`
	Angle       float64 `json:"angle"`

	// NaN results are left out of the JSON output.
	Ellipticity *float64 `json:"ellipticity,omitempty"`
	FitR2       *float64 `json:"fit_r2,omitempty"`
	FitWx       *float64 `json:"fit_wx,omitempty"`
	FitWy       *float64 `json:"fit_wy,omitempty"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	imagePath := flag.String("image", "", "Path to camera image (TIFF, PNG, or JPEG)")
	configPath := flag.String("config", "", "Settings file (default ~/.config/spotarray/config.json)")
	filterName := flag.String("filter", "", "Keep one spot: none, dist_to_center or max_amp (default from config)")
	window := flag.Int("window", 15, "Integration window size in pixels")
	doFit := flag.Bool("fit", false, "Fit a 2D Gaussian to every spot")
	asJSON := flag.Bool("json", false, "Print results as JSON")
	debug := flag.Bool("debug", false, "Print fit diagnostics")
	showVersion := flag.Bool("version", false, "Print version and exit")
	var overrides config.Overrides
	flag.Var(&overrides, "set", "Blob detector override key=value (repeatable)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("spotstats"))
		return
	}
	if *imagePath == "" || *window < 1 {
		fmt.Println("Usage: spotstats -image <path> [-window 15] [-filter max_amp] [-fit] [-json] [-set key=value]")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ApplyOverrides(overrides); err != nil {
		log.Fatalf("Bad override: %v", err)
	}
	if *filterName != "" {
		cfg.Filter = *filterName
	}
	filter, err := cfg.BlobFilter()
	if err != nil {
		log.Fatalf("Invalid filter: %v", err)
	}

	frame, err := img.Load(*imagePath)
	if err != nil {
		log.Fatalf("Failed to load image: %v", err)
	}

	blobs, err := blob.Detect(frame, cfg.Spots, filter)
	if err != nil {
		log.Fatalf("Spot detection failed: %v", err)
	}
	if !*asJSON {
		fmt.Printf("Loaded image: %dx%d pixels, %d spots (filter %s)\n", frame.Width, frame.Height, len(blobs), filter)
	}

	fitOpts := cfg.FitOptions()
	fitOpts.Debug = *debug
	stats, err := measure(frame, blobs, *window, *doFit, fitOpts)
	if err != nil {
		log.Fatalf("Measurement failed: %v", err)
	}

	if *asJSON {
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			log.Fatalf("Failed to encode results: %v", err)
		}
		fmt.Println(string(data))
		return
	}

	fmt.Printf("%4s %9s %9s %10s %8s %8s %8s %8s %6s %7s",
		"#", "X", "Y", "Power", "dX", "dY", "VarX", "VarY", "Ell", "Angle")
	if *doFit {
		fmt.Printf(" %7s", "R2")
	}
	fmt.Println()
	for i, s := range stats {
		fmt.Printf("%4d %9.2f %9.2f %10.1f %8.3f %8.3f %8.3f %8.3f %6.3f %7.1f",
			i, s.X, s.Y, s.Power, s.CentroidX, s.CentroidY, s.VarX, s.VarY, orNaN(s.Ellipticity), s.Angle*180/math.Pi)
		if *doFit {
			fmt.Printf(" %7.4f", orNaN(s.FitR2))
		}
		fmt.Println()
	}
}

// measure samples a window around every blob and computes its statistics.
func measure(frame img.Frame, blobs []blob.Blob, window int, doFit bool, opts fit.Options) ([]SpotStats, error) {
	centers := blob.Centers(blobs)
	so := sample.DefaultOptions().WithClip(true).WithNaNSum(true)

	windows, err := sample.Take(frame.Array(), centers, sample.Square(window), so)
	if err != nil {
		return nil, err
	}
	powers, err := sample.TakeIntegrated(frame.Array(), centers, sample.Square(window), so)
	if err != nil {
		return nil, err
	}

	pos := moment.Positions(windows, true, true)
	vars, err := moment.ComputeVariances(windows, nil, true, true)
	if err != nil {
		return nil, err
	}
	ell := moment.Ellipticity(vars)
	angle := moment.EllipticityAngle(vars)

	stats := make([]SpotStats, len(blobs))
	for i, b := range blobs {
		stats[i] = SpotStats{
			X:           b.Center.X,
			Y:           b.Center.Y,
			Size:        b.Size,
			Power:       powers[i],
			CentroidX:   pos.X[i],
			CentroidY:   pos.Y[i],
			VarX:        vars.M20[i],
			VarY:        vars.M02[i],
			VarXY:       vars.M11[i],
			Angle:       angle[i],
			Ellipticity: finite(ell[i]),
		}
	}

	if doFit {
		result, err := fit.FitWithOptions(windows, fit.Gaussian2D{}, nil, opts)
		if err != nil {
			return nil, err
		}
		for i := range stats {
			stats[i].FitR2 = finite(result.At(0, i))
			stats[i].FitWx = finite(result.At(5, i))
			stats[i].FitWy = finite(result.At(6, i))
		}
	}
	return stats, nil
}
