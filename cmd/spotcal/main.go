// Command spotcal calibrates a spot array: it finds the lattice vectors and
// center of the array in a camera image and prints the orientation.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"spotarray/internal/calibration"
	"spotarray/internal/config"
	img "spotarray/internal/image"
	"spotarray/internal/version"
	"spotarray/pkg/geometry"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	imagePath := flag.String("image", "", "Path to camera image (TIFF, PNG, or JPEG)")
	configPath := flag.String("config", "", "Settings file (default ~/.config/spotarray/config.json)")
	nx := flag.Int("nx", 0, "Spots along x (default from config)")
	ny := flag.Int("ny", 0, "Spots along y (default: nx, or from config)")
	priorPath := flag.String("prior", "", "Orientation JSON printed by an earlier -json run; reuses its lattice vectors")
	asJSON := flag.Bool("json", false, "Print the orientation as JSON")
	refine := flag.Bool("refine", false, "Refit M and b to measured spot centroids")
	noCheck := flag.Bool("no-parity", false, "Skip the rotation/reflection check")
	debug := flag.Bool("debug", false, "Print intermediate results")
	locate := flag.String("locate", "", "Pixel \"x,y\" to map back to lattice coordinates")
	saveConfig := flag.Bool("save-config", false, "Write the effective settings back to the config file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	var overrides config.Overrides
	flag.Var(&overrides, "set", "Blob detector override key=value (repeatable; prefix peaks. for Fourier peaks)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("spotcal"))
		return
	}
	if *imagePath == "" {
		fmt.Println("Usage: spotcal -image <path> [-nx 10 -ny 10] [-prior orientation.json] [-json] [-set key=value]")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ApplyOverrides(overrides); err != nil {
		log.Fatalf("Bad override: %v", err)
	}
	if *nx > 0 {
		cfg.Array.Nx = *nx
		cfg.Array.Ny = *nx
	}
	if *ny > 0 {
		cfg.Array.Ny = *ny
	}
	if *refine {
		cfg.Calibration.RefineAffine = true
	}
	if *noCheck {
		cfg.Calibration.OrientationCheck = false
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid settings: %v", err)
	}

	opts, err := cfg.CalibrationOptions()
	if err != nil {
		log.Fatalf("Invalid settings: %v", err)
	}
	opts.Debug = *debug

	if *priorPath != "" {
		prior, err := loadOrientation(*priorPath)
		if err != nil {
			log.Fatalf("Failed to load prior: %v", err)
		}
		opts = opts.WithPrior(prior)
	}

	frame, err := img.Load(*imagePath)
	if err != nil {
		log.Fatalf("Failed to load image: %v", err)
	}
	if !*asJSON {
		fmt.Printf("Loaded image: %dx%d pixels\n", frame.Width, frame.Height)
		fmt.Printf("Array: %s spots\n", cfg.Array)
	}

	o, err := calibration.DetectArray(frame, cfg.Array, opts)
	if err != nil {
		log.Fatalf("Calibration failed: %v", err)
	}

	if *asJSON {
		data, err := json.MarshalIndent(o, "", "  ")
		if err != nil {
			log.Fatalf("Failed to encode orientation: %v", err)
		}
		fmt.Println(string(data))
	} else {
		printOrientation(o, cfg.Array)
	}

	if *locate != "" {
		if err := printLocation(o, cfg.Array, *locate); err != nil {
			log.Fatalf("Failed to locate pixel: %v", err)
		}
	}

	if *saveConfig {
		if err := cfg.Save(""); err != nil {
			log.Fatalf("Failed to save config: %v", err)
		}
		log.Printf("Settings saved to %s", cfg.Path())
	}
}

func printOrientation(o *calibration.Orientation, size calibration.Size) {
	fmt.Printf("\nLattice vectors:\n")
	fmt.Printf("  x: (%8.3f, %8.3f)\n", o.M.A, o.M.C)
	fmt.Printf("  y: (%8.3f, %8.3f)\n", o.M.B, o.M.D)
	fmt.Printf("Center: (%.2f, %.2f)\n", o.B.X, o.B.Y)
	fmt.Printf("Template score: %.3f\n", o.Score)
	if o.ParitySuccess {
		fmt.Printf("Parity: ok (rotation %d, reflected %v)\n", o.Rotation, o.Reflected)
	} else {
		fmt.Printf("Parity: FAILED, orientation may be rotated or mirrored\n")
	}
	if o.Residual > 0 {
		fmt.Printf("Refit residual: %.3f px\n", o.Residual)
	}

	// The (+x, +y) corner is the last site in row-major order.
	p := o.Project(size).At(size.Count() - 1)
	fmt.Printf("(+x, +y) corner spot at (%.1f, %.1f)\n", p.X, p.Y)
}

func printLocation(o *calibration.Orientation, size calibration.Size, pixel string) error {
	var p geometry.Point2D
	if _, err := fmt.Sscanf(pixel, "%g,%g", &p.X, &p.Y); err != nil {
		return fmt.Errorf("pixel %q: want x,y: %w", pixel, err)
	}
	c, index, err := o.Locate(p, size)
	if err != nil {
		return err
	}
	if index < 0 {
		fmt.Printf("Pixel (%.1f, %.1f) is at lattice (%.2f, %.2f), outside the array\n", p.X, p.Y, c.X, c.Y)
		return nil
	}
	fmt.Printf("Pixel (%.1f, %.1f) is at lattice (%.2f, %.2f), nearest spot %d (column %d, row %d)\n",
		p.X, p.Y, c.X, c.Y, index, index%size.Nx, index/size.Nx)
	return nil
}

func loadOrientation(path string) (calibration.Orientation, error) {
	var o calibration.Orientation
	data, err := os.ReadFile(path)
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(data, &o); err != nil {
		return o, err
	}
	return o, o.Validate()
}
