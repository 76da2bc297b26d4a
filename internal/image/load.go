package image

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/tiff"
)

// Load reads a camera frame from disk. Colour images are reduced to luminance;
// 16-bit grayscale keeps its full precision.
func Load(path string) (Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to decode image: %w", err)
	}

	return FromGoImage(img), nil
}

// FromGoImage converts any image.Image to a frame of luminance values in the
// range [0, 65535].
func FromGoImage(img image.Image) Frame {
	bounds := img.Bounds()
	f := NewFrame(bounds.Dx(), bounds.Dy())

	switch src := img.(type) {
	case *image.Gray16:
		for y := 0; y < f.Height; y++ {
			for x := 0; x < f.Width; x++ {
				f.Set(x, y, float64(src.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y))
			}
		}
	case *image.Gray:
		for y := 0; y < f.Height; y++ {
			for x := 0; x < f.Width; x++ {
				f.Set(x, y, float64(src.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)*257)
			}
		}
	default:
		for y := 0; y < f.Height; y++ {
			for x := 0; x < f.Width; x++ {
				g := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
				f.Set(x, y, float64(g.Y))
			}
		}
	}
	return f
}

// ToGray16 rescales the frame to span the full 16-bit range.
func ToGray16(f Frame) *image.Gray16 {
	out := image.NewGray16(image.Rect(0, 0, f.Width, f.Height))
	lo, hi := f.Range()
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			v := f.At(x, y)
			if math.IsNaN(v) || !(hi > lo) {
				continue
			}
			out.SetGray16(x, y, color.Gray16{Y: uint16((v - lo) / (hi - lo) * 65535)})
		}
	}
	return out
}

// Save writes the frame as a 16-bit grayscale TIFF or PNG, chosen by extension.
func Save(path string, f Frame) error {
	ext := strings.ToLower(filepath.Ext(path))
	if !IsSupportedFormat(path) || ext == ".jpg" || ext == ".jpeg" {
		return fmt.Errorf("unsupported output format %q", ext)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image: %w", err)
	}
	defer file.Close()

	img := ToGray16(f)
	if ext == ".png" {
		err = png.Encode(file, img)
	} else {
		err = tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate})
	}
	if err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}
	return nil
}

// SupportedFormats returns the list of supported image formats.
func SupportedFormats() []string {
	return []string{".tiff", ".tif", ".png", ".jpg", ".jpeg"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}
