package analyzer

import (
	"image"
	"image/color"
	"math"
	"testing"
)

// uniformImage returns a solid-color image.
func uniformImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// gradientImage returns a smooth horizontal gray gradient: a wide histogram
// with gradients too weak to register as edges.
func gradientImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(x * 256 / w)
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

// checkerboardImage alternates black and white pixels, maximizing gradients.
func checkerboardImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%2 == 0 {
				img.Set(x, y, color.White)
			} else {
				img.Set(x, y, color.Black)
			}
		}
	}
	return img
}

func TestHistogramEntropyUniformImageIsZero(t *testing.T) {
	t.Parallel()

	img := uniformImage(64, 64, color.RGBA{R: 200, G: 200, B: 200, A: 255})
	if got := histogramEntropy(img); got != 0 {
		t.Errorf("entropy of uniform image = %g, want 0", got)
	}
}

func TestHistogramEntropyGradientNearMax(t *testing.T) {
	t.Parallel()

	// 256-wide gradient puts equal mass in every histogram bin
	img := gradientImage(256, 32)
	got := histogramEntropy(img)
	if got < 0.95 || got > 1.0 {
		t.Errorf("entropy of full gradient = %g, want close to 1", got)
	}
}

func TestHistogramEntropyTwoLevels(t *testing.T) {
	t.Parallel()

	// half black, half white: exactly 1 bit of 8
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			if x < 32 {
				img.Set(x, y, color.Black)
			} else {
				img.Set(x, y, color.White)
			}
		}
	}
	got := histogramEntropy(img)
	want := 1.0 / 8.0
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("entropy = %g, want %g", got, want)
	}
}

func TestSobelEdgeDensity(t *testing.T) {
	t.Parallel()

	if got := sobelEdgeDensity(uniformImage(32, 32, color.White), 30); got != 0 {
		t.Errorf("edge density of uniform image = %g, want 0", got)
	}

	if got := sobelEdgeDensity(checkerboardImage(32, 32), 30); got < 0.9 {
		t.Errorf("edge density of checkerboard = %g, want near 1", got)
	}

	// gentle gradient stays below the edge threshold
	if got := sobelEdgeDensity(gradientImage(256, 32), 30); got != 0 {
		t.Errorf("edge density of smooth gradient = %g, want 0", got)
	}
}

func TestSobelEdgeDensityTinyImage(t *testing.T) {
	t.Parallel()

	// images without interior pixels have no measurable edges
	if got := sobelEdgeDensity(uniformImage(2, 2, color.White), 30); got != 0 {
		t.Errorf("edge density of 2x2 image = %g, want 0", got)
	}
}

func TestAssessNoiseUniformImageNeverNoise(t *testing.T) {
	t.Parallel()

	n := assessNoise(uniformImage(64, 64, color.White), 30, 0.85)
	if n.Entropy != 0 {
		t.Errorf("entropy = %g, want 0", n.Entropy)
	}
	if n.NoiseScore != 0 {
		t.Errorf("noise score = %g, want 0", n.NoiseScore)
	}
	if n.IsNoise {
		t.Error("uniform image must never be flagged as noise")
	}
}

func TestAssessNoiseSmoothGradientIsNoise(t *testing.T) {
	t.Parallel()

	// wide histogram with no edges: the exact signature the gate rejects
	n := assessNoise(gradientImage(256, 32), 30, 0.85)
	if !n.IsNoise {
		t.Errorf("expected smooth gradient to be flagged as noise, got %+v", n)
	}
	if n.NoiseScore <= 0.85 {
		t.Errorf("noise score = %g, want > 0.85", n.NoiseScore)
	}
}

func TestAssessNoiseCheckerboardNotNoise(t *testing.T) {
	t.Parallel()

	// dense edges suppress the noise score regardless of entropy
	n := assessNoise(checkerboardImage(64, 64), 30, 0.85)
	if n.IsNoise {
		t.Errorf("checkerboard flagged as noise: %+v", n)
	}
}
