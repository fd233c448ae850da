package analyzer

import (
	"image"
	"math"

	"gonum.org/v1/gonum/stat"
)

// NoiseAssessment is the outcome of the statistical noise gate.
type NoiseAssessment struct {
	Entropy     float64 // normalized Shannon entropy of the grayscale histogram, 0-1
	EdgeDensity float64 // fraction of pixels whose gradient magnitude exceeds the edge threshold
	NoiseScore  float64 // Entropy * (1 - EdgeDensity)
	IsNoise     bool    // NoiseScore above the anomaly threshold
}

// assessNoise computes the noise gate statistics for an image. High entropy
// combined with low edge density marks unstructured randomness.
func assessNoise(img image.Image, edgeThreshold, anomalyThreshold float64) NoiseAssessment {
	entropy := histogramEntropy(img)
	edgeDensity := sobelEdgeDensity(img, edgeThreshold)

	noiseScore := entropy * (1 - edgeDensity)

	return NoiseAssessment{
		Entropy:     entropy,
		EdgeDensity: edgeDensity,
		NoiseScore:  noiseScore,
		IsNoise:     noiseScore > anomalyThreshold,
	}
}

// histogramEntropy computes the Shannon entropy of the 8-bit grayscale
// histogram, normalized to [0,1] by the 8-bit maximum of 8 bits.
func histogramEntropy(img image.Image) float64 {
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return 0
	}

	var hist [256]float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			hist[luminance(img.At(x, y).RGBA())]++
		}
	}

	probs := make([]float64, 0, 256)
	for _, count := range hist {
		if count > 0 {
			probs = append(probs, count/float64(total))
		}
	}

	// stat.Entropy returns nats; convert to bits before normalizing
	entropyBits := stat.Entropy(probs) / math.Ln2
	return entropyBits / 8.0
}

// luminance converts 16-bit premultiplied RGBA to an 8-bit ITU-R 601 gray level.
func luminance(r, g, b, _ uint32) int {
	gray := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
	level := int(gray + 0.5)
	if level > 255 {
		level = 255
	}
	return level
}

// sobelEdgeDensity computes the fraction of interior pixels whose Sobel
// gradient magnitude exceeds the threshold. The gradient runs over the
// channel-mean gray image rather than the luminance-weighted one.
func sobelEdgeDensity(img image.Image, threshold float64) float64 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	gray := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			gray[y*w+x] = (float64(r>>8) + float64(g>>8) + float64(b>>8)) / 3.0
		}
	}

	edges := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := -gray[(y-1)*w+x-1] + gray[(y-1)*w+x+1] +
				-2*gray[y*w+x-1] + 2*gray[y*w+x+1] +
				-gray[(y+1)*w+x-1] + gray[(y+1)*w+x+1]
			gy := -gray[(y-1)*w+x-1] - 2*gray[(y-1)*w+x] - gray[(y-1)*w+x+1] +
				gray[(y+1)*w+x-1] + 2*gray[(y+1)*w+x] + gray[(y+1)*w+x+1]
			if math.Hypot(gx, gy) > threshold {
				edges++
			}
		}
	}

	return float64(edges) / float64((w-2)*(h-2))
}
