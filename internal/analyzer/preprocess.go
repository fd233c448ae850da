package analyzer

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// CLIP-style input normalization constants (RGB mean and standard deviation
// of the encoder's training distribution).
var (
	inputMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	inputStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// preprocess scales an image to the encoder's input resolution and converts
// it to a normalized float32 tensor in HWC layout.
func preprocess(img image.Image, width, height int) []float32 {
	scaled := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), img, img.Bounds(), xdraw.Over, nil)

	tensor := make([]float32, width*height*3)
	i := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			offset := scaled.PixOffset(x, y)
			r := float32(scaled.Pix[offset]) / 255.0
			g := float32(scaled.Pix[offset+1]) / 255.0
			b := float32(scaled.Pix[offset+2]) / 255.0
			tensor[i] = (r - inputMean[0]) / inputStd[0]
			tensor[i+1] = (g - inputMean[1]) / inputStd[1]
			tensor[i+2] = (b - inputMean[2]) / inputStd[2]
			i += 3
		}
	}
	return tensor
}
