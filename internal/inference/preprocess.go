package inference

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
)

const (
	inputSize  = 384
	numClasses = 2
)

// Per-channel normalization constants matching the model's training pipeline.
var (
	channelMean = [3]float32{0.485, 0.456, 0.406}
	channelStd  = [3]float32{0.229, 0.224, 0.225}
)

// Preprocess converts raw image bytes into the CHW float32 tensor the model
// expects: scale the longer side to the input size preserving aspect ratio,
// center the image on a black square, then normalize per channel.
func Preprocess(imageBytes []byte) ([]float32, error) {
	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	return tensorize(scaleToFit(img)), nil
}

// scaleToFit resizes so the longer side equals inputSize, keeping aspect
// ratio. Passing 0 for one dimension lets the library derive it.
func scaleToFit(img image.Image) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() >= bounds.Dy() {
		return resize.Resize(inputSize, 0, img, resize.Bicubic)
	}
	return resize.Resize(0, inputSize, img, resize.Bicubic)
}

func tensorize(img image.Image) []float32 {
	plane := inputSize * inputSize
	data := make([]float32, 3*plane)

	// The padding fill is black, which normalizes to (0-mean)/std rather
	// than zero, so the planes are pre-filled with that value.
	for c := 0; c < 3; c++ {
		pad := -channelMean[c] / channelStd[c]
		for i := 0; i < plane; i++ {
			data[c*plane+i] = pad
		}
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > inputSize {
		w = inputSize
	}
	if h > inputSize {
		h = inputSize
	}
	left := (inputSize - w) / 2
	top := (inputSize - h) / 2

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			idx := (top+y)*inputSize + (left + x)
			data[idx] = (float32(r)/65535.0 - channelMean[0]) / channelStd[0]
			data[plane+idx] = (float32(g)/65535.0 - channelMean[1]) / channelStd[1]
			data[2*plane+idx] = (float32(b)/65535.0 - channelMean[2]) / channelStd[2]
		}
	}

	return data
}
