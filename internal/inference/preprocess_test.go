package inference

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func TestPreprocessRejectsNonImages(t *testing.T) {
	_, err := Preprocess([]byte("definitely not an image"))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrImageDecode)
}

func TestPreprocessOutputShape(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 50))
	data, err := Preprocess(encodePNG(t, img))

	require.NoError(t, err)
	assert.Len(t, data, 3*inputSize*inputSize)
}

func TestPreprocessPadsShortSideWithNormalizedBlack(t *testing.T) {
	// A wide white image scales to 384 wide and leaves black bands above
	// and below after centering.
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.White)
		}
	}

	data, err := Preprocess(encodePNG(t, img))
	require.NoError(t, err)

	plane := inputSize * inputSize
	for c := 0; c < 3; c++ {
		pad := -channelMean[c] / channelStd[c]
		// First row sits inside the top padding band.
		assert.InDelta(t, pad, data[c*plane], 1e-6)
		// The exact center row holds image content.
		center := c*plane + (inputSize/2)*inputSize + inputSize/2
		white := (1.0 - channelMean[c]) / channelStd[c]
		assert.InDelta(t, white, data[center], 0.05)
	}
}

func TestPreprocessTallImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 50, 400))
	data, err := Preprocess(encodePNG(t, img))

	require.NoError(t, err)
	assert.Len(t, data, 3*inputSize*inputSize)
}

func TestSoftmax(t *testing.T) {
	probs := softmax([]float32{2.0, 1.0})

	require.Len(t, probs, 2)
	assert.InDelta(t, 1.0, probs[0]+probs[1], 1e-9)
	assert.Greater(t, probs[0], probs[1])

	uniform := softmax([]float32{3.5, 3.5})
	assert.InDelta(t, 0.5, uniform[0], 1e-9)
	assert.InDelta(t, 0.5, uniform[1], 1e-9)
}
