package inference

import (
	"context"
	"errors"

	"github.com/example/deepverify/internal/prediction"
)

// ErrImageDecode marks inputs that could not be decoded as an image, as
// opposed to an engine failure on a valid image.
var ErrImageDecode = errors.New("could not decode image")

// Classifier produces a class prediction for raw image bytes.
type Classifier interface {
	Classify(ctx context.Context, imageBytes []byte) (*prediction.Prediction, error)
}
