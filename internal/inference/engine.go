package inference

import (
	"context"
	"fmt"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/example/deepverify/internal/prediction"
)

// Class names in model head order.
var classes = [numClasses]string{prediction.LabelFake, prediction.LabelReal}

// Engine runs the authenticity model through ONNX Runtime. Sessions reuse
// their tensors and are not safe for concurrent Run calls, so inference is
// serialized.
type Engine struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	logger       *zap.Logger
}

// NewEngine loads the model at modelPath and prepares a reusable session.
func NewEngine(modelPath string, logger *zap.Logger) (*Engine, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize onnxruntime: %w", err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, inputSize, inputSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, numClasses))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"}, []string{"output"},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to load model %s: %w", modelPath, err)
	}

	logger.Info("model loaded", zap.String("path", modelPath))
	return &Engine{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		logger:       logger.Named("inference"),
	}, nil
}

// Classify decodes and preprocesses the image, then runs one forward pass.
func (e *Engine) Classify(ctx context.Context, imageBytes []byte) (*prediction.Prediction, error) {
	input, err := Preprocess(imageBytes)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	copy(e.inputTensor.GetData(), input)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	probs := softmax(e.outputTensor.GetData())

	maxIdx := 0
	probabilities := make(map[string]float64, numClasses)
	for i, class := range classes {
		probabilities[class] = probs[i]
		if probs[i] > probs[maxIdx] {
			maxIdx = i
		}
	}

	return &prediction.Prediction{
		Success:        true,
		PredictedLabel: classes[maxIdx],
		PredictedIndex: maxIdx,
		Probabilities:  probabilities,
	}, nil
}

// Close releases the session and tensors.
func (e *Engine) Close() {
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
	if e.session != nil {
		e.session.Destroy()
	}
	ort.DestroyEnvironment()
}

// softmax converts raw logits to probabilities, shifted by the max logit
// for numerical stability.
func softmax(logits []float32) []float64 {
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}

	out := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(float64(v - maxLogit))
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
