package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/deepverify/internal/inference"
	"github.com/example/deepverify/internal/logging"
	"github.com/example/deepverify/internal/prediction"
	"github.com/example/deepverify/internal/repository"
)

// ErrModelNotLoaded is returned when a prediction is requested but no
// classifier is available.
var ErrModelNotLoaded = errors.New("model is not loaded")

// PredictionStore defines the persistence operations needed by the use case.
type PredictionStore interface {
	SaveLog(ctx context.Context, log *repository.PredictionLog) error
	FindByRequestID(ctx context.Context, requestID string) (*repository.PredictionLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// PredictionUseCase orchestrates caching, inference and persistence for
// each uploaded image.
type PredictionUseCase struct {
	store          PredictionStore
	cache          Cache
	classifier     inference.Classifier
	logger         *zap.Logger
	cacheTTL       time.Duration
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

type cachedPrediction struct {
	RequestID      string             `json:"request_id"`
	PredictedLabel string             `json:"predicted_label"`
	PredictedIndex int                `json:"predicted_index"`
	Probabilities  map[string]float64 `json:"probabilities"`
	CreatedAt      time.Time          `json:"created_at"`
}

// NewPredictionUseCase constructs a new use case instance. The classifier
// may be nil when the model file is absent; predictions then fail with
// ErrModelNotLoaded until a model is provided.
func NewPredictionUseCase(store PredictionStore, cache Cache, classifier inference.Classifier, logger *zap.Logger, cacheTTL time.Duration) *PredictionUseCase {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &PredictionUseCase{
		store:          store,
		cache:          cache,
		classifier:     classifier,
		logger:         logger.Named("prediction_usecase"),
		cacheTTL:       cacheTTL,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// ModelLoaded reports whether a classifier is available.
func (uc *PredictionUseCase) ModelLoaded() bool {
	return uc.classifier != nil
}

// Predict runs one image through the classifier, reusing a cached outcome
// when the same bytes were seen recently. The cache key is the content
// hash, so repeat uploads of the same file are served without inference.
func (uc *PredictionUseCase) Predict(ctx context.Context, imageBytes []byte) (string, *prediction.Prediction, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.predict", requestID)

	if uc.classifier == nil {
		return "", nil, logging.NewOperationError("usecase.predict", requestID, ErrModelNotLoaded)
	}

	hash := sha1.Sum(imageBytes)
	hashHex := hex.EncodeToString(hash[:])
	cacheKey := fmt.Sprintf("prediction:%s", hashHex)

	if cached, err := uc.withRedisGet(ctx, requestID, "cache.get.prediction", cacheKey); err == nil {
		var payload cachedPrediction
		if err := json.Unmarshal([]byte(cached), &payload); err != nil {
			opLogger.Warn("failed to decode cached prediction", zap.Error(err))
		} else {
			opLogger.Info("serving cached prediction", zap.String("sha1", hashHex))
			return payload.RequestID, &prediction.Prediction{
				Success:        true,
				PredictedLabel: payload.PredictedLabel,
				PredictedIndex: payload.PredictedIndex,
				Probabilities:  payload.Probabilities,
			}, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		opLogger.Warn("failed to read cache", zap.Error(err))
	}

	started := time.Now()
	pred, err := uc.classifier.Classify(ctx, imageBytes)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.classify", requestID, err)
		opLogger.Error("classification failed", zap.Error(wrapped))
		return "", nil, wrapped
	}
	latencyMs := float64(time.Since(started).Microseconds()) / 1000.0

	log := &repository.PredictionLog{
		RequestID: requestID,
		Label:     pred.PredictedLabel,
		ProbReal:  pred.Probabilities[prediction.LabelReal],
		ProbFake:  pred.Probabilities[prediction.LabelFake],
		SHA1Hash:  hashHex,
		LatencyMs: latencyMs,
		CreatedAt: time.Now().UTC(),
	}
	if err := uc.store.SaveLog(ctx, log); err != nil {
		opLogger.Error("failed to persist prediction log", zap.Error(err))
		return "", nil, err
	}

	cached := cachedPrediction{
		RequestID:      requestID,
		PredictedLabel: pred.PredictedLabel,
		PredictedIndex: pred.PredictedIndex,
		Probabilities:  pred.Probabilities,
		CreatedAt:      log.CreatedAt,
	}
	serialized, err := json.Marshal(cached)
	if err != nil {
		opLogger.Error("failed to serialize prediction", zap.Error(err))
		return requestID, pred, nil
	}
	if err := uc.withRedisRetry(ctx, requestID, "cache.set.prediction", func() error {
		return uc.cache.Set(ctx, cacheKey, string(serialized), uc.cacheTTL)
	}); err != nil {
		// A cache write failure is not fatal: the log is already durable.
		opLogger.Warn("failed to cache prediction", zap.Error(err))
	}

	return requestID, pred, nil
}

// GetResult loads a persisted prediction outcome by request id.
func (uc *PredictionUseCase) GetResult(ctx context.Context, requestID string) (*repository.PredictionLog, error) {
	return uc.store.FindByRequestID(ctx, requestID)
}

func (uc *PredictionUseCase) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		err := fn()
		return logging.NewOperationError(operation, requestID, err)
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if errors.Is(err, redis.Nil) {
			// Cache miss, not a failure.
			return logging.NewOperationError(operation, requestID, err)
		}

		if !isTransientError(err) || attempt == uc.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func (uc *PredictionUseCase) withRedisGet(ctx context.Context, requestID, operation, cacheKey string) (string, error) {
	var result string
	err := uc.withRedisRetry(ctx, requestID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
