package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/deepverify/internal/inference"
	"github.com/example/deepverify/internal/prediction"
	"github.com/example/deepverify/internal/repository"
	"github.com/example/deepverify/internal/usecase"
)

// DefaultMaxUploadSize bounds accepted multipart payloads when no limit is
// configured.
const DefaultMaxUploadSize int64 = 10 << 20

const uploadFieldName = "file"

// Service is the slice of the prediction use case the handlers need.
type Service interface {
	ModelLoaded() bool
	Predict(ctx context.Context, imageBytes []byte) (string, *prediction.Prediction, error)
	GetResult(ctx context.Context, requestID string) (*repository.PredictionLog, error)
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
}

// Options tunes route registration.
type Options struct {
	MaxUploadSize int64
	// Auth, when set, protects every route except the health check.
	Auth gin.HandlerFunc
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, svc Service, logger *zap.Logger, opts Options) {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = DefaultMaxUploadSize
	}
	log := logger.Named("http")

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message":      "API is running",
			"model_loaded": svc.ModelLoaded(),
		})
	})

	api := router.Group("/")
	if opts.Auth != nil {
		api.Use(opts.Auth)
	}

	api.POST("/predict", func(c *gin.Context) {
		if !svc.ModelLoaded() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "Model is not loaded or initialized."})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, opts.MaxUploadSize)
		file, err := c.FormFile(uploadFieldName)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"detail": "uploaded file exceeds the size limit"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"detail": "file field is required"})
			return
		}
		if file.Size > opts.MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"detail": "uploaded file exceeds the size limit"})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "unable to open uploaded file"})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "failed to read uploaded file"})
			return
		}
		if len(data) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "uploaded file is empty"})
			return
		}

		requestID, pred, err := svc.Predict(c.Request.Context(), data)
		if err != nil {
			switch {
			case errors.Is(err, inference.ErrImageDecode):
				// Unreadable images go back inside a 200 envelope, not as
				// an HTTP error.
				c.JSON(http.StatusOK, gin.H{
					"error":      "could not decode the uploaded image",
					"error_code": "image_decode",
				})
			case errors.Is(err, usecase.ErrModelNotLoaded):
				c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "Model is not loaded or initialized."})
			default:
				log.Error("prediction failed", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error during inference"})
			}
			return
		}

		c.Header("X-Request-ID", requestID)
		c.JSON(http.StatusOK, gin.H{
			"success":         true,
			"predicted_label": pred.PredictedLabel,
			"predicted_index": pred.PredictedIndex,
			"probabilities":   pred.Probabilities,
		})
	})

	api.GET("/result/:id", func(c *gin.Context) {
		requestID := c.Param("id")
		logEntry, err := svc.GetResult(c.Request.Context(), requestID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"detail": "result not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"request_id": logEntry.RequestID,
			"label":      logEntry.Label,
			"probabilities": gin.H{
				prediction.LabelReal: logEntry.ProbReal,
				prediction.LabelFake: logEntry.ProbFake,
			},
			"created_at": logEntry.CreatedAt,
		})
	})

	api.GET("/metrics/summary", func(c *gin.Context) {
		summary, err := svc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			log.Error("metrics aggregation failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "failed to aggregate metrics"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}
