package usecase

import "context"

// MetricsSummary represents aggregated prediction insights.
type MetricsSummary struct {
	TotalPredictions int64   `json:"total_predictions"`
	FakePredictions  int64   `json:"fake_predictions"`
	FakeRate         float64 `json:"fake_rate"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
}

// GetMetricsSummary aggregates prediction metrics from persisted logs.
func (uc *PredictionUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := uc.store.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalPredictions: aggregation.TotalCount,
		FakePredictions:  aggregation.FakeCount,
		AverageLatencyMs: aggregation.AverageLatencyMs,
	}

	if aggregation.TotalCount > 0 {
		summary.FakeRate = float64(aggregation.FakeCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}
