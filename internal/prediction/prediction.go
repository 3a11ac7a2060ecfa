package prediction

// Class labels used across the wire contract. The index order matches the
// model head: Fake first, Real second.
const (
	LabelFake = "Fake"
	LabelReal = "Real"
)

// Prediction mirrors the backend's successful /predict payload.
type Prediction struct {
	Success        bool               `json:"success,omitempty"`
	PredictedLabel string             `json:"predicted_label"`
	PredictedIndex int                `json:"predicted_index"`
	Probabilities  map[string]float64 `json:"probabilities"`
}

// HealthStatus mirrors the backend's health payload.
type HealthStatus struct {
	Message     string `json:"message"`
	ModelLoaded bool   `json:"model_loaded"`
}

// ImagePayload identifies the image to verify. At least one of Bytes or
// Path must be set before a submission; Bytes wins when both are present.
type ImagePayload struct {
	Bytes []byte
	Path  string
}

// IsEmpty reports whether the payload carries neither bytes nor a path.
func (p ImagePayload) IsEmpty() bool {
	return len(p.Bytes) == 0 && p.Path == ""
}

// VerificationResult is the client-side view of one prediction. It is an
// identity transform of the response: probabilities are copied, never
// renormalized, and an absent class defaults to zero.
type VerificationResult struct {
	Label         string
	ProbReal      float64
	ProbFake      float64
	Probabilities map[string]float64
}

// NewVerificationResult derives a result from a parsed prediction.
func NewVerificationResult(p *Prediction) *VerificationResult {
	return &VerificationResult{
		Label:         p.PredictedLabel,
		ProbReal:      p.Probabilities[LabelReal],
		ProbFake:      p.Probabilities[LabelFake],
		Probabilities: p.Probabilities,
	}
}

// IsAuthentic reports whether the real probability is at least the fake
// probability. Ties count as authentic.
func (r *VerificationResult) IsAuthentic() bool {
	return r.ProbReal >= r.ProbFake
}
