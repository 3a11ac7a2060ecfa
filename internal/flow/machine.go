package flow

import "github.com/example/deepverify/internal/prediction"

// Status enumerates the presentation states.
type Status int

const (
	StatusInitial Status = iota
	StatusReady
	StatusLoading
	StatusSuccess
	StatusFailed
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusInitial:
		return "initial"
	case StatusReady:
		return "ready"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failure"
	}
	return "unknown"
}

// User-facing messages emitted by the reducer itself.
const (
	NoImageMessage      = "no image selected: select an image first"
	UnknownErrorMessage = "unknown error"
)

// State is a snapshot of the presentation layer.
type State struct {
	Status  Status
	Payload *prediction.ImagePayload
	Message string
	Result  *prediction.VerificationResult
}

// Event drives every state transition.
type Event interface {
	isEvent()
}

// ImageSelected carries a freshly picked image.
type ImageSelected struct {
	Bytes []byte
	Path  string
}

// SubmitStarted requests a verification of the current payload.
type SubmitStarted struct{}

// SubmitSucceeded completes a submission with a result.
type SubmitSucceeded struct {
	Result *prediction.VerificationResult
}

// SubmitFailed completes a submission with a failure message.
type SubmitFailed struct {
	Message string
}

// Reset discards everything and returns to the initial state.
type Reset struct{}

func (ImageSelected) isEvent()   {}
func (SubmitStarted) isEvent()   {}
func (SubmitSucceeded) isEvent() {}
func (SubmitFailed) isEvent()    {}
func (Reset) isEvent()           {}

// Reduce applies one event to a state and returns the next state. It is a
// pure function: no I/O and no mutation of its input. Selecting an image
// from any state moves to ready and clears the previous result; reset
// unconditionally returns to initial; submitting without a payload fails
// without reaching the network.
func Reduce(s State, e Event) State {
	switch ev := e.(type) {
	case ImageSelected:
		return State{
			Status:  StatusReady,
			Payload: &prediction.ImagePayload{Bytes: ev.Bytes, Path: ev.Path},
		}
	case SubmitStarted:
		if s.Payload == nil || s.Payload.IsEmpty() {
			return State{Status: StatusFailed, Payload: s.Payload, Message: NoImageMessage}
		}
		return State{Status: StatusLoading, Payload: s.Payload}
	case SubmitSucceeded:
		return State{Status: StatusSuccess, Payload: s.Payload, Result: ev.Result}
	case SubmitFailed:
		message := ev.Message
		if message == "" {
			message = UnknownErrorMessage
		}
		return State{Status: StatusFailed, Payload: s.Payload, Message: message}
	case Reset:
		return State{Status: StatusInitial}
	}
	return s
}
