package flow

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/example/deepverify/internal/prediction"
)

// ErrSubmissionInFlight is returned when Submit is called while a previous
// submission is still loading. The pending request keeps running and the
// new one is rejected.
var ErrSubmissionInFlight = errors.New("a submission is already in flight")

// Predictor is the slice of the detection client the controller needs.
type Predictor interface {
	Predict(ctx context.Context, payload prediction.ImagePayload) (*prediction.VerificationResult, error)
}

// Observer receives every state transition.
type Observer func(State)

// Controller owns the presentation state and serializes event dispatch
// around the reducer. At most one submission is in flight at a time.
type Controller struct {
	mu        sync.Mutex
	state     State
	inFlight  bool
	observers []Observer

	predictor Predictor
	logger    *zap.Logger
}

// NewController wires a controller to a predictor.
func NewController(predictor Predictor, logger *zap.Logger) *Controller {
	return &Controller{predictor: predictor, logger: logger.Named("flow")}
}

// Subscribe registers an observer for subsequent transitions.
func (c *Controller) Subscribe(obs Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, obs)
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SelectImage stores a new payload and moves to the ready state.
func (c *Controller) SelectImage(imageBytes []byte, path string) State {
	return c.dispatch(ImageSelected{Bytes: imageBytes, Path: path})
}

// Reset returns to the initial state, discarding payload and result.
func (c *Controller) Reset() State {
	return c.dispatch(Reset{})
}

// Submit runs one verification round trip. It blocks until the backend
// answers or the client times out. Submitting without a selected image
// fails immediately without touching the network.
func (c *Controller) Submit(ctx context.Context) (State, error) {
	c.mu.Lock()
	if c.inFlight {
		state := c.state
		c.mu.Unlock()
		return state, ErrSubmissionInFlight
	}

	next := Reduce(c.state, SubmitStarted{})
	c.state = next
	var payload prediction.ImagePayload
	if next.Status == StatusLoading {
		c.inFlight = true
		payload = *next.Payload
	}
	observers := c.snapshotObservers()
	c.mu.Unlock()

	notify(observers, next)

	if next.Status != StatusLoading {
		return next, nil
	}

	result, err := c.predictor.Predict(ctx, payload)

	var done Event
	if err != nil {
		var message string
		if failure, ok := prediction.AsFailure(err); ok {
			message = failure.Message
		}
		c.logger.Warn("submission failed", zap.Error(err))
		done = SubmitFailed{Message: message}
	} else {
		done = SubmitSucceeded{Result: result}
	}

	c.mu.Lock()
	c.inFlight = false
	if c.state.Status != StatusLoading {
		// The user reset or picked a new image while the request was
		// running; the outcome is stale.
		state := c.state
		c.mu.Unlock()
		return state, nil
	}
	c.state = Reduce(c.state, done)
	final := c.state
	observers = c.snapshotObservers()
	c.mu.Unlock()

	notify(observers, final)
	return final, nil
}

func (c *Controller) dispatch(e Event) State {
	c.mu.Lock()
	c.state = Reduce(c.state, e)
	next := c.state
	observers := c.snapshotObservers()
	c.mu.Unlock()

	notify(observers, next)
	return next
}

// snapshotObservers must be called with the lock held.
func (c *Controller) snapshotObservers() []Observer {
	return append([]Observer(nil), c.observers...)
}

func notify(observers []Observer, s State) {
	for _, obs := range observers {
		obs(s)
	}
}
