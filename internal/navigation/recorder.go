package navigation

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Call is a navigation captured by a Recorder.
type Call struct {
	Route  string
	Params Params
}

// Recorder is a Navigator that records every call. The headless client uses
// it as its navigation tree; tests use it as a spy.
type Recorder struct {
	logger zerolog.Logger

	mu    sync.Mutex
	calls []Call
}

// NewRecorder creates a new Recorder.
func NewRecorder(logger zerolog.Logger) *Recorder {
	return &Recorder{logger: logger}
}

// Navigate records the call.
func (r *Recorder) Navigate(_ context.Context, route string, params Params) error {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Route: route, Params: params})
	r.mu.Unlock()

	r.logger.Info().Str("route", route).Interface("params", params).Msg("navigate")
	return nil
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Last returns the most recent call.
func (r *Recorder) Last() (Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.calls) == 0 {
		return Call{}, false
	}
	return r.calls[len(r.calls)-1], true
}
