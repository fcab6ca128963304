package push

// State is a position in the push bootstrap state machine.
type State string

const (
	StateUninitialized      State = "uninitialized"
	StateInitializing       State = "initializing"
	StateReady              State = "ready"
	StateUnavailable        State = "unavailable"
	StateFailed             State = "failed"
	StateTokenObtained      State = "token_obtained"
	StateSubscribed         State = "subscribed"
	StateListenersInstalled State = "listeners_installed"
)

// Terminal reports whether the machine stopped before reaching Ready.
func (s State) Terminal() bool {
	return s == StateUnavailable || s == StateFailed
}

// Step names reported in Status.Steps.
const (
	StepInitialize = "initialize"
	StepPermission = "permission"
	StepToken      = "token"
	StepSubscribe  = "subscribe"
	StepListeners  = "listeners"
)

// Reasons reported when a step fails or is skipped.
const (
	ReasonUnavailable      = "unavailable"
	ReasonPermissionDenied = "permission denied"
	ReasonNoPermission     = "skipped: no permission"
	ReasonNoToken          = "skipped: no token"
	ReasonNotInitialized   = "skipped: not initialized"
	ReasonEmptyToken       = "provider returned an empty token"
)

// StepResult records the outcome of one step.
type StepResult struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Status is the result of push initialization. It is never an error: every
// failure is described by Reason and the per-step results.
type Status struct {
	Initialized       bool         `json:"initialized"`
	FCMEnabled        bool         `json:"fcmEnabled"`
	PermissionGranted bool         `json:"permissionGranted"`
	Reason            string       `json:"reason,omitempty"`
	State             State        `json:"state"`
	Steps             []StepResult `json:"steps"`
}

// CanListen reports whether listeners may be installed.
func (s Status) CanListen() bool {
	return s.Initialized && s.PermissionGranted
}

// Step returns the result for name.
func (s Status) Step(name string) (StepResult, bool) {
	for _, step := range s.Steps {
		if step.Name == name {
			return step, true
		}
	}
	return StepResult{}, false
}

func (s *Status) ok(name string) {
	s.Steps = append(s.Steps, StepResult{Name: name, OK: true})
}

func (s *Status) fail(name, reason string) {
	s.Steps = append(s.Steps, StepResult{Name: name, Reason: reason})
	if s.Reason == "" {
		s.Reason = reason
	}
}

func (s *Status) skip(name, reason string) {
	s.Steps = append(s.Steps, StepResult{Name: name, Skipped: true, Reason: reason})
}

// persistedStatus is the FIREBASE_INIT_STATUS value.
type persistedStatus struct {
	Success    bool   `json:"success"`
	FCMEnabled bool   `json:"fcmEnabled"`
	Reason     string `json:"reason,omitempty"`
}
