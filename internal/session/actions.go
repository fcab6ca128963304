package session

// Action is a state transition dispatched to the Store.
type Action interface {
	// Type returns the action name used in logs.
	Type() string

	apply(State) State
}

// InitComplete signals that the bootstrap sequence has finished, successfully
// or not, and the rest of the UI may load.
type InitComplete struct{}

// Type implements Action.
func (InitComplete) Type() string { return "INIT_COMPLETE" }

func (InitComplete) apply(s State) State {
	s.InitComplete = true
	return s
}

// StoreFCMToken registers the device push token.
type StoreFCMToken struct {
	Token string
}

// Type implements Action.
func (StoreFCMToken) Type() string { return "STORE_FCM" }

func (a StoreFCMToken) apply(s State) State {
	s.FCMToken = a.Token
	return s
}

// SetLanguage changes the active language.
type SetLanguage struct {
	Language string
}

// Type implements Action.
func (SetLanguage) Type() string { return "SET_LANGUAGE" }

func (a SetLanguage) apply(s State) State {
	if a.Language != "" {
		s.Language = a.Language
	}
	return s
}

// SetAuth stores the credentials produced by a login flow.
type SetAuth struct {
	Token  string
	UserID string
}

// Type implements Action.
func (SetAuth) Type() string { return "SET_AUTH" }

func (a SetAuth) apply(s State) State {
	s.AuthToken = a.Token
	s.UserID = a.UserID
	return s
}

// Logout clears the credentials.
type Logout struct{}

// Type implements Action.
func (Logout) Type() string { return "LOGOUT" }

func (Logout) apply(s State) State {
	s.AuthToken = ""
	s.UserID = ""
	return s
}
