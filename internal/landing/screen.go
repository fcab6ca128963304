package landing

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrNotMounted is returned by operations on a screen that is not mounted.
var ErrNotMounted = errors.New("landing: screen not mounted")

// Origin tells where a section's current content came from.
type Origin string

const (
	OriginCached Origin = "cached"
	OriginFresh  Origin = "fresh"
)

// Section is one named block of the landing page.
type Section struct {
	Data   json.RawMessage `json:"data"`
	Origin Origin          `json:"origin"`
}

// Banner is a dismissible error shown over the content.
type Banner struct {
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// State is the render state of a landing screen.
type State struct {
	Sections map[string]Section `json:"sections"`

	// Loading shows the skeleton. It is cleared by the first content or error.
	Loading         bool    `json:"loading"`
	CacheLoading    bool    `json:"cacheLoading"`
	APILoading      bool    `json:"apiLoading"`
	Refreshing      bool    `json:"refreshing"`
	Error           *Banner `json:"error,omitempty"`
	ImageSimilarity bool    `json:"imageSimilarity"`
}

// Section returns the named section.
func (s State) Section(name string) (Section, bool) {
	sec, ok := s.Sections[name]
	return sec, ok
}

func (s State) clone() State {
	out := s
	out.Sections = make(map[string]Section, len(s.Sections))
	for name, sec := range s.Sections {
		out.Sections[name] = sec
	}
	if s.Error != nil {
		banner := *s.Error
		out.Error = &banner
	}
	return out
}

// Merge applies p to sections and returns the result. Sections absent from p
// are kept. A cached payload never replaces a section that is already fresh.
func Merge(sections map[string]Section, p Payload, origin Origin) map[string]Section {
	out := make(map[string]Section, len(sections)+len(p))
	for name, sec := range sections {
		out[name] = sec
	}
	for _, name := range p.Names() {
		if origin == OriginCached {
			if current, ok := out[name]; ok && current.Origin == OriginFresh {
				continue
			}
		}
		out[name] = Section{Data: p[name], Origin: origin}
	}
	return out
}

// Source loads landing payloads. *Loader implements it.
type Source interface {
	LoadCached(ctx context.Context) (Payload, error)
	LoadFresh(ctx context.Context, language string) (Payload, error)
}

// Validator runs the server cache-validity check.
type Validator interface {
	Check(ctx context.Context) (bool, error)
}

// ValidityPolicy decides whether a refresh consults the validity check.
type ValidityPolicy interface {
	RefreshValidityCheck(ctx context.Context) bool
}

// Observer receives a copy of the state after every change. It is called
// with the screen locked and must not call back into the Screen.
type Observer func(State)

// ScreenConfig holds configuration for a Screen.
type ScreenConfig struct {
	Source    Source
	Validator Validator
	Policy    ValidityPolicy
	Observer  Observer
	Logger    zerolog.Logger

	// Language returns the language for fresh loads.
	// Default: DefaultLanguage
	Language func(ctx context.Context) string
}

// Screen owns the state of one landing screen instance. Continuations of
// loads that finish after Unmount are dropped.
type Screen struct {
	source    Source
	validator Validator
	policy    ValidityPolicy
	observer  Observer
	logger    zerolog.Logger
	language  func(ctx context.Context) string

	mu      sync.Mutex
	state   State
	mounted bool

	wg sync.WaitGroup
}

// NewScreen creates an unmounted Screen.
func NewScreen(cfg ScreenConfig) *Screen {
	language := cfg.Language
	if language == nil {
		language = func(context.Context) string { return DefaultLanguage }
	}
	return &Screen{
		source:    cfg.Source,
		validator: cfg.Validator,
		policy:    cfg.Policy,
		observer:  cfg.Observer,
		logger:    cfg.Logger,
		language:  language,
		state:     State{Sections: map[string]Section{}},
	}
}

// State returns a copy of the current state.
func (s *Screen) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Mounted reports whether the screen is mounted.
func (s *Screen) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mounted
}

// Mount shows the skeleton and starts the initial load in the background:
// the validity check, then the cached and fresh loads side by side.
func (s *Screen) Mount(ctx context.Context) {
	s.mu.Lock()
	s.mounted = true
	s.state.Loading = true
	s.state.CacheLoading = true
	s.state.APILoading = true
	s.notifyLocked()
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.checkValidity(ctx)
		if !s.Mounted() {
			return
		}
		_ = s.loadBoth(ctx)
	}()
}

// Wait blocks until background work started by Mount has finished.
func (s *Screen) Wait() {
	s.wg.Wait()
}

// Unmount stops all further state changes. Loads already in flight finish but
// their results are discarded.
func (s *Screen) Unmount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mounted = false
}

// Refresh runs the validity check and reloads both layers, waiting for both
// to settle. Refreshing is cleared whatever the outcome. The returned error is
// the fresh load's failure, which is also shown as the banner.
func (s *Screen) Refresh(ctx context.Context) error {
	if !s.update(func(st *State) {
		st.Refreshing = true
		st.Error = nil
	}) {
		return ErrNotMounted
	}
	defer s.update(func(st *State) { st.Refreshing = false })

	if s.policy == nil || s.policy.RefreshValidityCheck(ctx) {
		s.checkValidity(ctx)
	}
	return s.loadBoth(ctx)
}

// Retry re-issues the fresh load after a failure.
func (s *Screen) Retry(ctx context.Context) error {
	if !s.Mounted() {
		return ErrNotMounted
	}
	return s.loadFresh(ctx)
}

// DismissError hides the error banner. Content is unaffected.
func (s *Screen) DismissError() {
	s.update(func(st *State) { st.Error = nil })
}

func (s *Screen) loadBoth(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error {
		s.loadCached(ctx)
		return nil
	})
	g.Go(func() error {
		return s.loadFresh(ctx)
	})
	return g.Wait()
}

func (s *Screen) loadCached(ctx context.Context) {
	s.update(func(st *State) { st.CacheLoading = true })

	p, err := s.source.LoadCached(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("loading cached landing payload")
	}

	s.update(func(st *State) {
		st.CacheLoading = false
		if len(p) == 0 {
			return
		}
		st.Sections = Merge(st.Sections, p, OriginCached)
		if len(st.Sections) > 0 {
			st.Loading = false
		}
	})
}

func (s *Screen) loadFresh(ctx context.Context) error {
	s.update(func(st *State) {
		st.APILoading = true
		st.Error = nil
	})

	p, err := s.source.LoadFresh(ctx, s.language(ctx))
	if err != nil {
		s.logger.Error().Err(err).Msg("loading fresh landing payload")
		s.update(func(st *State) {
			st.APILoading = false
			st.Loading = false
			st.Error = &Banner{Message: err.Error(), Retryable: true}
		})
		return err
	}

	s.update(func(st *State) {
		st.Sections = Merge(st.Sections, p, OriginFresh)
		st.ImageSimilarity = p.ImageSimilarity()
		st.APILoading = false
		st.Loading = false
	})
	return nil
}

func (s *Screen) checkValidity(ctx context.Context) {
	if s.validator == nil {
		return
	}
	if _, err := s.validator.Check(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("cache validity check failed")
	}
}

// update applies fn when the screen is mounted and reports whether it did.
func (s *Screen) update(fn func(*State)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.mounted {
		return false
	}
	fn(&s.state)
	s.notifyLocked()
	return true
}

func (s *Screen) notifyLocked() {
	if s.observer != nil {
		s.observer(s.state.clone())
	}
}
