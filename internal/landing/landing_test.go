package landing_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orionwholesale/storefront/internal/gateway"
	"github.com/orionwholesale/storefront/internal/kvstore"
	"github.com/orionwholesale/storefront/internal/landing"
)

func payload(t *testing.T, raw string) landing.Payload {
	t.Helper()
	p, err := landing.ParsePayload([]byte(raw))
	require.NoError(t, err)
	return p
}

// fakeSource serves scripted payloads. Gates, when set, hold a load until closed.
type fakeSource struct {
	mu         sync.Mutex
	cached     landing.Payload
	cachedErr  error
	fresh      landing.Payload
	freshErr   error
	cachedGate chan struct{}
	freshGate  chan struct{}
	started    chan string
	languages  []string
}

func (f *fakeSource) LoadCached(context.Context) (landing.Payload, error) {
	f.signal("cached")
	if f.cachedGate != nil {
		<-f.cachedGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cached, f.cachedErr
}

func (f *fakeSource) LoadFresh(_ context.Context, language string) (landing.Payload, error) {
	f.signal("fresh")
	if f.freshGate != nil {
		<-f.freshGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.languages = append(f.languages, language)
	return f.fresh, f.freshErr
}

func (f *fakeSource) setFresh(p landing.Payload, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fresh, f.freshErr = p, err
}

func (f *fakeSource) signal(kind string) {
	if f.started != nil {
		f.started <- kind
	}
}

type countingValidator struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (v *countingValidator) Check(context.Context) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	return false, v.err
}

func (v *countingValidator) Calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

type validityPolicy bool

func (p validityPolicy) RefreshValidityCheck(context.Context) bool { return bool(p) }

// stateSpy records every observed state.
type stateSpy struct {
	mu     sync.Mutex
	states []landing.State
}

func (s *stateSpy) observe(st landing.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, st)
}

func (s *stateSpy) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

func TestMerge_KeepsSectionsTheFreshPayloadOmits(t *testing.T) {
	cached := payload(t, `{"categories":["c-old"],"slider":["s-old"]}`)
	fresh := payload(t, `{"categories":["c-new"],"trending":["t-new"]}`)

	merged := landing.Merge(nil, cached, landing.OriginCached)
	merged = landing.Merge(merged, fresh, landing.OriginFresh)

	require.Len(t, merged, 3)
	assert.JSONEq(t, `["c-new"]`, string(merged[landing.SectionCategories].Data))
	assert.Equal(t, landing.OriginFresh, merged[landing.SectionCategories].Origin)
	assert.JSONEq(t, `["s-old"]`, string(merged[landing.SectionSlider].Data))
	assert.Equal(t, landing.OriginCached, merged[landing.SectionSlider].Origin)
	assert.JSONEq(t, `["t-new"]`, string(merged[landing.SectionTrending].Data))
}

func TestMerge_OrderIndependent(t *testing.T) {
	cached := payload(t, `{"categories":["c-old"],"slider":["s-old"]}`)
	fresh := payload(t, `{"categories":["c-new"],"trending":["t-new"]}`)

	cachedFirst := landing.Merge(landing.Merge(nil, cached, landing.OriginCached), fresh, landing.OriginFresh)
	freshFirst := landing.Merge(landing.Merge(nil, fresh, landing.OriginFresh), cached, landing.OriginCached)

	assert.Equal(t, cachedFirst, freshFirst)
}

func TestMerge_NullSectionsIgnored(t *testing.T) {
	merged := landing.Merge(nil, payload(t, `{"deals":["d"]}`), landing.OriginCached)
	merged = landing.Merge(merged, payload(t, `{"deals":null}`), landing.OriginFresh)

	assert.JSONEq(t, `["d"]`, string(merged[landing.SectionDeals].Data))
}

func TestPayload(t *testing.T) {
	t.Run("rejects non-objects", func(t *testing.T) {
		for _, raw := range []string{``, `[]`, `"x"`, `null`, `{`} {
			_, err := landing.ParsePayload([]byte(raw))
			assert.Error(t, err, raw)
		}
	})

	t.Run("image similarity", func(t *testing.T) {
		tests := map[string]bool{
			`{"enable_image_similarity":"1"}`: true,
			`{"enable_image_similarity":1}`:   true,
			`{"enable_image_similarity":"0"}`: false,
			`{}`:                              false,
		}
		for raw, want := range tests {
			assert.Equal(t, want, payload(t, raw).ImageSimilarity(), raw)
		}
	})
}

type mockGateway struct {
	mu      sync.Mutex
	queries []url.Values
	env     *gateway.Envelope
	err     error
}

func (m *mockGateway) FetchJSON(_ context.Context, endpoint string, query url.Values) (*gateway.Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if endpoint != gateway.EndpointHomePage {
		return nil, errors.New("unexpected endpoint " + endpoint)
	}
	m.queries = append(m.queries, query)
	return m.env, m.err
}

func TestLoader_LoadCached(t *testing.T) {
	tests := []struct {
		name   string
		stored *string
		want   bool
	}{
		{name: "absent"},
		{name: "blank", stored: ptr("")},
		{name: "garbage", stored: ptr("{not json")},
		{name: "array", stored: ptr(`["a"]`)},
		{name: "valid", stored: ptr(`{"slider":[1]}`), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := kvstore.NewMemoryStore()
			if tt.stored != nil {
				require.NoError(t, store.Set(context.Background(), kvstore.KeyAPIData, *tt.stored))
			}
			loader := landing.NewLoader(landing.LoaderConfig{Store: store, Logger: zerolog.Nop()})

			p, err := loader.LoadCached(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, p != nil)
		})
	}
}

func TestLoader_LoadFresh(t *testing.T) {
	ctx := context.Background()

	t.Run("persists and returns", func(t *testing.T) {
		store := kvstore.NewMemoryStore()
		gw := &mockGateway{env: &gateway.Envelope{
			Status: gateway.StatusOK,
			Data:   json.RawMessage(`{"categories":["fresh"]}`),
		}}
		loader := landing.NewLoader(landing.LoaderConfig{Store: store, Gateway: gw, Logger: zerolog.Nop()})

		p, err := loader.LoadFresh(ctx, "ar")
		require.NoError(t, err)
		assert.True(t, p.Has(landing.SectionCategories))

		require.Len(t, gw.queries, 1)
		assert.Equal(t, "ar", gw.queries[0].Get("language"))
		assert.Equal(t, "1", gw.queries[0].Get("reactnativeapp"))

		stored, err := store.Get(ctx, kvstore.KeyAPIData)
		require.NoError(t, err)
		assert.JSONEq(t, `{"categories":["fresh"]}`, stored)
	})

	t.Run("failure keeps the cache", func(t *testing.T) {
		store := kvstore.NewMemoryStore()
		require.NoError(t, store.Set(ctx, kvstore.KeyAPIData, `{"slider":["kept"]}`))
		gw := &mockGateway{err: errors.New("connection reset")}
		loader := landing.NewLoader(landing.LoaderConfig{Store: store, Gateway: gw, Logger: zerolog.Nop()})

		_, err := loader.LoadFresh(ctx, "")
		require.Error(t, err)
		assert.Equal(t, landing.DefaultLanguage, gw.queries[0].Get("language"))

		stored, err := store.Get(ctx, kvstore.KeyAPIData)
		require.NoError(t, err)
		assert.Equal(t, `{"slider":["kept"]}`, stored)
	})

	t.Run("non-object data is malformed", func(t *testing.T) {
		store := kvstore.NewMemoryStore()
		gw := &mockGateway{env: &gateway.Envelope{Status: gateway.StatusOK, Data: json.RawMessage(`"oops"`)}}
		loader := landing.NewLoader(landing.LoaderConfig{Store: store, Gateway: gw, Logger: zerolog.Nop()})

		_, err := loader.LoadFresh(ctx, "en")
		assert.ErrorIs(t, err, gateway.ErrMalformedResponse)

		_, err = store.Get(ctx, kvstore.KeyAPIData)
		assert.ErrorIs(t, err, kvstore.ErrNotFound)
	})
}

func TestLoader_Language(t *testing.T) {
	store := kvstore.NewMemoryStore()
	loader := landing.NewLoader(landing.LoaderConfig{Store: store, Logger: zerolog.Nop()})
	assert.Equal(t, "en", loader.Language(context.Background()))

	require.NoError(t, store.Set(context.Background(), kvstore.KeyLanguage, "fr"))
	assert.Equal(t, "fr", loader.Language(context.Background()))
}

func newScreen(source landing.Source, opts ...func(*landing.ScreenConfig)) *landing.Screen {
	cfg := landing.ScreenConfig{
		Source:   source,
		Logger:   zerolog.Nop(),
		Language: func(context.Context) string { return "de" },
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return landing.NewScreen(cfg)
}

func TestScreen_MountMergesBothLayers(t *testing.T) {
	source := &fakeSource{
		cached: payload(t, `{"categories":["c-old"],"slider":["s-old"]}`),
		fresh:  payload(t, `{"categories":["c-new"],"trending":["t-new"],"enable_image_similarity":"1"}`),
	}
	validator := &countingValidator{}
	screen := newScreen(source, func(c *landing.ScreenConfig) { c.Validator = validator })

	screen.Mount(context.Background())
	screen.Wait()

	st := screen.State()
	assert.False(t, st.Loading)
	assert.False(t, st.CacheLoading)
	assert.False(t, st.APILoading)
	assert.Nil(t, st.Error)
	assert.True(t, st.ImageSimilarity)

	categories, ok := st.Section(landing.SectionCategories)
	require.True(t, ok)
	assert.Equal(t, landing.OriginFresh, categories.Origin)
	slider, ok := st.Section(landing.SectionSlider)
	require.True(t, ok)
	assert.Equal(t, landing.OriginCached, slider.Origin)
	_, ok = st.Section(landing.SectionTrending)
	assert.True(t, ok)

	assert.Equal(t, 1, validator.Calls())
	assert.Equal(t, []string{"de"}, source.languages)
}

func TestScreen_FreshBeforeCached(t *testing.T) {
	source := &fakeSource{
		cached:     payload(t, `{"categories":["c-old"],"slider":["s-old"]}`),
		fresh:      payload(t, `{"categories":["c-new"]}`),
		cachedGate: make(chan struct{}),
	}
	screen := newScreen(source)

	screen.Mount(context.Background())
	require.Eventually(t, func() bool { return !screen.State().APILoading }, time.Second, 5*time.Millisecond)

	close(source.cachedGate)
	screen.Wait()

	st := screen.State()
	assert.JSONEq(t, `["c-new"]`, string(st.Sections[landing.SectionCategories].Data))
	assert.JSONEq(t, `["s-old"]`, string(st.Sections[landing.SectionSlider].Data))
}

func TestScreen_FreshFailureShowsBannerOverCachedContent(t *testing.T) {
	source := &fakeSource{
		cached:   payload(t, `{"slider":["s-old"]}`),
		freshErr: errors.New("gateway: status 0"),
	}
	screen := newScreen(source)

	screen.Mount(context.Background())
	screen.Wait()

	st := screen.State()
	require.NotNil(t, st.Error)
	assert.True(t, st.Error.Retryable)
	assert.False(t, st.Loading)
	_, ok := st.Section(landing.SectionSlider)
	assert.True(t, ok, "cached content stays usable under the banner")

	screen.DismissError()
	assert.Nil(t, screen.State().Error)

	source.setFresh(payload(t, `{"deals":["d"]}`), nil)
	require.NoError(t, screen.Retry(context.Background()))

	st = screen.State()
	assert.Nil(t, st.Error)
	assert.Len(t, st.Sections, 2)
}

func TestScreen_UnmountDropsLateResults(t *testing.T) {
	spy := &stateSpy{}
	source := &fakeSource{
		cached:    payload(t, `{"slider":["s"]}`),
		fresh:     payload(t, `{"categories":["c"]}`),
		freshGate: make(chan struct{}),
		started:   make(chan string, 2),
	}
	screen := newScreen(source, func(c *landing.ScreenConfig) { c.Observer = spy.observe })

	screen.Mount(context.Background())
	for i := 0; i < 2; i++ {
		<-source.started
	}

	screen.Unmount()
	mutations := spy.Len()

	close(source.freshGate)
	screen.Wait()

	assert.Equal(t, mutations, spy.Len(), "no state changes after unmount")
	_, ok := screen.State().Section(landing.SectionCategories)
	assert.False(t, ok)
	assert.ErrorIs(t, screen.Refresh(context.Background()), landing.ErrNotMounted)
	assert.ErrorIs(t, screen.Retry(context.Background()), landing.ErrNotMounted)
}

func TestScreen_Refresh(t *testing.T) {
	tests := []struct {
		name           string
		policy         landing.ValidityPolicy
		freshErr       error
		wantValidation int
		wantErr        bool
	}{
		{name: "checks validity by default", wantValidation: 1},
		{name: "policy on", policy: validityPolicy(true), wantValidation: 1},
		{name: "policy off", policy: validityPolicy(false), wantValidation: 0},
		{name: "fresh failure", freshErr: errors.New("timeout"), wantValidation: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &fakeSource{fresh: payload(t, `{"slider":["s"]}`)}
			validator := &countingValidator{}
			screen := newScreen(source, func(c *landing.ScreenConfig) {
				c.Validator = validator
				c.Policy = tt.policy
			})
			screen.Mount(context.Background())
			screen.Wait()
			validationsAfterMount := validator.Calls()

			source.setFresh(payload(t, `{"slider":["s2"]}`), tt.freshErr)

			err := screen.Refresh(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				assert.NotNil(t, screen.State().Error)
			} else {
				assert.NoError(t, err)
			}

			assert.False(t, screen.State().Refreshing)
			assert.Equal(t, tt.wantValidation, validator.Calls()-validationsAfterMount)
		})
	}
}

func TestScreen_RefreshShowsIndicatorWhileLoading(t *testing.T) {
	spy := &stateSpy{}
	source := &fakeSource{fresh: payload(t, `{"slider":["s"]}`)}
	screen := newScreen(source, func(c *landing.ScreenConfig) { c.Observer = spy.observe })
	screen.Mount(context.Background())
	screen.Wait()

	before := spy.Len()
	require.NoError(t, screen.Refresh(context.Background()))

	spy.mu.Lock()
	defer spy.mu.Unlock()
	transitions := spy.states[before:]
	require.NotEmpty(t, transitions)
	assert.True(t, transitions[0].Refreshing)
	assert.False(t, transitions[len(transitions)-1].Refreshing)
}

func ptr(s string) *string { return &s }
