package push_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orionwholesale/storefront/internal/clock"
	"github.com/orionwholesale/storefront/internal/kvstore"
	"github.com/orionwholesale/storefront/internal/navigation"
	"github.com/orionwholesale/storefront/internal/push"
	"github.com/orionwholesale/storefront/internal/replay"
	"github.com/orionwholesale/storefront/internal/session"
)

var launchTime = time.Date(2026, 5, 2, 18, 0, 0, 0, time.UTC)

// mockProvider is a scriptable push provider.
type mockProvider struct {
	mu sync.Mutex

	unavailable  bool
	existing     bool
	initErr      error
	initPanic    bool
	denied       bool
	permErr      error
	token        string
	tokenErr     error
	subscribeErr error
	initial      *push.RemoteMessage

	tokenCalls int
	subscribed []string
	foreground push.MessageHandler
	background push.MessageHandler
}

func newMockProvider() *mockProvider {
	return &mockProvider{token: "fcm-token-1"}
}

func (m *mockProvider) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.unavailable
}

func (m *mockProvider) Initialize(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initPanic {
		panic("native module missing")
	}
	return m.existing, m.initErr
}

func (m *mockProvider) RequestPermission(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.denied, m.permErr
}

func (m *mockProvider) Token(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenCalls++
	return m.token, m.tokenErr
}

func (m *mockProvider) SubscribeToTopic(_ context.Context, token, topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.subscribed = append(m.subscribed, token+"@"+topic)
	return nil
}

func (m *mockProvider) OnMessage(handler push.MessageHandler) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.foreground = handler
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.foreground = nil
	}
}

func (m *mockProvider) SetBackgroundMessageHandler(handler push.MessageHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.background = handler
}

func (m *mockProvider) InitialNotification(context.Context) (*push.RemoteMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initial, nil
}

func (m *mockProvider) handlers() (push.MessageHandler, push.MessageHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.foreground, m.background
}

type directPolicy bool

func (p directPolicy) DirectInitialNavigation(context.Context) bool { return bool(p) }

type fixture struct {
	provider  *mockProvider
	store     *kvstore.MemoryStore
	session   *session.Store
	clock     *clock.Fake
	navigator *navigation.Recorder
	log       *push.NotificationLog
	slot      *replay.Slot
}

func newFixture() *fixture {
	store := kvstore.NewMemoryStore()
	clk := clock.NewFake(launchTime)
	return &fixture{
		provider:  newMockProvider(),
		store:     store,
		session:   session.NewStore(session.State{}, zerolog.Nop()),
		clock:     clk,
		navigator: navigation.NewRecorder(zerolog.Nop()),
		log:       push.NewNotificationLog(store, clk),
		slot:      replay.NewSlot(store, clk),
	}
}

func (f *fixture) bootstrapper(provider push.Provider) *push.Bootstrapper {
	return push.NewBootstrapper(push.BootstrapperConfig{
		Provider: provider,
		Store:    f.store,
		Session:  f.session,
		Logger:   zerolog.Nop(),
	})
}

func (f *fixture) listeners(direct bool) *push.Listeners {
	return push.NewListeners(push.ListenersConfig{
		Provider:  f.provider,
		Log:       f.log,
		Slot:      f.slot,
		Navigator: f.navigator,
		Policy:    directPolicy(direct),
		Clock:     f.clock,
		Logger:    zerolog.Nop(),
	})
}

func (f *fixture) persistedStatus(t *testing.T) map[string]any {
	t.Helper()
	var persisted map[string]any
	found, err := kvstore.GetJSON(context.Background(), f.store, kvstore.KeyFirebaseInitStatus, &persisted)
	require.NoError(t, err)
	require.True(t, found)
	return persisted
}

func TestBootstrapper_Unavailable(t *testing.T) {
	tests := []struct {
		name     string
		provider func(*fixture) push.Provider
	}{
		{
			name:     "nil provider",
			provider: func(*fixture) push.Provider { return nil },
		},
		{
			name: "capability missing",
			provider: func(f *fixture) push.Provider {
				f.provider.unavailable = true
				return f.provider
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			status := f.bootstrapper(tt.provider(f)).Initialize(context.Background())

			assert.False(t, status.Initialized)
			assert.False(t, status.FCMEnabled)
			assert.Equal(t, push.StateUnavailable, status.State)
			assert.Equal(t, push.ReasonUnavailable, status.Reason)

			persisted := f.persistedStatus(t)
			assert.Equal(t, false, persisted["success"])
			assert.Equal(t, false, persisted["fcmEnabled"])
			assert.Equal(t, "unavailable", persisted["reason"])
		})
	}
}

func TestBootstrapper_FullChain(t *testing.T) {
	f := newFixture()
	f.provider.existing = true

	b := f.bootstrapper(f.provider)
	status := b.Initialize(context.Background())

	assert.True(t, status.Initialized, "an existing app instance counts as success")
	assert.True(t, status.PermissionGranted)
	assert.True(t, status.FCMEnabled)
	assert.Equal(t, push.StateSubscribed, status.State)
	assert.Empty(t, status.Reason)
	assert.Equal(t, []string{"fcm-token-1@" + push.DefaultTopic}, f.provider.subscribed)

	token, found, err := kvstore.GetString(context.Background(), f.store, kvstore.KeyFCMToken)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "fcm-token-1", token)
	assert.Equal(t, "fcm-token-1", f.session.State().FCMToken)

	persisted := f.persistedStatus(t)
	assert.Equal(t, true, persisted["success"])
	assert.Equal(t, true, persisted["fcmEnabled"])

	assert.Equal(t, status, b.Status())
}

func TestBootstrapper_ReusesPersistedToken(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.store.Set(context.Background(), kvstore.KeyFCMToken, "cached-token"))

	status := f.bootstrapper(f.provider).Initialize(context.Background())

	assert.True(t, status.FCMEnabled)
	assert.Zero(t, f.provider.tokenCalls)
	assert.Equal(t, "cached-token", f.session.State().FCMToken)
	assert.Equal(t, []string{"cached-token@" + push.DefaultTopic}, f.provider.subscribed)
}

func TestBootstrapper_CustomTopics(t *testing.T) {
	f := newFixture()
	b := push.NewBootstrapper(push.BootstrapperConfig{
		Provider: f.provider,
		Store:    f.store,
		Session:  f.session,
		Logger:   zerolog.Nop(),
		Topics:   []string{"deals", "restock"},
	})

	status := b.Initialize(context.Background())

	assert.True(t, status.FCMEnabled)
	assert.Equal(t, []string{"fcm-token-1@deals", "fcm-token-1@restock"}, f.provider.subscribed)
}

func TestBootstrapper_PermissionDenied(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*mockProvider)
		wantReason string
	}{
		{
			name:       "user declined",
			setup:      func(p *mockProvider) { p.denied = true },
			wantReason: push.ReasonPermissionDenied,
		},
		{
			name:       "request failed",
			setup:      func(p *mockProvider) { p.permErr = errors.New("dialog dismissed") },
			wantReason: "dialog dismissed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.setup(f.provider)

			b := f.bootstrapper(f.provider)
			status := b.Initialize(context.Background())

			assert.True(t, status.Initialized)
			assert.False(t, status.PermissionGranted)
			assert.False(t, status.FCMEnabled)
			assert.Equal(t, tt.wantReason, status.Reason)
			assert.Zero(t, f.provider.tokenCalls)
			assert.Empty(t, f.provider.subscribed)

			for _, name := range []string{push.StepToken, push.StepSubscribe} {
				step, ok := status.Step(name)
				require.True(t, ok, name)
				assert.True(t, step.Skipped, name)
			}

			unsubscribe := b.InstallListeners(context.Background(), f.listeners(true))
			unsubscribe()

			foreground, background := f.provider.handlers()
			assert.Nil(t, foreground)
			assert.Nil(t, background)

			step, ok := b.Status().Step(push.StepListeners)
			require.True(t, ok)
			assert.True(t, step.Skipped)
			assert.Equal(t, push.ReasonNoPermission, step.Reason)
			assert.False(t, b.Status().CanListen())
		})
	}
}

func TestBootstrapper_TokenFailureStillInstallsListeners(t *testing.T) {
	f := newFixture()
	f.provider.tokenErr = errors.New("SERVICE_NOT_AVAILABLE")

	b := f.bootstrapper(f.provider)
	status := b.Initialize(context.Background())

	assert.True(t, status.Initialized)
	assert.True(t, status.PermissionGranted)
	assert.False(t, status.FCMEnabled)
	assert.Contains(t, status.Reason, "SERVICE_NOT_AVAILABLE")
	assert.Empty(t, f.provider.subscribed)

	subscribe, ok := status.Step(push.StepSubscribe)
	require.True(t, ok)
	assert.True(t, subscribe.Skipped)

	unsubscribe := b.InstallListeners(context.Background(), f.listeners(true))
	defer unsubscribe()

	foreground, background := f.provider.handlers()
	assert.NotNil(t, foreground)
	assert.NotNil(t, background)
	assert.Equal(t, push.StateListenersInstalled, b.Status().State)
}

func TestBootstrapper_EmptyTokenIsFailure(t *testing.T) {
	f := newFixture()
	f.provider.token = "   "

	status := f.bootstrapper(f.provider).Initialize(context.Background())

	assert.False(t, status.FCMEnabled)
	assert.Contains(t, status.Reason, push.ReasonEmptyToken)

	_, found, err := kvstore.GetString(context.Background(), f.store, kvstore.KeyFCMToken)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBootstrapper_SubscribeFailure(t *testing.T) {
	f := newFixture()
	f.provider.subscribeErr = errors.New("topic quota exceeded")

	status := f.bootstrapper(f.provider).Initialize(context.Background())

	assert.True(t, status.Initialized)
	assert.False(t, status.FCMEnabled)
	assert.Equal(t, push.StateTokenObtained, status.State)
	assert.Contains(t, status.Reason, push.DefaultTopic)
	assert.True(t, status.CanListen())
}

func TestBootstrapper_InitializeFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*mockProvider)
	}{
		{
			name:  "initialize error",
			setup: func(p *mockProvider) { p.initErr = errors.New("no google-services.json") },
		},
		{
			name:  "initialize panic",
			setup: func(p *mockProvider) { p.initPanic = true },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.setup(f.provider)

			b := f.bootstrapper(f.provider)
			status := b.Initialize(context.Background())

			assert.False(t, status.Initialized)
			assert.Equal(t, push.StateFailed, status.State)
			assert.True(t, status.State.Terminal())
			assert.NotEmpty(t, status.Reason)
			assert.Equal(t, false, f.persistedStatus(t)["success"])

			unsubscribe := b.InstallListeners(context.Background(), f.listeners(true))
			unsubscribe()
			foreground, _ := f.provider.handlers()
			assert.Nil(t, foreground)

			step, ok := b.Status().Step(push.StepListeners)
			require.True(t, ok)
			assert.Equal(t, push.ReasonNotInitialized, step.Reason)
		})
	}
}

func TestNotificationLog_CapsAtCapacityNewestFirst(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for i := 0; i < push.DefaultLogCapacity+5; i++ {
		_, err := f.log.Append(ctx, map[string]string{"title": fmt.Sprintf("promo %d", i)})
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}

	records, err := f.log.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, push.DefaultLogCapacity)
	assert.Equal(t, "promo 104", records[0].Title)
	assert.Equal(t, "promo 5", records[len(records)-1].Title)
}

func TestNotificationLog_UnreadableListStartsOver(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, kvstore.KeyNotifications, "{not json"))

	_, err := f.log.Append(ctx, map[string]string{"title": "fresh"})
	require.NoError(t, err)

	records, err := f.log.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "fresh", records[0].Title)
}

func TestNewRecord(t *testing.T) {
	now := launchTime.UnixMilli()

	t.Run("fallbacks", func(t *testing.T) {
		r := push.NewRecord(map[string]string{}, now)
		assert.Equal(t, "Notification", r.Title)
		assert.Equal(t, "New notification received", r.Body)
		assert.Nil(t, r.Image)
		assert.Nil(t, r.Link)
		assert.Equal(t, now, r.Timestamp)
	})

	t.Run("bodytitle wins over title", func(t *testing.T) {
		r := push.NewRecord(map[string]string{
			"bodytitle": "Spring sale",
			"title":     "ignored",
			"body":      "40% off rice",
			"image":     "https://cdn.example.com/rice.png",
			"link":      "category-12",
		}, now)
		assert.Equal(t, "Spring sale", r.Title)
		assert.Equal(t, "40% off rice", r.Body)
		require.NotNil(t, r.Image)
		assert.Equal(t, "https://cdn.example.com/rice.png", *r.Image)
		require.NotNil(t, r.Link)
		assert.Equal(t, "category-12", *r.Link)
	})

	t.Run("id format", func(t *testing.T) {
		r := push.NewRecord(nil, now)
		prefix := fmt.Sprintf("notif_%d_", now)
		require.True(t, strings.HasPrefix(r.ID, prefix), r.ID)
		assert.Len(t, strings.TrimPrefix(r.ID, prefix), 9)
	})
}

func TestListeners_Foreground(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	unsubscribe := f.listeners(true).Install(ctx)
	defer unsubscribe()

	foreground, _ := f.provider.handlers()
	require.NotNil(t, foreground)

	foreground(ctx, push.RemoteMessage{Data: map[string]string{"type": "promotional", "title": "Deal", "link": "product-9"}})
	foreground(ctx, push.RemoteMessage{Data: map[string]string{"type": "order", "title": "Shipped"}})

	records, err := f.log.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Deal", records[0].Title)

	_, present, _, err := f.slot.Load(ctx)
	require.NoError(t, err)
	assert.False(t, present, "foreground links are not saved for replay")
	assert.Empty(t, f.navigator.Calls())
}

func TestListeners_Background(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	unsubscribe := f.listeners(true).Install(ctx)
	defer unsubscribe()

	_, background := f.provider.handlers()
	require.NotNil(t, background)

	background(ctx, push.RemoteMessage{Data: map[string]string{"type": "order", "link": "brand-3"}})

	records, err := f.log.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	p, present, ok, err := f.slot.Load(ctx)
	require.NoError(t, err)
	require.True(t, present)
	require.True(t, ok)
	assert.Equal(t, "brand-3", p.Link)
	assert.Equal(t, launchTime.UnixMilli(), p.Timestamp)

	background(ctx, push.RemoteMessage{Data: map[string]string{"type": "promotional", "link": "category-8"}})

	records, err = f.log.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	p, _, _, err = f.slot.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "category-8", p.Link, "a newer save replaces the slot")
}

func TestListeners_InitialNotification(t *testing.T) {
	initial := &push.RemoteMessage{
		MessageID: "m-1",
		Data:      map[string]string{"type": "promotional", "title": "Opened", "link": "product-42"},
	}

	t.Run("direct navigation after delay", func(t *testing.T) {
		f := newFixture()
		f.provider.initial = initial
		ctx := context.Background()

		unsubscribe := f.listeners(true).Install(ctx)
		defer unsubscribe()

		records, err := f.log.List(ctx)
		require.NoError(t, err)
		assert.Len(t, records, 1)

		_, present, _, err := f.slot.Load(ctx)
		require.NoError(t, err)
		assert.True(t, present, "saved before the delayed navigation")
		assert.Empty(t, f.navigator.Calls())
		require.Equal(t, 1, f.clock.Waiters())

		f.clock.Advance(push.DefaultInitialNavigationDelay)

		require.Eventually(t, func() bool { return len(f.navigator.Calls()) == 1 }, time.Second, 5*time.Millisecond)
		call, _ := f.navigator.Last()
		assert.Equal(t, navigation.RouteProductDetail, call.Route)
		assert.Equal(t, navigation.Params{"id": "42"}, call.Params)

		require.Eventually(t, func() bool {
			_, present, _, err := f.slot.Load(ctx)
			return err == nil && !present
		}, time.Second, 5*time.Millisecond, "delivered link is cleared from the slot")
	})

	t.Run("switch off leaves replay to the slot", func(t *testing.T) {
		f := newFixture()
		f.provider.initial = initial
		ctx := context.Background()

		unsubscribe := f.listeners(false).Install(ctx)
		defer unsubscribe()

		assert.Zero(t, f.clock.Waiters())
		p, _, ok, err := f.slot.Load(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "product-42", p.Link)
	})

	t.Run("unsubscribe cancels the scheduled navigation", func(t *testing.T) {
		f := newFixture()
		f.provider.initial = initial
		ctx := context.Background()

		unsubscribe := f.listeners(true).Install(ctx)
		unsubscribe()
		unsubscribe()

		f.clock.Advance(push.DefaultInitialNavigationDelay)
		assert.Empty(t, f.navigator.Calls())

		foreground, background := f.provider.handlers()
		assert.Nil(t, foreground)
		assert.Nil(t, background)
	})

	t.Run("unsupported link is not navigated", func(t *testing.T) {
		f := newFixture()
		f.provider.initial = &push.RemoteMessage{Data: map[string]string{"link": "coupon-5"}}
		ctx := context.Background()

		unsubscribe := f.listeners(true).Install(ctx)
		f.clock.Advance(push.DefaultInitialNavigationDelay)
		unsubscribe()

		assert.Empty(t, f.navigator.Calls())
	})
}
