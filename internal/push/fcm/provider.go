// Package fcm implements push.Provider on Firebase Cloud Messaging for topic
// management and a Pub/Sub subscription as the message transport.
package fcm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub/v2"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/orionwholesale/storefront/internal/push"
)

// Errors returned by the provider.
var (
	ErrNotInitialized = errors.New("fcm: provider not initialized")
	ErrNoToken        = errors.New("fcm: no device token configured")
	ErrNoSubscription = errors.New("fcm: no pubsub subscription configured")
)

// TopicManager subscribes registration tokens to topics. *messaging.Client
// satisfies it.
type TopicManager interface {
	SubscribeToTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
}

// Config holds configuration for the FCM provider.
type Config struct {
	// ProjectID is the Firebase and Pub/Sub project.
	ProjectID string

	// CredentialsFile is a service account file. Empty uses application
	// default credentials.
	CredentialsFile string

	// SubscriptionName is the Pub/Sub subscription messages are received from.
	SubscriptionName string

	// Permission asks the host for notification permission.
	// Default: always granted
	Permission func(ctx context.Context) (bool, error)

	// Token returns the device registration token from the host.
	// Default: DeviceToken
	Token func(ctx context.Context) (string, error)

	// DeviceToken is a static registration token for headless installs.
	DeviceToken string

	// InitialMessage is the message that launched the app, if any.
	InitialMessage *push.RemoteMessage

	// Topics overrides the Firebase messaging client. Used in tests.
	Topics TopicManager

	Logger zerolog.Logger
}

// Provider is a push.Provider backed by FCM and Pub/Sub.
type Provider struct {
	cfg    Config
	logger zerolog.Logger

	mu         sync.Mutex
	topics     TopicManager
	client     *pubsub.Client
	subscriber *pubsub.Subscriber
	initial    *push.RemoteMessage
	background push.MessageHandler
	inFront    bool
	nextID     int
	handlers   map[int]push.MessageHandler
}

// Ensure Provider implements push.Provider interface.
var _ push.Provider = (*Provider)(nil)

// NewProvider creates a Provider. Nothing is contacted until Initialize.
func NewProvider(cfg Config) *Provider {
	if cfg.Permission == nil {
		cfg.Permission = func(context.Context) (bool, error) { return true, nil }
	}
	if cfg.Token == nil {
		static := cfg.DeviceToken
		cfg.Token = func(context.Context) (string, error) {
			if static == "" {
				return "", ErrNoToken
			}
			return static, nil
		}
	}
	return &Provider{
		cfg:      cfg,
		logger:   cfg.Logger,
		initial:  cfg.InitialMessage,
		inFront:  true,
		handlers: make(map[int]push.MessageHandler),
	}
}

// Available reports whether the provider has a project to talk to.
func (p *Provider) Available() bool {
	return p.cfg.ProjectID != "" || p.cfg.Topics != nil
}

// Initialize creates the Firebase app and the Pub/Sub client. Calling it again
// reports existing == true.
func (p *Provider) Initialize(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.topics != nil {
		return true, nil
	}

	if p.cfg.Topics != nil {
		p.topics = p.cfg.Topics
		return false, nil
	}

	var opts []option.ClientOption
	if p.cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(p.cfg.CredentialsFile))
	} else {
		p.logger.Warn().Msg("no firebase credentials file provided, using application default credentials")
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: p.cfg.ProjectID}, opts...)
	if err != nil {
		return false, fmt.Errorf("initializing firebase app: %w", err)
	}
	msgClient, err := app.Messaging(ctx)
	if err != nil {
		return false, fmt.Errorf("getting messaging client: %w", err)
	}

	if p.cfg.SubscriptionName != "" {
		client, err := pubsub.NewClient(ctx, p.cfg.ProjectID, opts...)
		if err != nil {
			return false, fmt.Errorf("creating pubsub client: %w", err)
		}
		subscriber := client.Subscriber(p.cfg.SubscriptionName)
		subscriber.ReceiveSettings.MaxOutstandingMessages = 10
		subscriber.ReceiveSettings.MaxExtension = time.Minute

		p.client = client
		p.subscriber = subscriber
	}

	p.topics = msgClient
	return false, nil
}

// RequestPermission defers to the host hook.
func (p *Provider) RequestPermission(ctx context.Context) (bool, error) {
	return p.cfg.Permission(ctx)
}

// Token defers to the host hook.
func (p *Provider) Token(ctx context.Context) (string, error) {
	return p.cfg.Token(ctx)
}

// SubscribeToTopic subscribes token to topic through the Admin SDK.
func (p *Provider) SubscribeToTopic(ctx context.Context, token, topic string) error {
	p.mu.Lock()
	topics := p.topics
	p.mu.Unlock()

	if topics == nil {
		return ErrNotInitialized
	}

	resp, err := topics.SubscribeToTopic(ctx, []string{token}, topic)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	if resp != nil && resp.FailureCount > 0 {
		reason := "unknown"
		if len(resp.Errors) > 0 && resp.Errors[0] != nil {
			reason = resp.Errors[0].Reason
		}
		return fmt.Errorf("subscribing to %s: %s", topic, reason)
	}
	return nil
}

// OnMessage registers a foreground handler.
func (p *Provider) OnMessage(handler push.MessageHandler) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	p.handlers[id] = handler

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.handlers, id)
	}
}

// SetBackgroundMessageHandler registers the background handler.
func (p *Provider) SetBackgroundMessageHandler(handler push.MessageHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.background = handler
}

// InitialNotification returns the launching message once.
func (p *Provider) InitialNotification(context.Context) (*push.RemoteMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	msg := p.initial
	p.initial = nil
	return msg, nil
}

// SetForeground records the host lifecycle state. Messages received while in
// the foreground go to OnMessage handlers, otherwise to the background handler.
func (p *Provider) SetForeground(foreground bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFront = foreground
}

// Deliver routes msg to the handlers for the current lifecycle state.
func (p *Provider) Deliver(ctx context.Context, msg push.RemoteMessage) {
	p.mu.Lock()
	var targets []push.MessageHandler
	if p.inFront {
		for _, h := range p.handlers {
			targets = append(targets, h)
		}
	} else if p.background != nil {
		targets = append(targets, p.background)
	}
	p.mu.Unlock()

	if len(targets) == 0 {
		p.logger.Debug().Str("message_id", msg.MessageID).Msg("no handler for message")
		return
	}
	for _, h := range targets {
		h(ctx, msg)
	}
}

// Receive pulls messages from the Pub/Sub subscription until ctx is done.
// It must run after Initialize.
func (p *Provider) Receive(ctx context.Context) error {
	p.mu.Lock()
	subscriber := p.subscriber
	p.mu.Unlock()

	if subscriber == nil {
		if p.cfg.SubscriptionName == "" {
			return ErrNoSubscription
		}
		return fmt.Errorf("receiving from %s: %w", p.cfg.SubscriptionName, ErrNotInitialized)
	}

	p.logger.Info().Str("subscription", p.cfg.SubscriptionName).Msg("receiving push messages")

	return subscriber.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		logger := p.logger.With().
			Str("message_id", m.ID).
			Str("publish_time", m.PublishTime.Format(time.RFC3339)).
			Logger()

		msg, err := DecodeMessage(m.ID, m.Data, m.Attributes)
		if err != nil {
			// Undecodable messages are acked to prevent redelivery.
			logger.Error().Err(err).Msg("failed to parse push message")
			m.Ack()
			return
		}

		p.Deliver(ctx, msg)
		m.Ack()
	})
}

// Close closes the Pub/Sub client.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	p.subscriber = nil
	return err
}
