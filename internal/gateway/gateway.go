// Package gateway is the client for the storefront backend. Every call carries
// the static access token, and two sentinel responses redirect navigation
// before the caller sees an error.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/orionwholesale/storefront/internal/navigation"
	"github.com/orionwholesale/storefront/internal/provider/resilience"
)

const tracerName = "github.com/orionwholesale/storefront/internal/gateway"

// Endpoints used by the sync core.
const (
	EndpointHomePageInit  = "getHomePageInit"
	EndpointHomePage      = "getHomePage"
	EndpointCheckCache    = "checkCache"
	EndpointSetCacheFalse = "setCacheFalse"
)

// maxBodySize bounds how much of a response is read.
const maxBodySize = 16 << 20

// TokenSource supplies the signed-in user's bearer token, if any.
type TokenSource interface {
	BearerToken() string
}

// Config holds configuration for the gateway.
type Config struct {
	// BaseURL is the API root; endpoints are appended to it.
	BaseURL string

	// AccessToken is the static application token sent as the "token" header.
	AccessToken string

	// HTTPClient is the HTTP client to use.
	// If nil, a resilient client without retries is created.
	HTTPClient *resilience.Client

	// Navigator receives the sentinel redirects.
	Navigator navigation.Navigator

	// Tokens supplies a per-request bearer token. Optional.
	Tokens TokenSource

	Logger zerolog.Logger
}

// Gateway performs requests against the storefront backend.
type Gateway struct {
	baseURL     string
	accessToken string
	httpClient  *resilience.Client
	navigator   navigation.Navigator
	tokens      TokenSource
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// New creates a gateway.
func New(cfg Config) (*Gateway, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("gateway: base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("gateway: parsing base URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.ClientConfig{Name: "storefront"})
	}

	return &Gateway{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/") + "/",
		accessToken: cfg.AccessToken,
		httpClient:  httpClient,
		navigator:   cfg.Navigator,
		tokens:      cfg.Tokens,
		logger:      cfg.Logger,
		tracer:      otel.Tracer(tracerName),
	}, nil
}

// FetchJSON issues a GET to endpoint with the given query.
func (g *Gateway) FetchJSON(ctx context.Context, endpoint string, query url.Values) (*Envelope, error) {
	return g.do(ctx, http.MethodGet, endpoint, query, nil)
}

// PostJSON issues a POST to endpoint with body encoded as JSON.
func (g *Gateway) PostJSON(ctx context.Context, endpoint string, query url.Values, body any) (*Envelope, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding %s body: %w", endpoint, err)
		}
	}
	return g.do(ctx, http.MethodPost, endpoint, query, payload)
}

func (g *Gateway) do(ctx context.Context, method, endpoint string, query url.Values, payload []byte) (*Envelope, error) {
	ctx, span := g.tracer.Start(ctx, "gateway.fetch "+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("storefront.endpoint", endpoint),
		),
	)
	defer span.End()

	env, err := g.roundTrip(ctx, method, endpoint, query, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Warn().Err(err).Str("endpoint", endpoint).Str("method", method).Msg("gateway request failed")
		return nil, err
	}
	return env, nil
}

func (g *Gateway) roundTrip(ctx context.Context, method, endpoint string, query url.Values, payload []byte) (*Envelope, error) {
	target := g.baseURL + strings.TrimLeft(endpoint, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader = http.NoBody
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", endpoint, err)
	}

	// Headers are built per request; nothing carries over between calls.
	req.Header.Set("accept", "application/json")
	req.Header.Set("token", g.accessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.tokens != nil {
		if bearer := g.tokens.BearerToken(); bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", endpoint, err)
	}

	env, err := parseEnvelope(raw)
	if err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &HTTPError{Endpoint: endpoint, StatusCode: resp.StatusCode}
		}
		return nil, fmt.Errorf("decoding %s response: %w", endpoint, err)
	}

	if !env.OK() {
		return nil, g.reject(ctx, endpoint, env)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}
	return env, nil
}

// reject turns a non-OK envelope into an error, redirecting on sentinels.
func (g *Gateway) reject(ctx context.Context, endpoint string, env *Envelope) error {
	if env.Status == 0 {
		switch env.Message {
		case MessageUnauthorized:
			g.redirect(ctx, endpoint, navigation.RouteUnauthorized)
			return ErrUnauthorized
		case MessageNotLoggedIn:
			g.redirect(ctx, endpoint, navigation.RouteLogin)
			return ErrNotLoggedIn
		}
	}
	return &StatusError{Endpoint: endpoint, Status: env.Status, Message: env.Message}
}

func (g *Gateway) redirect(ctx context.Context, endpoint, route string) {
	g.logger.Info().Str("endpoint", endpoint).Str("route", route).Msg("sentinel response, redirecting")
	if g.navigator == nil {
		return
	}
	if err := g.navigator.Navigate(ctx, route, navigation.Params{}); err != nil {
		g.logger.Error().Err(err).Str("route", route).Msg("sentinel redirect failed")
	}
}
