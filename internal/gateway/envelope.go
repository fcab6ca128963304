package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel messages the backend sends with status 0.
const (
	MessageUnauthorized = "unauthorize"
	MessageNotLoggedIn  = "notloggedin"
)

// Gateway errors.
var (
	// ErrUnauthorized is returned after a sentinel "unauthorize" response has
	// redirected navigation to the unauthorized screen.
	ErrUnauthorized = errors.New("gateway: unauthorized")

	// ErrNotLoggedIn is returned after a sentinel "notloggedin" response has
	// redirected navigation to the login screen.
	ErrNotLoggedIn = errors.New("gateway: not logged in")

	// ErrMalformedResponse is returned when the body is not a response envelope.
	ErrMalformedResponse = errors.New("gateway: malformed response")
)

// StatusError is returned for a well-formed envelope whose status is not 1.
type StatusError struct {
	Endpoint string
	Status   Status
	Message  string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway: %s returned status %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("gateway: %s returned status %d: %s", e.Endpoint, e.Status, e.Message)
}

// HTTPError is returned when the server answers with a non-2xx code and a
// body that is not an envelope.
type HTTPError struct {
	Endpoint   string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("gateway: %s returned HTTP %d", e.Endpoint, e.StatusCode)
}

// Status is the envelope status. The backend sends it as a number, a numeric
// string, or occasionally a boolean.
type Status int

// StatusOK marks a successful envelope.
const StatusOK Status = 1

// UnmarshalJSON implements json.Unmarshaler.
func (s *Status) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "", "null", "false":
		*s = 0
		return nil
	case "true":
		*s = 1
		return nil
	}

	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
	}

	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid status %s", data)
	}
	*s = Status(n)
	return nil
}

// Envelope is the response wrapper every endpoint uses.
type Envelope struct {
	Status     Status          `json:"status"`
	Message    string          `json:"message,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	ClearCache bool            `json:"clearCache,omitempty"`
}

// OK reports whether the envelope carries a successful result.
func (e *Envelope) OK() bool {
	return e.Status == StatusOK
}

// HasData reports whether data is present and not null.
func (e *Envelope) HasData() bool {
	d := bytes.TrimSpace(e.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

// Decode unmarshals the envelope data into T.
func Decode[T any](env *Envelope) (T, error) {
	var out T
	if env == nil || !env.HasData() {
		return out, fmt.Errorf("%w: missing data", ErrMalformedResponse)
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, fmt.Errorf("%w: decoding data: %v", ErrMalformedResponse, err)
	}
	return out, nil
}

// envelopeWire tolerates clearCache sent as a boolean, number, or string.
type envelopeWire struct {
	Status     *Status         `json:"status"`
	Message    json.RawMessage `json:"message"`
	Data       json.RawMessage `json:"data"`
	ClearCache json.RawMessage `json:"clearCache"`
}

func parseEnvelope(body []byte) (*Envelope, error) {
	var wire envelopeWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if wire.Status == nil {
		return nil, fmt.Errorf("%w: missing status", ErrMalformedResponse)
	}

	return &Envelope{
		Status:     *wire.Status,
		Message:    looseString(wire.Message),
		Data:       wire.Data,
		ClearCache: looseBool(wire.ClearCache),
	}, nil
}

func looseString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return strings.Trim(string(raw), `"`)
}

func looseBool(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var s Status
	if err := s.UnmarshalJSON(raw); err != nil {
		return false
	}
	return s != 0
}
