// Package kvstore provides the durable, string-keyed cache the client uses to
// keep small JSON blobs across process restarts.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Store.Get when the key has never been written
// or was deleted.
var ErrNotFound = errors.New("kvstore: key not found")

// ErrUnknownKey is returned when a key outside the declared set is used.
var ErrUnknownKey = errors.New("kvstore: unknown key")

// Store is a string-keyed value store. Values are written whole; there are no
// partial updates.
type Store interface {
	// Get returns the stored value or ErrNotFound.
	Get(ctx context.Context, key Key) (string, error)

	// Set creates or overwrites the value for key.
	Set(ctx context.Context, key Key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key Key) error
}

func checkKey(key Key) error {
	if !key.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKey, string(key))
	}
	return nil
}

// GetJSON decodes the value stored under key into v.
//
// A missing key and a value that does not decode are both reported as a miss
// (false, nil). Only a failure of the backing store is returned as an error.
func GetJSON(ctx context.Context, s Store, key Key, v any) (bool, error) {
	raw, err := s.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("reading %s: %w", key, err)
	}
	if strings.TrimSpace(raw) == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, nil
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key Key, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := s.Set(ctx, key, string(data)); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// GetString returns a raw string value. Blank values are treated as a miss,
// and a JSON-quoted string is unquoted so that either encoding reads the same.
func GetString(ctx context.Context, s Store, key Key) (string, bool, error) {
	raw, err := s.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}

	value := strings.TrimSpace(raw)
	if strings.HasPrefix(value, `"`) {
		var unquoted string
		if json.Unmarshal([]byte(value), &unquoted) == nil {
			value = strings.TrimSpace(unquoted)
		}
	}
	if value == "" {
		return "", false, nil
	}
	return value, true, nil
}

// SetString stores a raw string value.
func SetString(ctx context.Context, s Store, key Key, value string) error {
	if err := s.Set(ctx, key, value); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}
