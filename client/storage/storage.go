// Package storage is the client's persistent key/value store. Values are raw
// JSON documents addressed by key; external changes are reported on Changes.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Keys used by the storefront client.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyUser         = "user"
	KeyGuestCart    = "guestCart"
	// KeyCartPending is set while local cart changes have not reached the server.
	KeyCartPending = "cartPending"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("storage: closed")

type Store interface {
	// Get returns the stored value and whether the key exists.
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error
	// Changes reports keys modified by another writer. The channel is closed by Close.
	Changes() <-chan string
	Close() error
}

// GetJSON decodes key into v. It reports false when the key is absent.
func GetJSON(s Store, key string, v any) (bool, error) {
	raw, ok, err := s.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func SetJSON(s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(key, raw)
}

// GetString reads a value stored with SetString. Missing keys yield "".
func GetString(s Store, key string) (string, error) {
	var v string
	if _, err := GetJSON(s, key, &v); err != nil {
		return "", err
	}
	return v, nil
}

func SetString(s Store, key, value string) error {
	return SetJSON(s, key, value)
}
