// Package remote talks to the hierarchical key/value store that mirrors the
// local database. Records live under a handful of top-level collections, each
// a map from server-generated key to a flat JSON object.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Top-level collections
const (
	Courses  = "courses"
	Classes  = "classes"
	Bookings = "bookings"
	Users    = "users"
)

// Collections lists every collection the admin tool reads or writes
var Collections = []string{Courses, Classes, Bookings, Users}

// Sentinel errors shared by every Store implementation.
var (
	ErrNotFound     = errors.New("remote: not found")
	ErrUnauthorized = errors.New("remote: unauthorized")
	ErrOffline      = errors.New("remote: offline")
)

// Store is the remote side of the sync. All methods block until the remote
// acknowledges or ctx is done.
type Store interface {
	// NewKey returns a fresh, chronologically ordered key for collection.
	NewKey(ctx context.Context, collection string) (string, error)
	// Set replaces the node at collection/key with record.
	Set(ctx context.Context, collection, key string, record any) error
	// Remove deletes collection/key. Removing a missing node is not an error.
	Remove(ctx context.Context, collection, key string) error
	// GetAll returns every child of collection keyed by remote key. An empty
	// or missing collection yields an empty map.
	GetAll(ctx context.Context, collection string) (map[string]json.RawMessage, error)
	// Get decodes collection/key into v, or returns ErrNotFound.
	Get(ctx context.Context, collection, key string, v any) error
	// Ping reports whether the remote is reachable.
	Ping(ctx context.Context) error
}

// ValidCollection reports whether name is a known collection
func ValidCollection(name string) bool {
	for _, c := range Collections {
		if c == name {
			return true
		}
	}
	return false
}

// ValidKey rejects keys that would escape their node in a path
func ValidKey(key string) error {
	if key == "" {
		return fmt.Errorf("remote: empty key")
	}
	for _, r := range key {
		switch r {
		case '/', '.', '#', '$', '[', ']':
			return fmt.Errorf("remote: invalid character %q in key %q", r, key)
		}
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("remote: control character in key %q", key)
		}
	}
	return nil
}

func checkNode(collection, key string) error {
	if !ValidCollection(collection) {
		return fmt.Errorf("remote: unknown collection %q", collection)
	}
	return ValidKey(key)
}

// DecodeAll unmarshals every child of a GetAll result into a T. Children that
// fail to decode are reported through skip and left out of the result.
func DecodeAll[T any](nodes map[string]json.RawMessage, skip func(key string, err error)) map[string]T {
	out := make(map[string]T, len(nodes))
	for key, raw := range nodes {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			if skip != nil {
				skip(key, err)
			}
			continue
		}
		out[key] = v
	}
	return out
}
