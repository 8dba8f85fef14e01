package remote

import (
	"context"
	"encoding/json"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"firebase.google.com/go/v4/errorutils"
	"google.golang.org/api/option"
)

// FirebaseStore adapts the Admin SDK's Realtime Database client to Store
type FirebaseStore struct {
	client *db.Client
	keys   *KeyGenerator
}

// FirebaseConfig selects the database and the service account used to reach it
type FirebaseConfig struct {
	DatabaseURL     string
	CredentialsFile string // service account JSON; empty uses application default credentials
}

// NewFirebaseStore connects to the Realtime Database at cfg.DatabaseURL
func NewFirebaseStore(ctx context.Context, cfg FirebaseConfig) (*FirebaseStore, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("firebase: database URL is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{DatabaseURL: cfg.DatabaseURL}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase: init app: %w", err)
	}
	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase: database client: %w", err)
	}
	return &FirebaseStore{client: client, keys: NewKeyGenerator()}, nil
}

// NewKey implements Store. Ref.Push would write an empty placeholder node,
// so keys are generated locally with the same algorithm.
func (f *FirebaseStore) NewKey(ctx context.Context, collection string) (string, error) {
	if !ValidCollection(collection) {
		return "", fmt.Errorf("remote: unknown collection %q", collection)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.keys.Next(), nil
}

// Set implements Store
func (f *FirebaseStore) Set(ctx context.Context, collection, key string, record any) error {
	if err := checkNode(collection, key); err != nil {
		return err
	}
	if err := f.client.NewRef(collection).Child(key).Set(ctx, record); err != nil {
		return mapFirebaseError(collection+"/"+key, err)
	}
	return nil
}

// Remove implements Store
func (f *FirebaseStore) Remove(ctx context.Context, collection, key string) error {
	if err := checkNode(collection, key); err != nil {
		return err
	}
	if err := f.client.NewRef(collection).Child(key).Delete(ctx); err != nil {
		return mapFirebaseError(collection+"/"+key, err)
	}
	return nil
}

// GetAll implements Store
func (f *FirebaseStore) GetAll(ctx context.Context, collection string) (map[string]json.RawMessage, error) {
	if !ValidCollection(collection) {
		return nil, fmt.Errorf("remote: unknown collection %q", collection)
	}
	var nodes map[string]json.RawMessage
	if err := f.client.NewRef(collection).Get(ctx, &nodes); err != nil {
		return nil, mapFirebaseError(collection, err)
	}
	if nodes == nil {
		nodes = make(map[string]json.RawMessage)
	}
	return nodes, nil
}

// Get implements Store
func (f *FirebaseStore) Get(ctx context.Context, collection, key string, v any) error {
	if err := checkNode(collection, key); err != nil {
		return err
	}
	var raw json.RawMessage
	if err := f.client.NewRef(collection).Child(key).Get(ctx, &raw); err != nil {
		return mapFirebaseError(collection+"/"+key, err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("%s/%s: %w", collection, key, ErrNotFound)
	}
	return json.Unmarshal(raw, v)
}

// Ping implements Store with a shallow read of the courses node
func (f *FirebaseStore) Ping(ctx context.Context) error {
	var keys map[string]bool
	if err := f.client.NewRef(Courses).GetShallow(ctx, &keys); err != nil {
		return mapFirebaseError(Courses, err)
	}
	return nil
}

func mapFirebaseError(path string, err error) error {
	switch {
	case errorutils.IsUnauthenticated(err), errorutils.IsPermissionDenied(err):
		return fmt.Errorf("%s: %w: %v", path, ErrUnauthorized, err)
	case errorutils.IsNotFound(err):
		return fmt.Errorf("%s: %w: %v", path, ErrNotFound, err)
	case errorutils.IsUnavailable(err):
		return fmt.Errorf("%s: %w: %v", path, ErrOffline, err)
	default:
		return fmt.Errorf("%s: %w", path, err)
	}
}
