package object

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"
)

var (
	// ErrNotFound indicates no object exists at the key.
	ErrNotFound = errors.New("object not found")

	// ErrUnavailable indicates the backend failed (network, permissions, unexpected status).
	ErrUnavailable = errors.New("object store unavailable")

	// ErrSigningUnsupported is returned by stores that stream through a proxy endpoint instead of signing.
	ErrSigningUnsupported = errors.New("signed urls not supported by object store")

	// ErrInvalidKey indicates a key that is empty or escapes the store root.
	ErrInvalidKey = errors.New("invalid storage key")
)

// Store defines the contract for saving and retrieving binary objects by key.
type Store interface {
	// Put creates or overwrites the object at key. Stores that cannot overwrite
	// report CanOverwrite() == false and may fail when the key already exists.
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get returns the object bytes or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes the object. A missing object is not an error.
	Delete(ctx context.Context, key string) error
	// SignedURL returns a time-boxed download URL for key.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	// CanOverwrite reports whether Put replaces an existing object in place.
	CanOverwrite() bool
}

// CleanKey normalizes a slash-separated key and rejects traversal or absolute keys.
func CleanKey(key string) (string, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if trimmed == "" || strings.HasPrefix(trimmed, "/") {
		return "", ErrInvalidKey
	}
	clean := path.Clean(trimmed)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", ErrInvalidKey
	}
	return clean, nil
}
