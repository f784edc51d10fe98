package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotAvailable reports a collection that was never saved or cannot be
// decoded. Callers treat both cases the same way.
var ErrNotAvailable = errors.New("collection not available")

type Persister interface {
	Save(ctx context.Context, name string, v any) error
	Load(ctx context.Context, name string, v any) error
	Ping(ctx context.Context) error
}

func decodeCollection(name string, raw []byte, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return fmt.Errorf("%w: %s is empty", ErrNotAvailable, name)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrNotAvailable, name, err)
	}
	return nil
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}
