// Package persist stores the base event collection as one serialized blob
// under one well-known key in a pluggable key/value blob store.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"evcal/internal/model"
)

// DefaultKey is the key the event blob lives under.
const DefaultKey = "calendar-events"

var ErrNotFound = errors.New("blob not found")

// BlobStore is the minimal key/value contract a backing store must offer.
// Get returns ErrNotFound when nothing was stored under key yet.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
}

// Adapter loads and saves the base event collection through a BlobStore.
type Adapter struct {
	Blobs BlobStore
	Key   string
}

// NewAdapter returns an Adapter for blobs; an empty key selects DefaultKey.
func NewAdapter(blobs BlobStore, key string) *Adapter {
	if key == "" {
		key = DefaultKey
	}
	return &Adapter{Blobs: blobs, Key: key}
}

// Load returns the stored events. ok is false when nothing has been stored
// yet; a malformed blob is returned as an error.
func (a *Adapter) Load(ctx context.Context) (events []model.BaseEvent, ok bool, err error) {
	data, err := a.Blobs.Get(ctx, a.Key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", a.Key, err)
	}
	events, err = Decode(data)
	if err != nil {
		return nil, false, err
	}
	return events, true, nil
}

// Save replaces the stored blob with events.
func (a *Adapter) Save(ctx context.Context, events []model.BaseEvent) error {
	data, err := Encode(events)
	if err != nil {
		return err
	}
	if err := a.Blobs.Put(ctx, a.Key, data); err != nil {
		return fmt.Errorf("write %s: %w", a.Key, err)
	}
	return nil
}

// Encode serializes events as a JSON array. A nil slice encodes as [].
func Encode(events []model.BaseEvent) ([]byte, error) {
	if events == nil {
		events = []model.BaseEvent{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		return nil, fmt.Errorf("encode events: %w", err)
	}
	return data, nil
}

// Decode parses a JSON array of base events. Events are normalized and
// duplicate ids are rejected.
func Decode(data []byte) ([]model.BaseEvent, error) {
	var events []model.BaseEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	seen := make(map[string]struct{}, len(events))
	for i := range events {
		events[i].Normalize()
		id := events[i].ID
		if id == "" {
			return nil, fmt.Errorf("decode events: event %d has no id", i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("decode events: duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
	if events == nil {
		events = []model.BaseEvent{}
	}
	return events, nil
}
