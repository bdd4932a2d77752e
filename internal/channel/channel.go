package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrDocumentMissing the snapshot holds no document
var ErrDocumentMissing = errors.New("document does not exist")

// Snapshot full contents of one remote document at a point in time.
// Fields holds each top-level field as its JSON encoding; nil means the
// document does not exist.
type Snapshot struct {
	Path   string
	Fields map[string]json.RawMessage
}

// Exists reports whether the document had any content.
func (s Snapshot) Exists() bool {
	return len(s.Fields) > 0
}

// Decode unmarshals the document into v.
func (s Snapshot) Decode(v interface{}) error {
	if !s.Exists() {
		return fmt.Errorf("%s: %w", s.Path, ErrDocumentMissing)
	}
	data, err := json.Marshal(s.Fields)
	if err != nil {
		return fmt.Errorf("malformed document %s: %w", s.Path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode document %s: %w", s.Path, err)
	}
	return nil
}

// Handler receives pushes for one subscription. Calls arrive on the
// subscription's own goroutine and must not block for long.
type Handler interface {
	OnSnapshot(Snapshot)
	OnError(error)
}

// HandlerFuncs adapts a pair of functions to Handler.
type HandlerFuncs struct {
	Snapshot func(Snapshot)
	Error    func(error)
}

func (h HandlerFuncs) OnSnapshot(s Snapshot) {
	if h.Snapshot != nil {
		h.Snapshot(s)
	}
}

func (h HandlerFuncs) OnError(err error) {
	if h.Error != nil {
		h.Error(err)
	}
}

// Subscription is stopped with Close. Close is idempotent and no handler call
// starts after it returns.
type Subscription interface {
	Close()
}

// Channel realtime remote document store
type Channel interface {
	// Subscribe delivers the current document promptly, then every change.
	Subscribe(path string, h Handler) (Subscription, error)
	// WritePartial merges fields into the document at path.
	WritePartial(ctx context.Context, path string, fields map[string]interface{}) error
}

// UpdateFunc computes the fields to merge from the current document. An empty
// result writes nothing.
type UpdateFunc func(current Snapshot) (map[string]interface{}, error)

// SubscriptionError a subscription lost its document. It is reported once per
// outage; the subscription keeps retrying and resumes with a fresh snapshot.
type SubscriptionError struct {
	Path string
	Err  error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription %s failed: %v", e.Path, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}
