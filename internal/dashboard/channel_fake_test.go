package dashboard

import (
	"context"
	"encoding/json"
	"sync"

	"greenlife-monitor/internal/channel"
)

// fakeChannel in-memory channel.Channel. Pushes are driven by the test.
type fakeChannel struct {
	mu           sync.Mutex
	subs         []*fakeSubscription
	writes       []map[string]interface{}
	writeErr     error
	subscribeErr map[string]error
}

type fakeSubscription struct {
	path    string
	handler channel.Handler

	mu     sync.Mutex
	closed bool
	closes int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{subscribeErr: make(map[string]error)}
}

func (f *fakeChannel) Subscribe(path string, h channel.Handler) (channel.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.subscribeErr[path]; err != nil {
		return nil, err
	}
	sub := &fakeSubscription{path: path, handler: h}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeChannel) WritePartial(ctx context.Context, path string, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, fields)
	return f.writeErr
}

func (s *fakeSubscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	s.closed = true
}

func (s *fakeSubscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// push delivers doc to every open subscription on path.
func (f *fakeChannel) push(path string, doc map[string]interface{}) {
	snap := channel.Snapshot{Path: path}
	if doc != nil {
		snap.Fields = make(map[string]json.RawMessage, len(doc))
		for k, v := range doc {
			data, _ := json.Marshal(v)
			snap.Fields[k] = data
		}
	}
	for _, sub := range f.open(path) {
		sub.handler.OnSnapshot(snap)
	}
}

// pushRaw delivers fields verbatim.
func (f *fakeChannel) pushRaw(path string, fields map[string]json.RawMessage) {
	for _, sub := range f.open(path) {
		sub.handler.OnSnapshot(channel.Snapshot{Path: path, Fields: fields})
	}
}

func (f *fakeChannel) fail(path string, err error) {
	for _, sub := range f.open(path) {
		sub.handler.OnError(err)
	}
}

func (f *fakeChannel) open(path string) []*fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeSubscription
	for _, sub := range f.subs {
		if sub.path == path && !sub.isClosed() {
			out = append(out, sub)
		}
	}
	return out
}

func (f *fakeChannel) all() []*fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeSubscription(nil), f.subs...)
}

func (f *fakeChannel) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func channelSnapshot(path string, fields map[string]json.RawMessage) channel.Snapshot {
	return channel.Snapshot{Path: path, Fields: fields}
}
