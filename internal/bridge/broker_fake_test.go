package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	mqttcommon "greenlife-monitor/common/mqtt"
	"greenlife-monitor/internal/channel"
)

type published struct {
	topic   string
	payload []byte
}

type fakeBroker struct {
	mu           sync.Mutex
	handlers     map[string]mqttcommon.MessageHandler
	published    []published
	publishErr   error
	unsubscribed []string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]mqttcommon.MessageHandler)}
}

func (f *fakeBroker) Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeBroker) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{topic: topic, payload: payload})
	return nil
}

func (f *fakeBroker) Unsubscribe(topics ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, topics...)
	return nil
}

func (f *fakeBroker) deliver(topic string, payload []byte) error {
	f.mu.Lock()
	h, ok := f.handlers[topic]
	f.mu.Unlock()
	if !ok {
		return errors.New("no subscriber")
	}
	return h(topic, payload)
}

func (f *fakeBroker) commands() []DeviceCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []DeviceCommand
	for _, p := range f.published {
		var cmd DeviceCommand
		if json.Unmarshal(p.payload, &cmd) == nil {
			out = append(out, cmd)
		}
	}
	return out
}

// recordingChannel keeps every merged write and the resulting document.
// Subscribe is unused by direct tests.
type recordingChannel struct {
	mu     sync.Mutex
	doc    map[string]json.RawMessage
	writes []map[string]interface{}
}

func (r *recordingChannel) Subscribe(path string, h channel.Handler) (channel.Subscription, error) {
	return nil, errors.New("not supported")
}

func (r *recordingChannel) Update(ctx context.Context, path string, fn channel.UpdateFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current := channel.Snapshot{Path: path}
	if len(r.doc) > 0 {
		current.Fields = make(map[string]json.RawMessage, len(r.doc))
		for k, v := range r.doc {
			current.Fields[k] = v
		}
	}
	fields, err := fn(current)
	if err != nil || len(fields) == 0 {
		return err
	}
	r.merge(fields)
	r.writes = append(r.writes, fields)
	return nil
}

// userWrite stands in for a dashboard toggling the fan.
func (r *recordingChannel) userWrite(fan bool) channel.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.merge(map[string]interface{}{"fan": fan})
	return fanSnapshot(fan)
}

func (r *recordingChannel) merge(fields map[string]interface{}) {
	if r.doc == nil {
		r.doc = make(map[string]json.RawMessage)
	}
	for k, v := range fields {
		data, _ := json.Marshal(v)
		r.doc[k] = data
	}
}

func (r *recordingChannel) last() map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.writes) == 0 {
		return nil
	}
	return r.writes[len(r.writes)-1]
}

func fanSnapshot(fan bool) channel.Snapshot {
	data, _ := json.Marshal(fan)
	return channel.Snapshot{Path: "health_monitor", Fields: map[string]json.RawMessage{"fan": data, "pulse": json.RawMessage("72")}}
}
