package models

import "encoding/json"

// Loadable is a value that is either NotYetLoaded or Loaded.
// The zero value is NotYetLoaded.
type Loadable[T any] struct {
	value  T
	loaded bool
}

// Loaded wraps v as a loaded value.
func Loaded[T any](v T) Loadable[T] {
	return Loadable[T]{value: v, loaded: true}
}

// NotYetLoaded returns the empty variant.
func NotYetLoaded[T any]() Loadable[T] {
	return Loadable[T]{}
}

// Get returns the value and whether it is loaded.
func (l Loadable[T]) Get() (T, bool) {
	return l.value, l.loaded
}

// IsLoaded reports whether a value is present.
func (l Loadable[T]) IsLoaded() bool {
	return l.loaded
}

// MarshalJSON encodes NotYetLoaded as null.
func (l Loadable[T]) MarshalJSON() ([]byte, error) {
	if !l.loaded {
		return []byte("null"), nil
	}
	return json.Marshal(l.value)
}

// UnmarshalJSON treats null as NotYetLoaded.
func (l *Loadable[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = Loadable[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*l = Loaded(v)
	return nil
}
