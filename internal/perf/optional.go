package perf

import "encoding/json"

// Optional holds the result of a best-effort probe. An unsupported reading
// is distinct from a zero reading.
type Optional[T any] struct {
	value     T
	supported bool
}

// Some wraps a supported reading.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, supported: true}
}

// Unsupported returns the reading of a probe the platform lacks.
func Unsupported[T any]() Optional[T] {
	return Optional[T]{}
}

func (o Optional[T]) Get() (T, bool) {
	return o.value, o.supported
}

func (o Optional[T]) IsSupported() bool {
	return o.supported
}

// OrElse returns the reading, or def when unsupported.
func (o Optional[T]) OrElse(def T) T {
	if o.supported {
		return o.value
	}
	return def
}

// MarshalJSON encodes an unsupported reading as null.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.supported {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*o = Unsupported[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}
