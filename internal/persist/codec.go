package persist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Codec converts values to and from their stored string form.
type Codec[T any] struct {
	Encode func(T) (string, error)
	Decode func(string) (T, error)
}

// JSON stores values as JSON text. It is the default codec.
func JSON[T any]() Codec[T] {
	return Codec[T]{
		Encode: func(v T) (string, error) {
			b, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return string(b), nil
		},
		Decode: func(s string) (T, error) {
			var v T
			err := json.Unmarshal([]byte(s), &v)
			return v, err
		},
	}
}

// Bool stores "true" or "false".
func Bool() Codec[bool] {
	return Codec[bool]{
		Encode: func(v bool) (string, error) { return strconv.FormatBool(v), nil },
		Decode: func(s string) (bool, error) {
			switch s {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
			return false, fmt.Errorf("invalid bool %q", s)
		},
	}
}

// Int stores base-10 integers.
func Int() Codec[int] {
	return Codec[int]{
		Encode: func(v int) (string, error) { return strconv.Itoa(v), nil },
		Decode: strconv.Atoi,
	}
}

// Float stores decimal numbers.
func Float() Codec[float64] {
	return Codec[float64]{
		Encode: func(v float64) (string, error) { return strconv.FormatFloat(v, 'g', -1, 64), nil },
		Decode: func(s string) (float64, error) { return strconv.ParseFloat(s, 64) },
	}
}

// String stores the value verbatim.
func String() Codec[string] {
	return Codec[string]{
		Encode: func(v string) (string, error) { return v, nil },
		Decode: func(s string) (string, error) { return s, nil },
	}
}

// Slice stores a JSON array and rejects any other JSON shape.
func Slice[E any]() Codec[[]E] {
	inner := JSON[[]E]()
	return Codec[[]E]{
		Encode: inner.Encode,
		Decode: func(s string) ([]E, error) {
			if !hasPrefixByte(s, '[') {
				return nil, errors.New("stored value is not a JSON array")
			}
			return inner.Decode(s)
		},
	}
}

// Object stores a JSON object and rejects any other JSON shape.
func Object[T any]() Codec[T] {
	inner := JSON[T]()
	return Codec[T]{
		Encode: inner.Encode,
		Decode: func(s string) (T, error) {
			if !hasPrefixByte(s, '{') {
				var zero T
				return zero, errors.New("stored value is not a JSON object")
			}
			return inner.Decode(s)
		},
	}
}

func hasPrefixByte(s string, c byte) bool {
	b := bytes.TrimSpace([]byte(s))
	return len(b) > 0 && b[0] == c
}
