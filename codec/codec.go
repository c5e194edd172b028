// Package codec defines the serializer/deserializer pair used to write bulk
// action lines and read bulk responses.
package codec

import (
	"encoding/json"
	"io"
)

// Serializer encodes a value into its wire representation.
type Serializer interface {
	Marshal(v any) ([]byte, error)
}

// Deserializer decodes a wire representation into v.
type Deserializer interface {
	Decode(r io.Reader, v any) error
}

// SerializerFunc adapts a function to Serializer.
type SerializerFunc func(v any) ([]byte, error)

// Marshal implements Serializer.
func (f SerializerFunc) Marshal(v any) ([]byte, error) { return f(v) }

// DeserializerFunc adapts a function to Deserializer.
type DeserializerFunc func(r io.Reader, v any) error

// Decode implements Deserializer.
func (f DeserializerFunc) Decode(r io.Reader, v any) error { return f(r, v) }

// JSON is the default codec.
type JSON struct{}

// Marshal implements Serializer.
func (JSON) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode implements Deserializer. An empty stream yields io.EOF.
func (JSON) Decode(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}
