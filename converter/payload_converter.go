// The MIT License
//
// Copyright (c) 2020 Temporal Technologies Inc.  All rights reserved.
//
// Copyright (c) 2020 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package converter implements the payload/failure conversion pipeline: the
// boundary between in-memory Go values/errors and the typed binary Payloads
// that travel over the wire. A PayloadConverter handles exactly one Go
// shape; the Default DataConverter tries a fixed list of them in order and
// stamps the winner's encoding tag into the payload's metadata so decoding
// can dispatch deterministically, without any I/O, clock, or randomness.
package converter

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	commonpb "go.temporal.io/api/common/v1"
)

// Well-known encoding tags stamped into Payload.Metadata["encoding"].
const (
	MetadataEncoding = "encoding"
	MetadataType     = "messageType"

	MetadataEncodingBinary      = "binary/plain"
	MetadataEncodingNil         = "binary/null"
	MetadataEncodingJSON        = "json/plain"
	MetadataEncodingProtoJSON   = "json/protobuf"
	MetadataEncodingProto       = "binary/protobuf"
)

// Errors returned by the built-in converters.
var (
	ErrUnableToEncode                   = errors.New("unable to encode value")
	ErrUnableToDecode                   = errors.New("unable to decode value")
	ErrUnableToSetValue                 = errors.New("unable to set value")
	ErrUnableToFindConverter            = errors.New("unable to find converter")
	ErrTypeIsNotByteSlice               = errors.New("type is not a byte slice")
	ErrValueIsNotPointer                = errors.New("value is not a pointer")
	ErrValueDoesntImplementProtoMessage = errors.New("value doesn't implement proto.Message")
	ErrMetadataIsNotSet                 = errors.New("metadata is not set")
	ErrEncodingIsNotSet                 = errors.New("payload encoding metadata is not set")
	ErrEncodingIsNotSupported           = errors.New("payload encoding is not supported")
)

// PayloadConverter encodes/decodes a single Go value to/from a Payload. Each
// converter handles exactly one shape and is tried in order by a
// CompositeDataConverter until one reports success (a nil, non-error
// return from ToPayload means "not applicable", not "encoded as nil").
type PayloadConverter interface {
	// ToPayload converts a single value to a payload. Returns nil, nil if
	// this converter cannot handle the value, so the caller tries the next
	// one in the chain.
	ToPayload(value interface{}) (*commonpb.Payload, error)
	// FromPayload converts a single payload back into valuePtr.
	FromPayload(payload *commonpb.Payload, valuePtr interface{}) error
	// ToString renders payload as a human-readable string, used by
	// workflow describe/list output and logging.
	ToString(payload *commonpb.Payload) string
	// Encoding returns the encoding tag this converter stamps on success.
	Encoding() string
}

type (
	byteSlicePayloadConverter struct{}
	nilPayloadConverter       struct{}
	jsonPayloadConverter      struct{}
)

// NewByteSlicePayloadConverter returns a converter for raw []byte values,
// tagged MetadataEncodingBinary.
func NewByteSlicePayloadConverter() PayloadConverter { return &byteSlicePayloadConverter{} }

func (c *byteSlicePayloadConverter) ToPayload(value interface{}) (*commonpb.Payload, error) {
	if slice, ok := value.([]byte); ok {
		return newPayload(slice, c), nil
	}
	return nil, nil
}

func (c *byteSlicePayloadConverter) FromPayload(payload *commonpb.Payload, valuePtr interface{}) error {
	rv := reflect.ValueOf(valuePtr)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("type %T: %w", valuePtr, ErrTypeIsNotByteSlice)
	}
	if !rv.Elem().CanSet() {
		return fmt.Errorf("type %T: %w", valuePtr, ErrUnableToSetValue)
	}
	rv.Elem().SetBytes(payload.GetData())
	return nil
}

func (c *byteSlicePayloadConverter) ToString(payload *commonpb.Payload) string {
	return fmt.Sprintf("%v", payload.GetData())
}

func (c *byteSlicePayloadConverter) Encoding() string { return MetadataEncodingBinary }

// NewNilPayloadConverter returns a converter for untyped nil values, tagged
// MetadataEncodingNil with an empty payload body.
func NewNilPayloadConverter() PayloadConverter { return &nilPayloadConverter{} }

func (c *nilPayloadConverter) ToPayload(value interface{}) (*commonpb.Payload, error) {
	if value == nil {
		return newPayload(nil, c), nil
	}
	return nil, nil
}

func (c *nilPayloadConverter) FromPayload(payload *commonpb.Payload, valuePtr interface{}) error {
	return nil
}

func (c *nilPayloadConverter) ToString(payload *commonpb.Payload) string { return "nil" }

func (c *nilPayloadConverter) Encoding() string { return MetadataEncodingNil }

// NewJSONPayloadConverter returns the fallback converter used for every
// value that isn't []byte or a proto.Message: encoding/json by way of
// json.Marshal/json.Unmarshal.
func NewJSONPayloadConverter() PayloadConverter { return &jsonPayloadConverter{} }

func (c *jsonPayloadConverter) ToPayload(value interface{}) (*commonpb.Payload, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnableToEncode, err)
	}
	return newPayload(data, c), nil
}

func (c *jsonPayloadConverter) FromPayload(payload *commonpb.Payload, valuePtr interface{}) error {
	if err := json.Unmarshal(payload.GetData(), valuePtr); err != nil {
		return fmt.Errorf("%w: %v", ErrUnableToDecode, err)
	}
	return nil
}

func (c *jsonPayloadConverter) ToString(payload *commonpb.Payload) string {
	return string(payload.GetData())
}

func (c *jsonPayloadConverter) Encoding() string { return MetadataEncodingJSON }

func newPayload(data []byte, converter PayloadConverter) *commonpb.Payload {
	return &commonpb.Payload{
		Metadata: map[string][]byte{
			MetadataEncoding: []byte(converter.Encoding()),
		},
		Data: data,
	}
}
