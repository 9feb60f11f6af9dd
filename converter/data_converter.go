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

package converter

import (
	"fmt"

	commonpb "go.temporal.io/api/common/v1"
)

// DataConverter is used by the framework to serialize/deserialize the
// arguments and return values of workflows, activities, signals, queries
// and updates that cross the wire to the Temporal cluster. Implementations
// must be deterministic, side-effect-free, and safe for concurrent use.
type DataConverter interface {
	// ToPayload converts a single value to a payload.
	ToPayload(value interface{}) (*commonpb.Payload, error)
	// FromPayload converts a single payload back to a value.
	FromPayload(payload *commonpb.Payload, valuePtr interface{}) error
	// ToPayloads converts a list of values to a Payloads envelope.
	ToPayloads(value ...interface{}) (*commonpb.Payloads, error)
	// FromPayloads converts a Payloads envelope back to a list of values.
	// Extra valuePtrs beyond len(payloads) are left untouched; extra
	// payloads beyond len(valuePtrs) are ignored. An arity mismatch is not
	// reported as an error.
	FromPayloads(payloads *commonpb.Payloads, valuePtrs ...interface{}) error
	// ToString renders a single payload as a human-readable string, used
	// in workflow describe/stack-trace output.
	ToString(input *commonpb.Payload) string
	// ToStrings renders every payload in the envelope.
	ToStrings(input *commonpb.Payloads) []string
}

// CompositeDataConverter is the default DataConverter: it delegates single
// values to an underlying CompositePayloadConverter and loops over
// Payloads envelopes.
type CompositeDataConverter struct {
	payloadConverter *CompositePayloadConverter
}

// NewCompositeDataConverter builds a CompositeDataConverter trying the
// given PayloadConverters, in order, for every value.
func NewCompositeDataConverter(converters ...PayloadConverter) *CompositeDataConverter {
	return &CompositeDataConverter{payloadConverter: NewCompositePayloadConverter(converters...)}
}

// defaultConverters orders candidate converters cheapest and most
// specific first: nil and raw bytes, then proto binary/JSON so typed
// proto messages never fall through to JSON reflection, with JSON itself
// as the catch-all.
func defaultConverters() []PayloadConverter {
	return []PayloadConverter{
		NewNilPayloadConverter(),
		NewByteSlicePayloadConverter(),
		NewProtoJSONPayloadConverter(),
		NewProtoPayloadConverter(),
		NewJSONPayloadConverter(),
	}
}

// Default is the DataConverter used when no DataConverter option is
// supplied to client/worker construction.
var Default DataConverter = NewCompositeDataConverter(defaultConverters()...)

func (dc *CompositeDataConverter) ToPayload(value interface{}) (*commonpb.Payload, error) {
	return dc.payloadConverter.ToPayload(value)
}

func (dc *CompositeDataConverter) FromPayload(payload *commonpb.Payload, valuePtr interface{}) error {
	return dc.payloadConverter.FromPayload(payload, valuePtr)
}

func (dc *CompositeDataConverter) ToPayloads(values ...interface{}) (*commonpb.Payloads, error) {
	if len(values) == 0 {
		return nil, nil
	}
	result := &commonpb.Payloads{}
	for i, value := range values {
		payload, err := dc.payloadConverter.ToPayload(value)
		if err != nil {
			return nil, fmt.Errorf("values[%d]: %w", i, err)
		}
		result.Payloads = append(result.Payloads, payload)
	}
	return result, nil
}

func (dc *CompositeDataConverter) FromPayloads(payloads *commonpb.Payloads, valuePtrs ...interface{}) error {
	if payloads == nil {
		return nil
	}
	for i, payload := range payloads.GetPayloads() {
		if i >= len(valuePtrs) {
			break
		}
		if err := dc.payloadConverter.FromPayload(payload, valuePtrs[i]); err != nil {
			return fmt.Errorf("payload item %d: %w", i, err)
		}
	}
	return nil
}

func (dc *CompositeDataConverter) ToString(payload *commonpb.Payload) string {
	return dc.payloadConverter.ToString(payload)
}

func (dc *CompositeDataConverter) ToStrings(payloads *commonpb.Payloads) []string {
	var result []string
	for _, payload := range payloads.GetPayloads() {
		result = append(result, dc.ToString(payload))
	}
	return result
}

// WithChainedCodecs wraps dc so every payload it produces passes through
// codecs (in order) on encode, and through them in reverse on decode —
// e.g. compression followed by encryption.
func WithChainedCodecs(dc DataConverter, codecs ...PayloadCodec) DataConverter {
	if len(codecs) == 0 {
		return dc
	}
	return &codecDataConverter{DataConverter: dc, codecs: codecs}
}

type codecDataConverter struct {
	DataConverter
	codecs []PayloadCodec
}

func (c *codecDataConverter) ToPayload(value interface{}) (*commonpb.Payload, error) {
	payload, err := c.DataConverter.ToPayload(value)
	if err != nil {
		return nil, err
	}
	return encodeThroughCodecs(payload, c.codecs)
}

func (c *codecDataConverter) FromPayload(payload *commonpb.Payload, valuePtr interface{}) error {
	decoded, err := decodeThroughCodecs(payload, c.codecs)
	if err != nil {
		return err
	}
	return c.DataConverter.FromPayload(decoded, valuePtr)
}

func (c *codecDataConverter) ToPayloads(values ...interface{}) (*commonpb.Payloads, error) {
	payloads, err := c.DataConverter.ToPayloads(values...)
	if err != nil {
		return nil, err
	}
	return EncodePayloads(payloads, c.codecs...)
}

func (c *codecDataConverter) FromPayloads(payloads *commonpb.Payloads, valuePtrs ...interface{}) error {
	decoded, err := DecodePayloads(payloads, c.codecs...)
	if err != nil {
		return err
	}
	return c.DataConverter.FromPayloads(decoded, valuePtrs...)
}
