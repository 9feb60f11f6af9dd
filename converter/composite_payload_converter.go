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

// CompositePayloadConverter tries each of its PayloadConverters in order,
// stopping at the first whose ToPayload succeeds. Decoding dispatches by
// the encoding tag the winning converter stamped; missing metadata, an
// absent tag or an unknown tag yields ErrMetadataIsNotSet,
// ErrEncodingIsNotSet or a wrapped ErrEncodingIsNotSupported.
type CompositePayloadConverter struct {
	converters       []PayloadConverter
	convertersByName map[string]PayloadConverter
}

// NewCompositePayloadConverter builds a CompositePayloadConverter trying
// converters in the order given; the first match wins.
func NewCompositePayloadConverter(converters ...PayloadConverter) *CompositePayloadConverter {
	c := &CompositePayloadConverter{
		converters:       converters,
		convertersByName: make(map[string]PayloadConverter, len(converters)),
	}
	for _, conv := range converters {
		c.convertersByName[conv.Encoding()] = conv
	}
	return c
}

// ToPayload runs value through each converter in order and returns the
// first successful encoding. Returns ErrUnableToFindConverter if none
// apply.
func (c *CompositePayloadConverter) ToPayload(value interface{}) (*commonpb.Payload, error) {
	for _, converter := range c.converters {
		payload, err := converter.ToPayload(value)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			return payload, nil
		}
	}
	return nil, fmt.Errorf("value of type %T: %w", value, ErrUnableToFindConverter)
}

// FromPayload dispatches to the converter named by the payload's encoding
// metadata.
func (c *CompositePayloadConverter) FromPayload(payload *commonpb.Payload, valuePtr interface{}) error {
	metadata := payload.GetMetadata()
	if metadata == nil {
		return ErrMetadataIsNotSet
	}
	encoding, ok := metadata[MetadataEncoding]
	if !ok {
		return ErrEncodingIsNotSet
	}
	converter, ok := c.convertersByName[string(encoding)]
	if !ok {
		return fmt.Errorf("encoding %s: %w", encoding, ErrEncodingIsNotSupported)
	}
	return converter.FromPayload(payload, valuePtr)
}

// ToString renders payload using the converter named by its encoding tag.
func (c *CompositePayloadConverter) ToString(payload *commonpb.Payload) string {
	metadata := payload.GetMetadata()
	if metadata == nil {
		return "<metadata is not set>"
	}
	encoding, ok := metadata[MetadataEncoding]
	if !ok {
		return "<encoding is not set>"
	}
	converter, ok := c.convertersByName[string(encoding)]
	if !ok {
		return fmt.Sprintf("<unknown encoding %s>", encoding)
	}
	return converter.ToString(payload)
}
