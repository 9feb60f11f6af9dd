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
	commonpb "go.temporal.io/api/common/v1"
)

// Value wraps a single opaque result payload (a signal argument, a query
// result, an activity return value) whose concrete type a caller decodes
// lazily with Get.
type Value interface {
	// Get deserializes the result into valuePtr. A Value obtained from a
	// call that returned no result is Get-able with a nil-ish valuePtr
	// and returns HasValue() == false in that case.
	Get(valuePtr interface{}) error
	// HasValue reports whether the underlying payload carries data, as
	// opposed to representing a void result.
	HasValue() bool
}

// Values wraps a sequence of opaque result payloads, used for activity and
// workflow functions that return multiple values before the final error.
type Values interface {
	// Get deserializes the item at index into valuePtr.
	Get(index int, valuePtr interface{}) error
	// Size returns the number of items.
	Size() int
	// HasValues reports whether there is at least one item.
	HasValues() bool
}

type encodedValue struct {
	payload      *commonpb.Payload
	dataConverter DataConverter
}

// NewValue creates a new Value from a single payload, decoded lazily via
// dc on Get.
func NewValue(payload *commonpb.Payload, dc DataConverter) Value {
	return &encodedValue{payload: payload, dataConverter: dc}
}

func (b *encodedValue) HasValue() bool {
	return b.payload != nil
}

func (b *encodedValue) Get(valuePtr interface{}) error {
	if !b.HasValue() {
		return nil
	}
	return b.dataConverter.FromPayload(b.payload, valuePtr)
}

type encodedValues struct {
	payloads      *commonpb.Payloads
	dataConverter DataConverter
}

// NewValues creates a new Values from a Payloads envelope, decoded lazily
// via dc on Get.
func NewValues(payloads *commonpb.Payloads, dc DataConverter) Values {
	return &encodedValues{payloads: payloads, dataConverter: dc}
}

func (b *encodedValues) HasValues() bool {
	return b.payloads != nil && len(b.payloads.GetPayloads()) > 0
}

func (b *encodedValues) Size() int {
	return len(b.payloads.GetPayloads())
}

func (b *encodedValues) Get(index int, valuePtr interface{}) error {
	if !b.HasValues() || index >= len(b.payloads.GetPayloads()) {
		return nil
	}
	return b.dataConverter.FromPayload(b.payloads.GetPayloads()[index], valuePtr)
}
