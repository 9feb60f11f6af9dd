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

package internal

import (
	"fmt"

	commonpb "go.temporal.io/api/common/v1"
)

// EncodedValues wraps a Payloads envelope received off the wire (activity
// details, heartbeat details, query/update results) so callers can decode
// it lazily, once they know the concrete Go types involved.
type EncodedValues struct {
	values        *commonpb.Payloads
	dataConverter DataConverter
}

func newEncodedValues(values *commonpb.Payloads, dc DataConverter) *EncodedValues {
	if dc == nil {
		dc = getDefaultDataConverter()
	}
	return &EncodedValues{values: values, dataConverter: dc}
}

// HasValues reports whether the envelope carries at least one payload.
func (b *EncodedValues) HasValues() bool {
	return b.values != nil && len(b.values.GetPayloads()) > 0
}

// Get decodes the envelope's payloads, in order, into valuePtrs.
func (b *EncodedValues) Get(valuePtrs ...interface{}) error {
	if !b.HasValues() {
		return nil
	}
	return b.dataConverter.FromPayloads(b.values, valuePtrs...)
}

// ErrorDetailsValues holds details supplied to an error constructor
// (NewApplicationError, NewCanceledError, ...) before they have been
// encoded to wire payloads. Encoding is deferred to convertErrorToFailure
// so that constructing an error from workflow/activity code never needs a
// DataConverter in scope.
type ErrorDetailsValues []interface{}

// HasValues reports whether any detail was supplied.
func (d ErrorDetailsValues) HasValues() bool {
	return len(d) > 0
}

// Get assigns the first len(valuePtrs) details to valuePtrs in order.
// ErrorDetailsValues holds raw Go values, not payloads, so each detail is
// round-tripped through the default DataConverter into its valuePtr.
func (d ErrorDetailsValues) Get(valuePtrs ...interface{}) error {
	if len(valuePtrs) > len(d) {
		return fmt.Errorf("requested %d values, only %d present", len(valuePtrs), len(d))
	}
	for i, ptr := range valuePtrs {
		if err := assignDetail(d[i], ptr); err != nil {
			return fmt.Errorf("detail %d: %w", i, err)
		}
	}
	return nil
}

func assignDetail(value interface{}, ptr interface{}) error {
	data, err := getDefaultDataConverter().ToPayload(value)
	if err != nil {
		return err
	}
	return getDefaultDataConverter().FromPayload(data, ptr)
}

// encodeArgs serializes a variable argument list through dc into a
// Payloads envelope, used when ErrorDetailsValues details finally cross
// the wire as a failurepb.Failure's details field.
func encodeArgs(dc DataConverter, args []interface{}) (*commonpb.Payloads, error) {
	if dc == nil {
		dc = getDefaultDataConverter()
	}
	if len(args) == 0 {
		return nil, nil
	}
	return dc.ToPayloads(args...)
}
