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
	failurepb "go.temporal.io/api/failure/v1"
)

// FailureConverter converts Go errors to/from the wire failurepb.Failure
// representation. It is a separate pluggable stage from DataConverter
// because it has to decide, independently of payload shape, whether the
// message and stack trace of an application error are safe to carry
// verbatim or should be scrubbed (encodeCommonAttributes mode).
type FailureConverter interface {
	ErrorToFailure(err error) *failurepb.Failure
	FailureToError(failure *failurepb.Failure) error
}

// DefaultFailureConverter round-trips errors through failurepb.Failure
// without any redaction. EncodeCommonAttributes, when set, replaces the
// message of every failure in the cause chain with "Encoded failure" and
// clears its stack trace, for deployments that don't trust worker-emitted
// text to stay out of logs and UI. Other fields are left as they are.
type DefaultFailureConverter struct {
	EncodeCommonAttributes bool
}

// NewDefaultFailureConverter returns a DefaultFailureConverter with
// EncodeCommonAttributes disabled.
func NewDefaultFailureConverter() *DefaultFailureConverter {
	return &DefaultFailureConverter{}
}

// ErrorToFailure converts err into its wire representation. The actual
// per-type construction logic lives in internal/error.go's
// convertErrorToFailure, which this delegates to via the package-level
// hook below to avoid an import cycle between converter and internal.
func (c *DefaultFailureConverter) ErrorToFailure(err error) *failurepb.Failure {
	if err == nil {
		return nil
	}
	failure := ErrorToFailureFunc(err)
	if c.EncodeCommonAttributes {
		scrub(failure)
	}
	return failure
}

// FailureToError reconstructs a Go error from its wire representation.
func (c *DefaultFailureConverter) FailureToError(failure *failurepb.Failure) error {
	if failure == nil {
		return nil
	}
	return FailureToErrorFunc(failure)
}

func scrub(failure *failurepb.Failure) {
	for f := failure; f != nil; f = f.GetCause() {
		f.Message = "Encoded failure"
		f.StackTrace = ""
	}
}

// ErrorToFailureFunc and FailureToErrorFunc are filled in by the internal
// package at init time, since the full TemporalFailure type switch needs
// the concrete error types defined there; converter stays free of that
// dependency so it can be imported standalone (e.g. from client code that
// only needs DataConverter).
var (
	ErrorToFailureFunc = func(err error) *failurepb.Failure {
		return &failurepb.Failure{Message: err.Error()}
	}
	FailureToErrorFunc = func(failure *failurepb.Failure) error {
		return &genericFailureError{failure: failure}
	}
)

type genericFailureError struct {
	failure *failurepb.Failure
}

func (e *genericFailureError) Error() string { return e.failure.GetMessage() }
