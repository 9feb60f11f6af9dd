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

// Package metrics adapts tally.Scope for the handful of counters/timers the
// client and worker emit around RPCs, polls and activation processing.
package metrics

import (
	"time"

	"github.com/codahale/hdrhistogram"
	"github.com/uber-go/tally"
)

const (
	// unknownTagValue is the value TagScope gives a trailing key that has
	// no value paired with it.
	unknownTagValue = "_unknown_"
)

// TaggedScope wraps a tally.Scope, defaulting it to a no-op root scope when
// the caller hasn't configured one, and exposes the small histogram that
// client.go used to inline by hand.
type TaggedScope struct {
	tally.Scope
	latencies *hdrhistogram.Histogram
}

// NewTaggedScope returns scope itself wrapped, or a fresh no-op scope when
// scope is nil.
func NewTaggedScope(scope tally.Scope) *TaggedScope {
	if scope == nil {
		scope, _ = tally.NewRootScope(tally.ScopeOptions{}, time.Second)
	}
	return &TaggedScope{
		Scope:     scope,
		latencies: hdrhistogram.New(1, int64(time.Minute), 3),
	}
}

// RecordLatency records d both on the wrapped tally timer named name and on
// the in-process hdr histogram used for percentile introspection in tests.
func (s *TaggedScope) RecordLatency(name string, d time.Duration) {
	s.Scope.Timer(name).Record(d)
	s.latencies.RecordValue(int64(d))
}

// LatencyPercentile returns the recorded latency at the given percentile
// (0-100), or 0 if nothing has been recorded yet.
func (s *TaggedScope) LatencyPercentile(p float64) time.Duration {
	return time.Duration(s.latencies.ValueAtQuantile(p))
}

// TagScope returns a child scope with the given alternating key/value pairs
// as tags, defaulting every odd-length trailing key to unknownTagValue
// instead of panicking — metrics tagging should never be fatal.
func TagScope(scope tally.Scope, keyValueinterface ...string) tally.Scope {
	if scope == nil {
		scope, _ = tally.NewRootScope(tally.ScopeOptions{}, time.Second)
	}
	tagsMap := make(map[string]string)
	for i := 0; i < len(keyValueinterface); i += 2 {
		key := keyValueinterface[i]
		value := unknownTagValue
		if i+1 < len(keyValueinterface) {
			value = keyValueinterface[i+1]
		}
		tagsMap[key] = value
	}
	return scope.Tagged(tagsMap)
}
