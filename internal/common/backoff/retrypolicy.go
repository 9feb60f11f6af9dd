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

package backoff

import (
	"math/rand"
	"time"
)

// done is returned by Retrier.NextBackOff to signal that no further retry
// should be attempted.
const done time.Duration = -1

type (
	// Clock allows tests to substitute a virtual clock for time.Now.
	Clock interface {
		Now() time.Time
	}

	// Retrier keeps track of the retry attempt count for a single logical
	// operation and hands back successive backoff intervals.
	Retrier interface {
		NextBackOff() time.Duration
		Reset()
	}

	// RetryPolicy configures the exponential-backoff schedule a Retrier
	// follows. It is the in-process analogue of the wire RetryPolicy that
	// governs activity and workflow retries (spec's RetryPolicy carries the
	// same fields for the server-driven case).
	RetryPolicy interface {
		InitialInterval() time.Duration
		BackoffCoefficient() float64
		MaximumInterval() time.Duration
		MaximumAttempts() int
		ExpirationInterval() time.Duration
	}

	systemClock struct{}

	exponentialRetryPolicy struct {
		initialInterval    time.Duration
		backoffCoefficient float64
		maximumInterval    time.Duration
		expirationInterval time.Duration
		maximumAttempts    int
	}

	retrierImpl struct {
		policy        RetryPolicy
		clock         Clock
		currentAttempt int
		startTime      time.Time
	}
)

// SystemClock is the real wall-clock implementation of Clock.
var SystemClock Clock = systemClock{}

func (systemClock) Now() time.Time { return time.Now() }

// NewExponentialRetryPolicy returns a RetryPolicy with the given initial
// interval and the SDK's conventional coefficient of 2.0, no attempt cap,
// and a maximum interval of 100x the initial interval.
func NewExponentialRetryPolicy(initialInterval time.Duration) RetryPolicy {
	return &exponentialRetryPolicy{
		initialInterval:    initialInterval,
		backoffCoefficient: 2.0,
		maximumInterval:    100 * initialInterval,
	}
}

func (p *exponentialRetryPolicy) InitialInterval() time.Duration    { return p.initialInterval }
func (p *exponentialRetryPolicy) BackoffCoefficient() float64       { return p.backoffCoefficient }
func (p *exponentialRetryPolicy) MaximumInterval() time.Duration    { return p.maximumInterval }
func (p *exponentialRetryPolicy) MaximumAttempts() int              { return p.maximumAttempts }
func (p *exponentialRetryPolicy) ExpirationInterval() time.Duration { return p.expirationInterval }

// WithMaximumInterval overrides the cap on an exponentialRetryPolicy.
func (p *exponentialRetryPolicy) WithMaximumInterval(d time.Duration) *exponentialRetryPolicy {
	p.maximumInterval = d
	return p
}

// WithExpirationInterval bounds total elapsed retry time.
func (p *exponentialRetryPolicy) WithExpirationInterval(d time.Duration) *exponentialRetryPolicy {
	p.expirationInterval = d
	return p
}

// WithMaximumAttempts bounds the attempt count.
func (p *exponentialRetryPolicy) WithMaximumAttempts(n int) *exponentialRetryPolicy {
	p.maximumAttempts = n
	return p
}

// WithBackoffCoefficient overrides the exponential growth coefficient.
func (p *exponentialRetryPolicy) WithBackoffCoefficient(c float64) *exponentialRetryPolicy {
	p.backoffCoefficient = c
	return p
}

// NewRetrier builds a stateful Retrier that walks policy's schedule using
// clock to evaluate ExpirationInterval.
func NewRetrier(policy RetryPolicy, clock Clock) Retrier {
	return &retrierImpl{policy: policy, clock: clock, startTime: clock.Now()}
}

func (r *retrierImpl) Reset() {
	r.currentAttempt = 0
	r.startTime = r.clock.Now()
}

func (r *retrierImpl) NextBackOff() time.Duration {
	policy := r.policy
	if policy.MaximumAttempts() > 0 && r.currentAttempt >= policy.MaximumAttempts() {
		return done
	}

	elapsed := r.clock.Now().Sub(r.startTime)
	nextInterval := float64(policy.InitialInterval()) * pow(policy.BackoffCoefficient(), r.currentAttempt)
	if maxInterval := policy.MaximumInterval(); maxInterval > 0 && nextInterval > float64(maxInterval) {
		nextInterval = float64(maxInterval)
	}
	if nextInterval <= 0 {
		return done
	}

	// add +/-20% jitter so a thundering herd of pollers doesn't retry in lockstep.
	jittered := nextInterval * (0.8 + 0.4*rand.Float64())
	next := time.Duration(jittered)

	if expiration := policy.ExpirationInterval(); expiration > 0 && elapsed+next > expiration {
		return done
	}

	r.currentAttempt++
	return next
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
