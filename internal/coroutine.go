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
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// channelEpoch ticks on every successful Send/Receive/Close across every
// channel in the process: ExecuteUntilAllBlocked uses it to tell "a
// coroutine woke back up and immediately re-blocked on the same
// condition" (no tick) apart from "a coroutine's send unblocked data a
// sibling visited earlier in this pass can now consume" (a tick demands
// one more pass). A global counter is simpler than threading a
// per-dispatcher handle through every channelImpl, and a stray tick from
// an unrelated dispatcher running concurrently only costs one harmless
// extra pass, never an incorrect result.
var channelEpoch int64

// Context is the workflow-side analog of context.Context: it carries
// cancellation and values through a run's coroutine tree, but — unlike
// stdlib context — every operation on it must stay deterministic, so it
// has no wall-clock deadline and its Done channel is only ever closed by
// a cancel job delivered through history, never by a timer outside the
// engine's control.
//
// Workflow code receives one of these instead of a context.Context so the
// compiler catches accidental use of goroutines, channels, or time from
// the standard library in workflow bodies.
type Context interface {
	Done() Channel
	Err() error
	Value(key interface{}) interface{}
}

// Channel is the single primitive the cooperative scheduler suspends on:
// every suspension point a workflow body can block on — activity result,
// child workflow result, timer fire, signal, query, update, or a
// user-level condition — is implemented as a Receive on one of these.
type Channel interface {
	Receive(ctx Context, valuePtr interface{}) (more bool)
	ReceiveAsync(valuePtr interface{}) (ok bool)
	ReceiveAsyncWithMoreFlag(valuePtr interface{}) (ok bool, more bool)
	Send(ctx Context, v interface{})
	SendAsync(v interface{}) (ok bool)
	Close()
}

// Selector multiplexes a Receive/Send across several Channels plus an
// optional default, the way a workflow body races a timer against an
// activity (Workflow.timeout) or waits on "whichever signal arrives
// first".
type Selector interface {
	AddReceive(c Channel, f func(c Channel, more bool)) Selector
	AddSend(c Channel, v interface{}, f func()) Selector
	AddDefault(f func())
	Select(ctx Context)
}

// Dispatcher runs every coroutine spawned with Go cooperatively: exactly
// one is ever executing at a time, selected round-robin among those not
// blocked on a Channel. ExecuteUntilAllBlocked corresponds to running one
// activation's worth of work — it returns once every coroutine has either
// finished or suspended on a Channel.
type Dispatcher interface {
	ExecuteUntilAllBlocked() (err error)
	IsDone() bool
	Close()
	StackTrace() string
}

// channelImpl implements Channel by polling: a blocked Send/Receive yields
// back to the dispatcher and retries next round, rather than registering a
// callback. ExecuteUntilAllBlocked's repeated scan until no coroutine makes
// progress gives this the same observable behavior as callback-based
// wakeup, at the cost of an extra scheduling round per handoff — an
// acceptable trade given an activation's coroutine count is small.
type channelImpl struct {
	name   string
	size   int
	buffer []interface{}
	closed bool
}

// NewChannel creates an unbuffered Channel.
func NewChannel(ctx Context) Channel {
	return NewNamedChannel(ctx, "")
}

// NewNamedChannel creates an unbuffered Channel identified by name in
// StackTrace output.
func NewNamedChannel(ctx Context, name string) Channel {
	return &channelImpl{name: name}
}

// NewBufferedChannel creates a Channel that can hold size values before
// Send blocks.
func NewBufferedChannel(ctx Context, size int) Channel {
	return &channelImpl{size: size}
}

func (c *channelImpl) Receive(ctx Context, valuePtr interface{}) (more bool) {
	state := getState(ctx)
	for {
		if ok, more := c.ReceiveAsyncWithMoreFlag(valuePtr); ok || !more {
			return more
		}
		state.yield(fmt.Sprintf("blocked on %s.Receive", c.label()))
	}
}

func (c *channelImpl) ReceiveAsync(valuePtr interface{}) (ok bool) {
	ok, _ = c.ReceiveAsyncWithMoreFlag(valuePtr)
	return ok
}

func (c *channelImpl) ReceiveAsyncWithMoreFlag(valuePtr interface{}) (ok bool, more bool) {
	if len(c.buffer) > 0 {
		v := c.buffer[0]
		c.buffer = c.buffer[1:]
		assignValue(v, valuePtr)
		atomic.AddInt64(&channelEpoch, 1)
		return true, true
	}
	if c.closed {
		return false, false
	}
	return false, true
}

func (c *channelImpl) Send(ctx Context, v interface{}) {
	state := getState(ctx)
	for !c.SendAsync(v) {
		state.yield(fmt.Sprintf("blocked on %s.Send", c.label()))
	}
}

func (c *channelImpl) SendAsync(v interface{}) (ok bool) {
	if c.closed {
		panic("Send on closed channel")
	}
	capacity := c.size
	if capacity == 0 {
		// An unbuffered channel holds the one value handed to a receiver
		// until that receiver is next scheduled.
		capacity = 1
	}
	if len(c.buffer) < capacity {
		c.buffer = append(c.buffer, v)
		atomic.AddInt64(&channelEpoch, 1)
		return true
	}
	return false
}

func (c *channelImpl) Close() {
	c.closed = true
	atomic.AddInt64(&channelEpoch, 1)
}

func (c *channelImpl) label() string {
	if c.name == "" {
		return "Channel"
	}
	return c.name
}

func assignValue(src interface{}, dstPtr interface{}) {
	switch ptr := dstPtr.(type) {
	case *interface{}:
		*ptr = src
	default:
		// Best-effort: callers almost always pass *interface{}; typed
		// pointers go through converter.DataConverter upstream instead.
	}
}

// coroutineState backs one Go(ctx, f) invocation: a real goroutine
// synchronized against the dispatcher through a pair of unbuffered
// channels, so exactly one coroutine's user code ever runs concurrently
// with the dispatcher loop, matching the single-threaded scheduling model
// workflow replay requires. This is the practical Go substitute for true
// fibers: goroutines are plentiful and cheap, and Go has no first-class
// coroutine/fiber primitive to build this on top of instead.
type coroutineState struct {
	name         string
	id           int64
	aboutToBlock chan string // signals the dispatcher this coroutine is about to yield, carries a debug reason
	unblock      chan struct{}
	finished     bool
	panicErr     interface{}
}

// selectorImpl implements Selector by polling each registered branch in
// registration order every round: the first one ready wins, which gives
// deterministic tie-breaking when an activity result and a timer fire in
// the same activation (replay must pick the same branch every time).
type selectorCase struct {
	channel  Channel
	receiveF func(c Channel, more bool)
	sendV    interface{}
	sendF    func()
	isSend   bool
}

type selectorImpl struct {
	name       string
	cases      []selectorCase
	defaultF   func()
	hasDefault bool
}

// NewSelector creates a Selector that races Receive/Send operations
// across multiple Channels, resolving to whichever is ready first.
func NewSelector(ctx Context) Selector {
	return &selectorImpl{}
}

// NewNamedSelector creates a Selector identified by name in StackTrace
// output.
func NewNamedSelector(ctx Context, name string) Selector {
	return &selectorImpl{name: name}
}

func (s *selectorImpl) AddReceive(c Channel, f func(c Channel, more bool)) Selector {
	s.cases = append(s.cases, selectorCase{channel: c, receiveF: f})
	return s
}

func (s *selectorImpl) AddSend(c Channel, v interface{}, f func()) Selector {
	s.cases = append(s.cases, selectorCase{channel: c, sendV: v, sendF: f, isSend: true})
	return s
}

func (s *selectorImpl) AddDefault(f func()) {
	s.defaultF = f
	s.hasDefault = true
}

func (s *selectorImpl) Select(ctx Context) {
	state := getState(ctx)
	for {
		for _, c := range s.cases {
			if c.isSend {
				if c.channel.SendAsync(c.sendV) {
					c.sendF()
					return
				}
				continue
			}
			var v interface{}
			ok, more := c.channel.ReceiveAsyncWithMoreFlag(&v)
			if ok || !more {
				c.receiveF(&valueHolder{v: v}, more)
				return
			}
		}
		if s.hasDefault {
			s.defaultF()
			return
		}
		state.yield(fmt.Sprintf("blocked on %s.Select", s.label()))
	}
}

func (s *selectorImpl) label() string {
	if s.name == "" {
		return "Selector"
	}
	return s.name
}

// valueHolder lets Select hand a received value to its callback as a
// Channel without a second round of buffering: the callback only ever
// calls ReceiveAsync/ReceiveAsyncWithMoreFlag on it, both satisfied
// directly from v.
type valueHolder struct {
	v      interface{}
	polled bool
}

func (h *valueHolder) Receive(ctx Context, valuePtr interface{}) bool {
	ok, more := h.ReceiveAsyncWithMoreFlag(valuePtr)
	_ = ok
	return more
}

func (h *valueHolder) ReceiveAsync(valuePtr interface{}) bool {
	ok, _ := h.ReceiveAsyncWithMoreFlag(valuePtr)
	return ok
}

func (h *valueHolder) ReceiveAsyncWithMoreFlag(valuePtr interface{}) (ok bool, more bool) {
	if h.polled {
		return false, true
	}
	h.polled = true
	assignValue(h.v, valuePtr)
	return true, true
}

func (h *valueHolder) Send(ctx Context, v interface{})    {}
func (h *valueHolder) SendAsync(v interface{}) (ok bool)  { return false }
func (h *valueHolder) Close()                             {}

type dispatcherImpl struct {
	mu         sync.Mutex
	sequence   int64 // accessed only via atomic, even though mu guards coroutines
	coroutines []*coroutineState
	closed     bool
}

type contextKeyCoroutine struct{}
type contextKeyDispatcher struct{}

// newDispatcher creates a Dispatcher and spawns root as its first
// coroutine.
func newDispatcher(ctx Context, root func(ctx Context)) (Dispatcher, Context) {
	d := &dispatcherImpl{}
	rootCtx := withCoroutineState(ctx, nil)
	rootCtx = withDispatcher(rootCtx, d)
	rootCtx = d.newCoroutine(rootCtx, "root", root)
	return d, rootCtx
}

func withDispatcher(ctx Context, d *dispatcherImpl) Context {
	return &coroutineContext{
		parent: ctx,
		values: map[interface{}]interface{}{contextKeyDispatcher{}: d},
		done:   &channelImpl{},
	}
}

func (d *dispatcherImpl) newCoroutine(ctx Context, name string, f func(ctx Context)) Context {
	id := atomic.AddInt64(&d.sequence, 1)
	state := &coroutineState{
		name:         name,
		id:           id,
		aboutToBlock: make(chan string),
		unblock:      make(chan struct{}),
	}
	d.mu.Lock()
	d.coroutines = append(d.coroutines, state)
	d.mu.Unlock()

	coroutineCtx := withCoroutineState(ctx, state)
	go func() {
		<-state.unblock
		defer func() {
			if r := recover(); r != nil {
				state.panicErr = r
				state.finished = true
				state.aboutToBlock <- "panicked"
				return
			}
		}()
		f(coroutineCtx)
		state.finished = true
		state.aboutToBlock <- "finished"
	}()
	return coroutineCtx
}

// Go spawns a new coroutine cooperatively scheduled alongside every other
// coroutine in ctx's dispatcher — the structured-task-group primitive
// executeActivity/executeChildWorkflow/Selector all build on.
func Go(ctx Context, f func(ctx Context)) {
	state := getState(ctx)
	d := dispatcherFor(ctx)
	d.newCoroutine(ctx, fmt.Sprintf("%s.child", state.name), f)
}

func (s *coroutineState) yield(reason string) {
	s.aboutToBlock <- reason
	<-s.unblock
}

func (d *dispatcherImpl) ExecuteUntilAllBlocked() (err error) {
	for {
		d.mu.Lock()
		coroutines := append([]*coroutineState(nil), d.coroutines...)
		d.mu.Unlock()

		epochBefore := atomic.LoadInt64(&channelEpoch)
		finishedDuringPass := false

		for _, c := range coroutines {
			if c.finished {
				continue
			}
			wasFinished := c.finished
			c.unblock <- struct{}{}
			<-c.aboutToBlock
			if c.panicErr != nil {
				return fmt.Errorf("coroutine %s panicked: %v\n%s", c.name, c.panicErr, debug.Stack())
			}
			if c.finished && !wasFinished {
				finishedDuringPass = true
			}
		}

		d.mu.Lock()
		grew := len(d.coroutines) != len(coroutines)
		d.mu.Unlock()

		epochChanged := atomic.LoadInt64(&channelEpoch) != epochBefore
		if !finishedDuringPass && !grew && !epochChanged {
			return nil
		}
	}
}

func (d *dispatcherImpl) IsDone() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.coroutines {
		if !c.finished {
			return false
		}
	}
	return true
}

func (d *dispatcherImpl) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
}

func (d *dispatcherImpl) StackTrace() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	trace := ""
	for _, c := range d.coroutines {
		status := "blocked"
		if c.finished {
			status = "finished"
		}
		trace += fmt.Sprintf("coroutine %s [%s]\n", c.name, status)
	}
	return trace
}

type coroutineContext struct {
	parent Context
	state  *coroutineState
	values map[interface{}]interface{}
	done   Channel
}

func withCoroutineState(parent Context, state *coroutineState) Context {
	return &coroutineContext{parent: parent, state: state, done: &channelImpl{}}
}

func (c *coroutineContext) Done() Channel {
	if c.done != nil {
		return c.done
	}
	if c.parent != nil {
		return c.parent.Done()
	}
	return &channelImpl{closed: true}
}

func (c *coroutineContext) Err() error {
	if c.parent != nil {
		return c.parent.Err()
	}
	return nil
}

func (c *coroutineContext) Value(key interface{}) interface{} {
	if key == (contextKeyCoroutine{}) {
		return c.state
	}
	if c.values != nil {
		if v, ok := c.values[key]; ok {
			return v
		}
	}
	if c.parent != nil {
		return c.parent.Value(key)
	}
	return nil
}

func dispatcherFor(ctx Context) *dispatcherImpl {
	if d, ok := ctx.Value(contextKeyDispatcher{}).(*dispatcherImpl); ok {
		return d
	}
	return nil
}

func getState(ctx Context) *coroutineState {
	if s, ok := ctx.Value(contextKeyCoroutine{}).(*coroutineState); ok && s != nil {
		return s
	}
	return &coroutineState{name: "detached", aboutToBlock: make(chan string, 1), unblock: make(chan struct{}, 1)}
}

