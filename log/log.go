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

// Package log exposes the logging seam shared by the client, worker and
// workflow/activity execution contexts. It intentionally mirrors the
// subset of zap's API that workflow code is allowed to touch, so that
// determinism isn't compromised by accidental access to a zap.Logger.
package log

import "go.uber.org/zap"

// Logger is the logging interface used throughout the SDK. Nothing in this
// package buffers or suppresses messages during replay.
type Logger interface {
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
}

// With returns a Logger that always logs the supplied key/value pairs in
// addition to whatever is passed at the call site.
func With(logger Logger, keyvals ...interface{}) Logger {
	return &withLogger{base: logger, keyvals: keyvals}
}

// NewZapAdapter wraps a *zap.SugaredLogger as a Logger. NewNopLogger, the
// default client construction uses when no Logger option is supplied, is
// built on it.
func NewZapAdapter(zl *zap.SugaredLogger) Logger {
	return &zapAdapter{zl: zl}
}

// NewNopLogger returns a Logger that discards everything, used as the
// zero-value default so nil checks aren't needed on every call site.
func NewNopLogger() Logger {
	return NewZapAdapter(zap.NewNop().Sugar())
}

type zapAdapter struct {
	zl *zap.SugaredLogger
}

func (a *zapAdapter) Debug(msg string, keyvals ...interface{}) { a.zl.Debugw(msg, keyvals...) }
func (a *zapAdapter) Info(msg string, keyvals ...interface{})  { a.zl.Infow(msg, keyvals...) }
func (a *zapAdapter) Warn(msg string, keyvals ...interface{})  { a.zl.Warnw(msg, keyvals...) }
func (a *zapAdapter) Error(msg string, keyvals ...interface{}) { a.zl.Errorw(msg, keyvals...) }

type withLogger struct {
	base    Logger
	keyvals []interface{}
}

func (w *withLogger) merge(keyvals []interface{}) []interface{} {
	merged := make([]interface{}, 0, len(w.keyvals)+len(keyvals))
	merged = append(merged, w.keyvals...)
	merged = append(merged, keyvals...)
	return merged
}

func (w *withLogger) Debug(msg string, keyvals ...interface{}) { w.base.Debug(msg, w.merge(keyvals)...) }
func (w *withLogger) Info(msg string, keyvals ...interface{})  { w.base.Info(msg, w.merge(keyvals)...) }
func (w *withLogger) Warn(msg string, keyvals ...interface{})  { w.base.Warn(msg, w.merge(keyvals)...) }
func (w *withLogger) Error(msg string, keyvals ...interface{}) { w.base.Error(msg, w.merge(keyvals)...) }
