// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package logger

import (
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"
)

// fakeLogrSink is a minimal logr.LogSink that records the verbosity level
// and message of every Info call, so FromLogr can be tested without pulling
// in a real logr backend (zap, logrus, klog, ...).
type fakeLogrSink struct {
	mu    sync.Mutex
	calls []fakeLogrCall
}

type fakeLogrCall struct {
	level int
	msg   string
}

func (s *fakeLogrSink) Init(logr.RuntimeInfo)                          {}
func (s *fakeLogrSink) Enabled(level int) bool                         { return true }
func (s *fakeLogrSink) Error(err error, msg string, kv ...interface{}) {}
func (s *fakeLogrSink) WithValues(kv ...interface{}) logr.LogSink      { return s }
func (s *fakeLogrSink) WithName(name string) logr.LogSink              { return s }

func (s *fakeLogrSink) Info(level int, msg string, kv ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, fakeLogrCall{level: level, msg: msg})
}

func (s *fakeLogrSink) snapshot() []fakeLogrCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]fakeLogrCall, len(s.calls))
	copy(out, s.calls)
	return out
}

func TestFromLogrForwardsLevelAndMessage(t *testing.T) {
	sink := &fakeLogrSink{}
	adapted := FromLogr(logr.New(sink))

	adapted.Info(int(LevelInfo)-DiffToInfo, "connection established", "address", "127.0.0.1:27017")
	adapted.Info(int(LevelDebug)-DiffToInfo, "frame written")

	calls := sink.snapshot()
	require.Len(t, calls, 2)
	require.Equal(t, "connection established", calls[0].msg)
	require.Equal(t, int(LevelInfo)-DiffToInfo, calls[0].level)
	require.Equal(t, "frame written", calls[1].msg)
	require.Equal(t, int(LevelDebug)-DiffToInfo, calls[1].level)
}

func TestLoggerDrainsThroughFromLogrAdapter(t *testing.T) {
	sink := &fakeLogrSink{}
	l := New(FromLogr(logr.New(sink)), map[Component]Level{ComponentConnection: LevelInfo})
	defer l.Close()

	l.Info(ComponentConnection, "connected")

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 1
	}, time.Second, time.Millisecond)
}
