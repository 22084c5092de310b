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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu   sync.Mutex
	msgs []string
}

func (c *captureSink) Info(level int, msg string, keysAndValues ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *captureSink) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.msgs))
	copy(out, c.msgs)
	return out
}

func TestLoggerRespectsComponentLevel(t *testing.T) {
	sink := &captureSink{}
	l := New(sink, map[Component]Level{
		ComponentConnection: LevelInfo,
		ComponentCommand:    LevelOff,
	})
	defer l.Close()

	l.Info(ComponentConnection, "connected")
	l.Debug(ComponentConnection, "frame written")
	l.Info(ComponentCommand, "command started")

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 1
	}, time.Second, time.Millisecond)

	assert.Equal(t, []string{"connected"}, sink.snapshot())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelOff, ParseLevel(""))
	assert.Equal(t, LevelOff, ParseLevel("bogus"))
	assert.Equal(t, LevelInfo, ParseLevel("INFO"))
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelDebug, ParseLevel("trace"))
}
