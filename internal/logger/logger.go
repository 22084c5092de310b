// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package logger provides the core's structured, leveled, component-scoped
// logging. It is designed so a LogSink shaped like go-logr/logr's LogSink
// interface can be plugged in; absent one, messages go to os.Stderr.
package logger

import (
	"fmt"
	"os"
	"time"
)

const envVarLevel = "MONGOWIRE_LOG_LEVEL"
const jobBufferSize = 100

// LogSink represents a logging implementation. It is specifically designed to
// be a subset of go-logr/logr's LogSink interface, so a *logr.Logger can be
// adapted into one with a single-method shim.
type LogSink interface {
	Info(level int, msg string, keysAndValues ...interface{})
}

type job struct {
	level     Level
	component Component
	message   string
	kv        []interface{}
}

// Logger fans log jobs out to a Sink on a dedicated goroutine so that
// submitting a log message never blocks the caller on I/O.
type Logger struct {
	ComponentLevels map[Component]Level
	Sink            LogSink

	jobs chan job
}

// New constructs a Logger. If sink is nil, an os.Stderr sink is used. If
// componentLevels is nil or omits a component, that component's level is
// sourced from the MONGOWIRE_LOG_LEVEL environment variable, defaulting to
// LevelOff.
func New(sink LogSink, componentLevels map[Component]Level) *Logger {
	envLevel := ParseLevel(os.Getenv(envVarLevel))
	levels := map[Component]Level{
		ComponentConnection:     envLevel,
		ComponentCommand:        envLevel,
		ComponentAuthentication: envLevel,
		ComponentCursor:         envLevel,
	}
	for c, l := range componentLevels {
		levels[c] = l
	}

	if sink == nil {
		sink = newStderrSink()
	}

	l := &Logger{
		ComponentLevels: levels,
		Sink:            sink,
		jobs:            make(chan job, jobBufferSize),
	}
	go l.drain()
	return l
}

// Is reports whether the given level is enabled for the given component.
func (l *Logger) Is(level Level, component Component) bool {
	if l == nil {
		return false
	}
	return l.ComponentLevels[component] >= level
}

// Info logs a lifecycle event for the given component.
func (l *Logger) Info(component Component, msg string, kv ...interface{}) {
	l.print(LevelInfo, component, msg, kv)
}

// Debug logs protocol-chatter detail for the given component.
func (l *Logger) Debug(component Component, msg string, kv ...interface{}) {
	l.print(LevelDebug, component, msg, kv)
}

func (l *Logger) print(level Level, component Component, msg string, kv []interface{}) {
	if l == nil || !l.Is(level, component) {
		return
	}
	select {
	case l.jobs <- job{level: level, component: component, message: msg, kv: kv}:
	default:
		// The sink is falling behind; drop rather than block the caller.
	}
}

func (l *Logger) drain() {
	for j := range l.jobs {
		if l.Sink == nil {
			continue
		}
		l.Sink.Info(int(j.level)-DiffToInfo, j.message, j.kv...)
	}
}

// Close stops the draining goroutine. It must not be called concurrently
// with Info/Debug.
func (l *Logger) Close() {
	close(l.jobs)
}

// stderrSink is the default LogSink used when none is configured.
type stderrSink struct{}

func newStderrSink() LogSink { return stderrSink{} }

func (stderrSink) Info(level int, msg string, keysAndValues ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s [%d] %s %v\n", time.Now().Format(time.RFC3339Nano), level, msg, keysAndValues)
}
