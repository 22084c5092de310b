// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package logger

import "strings"

// DiffToInfo is the number of levels that come before "Info" in the
// enumeration below. Sinks shaped like go-logr/logr treat 0 as Info, so this
// is subtracted from a Level before it is handed to a Sink.
const DiffToInfo = 1

// Level is an enumeration of the supported log severity levels. LevelOff
// suppresses logging entirely, LevelInfo covers high-level lifecycle events,
// and LevelDebug covers per-frame protocol chatter.
type Level int

const (
	// LevelOff suppresses logging.
	LevelOff Level = iota
	// LevelInfo enables lifecycle events: connected, authenticated, closed.
	LevelInfo
	// LevelDebug enables per-frame/per-command protocol chatter.
	LevelDebug
)

// Component scopes a log message to the subsystem that produced it.
type Component int

const (
	// ComponentConnection covers dialing, the multiplexer, and socket teardown.
	ComponentConnection Component = iota
	// ComponentCommand covers command encode/decode and reply interpretation.
	ComponentCommand
	// ComponentAuthentication covers the SCRAM-SHA-1/MONGODB-CR handshakes.
	ComponentAuthentication
	// ComponentCursor covers cursor batching and killCursors.
	ComponentCursor
)

func (c Component) String() string {
	switch c {
	case ComponentConnection:
		return "connection"
	case ComponentCommand:
		return "command"
	case ComponentAuthentication:
		return "authentication"
	case ComponentCursor:
		return "cursor"
	default:
		return "unknown"
	}
}

var levelLiteralMap = map[string]Level{
	"off":   LevelOff,
	"info":  LevelInfo,
	"debug": LevelDebug,
	"trace": LevelDebug,
}

// ParseLevel maps an environment-variable-style string to a Level. Unknown
// or empty strings map to LevelOff.
func ParseLevel(str string) Level {
	if level, ok := levelLiteralMap[strings.ToLower(strings.TrimSpace(str))]; ok {
		return level
	}
	return LevelOff
}
