// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package wire implements the MongoDB wire protocol frame format: the
// 16-byte header shared by every message, and the OP_QUERY/OP_REPLY/OP_MSG
// (and OP_COMPRESSED) bodies built on top of it.
package wire

import "fmt"

// OpCode identifies the kind of body that follows a message header.
type OpCode int32

// Wire protocol opcodes. Values are server-mandated and must not change.
const (
	OpReply      OpCode = 1
	OpQuery      OpCode = 2004
	OpCompressed OpCode = 2012
	OpMsg        OpCode = 2013
)

func (c OpCode) String() string {
	switch c {
	case OpReply:
		return "OP_REPLY"
	case OpQuery:
		return "OP_QUERY"
	case OpCompressed:
		return "OP_COMPRESSED"
	case OpMsg:
		return "OP_MSG"
	default:
		return fmt.Sprintf("OP_UNKNOWN(%d)", int32(c))
	}
}

// HeaderLength is the fixed size, in bytes, of every wire message header.
const HeaderLength = 16

// Header is the 16-byte prefix shared by every wire message.
type Header struct {
	MessageLength int32
	RequestID     int32
	ResponseTo    int32
	OpCode        OpCode
}
