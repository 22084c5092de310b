// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wire

import "github.com/mongowire/corewire/mongoerr"

// ReplyFlag is the responseFlags bitfield of an OP_REPLY message.
type ReplyFlag int32

// OP_REPLY response flag bits.
const (
	ReplyCursorNotFound ReplyFlag = 1 << 0
	ReplyQueryFailure   ReplyFlag = 1 << 1
)

// Reply is the legacy OP_REPLY body.
type Reply struct {
	ResponseFlags  ReplyFlag
	CursorID       int64
	StartingFrom   int32
	NumberReturned int32
	Documents      [][]byte // raw BSON documents, NumberReturned of them
}

// OpCode implements Message.
func (Reply) OpCode() OpCode { return OpReply }

// AppendTo implements Message.
func (r Reply) AppendTo(dst []byte) ([]byte, error) {
	dst = appendInt32(dst, int32(r.ResponseFlags))
	dst = appendInt64(dst, r.CursorID)
	dst = appendInt32(dst, r.StartingFrom)
	dst = appendInt32(dst, r.NumberReturned)
	for _, doc := range r.Documents {
		dst = append(dst, doc...)
	}
	return dst, nil
}

func readReply(b []byte) (Reply, error) {
	if len(b) < 20 {
		return Reply{}, &mongoerr.ProtocolError{Message: "OP_REPLY: truncated header fields"}
	}
	r := Reply{
		ResponseFlags:  ReplyFlag(readInt32(b, 0)),
		CursorID:       readInt64(b, 4),
		StartingFrom:   readInt32(b, 12),
		NumberReturned: readInt32(b, 16),
	}
	pos := 20
	for i := int32(0); i < r.NumberReturned; i++ {
		doc, next, ok := readDocument(b, pos)
		if !ok {
			return Reply{}, &mongoerr.ProtocolError{Message: "OP_REPLY: truncated document"}
		}
		r.Documents = append(r.Documents, doc)
		pos = next
	}
	return r, nil
}
