// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wire

import "github.com/mongowire/corewire/mongoerr"

// QueryFlag is the flags bitfield of an OP_QUERY message.
type QueryFlag int32

// OP_QUERY flag bits the core ever sets or observes.
const (
	QueryNone    QueryFlag = 0
	QuerySlaveOK QueryFlag = 1 << 2
	QueryExhaust QueryFlag = 1 << 6
)

// Query is the legacy OP_QUERY body, used in this core exclusively for
// runCommand against the pseudo-collection "<db>.$cmd".
type Query struct {
	Flags              QueryFlag
	FullCollectionName string
	NumberToSkip       int32
	NumberToReturn     int32
	Query              []byte // raw BSON document
}

// OpCode implements Message.
func (Query) OpCode() OpCode { return OpQuery }

// AppendTo implements Message.
func (q Query) AppendTo(dst []byte) ([]byte, error) {
	dst = appendInt32(dst, int32(q.Flags))
	dst = appendCString(dst, q.FullCollectionName)
	dst = appendInt32(dst, q.NumberToSkip)
	dst = appendInt32(dst, q.NumberToReturn)
	dst = append(dst, q.Query...)
	return dst, nil
}

func readQuery(b []byte) (Query, error) {
	if len(b) < 8 {
		return Query{}, &mongoerr.ProtocolError{Message: "OP_QUERY: truncated flags/skip/return"}
	}
	q := Query{Flags: QueryFlag(readInt32(b, 0))}
	pos := 4
	name, pos, ok := readCString(b, pos)
	if !ok {
		return Query{}, &mongoerr.ProtocolError{Message: "OP_QUERY: missing fullCollectionName"}
	}
	q.FullCollectionName = name
	if pos+8 > len(b) {
		return Query{}, &mongoerr.ProtocolError{Message: "OP_QUERY: truncated skip/return"}
	}
	q.NumberToSkip = readInt32(b, pos)
	q.NumberToReturn = readInt32(b, pos+4)
	pos += 8
	doc, _, ok := readDocument(b, pos)
	if !ok {
		return Query{}, &mongoerr.ProtocolError{Message: "OP_QUERY: truncated query document"}
	}
	q.Query = doc
	return q, nil
}
