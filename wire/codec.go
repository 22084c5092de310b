// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wire

import (
	"encoding/binary"

	"github.com/mongowire/corewire/mongoerr"
)

// Message is implemented by every wire body type (Query, Reply, Msg,
// Compressed). AppendTo serializes only the body; AppendHeader writes the
// 16-byte header in front of it and patches in the length once the body
// has been appended.
type Message interface {
	OpCode() OpCode
	// AppendTo serializes the header-less body of the message onto dst and
	// returns the result.
	AppendTo(dst []byte) ([]byte, error)
}

// AppendHeader writes a complete wire frame: header followed by body. The
// header's MessageLength field is patched in after the body is appended.
func AppendHeader(dst []byte, requestID, responseTo int32, m Message) ([]byte, error) {
	start := len(dst)
	dst = appendInt32(dst, 0) // messageLength placeholder
	dst = appendInt32(dst, requestID)
	dst = appendInt32(dst, responseTo)
	dst = appendInt32(dst, int32(m.OpCode()))

	var err error
	dst, err = m.AppendTo(dst)
	if err != nil {
		return dst, err
	}

	binary.LittleEndian.PutUint32(dst[start:start+4], uint32(len(dst)-start))
	return dst, nil
}

// ReadHeader parses the 16-byte header at the front of src.
func ReadHeader(src []byte) (Header, []byte, bool) {
	if len(src) < HeaderLength {
		return Header{}, src, false
	}
	h := Header{
		MessageLength: readInt32(src, 0),
		RequestID:     readInt32(src, 4),
		ResponseTo:    readInt32(src, 8),
		OpCode:        OpCode(readInt32(src, 12)),
	}
	return h, src[HeaderLength:], true
}

// ReadMessage parses the body following a header, dispatching on opcode.
// frame is the header-less remainder of the frame (exactly MessageLength-16
// bytes).
func ReadMessage(opcode OpCode, frame []byte) (Message, error) {
	switch opcode {
	case OpReply:
		return readReply(frame)
	case OpMsg:
		return readMsg(frame)
	case OpQuery:
		return readQuery(frame)
	case OpCompressed:
		return readCompressed(frame)
	default:
		return nil, &mongoerr.ProtocolError{Message: opcode.String() + " not implemented"}
	}
}

func appendInt32(dst []byte, v int32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	return append(dst, b[:]...)
}

func appendInt64(dst []byte, v int64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return append(dst, b[:]...)
}

func appendUint32(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func appendCString(dst []byte, s string) []byte {
	dst = append(dst, s...)
	return append(dst, 0x00)
}

func readInt32(b []byte, pos int) int32 {
	return int32(binary.LittleEndian.Uint32(b[pos : pos+4]))
}

func readInt64(b []byte, pos int) int64 {
	return int64(binary.LittleEndian.Uint64(b[pos : pos+8]))
}

func readUint32(b []byte, pos int) uint32 {
	return binary.LittleEndian.Uint32(b[pos : pos+4])
}

// readCString reads a NUL-terminated string starting at pos and returns the
// string and the position just past the NUL byte.
func readCString(b []byte, pos int) (string, int, bool) {
	for i := pos; i < len(b); i++ {
		if b[i] == 0x00 {
			return string(b[pos:i]), i + 1, true
		}
	}
	return "", pos, false
}

// readDocument reads one BSON document starting at pos (using its own
// 4-byte length prefix) and returns the raw bytes and the position just
// past it.
func readDocument(b []byte, pos int) ([]byte, int, bool) {
	if pos+4 > len(b) {
		return nil, pos, false
	}
	length := int(readInt32(b, pos))
	if length < 5 || pos+length > len(b) {
		return nil, pos, false
	}
	return b[pos : pos+length], pos + length, true
}
