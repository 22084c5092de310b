// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wire

import "github.com/mongowire/corewire/mongoerr"

// CompressorID identifies the compression algorithm used on an OP_COMPRESSED
// frame. Values are server-mandated.
type CompressorID uint8

// Supported compressor ids.
const (
	CompressorNoop   CompressorID = 0
	CompressorSnappy CompressorID = 1
	CompressorZlib   CompressorID = 2
	CompressorZstd   CompressorID = 3
)

// Compressed is the OP_COMPRESSED body: any other opcode's body, compressed.
type Compressed struct {
	OriginalOpCode   OpCode
	UncompressedSize int32
	CompressorID     CompressorID
	CompressedBody   []byte
}

// OpCode implements Message.
func (Compressed) OpCode() OpCode { return OpCompressed }

// AppendTo implements Message.
func (c Compressed) AppendTo(dst []byte) ([]byte, error) {
	dst = appendInt32(dst, int32(c.OriginalOpCode))
	dst = appendInt32(dst, c.UncompressedSize)
	dst = append(dst, byte(c.CompressorID))
	dst = append(dst, c.CompressedBody...)
	return dst, nil
}

func readCompressed(b []byte) (Compressed, error) {
	if len(b) < 9 {
		return Compressed{}, &mongoerr.ProtocolError{Message: "OP_COMPRESSED: truncated header"}
	}
	return Compressed{
		OriginalOpCode:   OpCode(readInt32(b, 0)),
		UncompressedSize: readInt32(b, 4),
		CompressorID:     CompressorID(b[8]),
		CompressedBody:   b[9:],
	}, nil
}
