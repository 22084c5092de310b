// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wire

import "github.com/mongowire/corewire/mongoerr"

// MsgFlags is the flagBits field of an OP_MSG message.
type MsgFlags uint32

// OP_MSG flag bits the core ever sets or observes. ChecksumPresent is never
// set by this core on outgoing messages (see SPEC_FULL §4.1).
const (
	MsgChecksumPresent MsgFlags = 1 << 0
	MsgMoreToCome      MsgFlags = 1 << 1
)

// SectionType identifies the kind of an OP_MSG section.
type SectionType byte

const (
	// SectionSingleDocument carries exactly one BSON document (kind 0).
	SectionSingleDocument SectionType = 0
	// SectionDocumentSequence carries a named sequence of zero or more BSON
	// documents (kind 1), used for document-sequence style bulk writes.
	SectionDocumentSequence SectionType = 1
)

// Section is one section of an OP_MSG body.
type Section struct {
	Type       SectionType
	Identifier string   // only meaningful when Type == SectionDocumentSequence
	Documents  [][]byte // raw BSON documents; exactly one for SectionSingleDocument
}

// Msg is the OP_MSG body.
type Msg struct {
	FlagBits MsgFlags
	Sections []Section
}

// OpCode implements Message.
func (Msg) OpCode() OpCode { return OpMsg }

// AppendTo implements Message.
func (m Msg) AppendTo(dst []byte) ([]byte, error) {
	dst = appendUint32(dst, uint32(m.FlagBits))
	for _, s := range m.Sections {
		dst = append(dst, byte(s.Type))
		switch s.Type {
		case SectionSingleDocument:
			if len(s.Documents) != 1 {
				return dst, &mongoerr.ProtocolError{Message: "OP_MSG: single-document section must carry exactly one document"}
			}
			dst = append(dst, s.Documents[0]...)
		case SectionDocumentSequence:
			start := len(dst)
			dst = appendInt32(dst, 0) // size placeholder
			dst = appendCString(dst, s.Identifier)
			for _, doc := range s.Documents {
				dst = append(dst, doc...)
			}
			putInt32At(dst, start, int32(len(dst)-start))
		default:
			return dst, &mongoerr.ProtocolError{Message: "OP_MSG: unknown section type"}
		}
	}
	return dst, nil
}

func putInt32At(b []byte, pos int, v int32) {
	b[pos] = byte(v)
	b[pos+1] = byte(v >> 8)
	b[pos+2] = byte(v >> 16)
	b[pos+3] = byte(v >> 24)
}

func readMsg(b []byte) (Msg, error) {
	if len(b) < 4 {
		return Msg{}, &mongoerr.ProtocolError{Message: "OP_MSG: missing flagBits"}
	}
	m := Msg{FlagBits: MsgFlags(readUint32(b, 0))}
	pos := 4
	for pos < len(b) {
		if m.FlagBits&MsgChecksumPresent != 0 && len(b)-pos == 4 {
			// trailing CRC32C checksum; the core never sets this bit on
			// outgoing messages, but must tolerate it on replies.
			break
		}
		if pos >= len(b) {
			break
		}
		stype := SectionType(b[pos])
		pos++
		switch stype {
		case SectionSingleDocument:
			doc, next, ok := readDocument(b, pos)
			if !ok {
				return Msg{}, &mongoerr.ProtocolError{Message: "OP_MSG: truncated single-document section"}
			}
			m.Sections = append(m.Sections, Section{Type: SectionSingleDocument, Documents: [][]byte{doc}})
			pos = next
		case SectionDocumentSequence:
			if pos+4 > len(b) {
				return Msg{}, &mongoerr.ProtocolError{Message: "OP_MSG: truncated document-sequence size"}
			}
			size := int(readInt32(b, pos))
			sectionEnd := pos + size
			if size < 4 || sectionEnd > len(b) {
				return Msg{}, &mongoerr.ProtocolError{Message: "OP_MSG: invalid document-sequence size"}
			}
			cursor := pos + 4
			ident, cursor, ok := readCString(b, cursor)
			if !ok {
				return Msg{}, &mongoerr.ProtocolError{Message: "OP_MSG: truncated document-sequence identifier"}
			}
			var docs [][]byte
			for cursor < sectionEnd {
				doc, next, ok := readDocument(b, cursor)
				if !ok {
					return Msg{}, &mongoerr.ProtocolError{Message: "OP_MSG: truncated document in sequence"}
				}
				docs = append(docs, doc)
				cursor = next
			}
			m.Sections = append(m.Sections, Section{Type: SectionDocumentSequence, Identifier: ident, Documents: docs})
			pos = sectionEnd
		default:
			return Msg{}, &mongoerr.ProtocolError{Message: "OP_MSG: unknown section type"}
		}
	}
	return m, nil
}

// Body returns the single section-0 document of the message, which is the
// only shape this core ever produces for command replies. It returns the
// first single-document section's document, and an error if there is none
// (document-sequence sections, which this core does not use on replies, are
// ignored).
func (m Msg) Body() ([]byte, error) {
	for _, s := range m.Sections {
		if s.Type == SectionSingleDocument && len(s.Documents) == 1 {
			return s.Documents[0], nil
		}
	}
	return nil, &mongoerr.ProtocolError{Message: "OP_MSG: no single-document section present"}
}
