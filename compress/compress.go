// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package compress implements OP_COMPRESSED framing: negotiating a
// compressor during the isMaster handshake and applying it to outgoing
// frame bodies, mirroring the teacher driver's compressMessage/
// uncompressMessage pair.
package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zlib"
	"github.com/mongowire/corewire/wire"
)

// Compressor compresses and decompresses raw wire message bodies for one
// negotiated algorithm.
type Compressor interface {
	ID() wire.CompressorID
	Name() string
	Compress(dst, src []byte) ([]byte, error)
	Uncompress(dst, src []byte) ([]byte, error)
}

// commandsNeverCompressed lists the top-level command keys that must travel
// uncompressed, so a sniffing proxy can still observe the auth handshake.
var commandsNeverCompressed = map[string]struct{}{
	"isMaster":       {},
	"hello":          {},
	"saslStart":      {},
	"saslContinue":   {},
	"getnonce":       {},
	"authenticate":   {},
	"createUser":     {},
	"updateUser":     {},
	"copydbSaslStart": {},
	"copydbgetnonce": {},
	"copydb":         {},
}

// CanCompress reports whether a command with the given top-level first key
// is eligible for OP_COMPRESSED framing.
func CanCompress(firstKey string) bool {
	_, never := commandsNeverCompressed[firstKey]
	return !never
}

// snappyCompressor backs CompressorSnappy with github.com/golang/snappy.
type snappyCompressor struct{}

// NewSnappy returns the snappy Compressor.
func NewSnappy() Compressor { return snappyCompressor{} }

func (snappyCompressor) ID() wire.CompressorID { return wire.CompressorSnappy }
func (snappyCompressor) Name() string          { return "snappy" }

func (snappyCompressor) Compress(dst, src []byte) ([]byte, error) {
	return snappy.Encode(dst, src), nil
}

func (snappyCompressor) Uncompress(dst, src []byte) ([]byte, error) {
	decoded, err := snappy.Decode(dst, src)
	if err != nil {
		return nil, fmt.Errorf("compress: snappy decode: %w", err)
	}
	return decoded, nil
}

// zlibCompressor backs CompressorZlib with github.com/klauspost/compress/zlib.
type zlibCompressor struct {
	level int
}

// NewZlib returns the zlib Compressor at the given compression level
// (zlib.DefaultCompression is a reasonable default).
func NewZlib(level int) Compressor { return zlibCompressor{level: level} }

func (zlibCompressor) ID() wire.CompressorID { return wire.CompressorZlib }
func (zlibCompressor) Name() string          { return "zlib" }

func (z zlibCompressor) Compress(dst, src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, z.level)
	if err != nil {
		return nil, fmt.Errorf("compress: zlib writer: %w", err)
	}
	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("compress: zlib write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compress: zlib close: %w", err)
	}
	return append(dst, buf.Bytes()...), nil
}

func (zlibCompressor) Uncompress(dst, src []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("compress: zlib reader: %w", err)
	}
	defer r.Close()
	out := bytes.NewBuffer(dst)
	if _, err := io.Copy(out, r); err != nil {
		return nil, fmt.Errorf("compress: zlib read: %w", err)
	}
	return out.Bytes(), nil
}

// Registry maps negotiated CompressorIDs to implementations.
type Registry struct {
	byID map[wire.CompressorID]Compressor
}

// NewRegistry builds a Registry from the given compressors, client-preference
// order first.
func NewRegistry(compressors ...Compressor) *Registry {
	r := &Registry{byID: make(map[wire.CompressorID]Compressor, len(compressors))}
	for _, c := range compressors {
		r.byID[c.ID()] = c
	}
	return r
}

// Get returns the Compressor for id, if registered.
func (r *Registry) Get(id wire.CompressorID) (Compressor, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// Names returns the client's compressor names in preference order, for the
// "compression" array sent in the isMaster/hello handshake.
func (r *Registry) Names(preferenceOrder []wire.CompressorID) []string {
	names := make([]string, 0, len(preferenceOrder))
	for _, id := range preferenceOrder {
		if c, ok := r.byID[id]; ok {
			names = append(names, c.Name())
		}
	}
	return names
}

// Negotiate picks the first of the client's compressors (in preferenceOrder)
// whose name appears in the server-advertised list.
func Negotiate(reg *Registry, preferenceOrder []wire.CompressorID, serverAdvertised []string) (Compressor, bool) {
	advertised := make(map[string]struct{}, len(serverAdvertised))
	for _, name := range serverAdvertised {
		advertised[name] = struct{}{}
	}
	for _, id := range preferenceOrder {
		c, ok := reg.Get(id)
		if !ok {
			continue
		}
		if _, ok := advertised[c.Name()]; ok {
			return c, true
		}
	}
	return nil, false
}
