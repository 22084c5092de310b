// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package connection

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/mongowire/corewire/bsondoc"
	"github.com/mongowire/corewire/wire"
)

// fakeServer accepts exactly one connection and answers every request with
// a handler-supplied reply, using the same wire codec the client does. It
// mirrors the teacher driver's test doubles, which run an in-process
// listener rather than a live mongod.
type fakeServer struct {
	ln net.Listener
}

func startFakeServer(t *testing.T, handle func(reqID int32, cmd *bsondoc.Document) wire.Message) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &fakeServer{ln: ln}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			hdrBuf := make([]byte, wire.HeaderLength)
			if _, err := io.ReadFull(conn, hdrBuf); err != nil {
				return
			}
			hdr, _, ok := wire.ReadHeader(hdrBuf)
			if !ok {
				return
			}
			body := make([]byte, int(hdr.MessageLength)-wire.HeaderLength)
			if _, err := io.ReadFull(conn, body); err != nil {
				return
			}
			msg, err := wire.ReadMessage(hdr.OpCode, body)
			if err != nil {
				return
			}

			var raw []byte
			switch m := msg.(type) {
			case wire.Query:
				raw = m.Query
			case wire.Msg:
				raw, _ = m.Body()
			}
			cmd, err := bsondoc.Unmarshal(raw)
			if err != nil {
				return
			}

			reply := handle(hdr.RequestID, cmd)
			framed, err := wire.AppendHeader(nil, 1, hdr.RequestID, reply)
			if err != nil {
				return
			}
			if _, err := conn.Write(framed); err != nil {
				return
			}
		}
	}()
	return srv
}

func (s *fakeServer) addr() string { return s.ln.Addr().String() }
func (s *fakeServer) close()       { s.ln.Close() }

func okReply(extra bson.D) wire.Message {
	doc := append(bson.D{{Key: "ok", Value: float64(1)}}, extra...)
	raw, _ := bson.Marshal(doc)
	return wire.Reply{NumberReturned: 1, Documents: [][]byte{raw}}
}

func TestConnectionHandshakeNegotiatesOpMsgAndSendsCommand(t *testing.T) {
	srv := startFakeServer(t, func(reqID int32, cmd *bsondoc.Document) wire.Message {
		if _, ok := cmd.Lookup("isMaster"); ok {
			return okReply(bson.D{{Key: "maxWireVersion", Value: int32(6)}})
		}
		// Any later command travels over OP_MSG once useOpMsg flips true.
		raw, _ := bsondoc.New().Append("ok", float64(1)).Append("echo", "pong").Marshal()
		return wire.Msg{Sections: []wire.Section{{Type: wire.SectionSingleDocument, Documents: [][]byte{raw}}}}
	})
	defer srv.close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := New(ctx, srv.addr())
	require.NoError(t, err)
	defer conn.Close(context.Background())

	require.True(t, conn.useOpMsg)

	reply, err := conn.SendCommand(ctx, "test", bsondoc.New().Append("ping", int32(1)))
	require.NoError(t, err)
	require.True(t, reply.IsOK())
	echo, ok := reply.String("echo")
	require.True(t, ok)
	require.Equal(t, "pong", echo)
}

func TestConnectionFallsBackToLegacyOpQuery(t *testing.T) {
	srv := startFakeServer(t, func(reqID int32, cmd *bsondoc.Document) wire.Message {
		// No maxWireVersion in the reply: client must stay on OP_QUERY.
		return okReply(nil)
	})
	defer srv.close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := New(ctx, srv.addr())
	require.NoError(t, err)
	defer conn.Close(context.Background())

	require.False(t, conn.useOpMsg)

	reply, err := conn.SendCommand(ctx, "test", bsondoc.New().Append("ping", int32(1)))
	require.NoError(t, err)
	require.True(t, reply.IsOK())
}

func TestRequestIDGeneratorWrapsToPositive(t *testing.T) {
	g := requestIDGenerator{next: 1<<31 - 2}
	first := g.nextRequestID()
	second := g.nextRequestID()
	require.Equal(t, int32(1<<31-1), first)
	require.Greater(t, second, int32(0))
}

func TestObjectIDGeneratorProducesDistinctMonotonicCounters(t *testing.T) {
	gen, err := newObjectIDGenerator()
	require.NoError(t, err)

	a := gen.next()
	b := gen.next()
	require.NotEqual(t, a, b)

	ca := uint32(a[9])<<16 | uint32(a[10])<<8 | uint32(a[11])
	cb := uint32(b[9])<<16 | uint32(b[10])<<8 | uint32(b[11])
	require.Equal(t, (ca+1)&0x00FFFFFF, cb, "the 3-byte counter advances by one per id")
}
