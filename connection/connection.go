// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package connection implements the request multiplexer: one physical
// socket to a mongod/mongos, a single reader goroutine demultiplexing
// replies by responseTo, and a bounded number of concurrently in-flight
// SendCommand calls. It owns protocol selection (OP_MSG vs. legacy
// OP_QUERY/OP_REPLY), OP_COMPRESSED framing, and the ObjectID generator for
// the connection's lifetime.
package connection

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mongowire/corewire/auth"
	"github.com/mongowire/corewire/bsondoc"
	"github.com/mongowire/corewire/compress"
	"github.com/mongowire/corewire/internal/logger"
	"github.com/mongowire/corewire/mongoerr"
	"github.com/mongowire/corewire/wire"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// awaiter is the one-shot completion handed to a goroutine blocked in
// SendCommand; the reader goroutine fulfils it exactly once.
type awaiter struct {
	doc *bsondoc.Document
	err error
}

// Connection is a single multiplexed socket to one server. A Connection is
// safe for concurrent use by multiple goroutines calling SendCommand.
type Connection struct {
	id  string
	cfg *config
	nc  net.Conn
	log *logger.Logger

	reqIDs requestIDGenerator
	objIDs *objectIDGenerator
	reaper *cursorReaper
	sem    *semaphore.Weighted

	writeMu sync.Mutex

	inflightMu sync.Mutex
	inflight   map[int32]chan awaiter

	closeOnce       sync.Once
	closed          chan struct{}
	closeErr        error
	closeMu         sync.Mutex
	publicCloseOnce sync.Once

	createdAt time.Time

	useOpMsg   bool
	compressor compress.Compressor

	authMu        sync.Mutex
	authenticated bool
}

// New dials addr, performs the isMaster handshake, and returns a ready
// Connection. The caller must call Close when done with it.
func New(ctx context.Context, addr string, opts ...Option) (*Connection, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	nc, err := cfg.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &mongoerr.IoError{ConnectionID: addr, Wrapped: err}
	}
	if cfg.tlsConfig != nil {
		nc = tls.Client(nc, cfg.tlsConfig)
	}

	objIDs, err := newObjectIDGenerator()
	if err != nil {
		nc.Close()
		return nil, err
	}

	c := &Connection{
		id:        addr,
		cfg:       cfg,
		nc:        nc,
		log:       logger.New(cfg.logSink, cfg.componentLevels),
		objIDs:    objIDs,
		reaper:    newCursorReaper(),
		sem:       semaphore.NewWeighted(cfg.maxInFlight),
		inflight:  make(map[int32]chan awaiter),
		closed:    make(chan struct{}),
		createdAt: time.Now(),
	}

	go c.readLoop()

	if err := c.handshake(ctx); err != nil {
		c.fail(err)
		return nil, err
	}

	c.log.Info(logger.ComponentConnection, "connection established", "address", addr, "opMsg", c.useOpMsg)
	return c, nil
}

// ID returns a stable identifier for the connection (its dial address).
func (c *Connection) ID() string { return c.id }

// NextObjectID returns the next generated primitive.ObjectID for documents
// written over this connection.
func (c *Connection) NextObjectID() primitive.ObjectID { return c.objIDs.next() }

// Reaper exposes the connection's cursor bookkeeping to the cursor package.
func (c *Connection) Reaper() *cursorReaper { return c.reaper }

// Authenticate runs the SCRAM-SHA-1 or MONGODB-CR handshake for cred over
// this connection. Concurrent Authenticate calls on the same connection are
// serialized; only one handshake is ever in flight at a time.
func (c *Connection) Authenticate(ctx context.Context, cred auth.Credential) error {
	c.authMu.Lock()
	defer c.authMu.Unlock()

	if err := auth.Authenticate(ctx, c, cred); err != nil {
		return err
	}
	c.authenticated = true
	c.log.Info(logger.ComponentAuthentication, "authenticated", "address", c.id, "user", cred.Username)
	return nil
}

// Authenticated reports whether Authenticate has completed successfully.
func (c *Connection) Authenticated() bool {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	return c.authenticated
}

// Expired reports whether the connection has outlived its configured idle
// or total lifetime.
func (c *Connection) Expired(lastUsedAt time.Time) bool {
	if c.cfg.lifeTimeout > 0 && time.Since(c.createdAt) > c.cfg.lifeTimeout {
		return true
	}
	if c.cfg.idleTimeout > 0 && !lastUsedAt.IsZero() && time.Since(lastUsedAt) > c.cfg.idleTimeout {
		return true
	}
	return false
}

// handshake sends a legacy isMaster over OP_QUERY (every server, modern or
// not, answers this) and uses the reply to decide whether later commands
// use OP_MSG and whether a compressor was negotiated.
func (c *Connection) handshake(ctx context.Context) error {
	hello := bsondoc.New().Append("isMaster", int32(1))
	if c.cfg.appName != "" {
		hello.Append("client", bsondoc.New().Append("application",
			bsondoc.New().Append("name", c.cfg.appName).D()).D())
	}
	if c.cfg.compressors != nil && len(c.cfg.compressorOrder) > 0 {
		names := c.cfg.compressors.Names(c.cfg.compressorOrder)
		if len(names) > 0 {
			arr := make([]interface{}, len(names))
			for i, n := range names {
				arr[i] = n
			}
			hello.Append("compression", arr)
		}
	}

	reply, err := c.sendLegacy(ctx, "admin", hello)
	if err != nil {
		return err
	}
	if !reply.IsOK() {
		return &mongoerr.CommandError{Message: "isMaster handshake rejected"}
	}

	if wireVersion, ok := reply.Int32("maxWireVersion"); ok && wireVersion >= 6 {
		c.useOpMsg = true
	}

	if c.cfg.compressors != nil {
		if arr, ok := reply.Array("compression"); ok {
			advertised := make([]string, 0, len(arr))
			for _, v := range arr {
				if s, ok := v.(string); ok {
					advertised = append(advertised, s)
				}
			}
			if chosen, ok := compress.Negotiate(c.cfg.compressors, c.cfg.compressorOrder, advertised); ok {
				c.compressor = chosen
			}
		}
	}

	return nil
}

// SendCommand runs one command document against db and returns its reply.
// The command's first key names the command and determines whether the
// frame is eligible for OP_COMPRESSED; legacy OP_QUERY framing always
// addresses "<db>.$cmd".
func (c *Connection) SendCommand(ctx context.Context, db string, cmd *bsondoc.Document) (*bsondoc.Document, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	if c.useOpMsg {
		return c.sendMsg(ctx, db, cmd)
	}
	return c.sendLegacy(ctx, db, cmd)
}

func (c *Connection) firstKey(cmd *bsondoc.Document) string {
	if cmd.Len() == 0 {
		return ""
	}
	for _, e := range cmd.D() {
		return e.Key
	}
	return ""
}

func (c *Connection) sendMsg(ctx context.Context, db string, cmd *bsondoc.Document) (*bsondoc.Document, error) {
	full := bsondoc.NewFromD(append(bsonDCopy(cmd.D()), bsonE("$db", db)))
	body, err := full.Marshal()
	if err != nil {
		return nil, err
	}

	msg := wire.Message(wire.Msg{Sections: []wire.Section{
		{Type: wire.SectionSingleDocument, Documents: [][]byte{body}},
	}})

	if c.compressor != nil && compress.CanCompress(c.firstKey(cmd)) {
		return c.sendCompressed(ctx, msg)
	}
	return c.roundTrip(ctx, msg)
}

func (c *Connection) sendLegacy(ctx context.Context, db string, cmd *bsondoc.Document) (*bsondoc.Document, error) {
	body, err := cmd.Marshal()
	if err != nil {
		return nil, err
	}

	q := wire.Query{
		FullCollectionName: db + ".$cmd",
		NumberToReturn:     -1,
		Query:              body,
	}

	if c.compressor != nil && compress.CanCompress(c.firstKey(cmd)) {
		return c.sendCompressed(ctx, q)
	}
	return c.roundTrip(ctx, q)
}

func (c *Connection) sendCompressed(ctx context.Context, original wire.Message) (*bsondoc.Document, error) {
	framed, err := original.AppendTo(nil)
	if err != nil {
		return nil, err
	}
	compressed, err := c.compressor.Compress(nil, framed)
	if err != nil {
		return nil, err
	}
	return c.roundTrip(ctx, wire.Compressed{
		OriginalOpCode:   original.OpCode(),
		UncompressedSize: int32(len(framed)),
		CompressorID:     c.compressor.ID(),
		CompressedBody:   compressed,
	})
}

// roundTrip allocates a request id, registers an awaiter, writes the frame,
// and blocks until the reader goroutine fulfils the awaiter, the context is
// cancelled, or the connection fails.
func (c *Connection) roundTrip(ctx context.Context, m wire.Message) (*bsondoc.Document, error) {
	ch := make(chan awaiter, 1)

	c.inflightMu.Lock()
	reqID := c.reqIDs.nextRequestID()
	c.inflight[reqID] = ch
	c.inflightMu.Unlock()

	cleanup := func() {
		c.inflightMu.Lock()
		delete(c.inflight, reqID)
		c.inflightMu.Unlock()
	}

	framed, err := wire.AppendHeader(nil, reqID, 0, m)
	if err != nil {
		cleanup()
		return nil, err
	}

	if err := c.write(framed); err != nil {
		cleanup()
		return nil, err
	}

	select {
	case res := <-ch:
		return res.doc, res.err
	case <-ctx.Done():
		// The in-flight entry stays registered; the reader discards the
		// reply into the buffered channel when it arrives.
		return nil, ctx.Err()
	case <-c.closed:
		cleanup()
		return nil, c.closeErrOrDefault()
	}
}

func (c *Connection) write(framed []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.cfg.writeTimeout > 0 {
		c.nc.SetWriteDeadline(time.Now().Add(c.cfg.writeTimeout))
	}
	if _, err := c.nc.Write(framed); err != nil {
		werr := &mongoerr.IoError{ConnectionID: c.id, Wrapped: err}
		c.fail(werr)
		return werr
	}
	return nil
}

// readLoop is the connection's single reader goroutine: it owns all reads
// from nc and demultiplexes replies to their awaiter by responseTo.
func (c *Connection) readLoop() {
	r := bufio.NewReaderSize(c.nc, 64*1024)
	for {
		if c.cfg.readTimeout > 0 {
			c.nc.SetReadDeadline(time.Now().Add(c.cfg.readTimeout))
		}

		hdrBuf := make([]byte, wire.HeaderLength)
		if _, err := io.ReadFull(r, hdrBuf); err != nil {
			c.fail(&mongoerr.IoError{ConnectionID: c.id, Wrapped: err})
			return
		}
		hdr, _, ok := wire.ReadHeader(hdrBuf)
		if !ok {
			c.fail(&mongoerr.ProtocolError{ConnectionID: c.id, Message: "short header"})
			return
		}

		bodyLen := int(hdr.MessageLength) - wire.HeaderLength
		if bodyLen < 0 {
			c.fail(&mongoerr.ProtocolError{ConnectionID: c.id, Message: "negative body length"})
			return
		}
		body := make([]byte, bodyLen)
		if _, err := io.ReadFull(r, body); err != nil {
			c.fail(&mongoerr.IoError{ConnectionID: c.id, Wrapped: err})
			return
		}

		doc, err := c.decodeReply(hdr.OpCode, body)
		c.dispatch(hdr.ResponseTo, doc, err)
		if err != nil {
			c.fail(err)
			return
		}
	}
}

func (c *Connection) decodeReply(opcode wire.OpCode, body []byte) (*bsondoc.Document, error) {
	msg, err := wire.ReadMessage(opcode, body)
	if err != nil {
		return nil, &mongoerr.ProtocolError{ConnectionID: c.id, Message: "decode reply", Wrapped: err}
	}

	if compressed, ok := msg.(wire.Compressed); ok {
		comp, ok := c.compressor, c.compressor != nil
		if !ok || comp.ID() != compressed.CompressorID {
			return nil, &mongoerr.ProtocolError{ConnectionID: c.id, Message: "unexpected compressor id in reply"}
		}
		raw, err := comp.Uncompress(nil, compressed.CompressedBody)
		if err != nil {
			return nil, &mongoerr.ProtocolError{ConnectionID: c.id, Message: "decompress reply", Wrapped: err}
		}
		inner, err := wire.ReadMessage(compressed.OriginalOpCode, raw)
		if err != nil {
			return nil, &mongoerr.ProtocolError{ConnectionID: c.id, Message: "decode decompressed reply", Wrapped: err}
		}
		msg = inner
	}

	var raw []byte
	switch m := msg.(type) {
	case wire.Msg:
		raw, err = m.Body()
	case wire.Reply:
		if len(m.Documents) == 0 {
			return nil, &mongoerr.ProtocolError{ConnectionID: c.id, Message: "OP_REPLY carried no documents"}
		}
		raw = m.Documents[0]
	default:
		return nil, &mongoerr.ProtocolError{ConnectionID: c.id, Message: fmt.Sprintf("unexpected reply opcode %s", opcode)}
	}
	if err != nil {
		return nil, err
	}

	return bsondoc.Unmarshal(raw)
}

func (c *Connection) dispatch(responseTo int32, doc *bsondoc.Document, err error) {
	c.inflightMu.Lock()
	ch, ok := c.inflight[responseTo]
	if ok {
		delete(c.inflight, responseTo)
	}
	c.inflightMu.Unlock()

	if !ok {
		return
	}
	ch <- awaiter{doc: doc, err: err}
}

// fail marks the connection terminally broken: every outstanding and
// future SendCommand call observes err.
func (c *Connection) fail(err error) {
	c.closeOnce.Do(func() {
		c.closeMu.Lock()
		c.closeErr = err
		c.closeMu.Unlock()
		close(c.closed)

		c.inflightMu.Lock()
		for id, ch := range c.inflight {
			ch <- awaiter{err: err}
			delete(c.inflight, id)
		}
		c.inflightMu.Unlock()

		c.nc.Close()
		c.log.Info(logger.ComponentConnection, "connection closed", "address", c.id, "reason", err)
	})
}

func (c *Connection) closeErrOrDefault() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closeErr != nil {
		return c.closeErr
	}
	return &mongoerr.IoError{ConnectionID: c.id, Wrapped: net.ErrClosed}
}

// Close kills any cursors this connection still has open, then tears down
// the socket. It is safe to call more than once.
func (c *Connection) Close(ctx context.Context) error {
	c.publicCloseOnce.Do(func() {
		select {
		case <-c.closed:
		default:
			c.killOutstanding(ctx)
		}
		c.fail(&mongoerr.IoError{ConnectionID: c.id, Wrapped: net.ErrClosed})
		c.log.Close()
	})
	return nil
}

func bsonDCopy(d []primitive.E) []primitive.E {
	out := make([]primitive.E, len(d))
	copy(out, d)
	return out
}

func bsonE(key string, value interface{}) primitive.E {
	return primitive.E{Key: key, Value: value}
}
