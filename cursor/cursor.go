// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package cursor implements the client-side cursor: buffering one batch of
// documents at a time, transparently issuing getMore as the batch is
// consumed, and killing the server-side cursor on Close or once a
// user-specified limit is satisfied. A cursor the server reports exhausted
// (id 0) needs no killCursors.
package cursor

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/mongowire/corewire/command"
	"github.com/mongowire/corewire/mongoerr"
)

// reaper is the subset of connection.cursorReaper's public behavior the
// cursor package depends on; the value returned by
// (*connection.Connection).Reaper satisfies it with its Register/Forget
// methods.
type reaper interface {
	Register(id int64, namespace string)
	Forget(id int64)
}

// Cursor is a client-side iterator over a server-side find/aggregate/
// listCollections cursor.
type Cursor struct {
	runner command.Runner
	reaper reaper

	db         string
	collection string
	namespace  string
	batchSize  int32

	mu             sync.Mutex
	batch          []bson.D
	pos            int
	cursorID       int64
	exhausted      bool
	closed         bool
	limitRemaining int64 // 0 means unlimited
}

// New wraps an already-opened cursor's first batch and id. db/collection
// are used to build the getMore and killCursors commands that follow. A
// non-zero limit bounds the total number of documents the cursor will ever
// yield, regardless of how many the server packs into a batch; the cursor
// closes itself as soon as that many documents have been served.
func New(runner command.Runner, rpr reaper, db, collection string, firstBatch []bson.D, cursorID int64, batchSize int32, limit int64) *Cursor {
	c := &Cursor{
		runner:         runner,
		reaper:         rpr,
		db:             db,
		collection:     collection,
		namespace:      db + "." + collection,
		batchSize:      batchSize,
		batch:          firstBatch,
		cursorID:       cursorID,
		exhausted:      cursorID == 0,
		limitRemaining: limit,
	}
	if rpr != nil && cursorID != 0 {
		rpr.Register(cursorID, c.namespace)
	}
	return c
}

// Next advances the cursor and reports whether a document is available in
// doc. It blocks on a getMore call when the current batch is consumed and
// the server has more to give.
func (c *Cursor) Next(ctx context.Context) (bson.D, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, false, &mongoerr.CursorClosed{Namespace: c.namespace}
	}

	if c.limitRemaining < 0 {
		return nil, false, nil
	}

	for c.pos >= len(c.batch) {
		if c.exhausted {
			return nil, false, nil
		}
		if err := c.fetchMoreLocked(ctx); err != nil {
			return nil, false, err
		}
	}

	doc := c.batch[c.pos]
	c.pos++

	if c.limitRemaining > 0 {
		c.limitRemaining--
		if c.limitRemaining == 0 {
			c.limitRemaining = -1
			if !c.exhausted {
				c.killLocked(ctx)
			}
		}
	}

	return doc, true, nil
}

// killLocked sends killCursors for the current cursor id and marks the
// cursor exhausted; it must be called with c.mu held. Used when a
// user-specified limit is satisfied mid-batch, so the server-side cursor
// does not outlive the last document the caller asked for.
func (c *Cursor) killLocked(ctx context.Context) {
	id := c.cursorID
	c.exhausted = true
	c.cursorID = 0
	if id == 0 {
		return
	}
	if c.reaper != nil {
		c.reaper.Forget(id)
	}
	_ = command.KillCursors(ctx, c.runner, c.db, c.collection, []int64{id})
}

func (c *Cursor) fetchMoreLocked(ctx context.Context) error {
	batchSize := c.batchSize
	if c.limitRemaining > 0 && (batchSize == 0 || int64(batchSize) > c.limitRemaining) {
		batchSize = int32(c.limitRemaining)
	}
	result, err := command.GetMore(ctx, c.runner, c.db, c.collection, c.cursorID, batchSize, command.Options{})
	if err != nil {
		return err
	}

	c.batch = result.FirstBatch
	c.pos = 0

	if result.CursorID == 0 {
		c.exhausted = true
		if c.reaper != nil {
			c.reaper.Forget(c.cursorID)
		}
	}
	c.cursorID = result.CursorID
	return nil
}

// All drains the cursor into a slice, issuing as many getMore calls as
// needed, then closes it.
func (c *Cursor) All(ctx context.Context) ([]bson.D, error) {
	var out []bson.D
	for {
		doc, ok, err := c.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			break
		}
		out = append(out, doc)
	}
	return out, c.Close(ctx)
}

// Close kills the server-side cursor if it has not already been exhausted.
// A killCursors failure is discarded, not returned. It is safe to call more
// than once.
func (c *Cursor) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	if c.exhausted || c.cursorID == 0 {
		return nil
	}
	if c.reaper != nil {
		c.reaper.Forget(c.cursorID)
	}
	_ = command.KillCursors(ctx, c.runner, c.db, c.collection, []int64{c.cursorID})
	return nil
}

// ID returns the current server-side cursor id: 0 once the server reports
// the cursor exhausted or a satisfied limit has killed it. Close does not
// reset it.
func (c *Cursor) ID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursorID
}
