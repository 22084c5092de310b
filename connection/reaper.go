// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package connection

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mongowire/corewire/bsondoc"
	"github.com/mongowire/corewire/internal/logger"
)

// cursorReaper tracks server-side cursor ids opened on a Connection so that
// Close can issue a best-effort killCursors for everything the caller never
// exhausted or explicitly closed itself. The cursor package registers and
// forgets ids as it opens and exhausts cursors; the reaper never interprets
// a cursor beyond its id and namespace.
type cursorReaper struct {
	mu   sync.Mutex
	open map[int64]string // cursor id -> namespace ("db.collection")
}

func newCursorReaper() *cursorReaper {
	return &cursorReaper{open: make(map[int64]string)}
}

// Register records a live cursor id for the given namespace.
func (r *cursorReaper) Register(id int64, namespace string) {
	if id == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open[id] = namespace
}

// Forget removes a cursor id, because it was exhausted or explicitly killed.
func (r *cursorReaper) Forget(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.open, id)
}

// drain returns and clears every outstanding cursor id, grouped by
// namespace, so the caller can issue one killCursors per namespace.
func (r *cursorReaper) drain() map[string][]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.open) == 0 {
		return nil
	}
	grouped := make(map[string][]int64)
	for id, ns := range r.open {
		grouped[ns] = append(grouped[ns], id)
	}
	r.open = make(map[int64]string)
	return grouped
}

// killOutstanding sends a best-effort killCursors for every cursor this
// reaper still has open. A failure is logged at debug level and otherwise
// ignored: Close must not fail because a cleanup command failed.
func (c *Connection) killOutstanding(ctx context.Context) {
	grouped := c.reaper.drain()
	for ns, ids := range grouped {
		db, coll, ok := splitNamespace(ns)
		if !ok {
			continue
		}
		cursorIDs := make([]interface{}, len(ids))
		for i, id := range ids {
			cursorIDs[i] = id
		}
		cmd := bsondoc.New().
			Append("killCursors", coll).
			Append("cursors", cursorIDs)
		reply, err := c.SendCommand(ctx, db, cmd)
		if err == nil && !reply.IsOK() {
			err = fmt.Errorf("killCursors rejected by server")
		}
		if err != nil {
			c.log.Debug(logger.ComponentCursor, "killCursors failed", "namespace", ns, "error", err)
		}
	}
}

func splitNamespace(ns string) (db, coll string, ok bool) {
	i := strings.IndexByte(ns, '.')
	if i < 0 {
		return "", "", false
	}
	return ns[:i], ns[i+1:], true
}
