// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package connection

import "sync/atomic"

// requestIDGenerator hands out a monotonically increasing, always-positive
// stream of request ids, wrapping back to 1 rather than going negative on
// int32 overflow.
type requestIDGenerator struct {
	next int32
}

func (g *requestIDGenerator) nextRequestID() int32 {
	for {
		id := atomic.AddInt32(&g.next, 1)
		if id > 0 {
			return id
		}
		// Overflowed into non-positive territory; reset and retry. The CAS
		// below only matters under concurrent overflow; the common case
		// returns on the first AddInt32.
		atomic.CompareAndSwapInt32(&g.next, id, 0)
	}
}
