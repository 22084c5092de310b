// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package connection

import (
	"crypto/rand"
	"encoding/binary"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// objectIDGenerator produces primitive.ObjectID values: a 4-byte seconds
// timestamp, a 5-byte value generated once per generator and held fixed, and
// a 3-byte counter that increments atomically for every id produced.
type objectIDGenerator struct {
	processUnique [5]byte
	counter       uint32 // only the low 24 bits are ever used
}

func newObjectIDGenerator() (*objectIDGenerator, error) {
	g := &objectIDGenerator{}
	if _, err := rand.Read(g.processUnique[:]); err != nil {
		return nil, err
	}
	var seed [3]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, err
	}
	g.counter = uint32(seed[0])<<16 | uint32(seed[1])<<8 | uint32(seed[2])
	return g, nil
}

func (g *objectIDGenerator) next() primitive.ObjectID {
	var id primitive.ObjectID

	binary.BigEndian.PutUint32(id[0:4], uint32(time.Now().Unix()))
	copy(id[4:9], g.processUnique[:])

	c := atomic.AddUint32(&g.counter, 1) & 0x00FFFFFF
	id[9] = byte(c >> 16)
	id[10] = byte(c >> 8)
	id[11] = byte(c)

	return id
}
