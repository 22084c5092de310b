// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package command

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/mongowire/corewire/bsondoc"
	"github.com/mongowire/corewire/mongoerr"
)

// Batching limits for write commands. A real deployment learns these from
// the isMaster reply (maxWriteBatchSize, maxBsonObjectSize); this core uses
// fixed, conservative defaults, mirroring the teacher driver's own
// constants for the legacy split path.
const (
	defaultMaxBatchCount = 1000
	defaultMaxBatchBytes = 16 * 1024 * 1024
)

// UpsertedResult records one upserted document's generated _id alongside
// the index of the update statement that triggered it.
type UpsertedResult struct {
	Index int32
	ID    interface{}
}

// WriteResult summarizes one insert/update/delete command's reply.
type WriteResult struct {
	N int32

	// NModified and Upserted are only ever populated by Update; Insert and
	// Delete leave them at their zero value.
	NModified int32
	Upserted  []UpsertedResult
}

// Insert runs one or more insert commands, splitting docs across multiple
// wire commands so that neither the per-batch document count nor the
// encoded batch size exceeds the configured limits. It is grounded in the
// teacher driver's own batch-splitting behavior for legacy write commands.
func Insert(ctx context.Context, r Runner, db, collection string, docs []bson.D, ordered bool, opts Options) (*WriteResult, error) {
	if len(docs) == 0 {
		return nil, &mongoerr.InvalidArgument{Reason: mongoerr.NothingToDo}
	}

	sizes := make([]int, len(docs))
	for i, d := range docs {
		raw, err := bson.Marshal(d)
		if err != nil {
			return nil, err
		}
		sizes[i] = len(raw)
	}

	total := &WriteResult{}
	for _, batch := range splitDocuments(sizes, defaultMaxBatchCount, defaultMaxBatchBytes) {
		arr := make([]interface{}, len(batch))
		for i, idx := range batch {
			arr[i] = docs[idx]
		}

		cmd := bsondoc.New().
			Append("insert", collection).
			Append("documents", arr).
			Append("ordered", ordered)

		reply, err := r.SendCommand(ctx, db, cmd)
		if err != nil {
			return total, err
		}
		if n, ok := reply.Int32("n"); ok {
			total.N += n
		}
		if ierr := interpretReply(reply, opts); ierr != nil {
			return total, ierr
		}
	}
	return total, nil
}

// UpdateOne is one element of an update command's updates array.
type UpdateOne struct {
	Filter bson.D
	Update bson.D
	Upsert bool
	Multi  bool
}

// Update runs an update command with one or more update statements.
func Update(ctx context.Context, r Runner, db, collection string, updates []UpdateOne, ordered bool, opts Options) (*WriteResult, error) {
	if len(updates) == 0 {
		return nil, &mongoerr.InvalidArgument{Reason: mongoerr.NothingToDo}
	}
	for _, u := range updates {
		if len(u.Update) == 0 {
			return nil, &mongoerr.InvalidArgument{Reason: mongoerr.NothingToDo}
		}
	}

	arr := make([]interface{}, len(updates))
	for i, u := range updates {
		arr[i] = bson.D{
			{Key: "q", Value: u.Filter},
			{Key: "u", Value: u.Update},
			{Key: "upsert", Value: u.Upsert},
			{Key: "multi", Value: u.Multi},
		}
	}

	cmd := bsondoc.New().
		Append("update", collection).
		Append("updates", arr).
		Append("ordered", ordered)

	reply, err := r.SendCommand(ctx, db, cmd)
	if err != nil {
		return nil, err
	}
	result := &WriteResult{}
	if n, ok := reply.Int32("n"); ok {
		result.N = n
	}
	if nm, ok := reply.Int32("nModified"); ok {
		result.NModified = nm
	}
	if arr, ok := reply.Array("upserted"); ok {
		for _, el := range arr {
			sub, ok := el.(bson.D)
			if !ok {
				continue
			}
			ur := UpsertedResult{}
			for _, e := range sub {
				switch e.Key {
				case "index":
					if v, ok := toInt32(e.Value); ok {
						ur.Index = v
					}
				case "_id":
					ur.ID = e.Value
				}
			}
			result.Upserted = append(result.Upserted, ur)
		}
	}
	return result, interpretReply(reply, opts)
}

// DeleteOne is one element of a delete command's deletes array.
type DeleteOne struct {
	Filter bson.D
	Limit  int32 // 0 deletes all matches, 1 deletes at most one
}

// Delete runs a delete command with one or more delete statements.
func Delete(ctx context.Context, r Runner, db, collection string, deletes []DeleteOne, ordered bool, opts Options) (*WriteResult, error) {
	if len(deletes) == 0 {
		return nil, &mongoerr.InvalidArgument{Reason: mongoerr.NothingToDo}
	}

	arr := make([]interface{}, len(deletes))
	for i, d := range deletes {
		if d.Limit < 0 {
			return nil, &mongoerr.InvalidArgument{Reason: mongoerr.NegativeLimit}
		}
		arr[i] = bson.D{
			{Key: "q", Value: d.Filter},
			{Key: "limit", Value: d.Limit},
		}
	}

	cmd := bsondoc.New().
		Append("delete", collection).
		Append("deletes", arr).
		Append("ordered", ordered)

	reply, err := r.SendCommand(ctx, db, cmd)
	if err != nil {
		return nil, err
	}
	result := &WriteResult{}
	if n, ok := reply.Int32("n"); ok {
		result.N = n
	}
	return result, interpretReply(reply, opts)
}

// splitDocuments groups document indices into batches that respect
// maxCount and maxBytes given each document's encoded size, never
// splitting a single document across batches. Operating on sizes rather
// than the encoded bytes themselves lets the caller build each batch's
// wire command straight from the original bson.D values, with no
// marshal-then-unmarshal round trip through the encoded form.
func splitDocuments(sizes []int, maxCount, maxBytes int) [][]int {
	var batches [][]int
	var current []int
	currentBytes := 0

	for i, size := range sizes {
		if len(current) > 0 && (len(current) >= maxCount || currentBytes+size > maxBytes) {
			batches = append(batches, current)
			current = nil
			currentBytes = 0
		}
		current = append(current, i)
		currentBytes += size
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
