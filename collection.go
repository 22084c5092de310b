// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongocore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/mongowire/corewire/command"
	"github.com/mongowire/corewire/cursor"
)

// FindOptions controls a Find call. The zero value requests every matching
// document in server-default order and batch size.
type FindOptions struct {
	Projection bson.D
	Sort       bson.D
	Skip       int64
	Limit      int64
	BatchSize  int32
	Comment    string
}

// Find issues a find command and returns a live Cursor over the results.
// The caller owns the returned Cursor and must call Close on it (directly,
// or via All) once done; c.db.conn's reaper will still catch an abandoned
// cursor when the connection itself closes, but that is a backstop, not a
// substitute for an explicit Close.
func (c *Collection) Find(ctx context.Context, filter bson.D, opts FindOptions) (*cursor.Cursor, error) {
	args := command.FindArgs{
		Collection: c.name,
		Filter:     filter,
		Projection: opts.Projection,
		Sort:       opts.Sort,
		Skip:       opts.Skip,
		Limit:      opts.Limit,
		BatchSize:  opts.BatchSize,
		Comment:    opts.Comment,
	}
	result, err := command.Find(ctx, c.db.conn, c.db.name, args, command.Options{})
	if err != nil {
		return nil, err
	}
	return cursor.New(c.db.conn, c.db.conn.Reaper(), c.db.name, c.name, result.FirstBatch, result.CursorID, opts.BatchSize, opts.Limit), nil
}

// FindOne issues a find command with an effective limit of 1 and returns
// its single document, if any. Because the limit is pushed into the same
// find command the cursor is built from, a matching document is always
// available in the first batch: no getMore round trip is ever needed.
func (c *Collection) FindOne(ctx context.Context, filter bson.D, opts FindOptions) (bson.D, bool, error) {
	opts.Limit = 1
	opts.BatchSize = 1
	cur, err := c.Find(ctx, filter, opts)
	if err != nil {
		return nil, false, err
	}
	docs, err := cur.All(ctx)
	if err != nil {
		return nil, false, err
	}
	if len(docs) == 0 {
		return nil, false, nil
	}
	return docs[0], true, nil
}

// InsertOne inserts a single document, generating an ObjectID for its _id
// field if the caller did not supply one.
func (c *Collection) InsertOne(ctx context.Context, doc bson.D) (*command.WriteResult, error) {
	return c.InsertMany(ctx, []bson.D{doc}, true)
}

// InsertMany inserts one or more documents, splitting them into
// server-sized batches as command.Insert requires, generating ObjectIDs
// for any document that does not already carry an _id field.
func (c *Collection) InsertMany(ctx context.Context, docs []bson.D, ordered bool) (*command.WriteResult, error) {
	withIDs := make([]bson.D, len(docs))
	for i, d := range docs {
		withIDs[i] = c.withGeneratedID(d)
	}
	return command.Insert(ctx, c.db.conn, c.db.name, c.name, withIDs, ordered, command.Options{})
}

func (c *Collection) withGeneratedID(doc bson.D) bson.D {
	for _, e := range doc {
		if e.Key == "_id" {
			return doc
		}
	}
	out := make(bson.D, 0, len(doc)+1)
	out = append(out, bson.E{Key: "_id", Value: c.db.conn.NextObjectID()})
	return append(out, doc...)
}

// UpdateOne runs a single-statement, non-multi update command.
func (c *Collection) UpdateOne(ctx context.Context, filter, update bson.D, upsert bool) (*command.WriteResult, error) {
	return command.Update(ctx, c.db.conn, c.db.name, c.name, []command.UpdateOne{
		{Filter: filter, Update: update, Upsert: upsert, Multi: false},
	}, true, command.Options{})
}

// UpdateMany runs a single-statement, multi-document update command.
func (c *Collection) UpdateMany(ctx context.Context, filter, update bson.D, upsert bool) (*command.WriteResult, error) {
	return command.Update(ctx, c.db.conn, c.db.name, c.name, []command.UpdateOne{
		{Filter: filter, Update: update, Upsert: upsert, Multi: true},
	}, true, command.Options{})
}

// DeleteOne runs a delete command limited to at most one matching document.
func (c *Collection) DeleteOne(ctx context.Context, filter bson.D) (*command.WriteResult, error) {
	return command.Delete(ctx, c.db.conn, c.db.name, c.name, []command.DeleteOne{
		{Filter: filter, Limit: 1},
	}, true, command.Options{})
}

// DeleteMany runs a delete command with no per-statement limit.
func (c *Collection) DeleteMany(ctx context.Context, filter bson.D) (*command.WriteResult, error) {
	return command.Delete(ctx, c.db.conn, c.db.name, c.name, []command.DeleteOne{
		{Filter: filter, Limit: 0},
	}, true, command.Options{})
}

// Count returns the number of documents matching filter.
func (c *Collection) Count(ctx context.Context, filter bson.D) (int64, error) {
	return command.Count(ctx, c.db.conn, c.db.name, c.name, filter)
}

// Distinct returns the distinct values of key across documents matching
// filter.
func (c *Collection) Distinct(ctx context.Context, key string, filter bson.D) (bson.A, error) {
	return command.Distinct(ctx, c.db.conn, c.db.name, c.name, key, filter)
}

// Aggregate runs an aggregation pipeline and returns a live Cursor over its
// results.
func (c *Collection) Aggregate(ctx context.Context, pipeline bson.A, batchSize int32, comment string) (*cursor.Cursor, error) {
	result, err := command.Aggregate(ctx, c.db.conn, c.db.name, c.name, pipeline, batchSize, comment)
	if err != nil {
		return nil, err
	}
	return cursor.New(c.db.conn, c.db.conn.Reaper(), c.db.name, c.name, result.FirstBatch, result.CursorID, batchSize, 0), nil
}
