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
)

// FindArgs describes one find command.
type FindArgs struct {
	Collection string
	Filter     bson.D
	Projection bson.D
	Sort       bson.D
	Skip       int64
	Limit      int64
	BatchSize  int32
	Comment    string
}

// FindResult is a find reply reduced to the fields the cursor engine needs.
type FindResult struct {
	Namespace  string
	CursorID   int64
	FirstBatch []bson.D
}

// Find issues a find command and returns its first batch and cursor id.
func Find(ctx context.Context, r Runner, db string, args FindArgs, opts Options) (*FindResult, error) {
	cmd := bsondoc.New().Append("find", args.Collection)
	if args.Filter != nil {
		cmd.Append("filter", args.Filter)
	}
	if args.Projection != nil {
		cmd.Append("projection", args.Projection)
	}
	if args.Sort != nil {
		cmd.Append("sort", args.Sort)
	}
	if args.Skip > 0 {
		cmd.Append("skip", args.Skip)
	}
	if args.Limit > 0 {
		cmd.Append("limit", args.Limit)
	}
	if args.BatchSize > 0 {
		cmd.Append("batchSize", args.BatchSize)
	}
	if args.Comment != "" {
		cmd.Append("comment", args.Comment)
	}

	reply, err := r.SendCommand(ctx, db, cmd)
	if err != nil {
		return nil, err
	}
	if ierr := interpretReply(reply, opts); ierr != nil {
		return nil, ierr
	}

	return parseCursorReply(reply, "firstBatch")
}

// GetMore issues a getMore command against an existing cursor and returns
// its next batch.
func GetMore(ctx context.Context, r Runner, db, collection string, cursorID int64, batchSize int32, opts Options) (*FindResult, error) {
	cmd := bsondoc.New().
		Append("getMore", cursorID).
		Append("collection", collection)
	if batchSize > 0 {
		cmd.Append("batchSize", batchSize)
	}

	reply, err := r.SendCommand(ctx, db, cmd)
	if err != nil {
		return nil, err
	}
	if ierr := interpretReply(reply, opts); ierr != nil {
		return nil, ierr
	}

	return parseCursorReply(reply, "nextBatch")
}

// KillCursors issues a killCursors command for the given cursor ids. Any
// ids the server does not recognize (already exhausted or foreign) are
// silently accepted by the server and are not reported as an error here.
func KillCursors(ctx context.Context, r Runner, db, collection string, cursorIDs []int64) error {
	ids := make(bson.A, len(cursorIDs))
	for i, id := range cursorIDs {
		ids[i] = id
	}
	cmd := bsondoc.New().
		Append("killCursors", collection).
		Append("cursors", ids)

	reply, err := r.SendCommand(ctx, db, cmd)
	if err != nil {
		return err
	}
	return interpretReply(reply, Options{})
}

func parseCursorReply(reply *bsondoc.Document, batchKey string) (*FindResult, error) {
	cursor, ok := reply.SubDocument("cursor")
	if !ok {
		return nil, &commandShapeError{Reason: "reply missing cursor sub-document"}
	}

	result := &FindResult{}
	if ns, ok := cursor.String("ns"); ok {
		result.Namespace = ns
	}
	if id, ok := cursor.Int64("id"); ok {
		result.CursorID = id
	}
	if arr, ok := cursor.Array(batchKey); ok {
		result.FirstBatch = make([]bson.D, 0, len(arr))
		for _, el := range arr {
			if d, ok := el.(bson.D); ok {
				result.FirstBatch = append(result.FirstBatch, d)
			}
		}
	}
	return result, nil
}

// commandShapeError reports a reply that was ok:1 but missing a field this
// core's interpretation of the command requires.
type commandShapeError struct {
	Reason string
}

func (e *commandShapeError) Error() string { return "command: unexpected reply shape: " + e.Reason }
