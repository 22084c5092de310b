// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package command

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/mongowire/corewire/bsondoc"
	"github.com/mongowire/corewire/mongoerr"
)

type fakeRunner struct {
	calls    int
	handlers []func(db string, cmd *bsondoc.Document) *bsondoc.Document
}

func (f *fakeRunner) SendCommand(ctx context.Context, db string, cmd *bsondoc.Document) (*bsondoc.Document, error) {
	idx := f.calls
	f.calls++
	if idx >= len(f.handlers) {
		return nil, fmt.Errorf("fakeRunner: no handler configured for call %d", idx)
	}
	return f.handlers[idx](db, cmd), nil
}

func TestFindParsesFirstBatchAndCursorID(t *testing.T) {
	doc1, _ := bson.Marshal(bson.D{{Key: "_id", Value: int32(1)}})
	var d1 bson.D
	bson.Unmarshal(doc1, &d1)

	runner := &fakeRunner{handlers: []func(string, *bsondoc.Document) *bsondoc.Document{
		func(db string, cmd *bsondoc.Document) *bsondoc.Document {
			name, _ := cmd.String("find")
			require.Equal(t, "widgets", name)
			cursor := bsondoc.New().
				Append("id", int64(42)).
				Append("ns", "test.widgets").
				Append("firstBatch", bson.A{d1})
			return bsondoc.New().Append("ok", float64(1)).Append("cursor", cursor.D())
		},
	}}

	result, err := Find(context.Background(), runner, "test", FindArgs{Collection: "widgets"}, Options{})
	require.NoError(t, err)
	require.Equal(t, int64(42), result.CursorID)
	require.Equal(t, "test.widgets", result.Namespace)
	require.Len(t, result.FirstBatch, 1)
}

func TestFindEmptyCollectionNoCursor(t *testing.T) {
	runner := &fakeRunner{handlers: []func(string, *bsondoc.Document) *bsondoc.Document{
		func(db string, cmd *bsondoc.Document) *bsondoc.Document {
			cursor := bsondoc.New().
				Append("id", int64(0)).
				Append("ns", "test.empty").
				Append("firstBatch", bson.A{})
			return bsondoc.New().Append("ok", float64(1)).Append("cursor", cursor.D())
		},
	}}

	result, err := Find(context.Background(), runner, "test", FindArgs{Collection: "empty"}, Options{})
	require.NoError(t, err)
	require.Equal(t, int64(0), result.CursorID)
	require.Empty(t, result.FirstBatch)
}

func TestInsertReportsWriteErrorsOnPartialFailure(t *testing.T) {
	runner := &fakeRunner{handlers: []func(string, *bsondoc.Document) *bsondoc.Document{
		func(db string, cmd *bsondoc.Document) *bsondoc.Document {
			writeErr := bson.D{
				{Key: "index", Value: int32(1)},
				{Key: "code", Value: int32(11000)},
				{Key: "errmsg", Value: "duplicate key"},
			}
			return bsondoc.New().
				Append("ok", float64(1)).
				Append("n", int32(1)).
				Append("writeErrors", bson.A{writeErr})
		},
	}}

	docs := []bson.D{
		{{Key: "_id", Value: int32(1)}},
		{{Key: "_id", Value: int32(1)}}, // duplicate, rejected by the fake server
	}
	result, err := Insert(context.Background(), runner, "test", "widgets", docs, true, Options{})
	require.Error(t, err)
	var writeErrs mongoerr.WriteErrors
	require.ErrorAs(t, err, &writeErrs)
	require.Len(t, writeErrs, 1)
	require.Equal(t, int32(1), writeErrs[0].Index)
	require.Equal(t, int32(1), result.N)
}

func TestInsertFailsOnWriteConcernErrorEvenWhenOK(t *testing.T) {
	runner := &fakeRunner{handlers: []func(string, *bsondoc.Document) *bsondoc.Document{
		func(db string, cmd *bsondoc.Document) *bsondoc.Document {
			wce := bson.D{
				{Key: "code", Value: int32(64)},
				{Key: "codeName", Value: "WriteConcernFailed"},
				{Key: "errmsg", Value: "waiting for replication timed out"},
			}
			return bsondoc.New().
				Append("ok", float64(1)).
				Append("n", int32(1)).
				Append("writeConcernError", wce)
		},
	}}

	docs := []bson.D{{{Key: "_id", Value: int32(1)}}}
	result, err := Insert(context.Background(), runner, "test", "widgets", docs, true, Options{})
	require.Error(t, err)
	var wce *mongoerr.WriteConcernError
	require.ErrorAs(t, err, &wce)
	require.Equal(t, int32(64), wce.Code)
	require.Equal(t, "WriteConcernFailed", wce.CodeName)
	require.Equal(t, int32(1), result.N, "n is still reported alongside the write concern error")
}

func TestInsertIgnoresWriteConcernErrorWhenConfigured(t *testing.T) {
	runner := &fakeRunner{handlers: []func(string, *bsondoc.Document) *bsondoc.Document{
		func(db string, cmd *bsondoc.Document) *bsondoc.Document {
			wce := bson.D{{Key: "code", Value: int32(64)}, {Key: "errmsg", Value: "timed out"}}
			return bsondoc.New().Append("ok", float64(1)).Append("n", int32(1)).Append("writeConcernError", wce)
		},
	}}

	docs := []bson.D{{{Key: "_id", Value: int32(1)}}}
	_, err := Insert(context.Background(), runner, "test", "widgets", docs, true, Options{IgnoreWriteErrors: true})
	require.NoError(t, err)
}

func TestUpdateRejectsEmptyUpdateBeforeSendingAnyCommand(t *testing.T) {
	runner := &fakeRunner{}
	_, err := Update(context.Background(), runner, "test", "widgets",
		[]UpdateOne{{Filter: bson.D{{Key: "_id", Value: 1}}, Update: nil}}, true, Options{})

	require.Error(t, err)
	var invalid *mongoerr.InvalidArgument
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, mongoerr.NothingToDo, invalid.Reason)
	require.Equal(t, 0, runner.calls, "no frame should be written for a locally-rejected update")
}

func TestUpdateParsesNModifiedAndUpserted(t *testing.T) {
	runner := &fakeRunner{handlers: []func(string, *bsondoc.Document) *bsondoc.Document{
		func(db string, cmd *bsondoc.Document) *bsondoc.Document {
			name, _ := cmd.String("update")
			require.Equal(t, "widgets", name)
			upserted := bson.D{
				{Key: "index", Value: int32(0)},
				{Key: "_id", Value: int32(7)},
			}
			return bsondoc.New().
				Append("ok", float64(1)).
				Append("n", int32(1)).
				Append("nModified", int32(0)).
				Append("upserted", bson.A{upserted})
		},
	}}

	result, err := Update(context.Background(), runner, "test", "widgets",
		[]UpdateOne{{Filter: bson.D{{Key: "_id", Value: 7}}, Update: bson.D{{Key: "$set", Value: bson.D{{Key: "x", Value: 1}}}}, Upsert: true}},
		true, Options{})

	require.NoError(t, err)
	require.Equal(t, int32(1), result.N)
	require.Equal(t, int32(0), result.NModified)
	require.Len(t, result.Upserted, 1)
	require.Equal(t, int32(0), result.Upserted[0].Index)
	require.Equal(t, int32(7), result.Upserted[0].ID)
}

func TestDeleteRejectsNegativeLimit(t *testing.T) {
	runner := &fakeRunner{}
	_, err := Delete(context.Background(), runner, "test", "widgets",
		[]DeleteOne{{Filter: bson.D{}, Limit: -1}}, true, Options{})

	require.Error(t, err)
	require.Equal(t, 0, runner.calls)
}

func TestSplitDocumentsRespectsCountAndByteLimits(t *testing.T) {
	sizes := make([]int, 5)
	for i := range sizes {
		sizes[i] = 10
	}

	byCount := splitDocuments(sizes, 2, 1<<20)
	require.Len(t, byCount, 3)
	require.Len(t, byCount[0], 2)
	require.Equal(t, []int{0, 1}, byCount[0])
	require.Len(t, byCount[2], 1)

	byBytes := splitDocuments(sizes, 1000, 25)
	require.Len(t, byBytes, 3)
	require.Len(t, byBytes[0], 2)
}

func TestFindSendsCommentWhenSet(t *testing.T) {
	var sawComment string
	runner := &fakeRunner{handlers: []func(string, *bsondoc.Document) *bsondoc.Document{
		func(db string, cmd *bsondoc.Document) *bsondoc.Document {
			sawComment, _ = cmd.String("comment")
			cursor := bsondoc.New().Append("id", int64(0)).Append("ns", "test.widgets").Append("firstBatch", bson.A{})
			return bsondoc.New().Append("ok", float64(1)).Append("cursor", cursor.D())
		},
	}}

	_, err := Find(context.Background(), runner, "test", FindArgs{Collection: "widgets", Comment: "audit-123"}, Options{})
	require.NoError(t, err)
	require.Equal(t, "audit-123", sawComment)
}

func TestFindOmitsCommentWhenUnset(t *testing.T) {
	var sawComment bool
	runner := &fakeRunner{handlers: []func(string, *bsondoc.Document) *bsondoc.Document{
		func(db string, cmd *bsondoc.Document) *bsondoc.Document {
			_, sawComment = cmd.Lookup("comment")
			cursor := bsondoc.New().Append("id", int64(0)).Append("ns", "test.widgets").Append("firstBatch", bson.A{})
			return bsondoc.New().Append("ok", float64(1)).Append("cursor", cursor.D())
		},
	}}

	_, err := Find(context.Background(), runner, "test", FindArgs{Collection: "widgets"}, Options{})
	require.NoError(t, err)
	require.False(t, sawComment)
}

func TestAggregateSendsPipelineAndComment(t *testing.T) {
	pipeline := bson.A{bson.D{{Key: "$match", Value: bson.D{{Key: "active", Value: true}}}}}
	runner := &fakeRunner{handlers: []func(string, *bsondoc.Document) *bsondoc.Document{
		func(db string, cmd *bsondoc.Document) *bsondoc.Document {
			name, _ := cmd.String("aggregate")
			require.Equal(t, "widgets", name)
			comment, _ := cmd.String("comment")
			require.Equal(t, "pipeline-run", comment)
			pipe, _ := cmd.Lookup("pipeline")
			require.Equal(t, pipeline, pipe)
			cursor := bsondoc.New().Append("id", int64(0)).Append("ns", "test.widgets").Append("firstBatch", bson.A{})
			return bsondoc.New().Append("ok", float64(1)).Append("cursor", cursor.D())
		},
	}}

	result, err := Aggregate(context.Background(), runner, "test", "widgets", pipeline, 0, "pipeline-run")
	require.NoError(t, err)
	require.Equal(t, int64(0), result.CursorID)
}

func TestCommandErrorOnNotOK(t *testing.T) {
	runner := &fakeRunner{handlers: []func(string, *bsondoc.Document) *bsondoc.Document{
		func(db string, cmd *bsondoc.Document) *bsondoc.Document {
			return bsondoc.New().
				Append("ok", float64(0)).
				Append("code", int32(13)).
				Append("codeName", "Unauthorized").
				Append("errmsg", "not authorized")
		},
	}}

	_, err := Count(context.Background(), runner, "test", "widgets", nil)
	require.Error(t, err)
	var ce *mongoerr.CommandError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, int32(13), ce.Code)
}
