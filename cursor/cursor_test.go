// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package cursor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/mongowire/corewire/bsondoc"
)

type fakeRunner struct {
	getMoreReplies   []*bsondoc.Document
	getMoreCalls     int
	getMoreBatchSize []int32
	killCalls        int
	killedIDs        []int64
}

func (f *fakeRunner) SendCommand(ctx context.Context, db string, cmd *bsondoc.Document) (*bsondoc.Document, error) {
	if _, ok := cmd.Lookup("getMore"); ok {
		idx := f.getMoreCalls
		f.getMoreCalls++
		if bs, ok := cmd.Int32("batchSize"); ok {
			f.getMoreBatchSize = append(f.getMoreBatchSize, bs)
		}
		return f.getMoreReplies[idx], nil
	}
	if _, ok := cmd.Lookup("killCursors"); ok {
		f.killCalls++
		if ids, ok := cmd.Array("cursors"); ok {
			for _, id := range ids {
				if v, ok := id.(int64); ok {
					f.killedIDs = append(f.killedIDs, v)
				}
			}
		}
		return bsondoc.New().Append("ok", float64(1)), nil
	}
	return bsondoc.New().Append("ok", float64(0)).Append("errmsg", "unsupported"), nil
}

type fakeReaper struct {
	registered map[int64]string
	forgotten  []int64
}

func newFakeReaper() *fakeReaper { return &fakeReaper{registered: make(map[int64]string)} }

func (r *fakeReaper) Register(id int64, namespace string) { r.registered[id] = namespace }
func (r *fakeReaper) Forget(id int64)                     { r.forgotten = append(r.forgotten, id) }

func cursorReplyWithOneDoc(cursorID int64) *bsondoc.Document {
	raw, _ := bson.Marshal(bson.D{{Key: "v", Value: int32(1)}})
	var d bson.D
	bson.Unmarshal(raw, &d)
	cur := bsondoc.New().
		Append("id", cursorID).
		Append("ns", "test.widgets").
		Append("nextBatch", bson.A{d})
	return bsondoc.New().Append("ok", float64(1)).Append("cursor", cur.D())
}

func TestCursorFetchesMoreUntilExhausted(t *testing.T) {
	runner := &fakeRunner{getMoreReplies: []*bsondoc.Document{
		cursorReplyWithOneDoc(7),
		cursorReplyWithOneDoc(0),
	}}
	reaper := newFakeReaper()

	firstDoc, _ := bson.Marshal(bson.D{{Key: "v", Value: int32(0)}})
	var d0 bson.D
	bson.Unmarshal(firstDoc, &d0)

	c := New(runner, reaper, "test", "widgets", []bson.D{d0}, 7, 1, 0)
	require.Equal(t, "test.widgets", reaper.registered[7])

	docs, err := c.All(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 3)
	require.Equal(t, 2, runner.getMoreCalls)
	require.Equal(t, 0, runner.killCalls, "a naturally exhausted cursor needs no killCursors")
}

func TestCursorOnEmptyCollectionNeverCallsGetMoreOrKill(t *testing.T) {
	runner := &fakeRunner{}
	c := New(runner, nil, "test", "empty", nil, 0, 0, 0)

	docs, err := c.All(context.Background())
	require.NoError(t, err)
	require.Empty(t, docs)
	require.Equal(t, 0, runner.getMoreCalls)
	require.Equal(t, 0, runner.killCalls)
}

func TestCursorCloseBeforeExhaustionKillsCursor(t *testing.T) {
	runner := &fakeRunner{}
	reaper := newFakeReaper()
	c := New(runner, reaper, "test", "widgets", nil, 99, 0, 0)

	require.NoError(t, c.Close(context.Background()))
	require.Equal(t, 1, runner.killCalls)
	require.Equal(t, []int64{99}, runner.killedIDs)
	require.Contains(t, reaper.forgotten, int64(99))

	// Closing twice must not re-issue killCursors.
	require.NoError(t, c.Close(context.Background()))
	require.Equal(t, 1, runner.killCalls)
}

func TestCursorNextAfterCloseReturnsCursorClosed(t *testing.T) {
	c := New(&fakeRunner{}, nil, "test", "widgets", nil, 0, 0, 0)
	require.NoError(t, c.Close(context.Background()))

	_, _, err := c.Next(context.Background())
	require.Error(t, err)
}

func TestCursorLimitClosesAfterSatisfyingDocument(t *testing.T) {
	runner := &fakeRunner{}
	reaper := newFakeReaper()

	d0, _ := bson.Marshal(bson.D{{Key: "v", Value: int32(0)}})
	var firstDoc bson.D
	bson.Unmarshal(d0, &firstDoc)
	d1, _ := bson.Marshal(bson.D{{Key: "v", Value: int32(1)}})
	var secondDoc bson.D
	bson.Unmarshal(d1, &secondDoc)

	// The server ignored the client's requested limit and packed two
	// documents into the first batch anyway; the cursor must still stop
	// after the first and kill the still-open server-side cursor.
	c := New(runner, reaper, "test", "widgets", []bson.D{firstDoc, secondDoc}, 7, 0, 1)

	doc, ok, err := c.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, firstDoc, doc)
	require.Equal(t, 1, runner.killCalls)
	require.Equal(t, []int64{7}, runner.killedIDs)

	_, ok, err = c.Next(context.Background())
	require.NoError(t, err)
	require.False(t, ok, "limit satisfied: no further documents even though the batch held one")
}

func TestCursorGetMoreRequestsNoMoreThanLimitRemaining(t *testing.T) {
	runner := &fakeRunner{getMoreReplies: []*bsondoc.Document{cursorReplyWithOneDoc(0)}}
	c := New(runner, newFakeReaper(), "test", "widgets", nil, 7, 10, 1)

	_, ok, err := c.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, runner.getMoreCalls)
	require.Equal(t, []int32{1}, runner.getMoreBatchSize, "getMore must request no more than the 1 document still owed")
}
