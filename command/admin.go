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

// Count runs a count command and returns the matching document count.
func Count(ctx context.Context, r Runner, db, collection string, filter bson.D) (int64, error) {
	cmd := bsondoc.New().Append("count", collection)
	if filter != nil {
		cmd.Append("query", filter)
	}
	reply, err := r.SendCommand(ctx, db, cmd)
	if err != nil {
		return 0, err
	}
	if ierr := interpretReply(reply, Options{}); ierr != nil {
		return 0, ierr
	}
	n, _ := reply.Int64("n")
	return n, nil
}

// Distinct runs a distinct command and returns the raw "values" array.
func Distinct(ctx context.Context, r Runner, db, collection, key string, filter bson.D) (bson.A, error) {
	cmd := bsondoc.New().Append("distinct", collection).Append("key", key)
	if filter != nil {
		cmd.Append("query", filter)
	}
	reply, err := r.SendCommand(ctx, db, cmd)
	if err != nil {
		return nil, err
	}
	if ierr := interpretReply(reply, Options{}); ierr != nil {
		return nil, ierr
	}
	values, _ := reply.Array("values")
	return values, nil
}

// Aggregate runs an aggregate command and returns its first cursor batch.
// Callers that need more than the first batch drive GetMore from the
// returned cursor id the same way Find's result does.
func Aggregate(ctx context.Context, r Runner, db, collection string, pipeline bson.A, batchSize int32, comment string) (*FindResult, error) {
	cursorOpts := bsondoc.New()
	if batchSize > 0 {
		cursorOpts.Append("batchSize", batchSize)
	}
	cmd := bsondoc.New().
		Append("aggregate", collection).
		Append("pipeline", pipeline).
		Append("cursor", cursorOpts.D())
	if comment != "" {
		cmd.Append("comment", comment)
	}

	reply, err := r.SendCommand(ctx, db, cmd)
	if err != nil {
		return nil, err
	}
	if ierr := interpretReply(reply, Options{}); ierr != nil {
		return nil, ierr
	}
	return parseCursorReply(reply, "firstBatch")
}

// CollectionInfo is one entry of a listCollections reply.
type CollectionInfo struct {
	Name string
	Type string
}

// ListCollections runs a listCollections command and returns every entry
// across the full cursor, issuing getMore as needed.
func ListCollections(ctx context.Context, r Runner, db string, filter bson.D) ([]CollectionInfo, error) {
	cmd := bsondoc.New().Append("listCollections", int32(1))
	if filter != nil {
		cmd.Append("filter", filter)
	}
	reply, err := r.SendCommand(ctx, db, cmd)
	if err != nil {
		return nil, err
	}
	if ierr := interpretReply(reply, Options{}); ierr != nil {
		return nil, ierr
	}

	result, err := parseCursorReply(reply, "firstBatch")
	if err != nil {
		return nil, err
	}

	var out []CollectionInfo
	out = appendCollectionInfos(out, result.FirstBatch)

	cursorID, namespace := result.CursorID, result.Namespace
	for cursorID != 0 {
		collection := collectionFromNamespace(namespace)
		more, err := GetMore(ctx, r, db, collection, cursorID, 0, Options{})
		if err != nil {
			return out, err
		}
		out = appendCollectionInfos(out, more.FirstBatch)
		cursorID = more.CursorID
	}
	return out, nil
}

func appendCollectionInfos(out []CollectionInfo, batch []bson.D) []CollectionInfo {
	for _, d := range batch {
		info := CollectionInfo{}
		for _, e := range d {
			switch e.Key {
			case "name":
				if s, ok := e.Value.(string); ok {
					info.Name = s
				}
			case "type":
				if s, ok := e.Value.(string); ok {
					info.Type = s
				}
			}
		}
		out = append(out, info)
	}
	return out
}

func collectionFromNamespace(ns string) string {
	for i := 0; i < len(ns); i++ {
		if ns[i] == '.' {
			return ns[i+1:]
		}
	}
	return ns
}

// CreateUser runs a createUser command.
func CreateUser(ctx context.Context, r Runner, db, username, password string, roles bson.A) error {
	cmd := bsondoc.New().
		Append("createUser", username).
		Append("pwd", password).
		Append("roles", roles)
	reply, err := r.SendCommand(ctx, db, cmd)
	if err != nil {
		return err
	}
	return interpretReply(reply, Options{})
}

// UsersInfo runs a usersInfo command for one username and returns its raw
// "users" array.
func UsersInfo(ctx context.Context, r Runner, db, username string) (bson.A, error) {
	cmd := bsondoc.New().Append("usersInfo", username)
	reply, err := r.SendCommand(ctx, db, cmd)
	if err != nil {
		return nil, err
	}
	if ierr := interpretReply(reply, Options{}); ierr != nil {
		return nil, ierr
	}
	users, _ := reply.Array("users")
	return users, nil
}

// IsMaster runs an isMaster command against db (conventionally "admin")
// and returns the raw reply for the caller to inspect (maxWireVersion,
// compression, replica set role, and so on).
func IsMaster(ctx context.Context, r Runner, db string) (*bsondoc.Document, error) {
	reply, err := r.SendCommand(ctx, db, bsondoc.New().Append("isMaster", int32(1)))
	if err != nil {
		return nil, err
	}
	return reply, interpretReply(reply, Options{})
}
