// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package command implements typed wrappers around the runCommand-style
// operations this core supports: find/getMore/killCursors, the CRUD write
// commands, and a handful of administrative commands. Every wrapper builds
// a *bsondoc.Document and runs it through a Runner (satisfied by
// *connection.Connection), then interprets the reply's ok/writeErrors
// fields into the mongoerr taxonomy.
package command

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/mongowire/corewire/bsondoc"
	"github.com/mongowire/corewire/mongoerr"
)

// Runner is the subset of *connection.Connection the command layer needs.
// Defining it locally avoids a dependency cycle between command and
// connection.
type Runner interface {
	SendCommand(ctx context.Context, db string, cmd *bsondoc.Document) (*bsondoc.Document, error)
}

// Options controls how the command layer interprets replies. The zero
// value is the strict default: any non-empty writeErrors array is
// surfaced as an error.
type Options struct {
	// IgnoreWriteErrors suppresses mongoerr.WriteErrors from a reply whose
	// writeErrors array is non-empty, leaving the caller to inspect the
	// raw reply document directly.
	IgnoreWriteErrors bool
}

// interpretReply turns a non-ok reply into a *mongoerr.CommandError, a
// non-empty writeErrors array into mongoerr.WriteErrors, and a non-empty
// writeConcernError sub-document into a *mongoerr.WriteConcernError, the
// latter two unless suppressed by opts.IgnoreWriteErrors, per the write
// commands' ok:1-but-failed contract. It returns only the error; what a
// wrapper returns alongside it is up to that wrapper.
func interpretReply(reply *bsondoc.Document, opts Options) error {
	if !reply.IsOK() {
		ce := &mongoerr.CommandError{}
		if code, ok := reply.Int32("code"); ok {
			ce.Code = code
		}
		if name, ok := reply.String("codeName"); ok {
			ce.CodeName = name
		}
		if msg, ok := reply.String("errmsg"); ok {
			ce.Message = msg
		}
		return ce
	}

	if opts.IgnoreWriteErrors {
		return nil
	}

	if werrs := parseWriteErrors(reply); werrs != nil {
		return werrs
	}
	if wce := parseWriteConcernError(reply); wce != nil {
		return wce
	}
	return nil
}

func parseWriteErrors(reply *bsondoc.Document) mongoerr.WriteErrors {
	arr, ok := reply.Array("writeErrors")
	if !ok || len(arr) == 0 {
		return nil
	}

	var errs mongoerr.WriteErrors
	for _, el := range arr {
		sub, ok := el.(bson.D)
		if !ok {
			continue
		}
		we := &mongoerr.WriteError{}
		for _, e := range sub {
			switch e.Key {
			case "index":
				if v, ok := toInt32(e.Value); ok {
					we.Index = v
				}
			case "code":
				if v, ok := toInt32(e.Value); ok {
					we.Code = v
				}
			case "errmsg":
				if s, ok := e.Value.(string); ok {
					we.Message = s
				}
			}
		}
		errs = append(errs, we)
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func parseWriteConcernError(reply *bsondoc.Document) *mongoerr.WriteConcernError {
	sub, ok := reply.SubDocument("writeConcernError")
	if !ok || sub.Len() == 0 {
		return nil
	}

	wce := &mongoerr.WriteConcernError{}
	if code, ok := sub.Int32("code"); ok {
		wce.Code = code
	}
	if name, ok := sub.String("codeName"); ok {
		wce.CodeName = name
	}
	if msg, ok := sub.String("errmsg"); ok {
		wce.Message = msg
	}
	return wce
}

func toInt32(v interface{}) (int32, bool) {
	switch n := v.(type) {
	case int32:
		return n, true
	case int64:
		return int32(n), true
	case float64:
		return int32(n), true
	default:
		return 0, false
	}
}
