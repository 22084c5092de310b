// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongocore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/mongowire/corewire/bsondoc"
	"github.com/mongowire/corewire/command"
	"github.com/mongowire/corewire/mongoerr"
)

// RunCommand runs an arbitrary command document against d and returns the
// raw reply, interpreted the same way every typed command wrapper is
// (ok/code/errmsg). It exists for commands this core has no typed wrapper
// for.
func (d *Database) RunCommand(ctx context.Context, cmd *bsondoc.Document) (*bsondoc.Document, error) {
	reply, err := d.conn.SendCommand(ctx, d.name, cmd)
	if err != nil {
		return nil, err
	}
	if !reply.IsOK() {
		return reply, commandErrorFromReply(reply)
	}
	return reply, nil
}

// ListCollections returns every collection in d matching filter, draining
// the listCollections cursor to completion.
func (d *Database) ListCollections(ctx context.Context, filter bson.D) ([]command.CollectionInfo, error) {
	return command.ListCollections(ctx, d.conn, d.name, filter)
}

// CreateUser creates a user in d with the given roles.
func (d *Database) CreateUser(ctx context.Context, username, password string, roles bson.A) error {
	return command.CreateUser(ctx, d.conn, d.name, username, password, roles)
}

// UsersInfo returns the raw usersInfo "users" array for username.
func (d *Database) UsersInfo(ctx context.Context, username string) (bson.A, error) {
	return command.UsersInfo(ctx, d.conn, d.name, username)
}

// IsMaster runs an isMaster command against d and returns the raw reply.
func (d *Database) IsMaster(ctx context.Context) (*bsondoc.Document, error) {
	return command.IsMaster(ctx, d.conn, d.name)
}

func commandErrorFromReply(reply *bsondoc.Document) error {
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
