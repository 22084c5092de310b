// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package mongocore ties the wire multiplexer, the command layer, and the
// cursor engine together behind the Database/Collection handles a caller
// actually programs against. Everything here is a thin, side-effect-free
// wrapper: the resources (the socket, in-flight map, ObjectID generator)
// live on *connection.Connection, not on Database or Collection.
package mongocore

import (
	"strings"

	"github.com/mongowire/corewire/connection"
)

// Database is a handle to one logical database on a Connection. It holds no
// resources of its own; constructing one is cheap.
type Database struct {
	conn *connection.Connection
	name string
}

// NewDatabase returns a handle to the database named name on conn. Any "."
// characters in name are stripped, mirroring the server's own restriction
// that database names never contain one.
func NewDatabase(conn *connection.Connection, name string) *Database {
	return &Database{conn: conn, name: strings.ReplaceAll(name, ".", "")}
}

// Name returns the database's name.
func (d *Database) Name() string { return d.name }

// Collection returns a handle to the named collection within d.
func (d *Database) Collection(name string) *Collection {
	return &Collection{db: d, name: name}
}

// Collection is a handle to one collection within a Database. Like
// Database, it is immutable and holds no resources of its own; its
// FullName is "<db>.<collection>".
type Collection struct {
	db   *Database
	name string
}

// Name returns the collection's own name, without the database prefix.
func (c *Collection) Name() string { return c.name }

// FullName returns the "<db>.<collection>" namespace string the command
// layer and cursor engine use to address this collection.
func (c *Collection) FullName() string { return c.db.name + "." + c.name }

// Database returns the Collection's parent Database handle.
func (c *Collection) Database() *Database { return c.db }
