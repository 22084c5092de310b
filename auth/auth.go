// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package auth

import (
	"context"

	"github.com/mongowire/corewire/bsondoc"
	"github.com/mongowire/corewire/mongoerr"
)

// commandSender is the subset of *connection.Connection that the auth
// handshakes need. Defining it locally, rather than importing the
// connection package, keeps auth free of a dependency cycle (connection
// imports auth to serialize the handshake under its own connection-lifetime
// mutex; auth never needs to import connection).
type commandSender interface {
	SendCommand(ctx context.Context, db string, cmd *bsondoc.Document) (*bsondoc.Document, error)
}

// Authenticate runs the handshake for cred.ResolvedMechanism() against
// sender, returning a *mongoerr.AuthError on any failure. Callers that share
// sender across goroutines (e.g. connection.Connection) are responsible for
// serializing concurrent Authenticate calls; the handshake itself is not
// safe to run twice concurrently on the same connection.
func Authenticate(ctx context.Context, sender commandSender, cred Credential) error {
	switch cred.ResolvedMechanism() {
	case MechanismMongoDBCR:
		return authenticateMongoDBCR(ctx, sender, cred)
	default:
		return authenticateScramSHA1(ctx, sender, cred)
	}
}

func commandFailed(reply *bsondoc.Document, sub mongoerr.AuthSub, fallback string) error {
	if msg, ok := reply.String("errmsg"); ok {
		return &mongoerr.AuthError{Sub: sub, Message: msg}
	}
	return &mongoerr.AuthError{Sub: sub, Message: fallback}
}
