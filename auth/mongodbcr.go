// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package auth

import (
	"context"
	"crypto/md5"
	"encoding/hex"

	"github.com/mongowire/corewire/bsondoc"
	"github.com/mongowire/corewire/mongoerr"
)

// authenticateMongoDBCR implements the legacy MONGODB-CR handshake: fetch a
// server nonce, then authenticate with md5(nonce + username +
// md5(username:mongo:password)). No ecosystem library implements this
// retired mechanism, so it is hand-rolled directly from its three-field
// wire exchange.
func authenticateMongoDBCR(ctx context.Context, sender commandSender, cred Credential) error {
	reply, err := sender.SendCommand(ctx, cred.AuthSource(), bsondoc.New().Append("getnonce", int32(1)))
	if err != nil {
		return err
	}
	if !reply.IsOK() {
		return commandFailed(reply, mongoerr.UnexpectedPayload, "getnonce rejected")
	}
	nonce, ok := reply.String("nonce")
	if !ok {
		return &mongoerr.AuthError{Sub: mongoerr.UnexpectedPayload, Message: "getnonce reply missing nonce"}
	}

	passwordDigest := scramPassword(cred.Username, cred.Password)
	keySum := md5.Sum([]byte(nonce + cred.Username + passwordDigest))
	key := hex.EncodeToString(keySum[:])

	reply, err = sender.SendCommand(ctx, cred.AuthSource(), bsondoc.New().
		Append("authenticate", int32(1)).
		Append("nonce", nonce).
		Append("user", cred.Username).
		Append("key", key))
	if err != nil {
		return err
	}
	if !reply.IsOK() {
		return commandFailed(reply, mongoerr.IncorrectCredentials, "authenticate rejected")
	}
	return nil
}
