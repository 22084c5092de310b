// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package auth

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"

	"github.com/xdg-go/scram"

	"github.com/mongowire/corewire/bsondoc"
	"github.com/mongowire/corewire/mongoerr"
)

// maxSaslSteps bounds the SCRAM conversation so a misbehaving server cannot
// spin the client in an infinite saslContinue loop.
const maxSaslSteps = 8

// scramPassword computes the MongoDB-specific password digest SCRAM-SHA-1
// authenticates with: hex(md5("username:mongo:password")). MongoDB mixes
// the username into the credential this way instead of authenticating the
// bare password, so the same password hashes differently per user.
func scramPassword(username, password string) string {
	sum := md5.Sum([]byte(username + ":mongo:" + password))
	return hex.EncodeToString(sum[:])
}

// authenticateScramSHA1 drives the SASL/SCRAM-SHA-1 conversation using the
// real github.com/xdg-go/scram state machine, grounded in the SASL
// conversation shape of a runCommand-based mongo client: saslStart followed
// by zero or more saslContinue calls, keyed by conversationId, until both
// sides report done.
func authenticateScramSHA1(ctx context.Context, sender commandSender, cred Credential) error {
	client, err := scram.NewClient(sha1.New, cred.Username, scramPassword(cred.Username, cred.Password))
	if err != nil {
		return &mongoerr.AuthError{Sub: mongoerr.UnexpectedPayload, Message: "build SCRAM client", Wrapped: err}
	}
	conv := client.NewConversation()

	clientFirst, err := conv.Step("")
	if err != nil {
		return &mongoerr.AuthError{Sub: mongoerr.UnexpectedPayload, Message: "compute client-first message", Wrapped: err}
	}

	reply, err := sender.SendCommand(ctx, cred.AuthSource(), bsondoc.New().
		Append("saslStart", int32(1)).
		Append("mechanism", string(MechanismScramSHA1)).
		Append("payload", []byte(clientFirst)).
		Append("autoAuthorize", int32(1)))
	if err != nil {
		return err
	}
	if !reply.IsOK() {
		return commandFailed(reply, mongoerr.IncorrectCredentials, "saslStart rejected")
	}

	conversationID, _ := reply.Int32("conversationId")

	for step := 0; step < maxSaslSteps; step++ {
		done, _ := reply.Bool("done")
		payload, _ := reply.Binary("payload")

		if !conv.Done() {
			next, err := conv.Step(string(payload))
			if err != nil {
				// The first step checks the server-first message (nonce,
				// salt, iteration count); later steps check the server
				// signature.
				sub := mongoerr.ServerSignatureInvalid
				if step == 0 {
					sub = mongoerr.UnexpectedPayload
				}
				return &mongoerr.AuthError{Sub: sub, Message: "SCRAM step rejected server message", Wrapped: err}
			}
			reply, err = sender.SendCommand(ctx, cred.AuthSource(), bsondoc.New().
				Append("saslContinue", int32(1)).
				Append("conversationId", conversationID).
				Append("payload", []byte(next)))
			if err != nil {
				return err
			}
			if !reply.IsOK() {
				return commandFailed(reply, mongoerr.IncorrectCredentials, "saslContinue rejected")
			}
			continue
		}

		if done {
			return nil
		}

		// The client has nothing left to send but the server has not yet
		// acknowledged done; send one empty saslContinue so it can.
		reply, err = sender.SendCommand(ctx, cred.AuthSource(), bsondoc.New().
			Append("saslContinue", int32(1)).
			Append("conversationId", conversationID).
			Append("payload", []byte{}))
		if err != nil {
			return err
		}
		if !reply.IsOK() {
			return commandFailed(reply, mongoerr.IncorrectCredentials, "saslContinue rejected")
		}
		if d, _ := reply.Bool("done"); d {
			return nil
		}
	}

	return &mongoerr.AuthError{Sub: mongoerr.UnexpectedPayload, Message: "SCRAM conversation did not converge"}
}
