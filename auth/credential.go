// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package auth implements the SCRAM-SHA-1 and MONGODB-CR authentication
// handshakes. SCRAM-SHA-1 is driven by the real github.com/xdg-go/scram
// state machine; MONGODB-CR has no ecosystem library and is hand-rolled
// from its two-command (getnonce, authenticate) exchange.
package auth

import "strings"

// Mechanism names an authentication mechanism.
type Mechanism string

// Supported mechanisms.
const (
	MechanismScramSHA1    Mechanism = "SCRAM-SHA-1"
	MechanismMongoDBCR    Mechanism = "MONGODB-CR"
	mechanismDefaultAlias Mechanism = ""
)

// Credential holds everything needed to authenticate a connection against
// one MongoDB server.
type Credential struct {
	Username  string
	Password  string
	Source    string // authentication database; defaults to "admin"
	Mechanism Mechanism
}

// AuthSource returns the credential's authentication database, defaulting
// to "admin".
func (c Credential) AuthSource() string {
	if c.Source == "" {
		return "admin"
	}
	return c.Source
}

// ResolvedMechanism returns the credential's mechanism, defaulting to
// SCRAM-SHA-1.
func (c Credential) ResolvedMechanism() Mechanism {
	switch strings.ToUpper(string(c.Mechanism)) {
	case string(MechanismMongoDBCR):
		return MechanismMongoDBCR
	default:
		return MechanismScramSHA1
	}
}
