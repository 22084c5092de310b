// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package bsondoc defines the core's Document type: an opaque, ordered
// key/value map of BSON primitives. BSON encode/decode itself is treated as
// an external collaborator, backed here by go.mongodb.org/mongo-driver/bson.
package bsondoc

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Document is an ordered map of string keys to BSON values. It round-trips
// byte-for-byte through Marshal/Unmarshal: the order elements were appended
// in is the order they are encoded in.
type Document struct {
	elems bson.D
}

// New returns an empty Document.
func New() *Document {
	return &Document{}
}

// NewFromD wraps an existing bson.D without copying it.
func NewFromD(d bson.D) *Document {
	return &Document{elems: d}
}

// Append adds a key/value pair, preserving insertion order. It returns the
// receiver so calls can be chained.
func (d *Document) Append(key string, value interface{}) *Document {
	d.elems = append(d.elems, bson.E{Key: key, Value: value})
	return d
}

// Len returns the number of top-level elements.
func (d *Document) Len() int { return len(d.elems) }

// D returns the underlying ordered element slice, for callers that need to
// hand it to bson.Marshal directly (e.g. as a sub-document value).
func (d *Document) D() bson.D { return d.elems }

// Lookup returns the raw value for key and whether it was present.
func (d *Document) Lookup(key string) (interface{}, bool) {
	for _, e := range d.elems {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Int32 returns the value at key widened to int32. ok is false if the key is
// absent or not a numeric type.
func (d *Document) Int32(key string) (v int32, ok bool) {
	val, present := d.Lookup(key)
	if !present {
		return 0, false
	}
	return toInt32(val)
}

// Int64 returns the value at key widened to int64, accepting int32, int64,
// and float64 server replies (MongoDB commonly returns small counts as
// doubles when computed server-side).
func (d *Document) Int64(key string) (v int64, ok bool) {
	val, present := d.Lookup(key)
	if !present {
		return 0, false
	}
	return toInt64(val)
}

// String returns the string value at key.
func (d *Document) String(key string) (string, bool) {
	val, present := d.Lookup(key)
	if !present {
		return "", false
	}
	s, ok := val.(string)
	return s, ok
}

// Bool returns the bool value at key.
func (d *Document) Bool(key string) (bool, bool) {
	val, present := d.Lookup(key)
	if !present {
		return false, false
	}
	b, ok := val.(bool)
	return b, ok
}

// Binary returns the raw bytes at key. Accepts both []byte and
// primitive.Binary (the BSON binary subtype wrapper).
func (d *Document) Binary(key string) ([]byte, bool) {
	val, present := d.Lookup(key)
	if !present {
		return nil, false
	}
	switch v := val.(type) {
	case []byte:
		return v, true
	case primitive.Binary:
		return v.Data, true
	default:
		return nil, false
	}
}

// SubDocument returns the nested Document at key.
func (d *Document) SubDocument(key string) (*Document, bool) {
	val, present := d.Lookup(key)
	if !present {
		return nil, false
	}
	switch v := val.(type) {
	case bson.D:
		return NewFromD(v), true
	case *Document:
		return v, true
	case bson.Raw:
		var sub bson.D
		if err := bson.Unmarshal(v, &sub); err != nil {
			return nil, false
		}
		return NewFromD(sub), true
	default:
		return nil, false
	}
}

// Array returns the array value at key as a slice of raw elements.
func (d *Document) Array(key string) (bson.A, bool) {
	val, present := d.Lookup(key)
	if !present {
		return nil, false
	}
	a, ok := val.(bson.A)
	return a, ok
}

// Marshal encodes the Document to its BSON byte representation.
func (d *Document) Marshal() ([]byte, error) {
	return bson.Marshal(d.elems)
}

// Unmarshal decodes raw BSON bytes into a fresh Document, preserving key
// order.
func Unmarshal(raw []byte) (*Document, error) {
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("bsondoc: unmarshal: %w", err)
	}
	return NewFromD(d), nil
}

// IsOK reports whether the top-level "ok" field equals 1, accepting the
// int32, int64, and float64 encodings a server reply may use.
func (d *Document) IsOK() bool {
	val, present := d.Lookup("ok")
	if !present {
		return false
	}
	switch v := val.(type) {
	case int32:
		return v == 1
	case int64:
		return v == 1
	case float64:
		return v == 1
	case bool:
		return v
	default:
		return false
	}
}

func toInt32(val interface{}) (int32, bool) {
	switch v := val.(type) {
	case int32:
		return v, true
	case int64:
		return int32(v), true
	case int:
		return int32(v), true
	case float64:
		return int32(v), true
	default:
		return 0, false
	}
}

func toInt64(val interface{}) (int64, bool) {
	switch v := val.(type) {
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
