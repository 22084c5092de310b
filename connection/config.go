// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package connection

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/mongowire/corewire/compress"
	"github.com/mongowire/corewire/internal/logger"
	"github.com/mongowire/corewire/wire"
)

// Dialer is used to make the underlying network connection. *net.Dialer
// satisfies this interface.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// DialerFunc adapts an ordinary function to a Dialer.
type DialerFunc func(ctx context.Context, network, address string) (net.Conn, error)

// DialContext implements Dialer.
func (f DialerFunc) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return f(ctx, network, address)
}

type config struct {
	dialer           Dialer
	tlsConfig        *tls.Config
	idleTimeout      time.Duration
	readTimeout      time.Duration
	writeTimeout     time.Duration
	lifeTimeout      time.Duration
	appName          string
	compressorOrder  []wire.CompressorID
	compressors      *compress.Registry
	logSink          logger.LogSink
	componentLevels  map[logger.Component]logger.Level
	maxInFlight      int64
}

func newConfig(opts ...Option) (*config, error) {
	cfg := &config{
		dialer:      &net.Dialer{},
		maxInFlight: 256,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Option configures a Connection at construction time.
type Option func(*config) error

// WithDialer overrides the network dialer.
func WithDialer(d Dialer) Option {
	return func(c *config) error {
		c.dialer = d
		return nil
	}
}

// WithTLSConfig enables TLS using the given configuration. Constructing the
// *tls.Config itself (certificate loading, CA pools) is out of scope for
// this core; it is accepted here as an opaque collaborator.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *config) error {
		c.tlsConfig = cfg
		return nil
	}
}

// WithIdleTimeout sets how long a Connection may sit unused before Expired
// reports true.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *config) error {
		c.idleTimeout = d
		return nil
	}
}

// WithReadTimeout bounds every individual socket read.
func WithReadTimeout(d time.Duration) Option {
	return func(c *config) error {
		c.readTimeout = d
		return nil
	}
}

// WithWriteTimeout bounds every individual socket write.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *config) error {
		c.writeTimeout = d
		return nil
	}
}

// WithLifeTimeout sets the maximum total lifetime of a Connection.
func WithLifeTimeout(d time.Duration) Option {
	return func(c *config) error {
		c.lifeTimeout = d
		return nil
	}
}

// WithAppName sets the application name advertised during the handshake.
func WithAppName(name string) Option {
	return func(c *config) error {
		c.appName = name
		return nil
	}
}

// WithCompressors registers the given compressors, in client-preference
// order, for OP_COMPRESSED negotiation.
func WithCompressors(reg *compress.Registry, order ...wire.CompressorID) Option {
	return func(c *config) error {
		c.compressors = reg
		c.compressorOrder = order
		return nil
	}
}

// WithLogSink installs a logger.LogSink and per-component log levels.
func WithLogSink(sink logger.LogSink, levels map[logger.Component]logger.Level) Option {
	return func(c *config) error {
		c.logSink = sink
		c.componentLevels = levels
		return nil
	}
}

// WithMaxInFlight bounds the number of concurrently in-flight SendCommand
// calls on the resulting Connection (a simple backpressure valve above the
// unbounded in-flight map).
func WithMaxInFlight(n int64) Option {
	return func(c *config) error {
		c.maxInFlight = n
		return nil
	}
}
