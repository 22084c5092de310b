// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package logger

import "github.com/go-logr/logr"

// logrSink adapts a logr.Logger into this package's LogSink, the one-method
// shim the package doc promises: logr's own verbosity convention (V(n))
// plays the same role this package's level int does, so a job's level is
// simply handed to V before Info is called.
type logrSink struct {
	l logr.Logger
}

// FromLogr wraps l as a LogSink so a caller's existing logr.Logger (backed
// by zap, logrus, klog, or any other logr implementation) can be plugged
// into New instead of the default stderr sink.
func FromLogr(l logr.Logger) LogSink {
	return logrSink{l: l}
}

func (s logrSink) Info(level int, msg string, keysAndValues ...interface{}) {
	s.l.V(level).Info(msg, keysAndValues...)
}
