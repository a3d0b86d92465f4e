/*
 * Copyright 2018 Amient Ltd, London
 *
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package streamcount

import (
	"context"
	"fmt"
	"time"
)

// Every builder below is a value: each method returns a modified copy and
// never changes the receiver, so partial definitions can be shared and reused.

type DataReader struct {
	session *Session
	format  string
	options Options
}

func (r DataReader) Format(name string) DataReader {
	r.format = name
	return r
}

func (r DataReader) Option(key, value string) DataReader {
	r.options = r.options.with(key, value)
	return r
}

// Load reads one static file and returns it as a frame. Only its structure is materialised.
func (r DataReader) Load(path string) (*Frame, error) {
	format, err := r.session.formats.source(r.format)
	if err != nil {
		return nil, err
	}
	schema, err := format.InferSchema(path, r.options)
	if err != nil {
		return nil, err
	}
	r.session.log.Info().Str("path", path).Str("schema", schema.String()).Msg("inferred schema")
	return &Frame{path: path, schema: schema}, nil
}

type Frame struct {
	path   string
	schema Schema
}

func (f *Frame) Path() string {
	return f.path
}

func (f *Frame) Schema() Schema {
	return f.schema
}

type DataStreamReader struct {
	session *Session
	format  string
	schema  *Schema
	options Options
}

func (r DataStreamReader) Format(name string) DataStreamReader {
	r.format = name
	return r
}

func (r DataStreamReader) Schema(schema Schema) DataStreamReader {
	fields := make([]Field, len(schema.Fields))
	copy(fields, schema.Fields)
	r.schema = &Schema{Fields: fields}
	return r
}

func (r DataStreamReader) Option(key, value string) DataStreamReader {
	r.options = r.options.with(key, value)
	return r
}

// Load declares an unbounded read of path. No I/O happens until the query starts.
func (r DataStreamReader) Load(path string) Stream {
	s := Stream{session: r.session, format: r.format, path: path, options: r.options}
	if r.schema == nil {
		s.err = fmt.Errorf("%w: a streaming source over %s requires a schema", ErrAnalysis, path)
	} else {
		s.schema = *r.schema
	}
	return s
}

type Stream struct {
	session *Session
	format  string
	path    string
	schema  Schema
	options Options
	err     error
}

func (s Stream) Schema() Schema {
	return s.schema
}

func (s Stream) GroupBy(column string) GroupedStream {
	g := GroupedStream{stream: s, key: column}
	if s.err == nil {
		if _, ok := s.schema.FieldIndex(column); !ok {
			g.err = fmt.Errorf("%w: cannot resolve column %q among %v", ErrAnalysis, column, s.schema.Names())
		}
	}
	return g
}

type GroupedStream struct {
	stream Stream
	key    string
	err    error
}

func (g GroupedStream) Agg(agg Aggregation) AggregatedStream {
	return AggregatedStream{grouped: g, agg: agg}
}

func (g GroupedStream) Count() AggregatedStream {
	return g.Agg(Count())
}

type AggregatedStream struct {
	grouped GroupedStream
	agg     Aggregation
}

func (a AggregatedStream) WriteStream() DataStreamWriter {
	return DataStreamWriter{
		agg:     a,
		mode:    Append,
		format:  "console",
		trigger: ProcessingTime(0),
	}
}

type DataStreamWriter struct {
	agg       AggregatedStream
	name      string
	mode      OutputMode
	format    string
	options   Options
	trigger   Trigger
	pollDelay time.Duration
}

func (w DataStreamWriter) OutputMode(mode OutputMode) DataStreamWriter {
	w.mode = mode
	return w
}

func (w DataStreamWriter) Format(name string) DataStreamWriter {
	w.format = name
	return w
}

func (w DataStreamWriter) Option(key, value string) DataStreamWriter {
	w.options = w.options.with(key, value)
	return w
}

func (w DataStreamWriter) QueryName(name string) DataStreamWriter {
	w.name = name
	return w
}

func (w DataStreamWriter) Trigger(t Trigger) DataStreamWriter {
	w.trigger = t
	return w
}

// PollInterval sets how often the source is listed while no new input is available.
func (w DataStreamWriter) PollInterval(d time.Duration) DataStreamWriter {
	w.pollDelay = d
	return w
}

// Start resolves the definition, recovers the checkpoint and starts executing micro-batches.
// The query runs until ctx is cancelled, Stop is called, the trigger completes or a batch fails.
func (w DataStreamWriter) Start(ctx context.Context) (*Query, error) {
	plan, err := w.resolve()
	if err != nil {
		return nil, err
	}
	return startQuery(ctx, w.agg.grouped.stream.session, plan)
}
