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

// Package std prints micro-batch results as text tables on the standard output.
package std

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/amient/streamcount"
	"github.com/rs/zerolog"
)

const (
	defaultNumRows = 20
	truncateWidth  = 20
	minColumnWidth = 3
	batchSeparator = "-------------------------------------------"
)

// Console is the "console" sink format. Out defaults to the process standard output.
type Console struct {
	Out io.Writer
}

func (c *Console) Name() string {
	return "console"
}

func (c *Console) OpenSink(spec streamcount.SinkSpec) (streamcount.Sink, error) {
	numRows, err := spec.Options.Int("numRows", defaultNumRows)
	if err != nil {
		return nil, err
	}
	if numRows < 0 {
		return nil, fmt.Errorf("%w: numRows must not be negative", streamcount.ErrAnalysis)
	}
	truncate, err := spec.Options.Bool("truncate", true)
	if err != nil {
		return nil, err
	}
	out := c.Out
	if out == nil {
		out = os.Stdout
	}
	return &Out{
		stdout:   bufio.NewWriter(out),
		numRows:  numRows,
		truncate: truncate,
		log:      spec.Logger,
	}, nil
}

// Out writes every snapshot it receives as a bordered table headed by the batch id.
type Out struct {
	mu       sync.Mutex
	stdout   *bufio.Writer
	numRows  int
	truncate bool
	log      zerolog.Logger
}

func (sink *Out) AddBatch(_ context.Context, snapshot *streamcount.Snapshot) error {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	fmt.Fprintf(sink.stdout, "%s\nBatch: %d\n%s\n", batchSeparator, snapshot.BatchID, batchSeparator)
	process(sink.stdout, snapshot, sink.numRows, sink.truncate)
	if err := sink.stdout.Flush(); err != nil {
		return err
	}
	sink.log.Debug().Int64("batch", snapshot.BatchID).Int("rows", len(snapshot.Rows)).Msg("printed")
	return nil
}

func (sink *Out) Close() error {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	return sink.stdout.Flush()
}

func process(stdout *bufio.Writer, snapshot *streamcount.Snapshot, numRows int, truncate bool) {
	header := snapshot.Columns()
	shown := snapshot.Rows
	if len(shown) > numRows {
		shown = shown[:numRows]
	}
	cells := make([][]string, 0, len(shown)+1)
	cells = append(cells, header)
	for _, row := range shown {
		cells = append(cells, []string{
			cell(snapshot.KeyType.Format(row.Key), truncate),
			cell(streamcount.LongType.Format(row.Count), truncate),
		})
	}

	widths := make([]int, len(header))
	for i := range widths {
		widths[i] = minColumnWidth
	}
	for _, line := range cells {
		for i, c := range line {
			if w := utf8.RuneCountInString(c); w > widths[i] {
				widths[i] = w
			}
		}
	}

	border := new(strings.Builder)
	border.WriteByte('+')
	for _, w := range widths {
		border.WriteString(strings.Repeat("-", w))
		border.WriteByte('+')
	}
	border.WriteByte('\n')

	stdout.WriteString(border.String())
	for i, line := range cells {
		stdout.WriteByte('|')
		for j, c := range line {
			stdout.WriteString(pad(c, widths[j], truncate))
			stdout.WriteByte('|')
		}
		stdout.WriteByte('\n')
		if i == 0 {
			stdout.WriteString(border.String())
		}
	}
	stdout.WriteString(border.String())
	if len(snapshot.Rows) > numRows {
		rows := "rows"
		if numRows == 1 {
			rows = "row"
		}
		fmt.Fprintf(stdout, "only showing top %d %s\n", numRows, rows)
	}
	stdout.WriteByte('\n')
}

func cell(s string, truncate bool) string {
	if !truncate || utf8.RuneCountInString(s) <= truncateWidth {
		return s
	}
	return string([]rune(s)[:truncateWidth-3]) + "..."
}

// pad right-aligns cells of truncated tables and left-aligns the rest.
func pad(s string, width int, truncate bool) string {
	fill := strings.Repeat(" ", width-utf8.RuneCountInString(s))
	if truncate {
		return fill + s
	}
	return s + fill
}
