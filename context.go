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

	"github.com/rs/zerolog"
)

// execution is the runtime side of one query run: it owns the source, the sink,
// the aggregation state and the checkpoint, and executes micro-batches one at a time.
type execution struct {
	plan    *plan
	cp      *checkpoint
	source  Source
	sink    Sink
	state   *StateStore
	seen    map[string]bool
	next    int64
	pending []Input
	log     zerolog.Logger
}

func newExecution(p *plan, cp *checkpoint, source Source, sink Sink, log zerolog.Logger) *execution {
	return &execution{
		plan:   p,
		cp:     cp,
		source: source,
		sink:   sink,
		state:  NewStateStore(p.keyType, p.agg.Fold),
		seen:   make(map[string]bool),
		log:    log,
	}
}

// recover restores the state of the last committed batch and the set of inputs already
// planned. A batch that was planned but never committed is kept aside to be re-executed.
func (e *execution) recover() error {
	compacted, err := e.cp.compacted()
	if err != nil {
		return err
	}
	for _, path := range compacted.Paths {
		e.seen[path] = true
	}
	committed, hasCommit, err := e.cp.latest(commitsDir)
	if err != nil {
		return err
	}
	if hasCommit {
		rows, err := e.cp.readState(committed, e.plan.keyType)
		if err != nil {
			return err
		}
		e.state.Restore(rows)
		e.next = committed + 1
	}
	planned, err := e.cp.batches(offsetsDir)
	if err != nil {
		return err
	}
	for _, id := range planned {
		if id > e.next {
			e.log.Warn().Int64("batch", id).Msg("ignoring offsets beyond the next batch")
			continue
		}
		entry, err := e.cp.readOffsets(id)
		if err != nil {
			return err
		}
		for _, in := range entry.Inputs {
			e.seen[in.Path] = true
		}
		if id == e.next {
			e.pending = entry.Inputs
		}
	}
	if hasCommit || e.pending != nil {
		e.log.Info().
			Int64("committed", committed).
			Int("groups", e.state.Len()).
			Int("seen", len(e.seen)).
			Bool("replay", e.pending != nil).
			Msg("recovered from checkpoint")
	}
	return nil
}

// poll lists new inputs, capped at limit when limit is positive.
func (e *execution) poll(ctx context.Context, limit int) ([]Input, error) {
	inputs, err := e.source.Poll(ctx, e.seen)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(inputs) > limit {
		inputs = inputs[:limit]
	}
	return inputs, nil
}

// runBatch executes one micro-batch over inputs. Offsets are logged before any input
// is read unless the batch is a replay of offsets that were logged by an earlier run.
func (e *execution) runBatch(ctx context.Context, inputs []Input, replay bool) (Progress, error) {
	started := time.Now()
	batchID := e.next
	log := e.log.With().Int64("batch", batchID).Logger()
	if !replay {
		if err := e.cp.writeOffsets(batchID, inputs); err != nil {
			return Progress{}, err
		}
	}
	for _, in := range inputs {
		e.seen[in.Path] = true
	}

	e.state.BeginBatch()
	var rows int64
	keyIndex := e.plan.keyIndex
	for _, in := range inputs {
		err := e.source.Scan(ctx, in, func(record Record) error {
			e.state.Add(record[keyIndex], record)
			rows++
			return nil
		})
		if err != nil {
			return Progress{}, fmt.Errorf("reading %s: %w", in.Path, err)
		}
	}

	if err := e.cp.writeState(batchID, e.state.Snapshot()); err != nil {
		return Progress{}, err
	}
	snapshot := &Snapshot{
		BatchID:   batchID,
		KeyColumn: e.plan.keyColumn,
		KeyType:   e.plan.keyType,
		Mode:      e.plan.mode,
	}
	updated := e.state.Updated()
	if e.plan.mode == Complete {
		snapshot.Rows = e.state.Snapshot()
	} else {
		snapshot.Rows = updated
	}
	if err := e.sink.AddBatch(ctx, snapshot); err != nil {
		return Progress{}, fmt.Errorf("%w: batch %d: %w", ErrSink, batchID, err)
	}
	if err := e.cp.writeCommit(batchID); err != nil {
		return Progress{}, err
	}
	if err := e.cp.purge(batchID, e.plan.minBatchesToRetain); err != nil {
		log.Warn().Err(err).Msg("failed to purge old checkpoint entries")
	}
	e.next = batchID + 1

	elapsed := time.Since(started)
	p := Progress{
		BatchID:        batchID,
		Timestamp:      started.UTC(),
		NumInputFiles:  len(inputs),
		NumInputRows:   rows,
		DurationMs:     elapsed.Milliseconds(),
		NumStateRows:   e.state.Len(),
		NumUpdatedRows: len(updated),
		NumRowsEmitted: len(snapshot.Rows),
		Replayed:       replay,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		p.InputRowsPerSec = float64(rows) / secs
	}
	log.Info().
		Int("files", p.NumInputFiles).
		Int64("rows", p.NumInputRows).
		Int("groups", p.NumStateRows).
		Dur("duration", elapsed).
		Bool("replay", replay).
		Msg("batch committed")
	return p, nil
}

func (e *execution) close() error {
	var first error
	if err := e.source.Close(); err != nil {
		first = err
	}
	if err := e.sink.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
