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
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/amient/streamcount/util"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Query is the handle of a started streaming query.
type Query struct {
	session *Session
	plan    *plan
	id      uuid.UUID
	runID   uuid.UUID
	started time.Time
	log     zerolog.Logger
	exec    *execution
	cancel  context.CancelFunc
	done    chan struct{}

	mu       sync.Mutex
	status   QueryStatus
	err      error
	stopped  bool
	progress progressRing
	idle     chan struct{}
}

func startQuery(ctx context.Context, session *Session, p *plan) (_ *Query, err error) {
	defer func() {
		if err != nil && p.tempCheckpoint {
			os.RemoveAll(p.checkpointDir)
		}
	}()
	cp, err := openCheckpoint(p.checkpointDir)
	if err != nil {
		return nil, err
	}
	q := &Query{
		session: session,
		plan:    p,
		id:      cp.id,
		runID:   uuid.New(),
		started: time.Now(),
		done:    make(chan struct{}),
		idle:    make(chan struct{}),
		status:  Defined,
	}
	logCtx := session.log.With().Str("query", q.id.String()).Str("run", q.runID.String())
	if p.name != "" {
		logCtx = logCtx.Str("name", p.name)
	}
	q.log = logCtx.Logger()
	if err := session.register(q); err != nil {
		return nil, err
	}

	source, err := p.sourceFormat.OpenStream(p.schema, p.sourcePath, p.sourceOptions, q.log)
	if err != nil {
		session.unregister(q)
		return nil, err
	}
	sink, err := p.sinkFormat.OpenSink(SinkSpec{QueryName: p.name, Mode: p.mode, Options: p.sinkOptions, Logger: q.log})
	if err != nil {
		source.Close()
		session.unregister(q)
		return nil, err
	}
	q.exec = newExecution(p, cp, source, sink, q.log)

	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.mu.Lock()
	q.status = Running
	q.mu.Unlock()
	q.log.Info().
		Str("source", p.sourcePath).
		Str("sink", p.sinkFormatName).
		Str("mode", string(p.mode)).
		Str("trigger", p.trigger.String()).
		Str("checkpoint", p.checkpointDir).
		Msg("query started")
	q.log.Warn().
		Str("key", p.keyColumn).
		Msg("aggregation state has no watermark and grows with the number of distinct keys")
	go q.run(runCtx)
	return q, nil
}

func (q *Query) run(ctx context.Context) {
	defer close(q.done)
	err := q.exec.recover()
	if err == nil {
		err = q.loop(ctx)
	}
	q.finish(ctx, err)
}

func (q *Query) loop(ctx context.Context) error {
	if pending := q.exec.pending; pending != nil {
		q.exec.pending = nil
		if err := q.batch(ctx, pending, true); err != nil {
			return err
		}
		if q.plan.trigger.kind == once {
			return nil
		}
	}
	trigger := q.plan.trigger
	var next time.Time
	for {
		if trigger.kind == processingTime && trigger.interval > 0 {
			var err error
			if next, err = util.Throttle(ctx, trigger.interval, next); err != nil {
				return nil
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		limit := q.plan.maxFilesPerTrigger
		if trigger.kind == once {
			limit = 0
		}
		inputs, err := q.exec.poll(ctx, limit)
		if err != nil {
			return err
		}
		if len(inputs) > 0 {
			if err := q.batch(ctx, inputs, false); err != nil {
				return err
			}
		} else {
			q.notifyIdle()
		}
		switch {
		case trigger.kind == once:
			return nil
		case trigger.kind == availableNow && len(inputs) == 0:
			return nil
		case trigger.kind == availableNow:
			continue
		}
		if len(inputs) == 0 && trigger.interval == 0 {
			if err := util.Sleep(ctx, q.plan.pollInterval); err != nil {
				return nil
			}
		}
	}
}

func (q *Query) batch(ctx context.Context, inputs []Input, replay bool) error {
	started := time.Now()
	p, err := q.exec.runBatch(ctx, inputs, replay)
	if err != nil {
		return err
	}
	p.ID, p.RunID, p.Name = q.id, q.runID, q.plan.name
	q.mu.Lock()
	q.progress.add(p)
	q.mu.Unlock()
	q.session.metrics.batch(q.id, p.NumInputRows, p.NumStateRows, started)
	return nil
}

func (q *Query) notifyIdle() {
	q.mu.Lock()
	close(q.idle)
	q.idle = make(chan struct{})
	q.mu.Unlock()
}

func (q *Query) finish(ctx context.Context, err error) {
	// read before cancelling: only Stop or the caller's context make a run cancelled
	interrupted := ctx.Err() != nil
	if closeErr := q.exec.close(); closeErr != nil {
		q.log.Warn().Err(closeErr).Msg("failed to close source or sink")
	}
	q.cancel()

	q.mu.Lock()
	switch {
	case err != nil && !(interrupted && errors.Is(err, context.Canceled)):
		q.status = TerminatedWithError
		q.err = &QueryError{QueryID: q.id, RunID: q.runID, BatchID: q.exec.next, Err: err}
	case q.stopped || interrupted:
		q.status = Cancelled
	default:
		q.status = TerminatedNormally
	}
	status, qerr := q.status, q.err
	q.mu.Unlock()

	q.session.unregister(q)
	q.session.metrics.terminated(q.id, status)
	if qerr != nil {
		q.log.Error().Err(qerr).Str("status", status.String()).Msg("query terminated")
		return
	}
	q.log.Info().Str("status", status.String()).Msg("query terminated")
	if q.plan.tempCheckpoint {
		if err := os.RemoveAll(q.plan.checkpointDir); err != nil {
			q.log.Warn().Err(err).Msg("failed to remove temporary checkpoint")
		}
	}
}

func (q *Query) ID() uuid.UUID {
	return q.id
}

func (q *Query) RunID() uuid.UUID {
	return q.runID
}

func (q *Query) Name() string {
	return q.plan.name
}

func (q *Query) Status() QueryStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.status
}

func (q *Query) IsActive() bool {
	return q.Status() == Running
}

// Exception returns the failure of a query that terminated with an error.
func (q *Query) Exception() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err == nil {
		return nil
	}
	return q.err
}

func (q *Query) LastProgress() *Progress {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.progress.last()
}

func (q *Query) RecentProgress() []Progress {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.progress.all()
}

// Stop cancels the query and waits until it has terminated.
func (q *Query) Stop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
	q.cancel()
	<-q.done
}

// AwaitTermination blocks until the query terminates. It returns nil when the query was
// stopped or its trigger completed, and the *QueryError when a batch failed.
func (q *Query) AwaitTermination() error {
	<-q.done
	return q.Exception()
}

// AwaitTerminationTimeout reports whether the query terminated within d.
func (q *Query) AwaitTerminationTimeout(d time.Duration) (bool, error) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-q.done:
		return true, q.Exception()
	case <-t.C:
		return false, nil
	}
}

// ProcessAllAvailable blocks until every input available at the time of the call
// has been processed, or the query terminates.
func (q *Query) ProcessAllAvailable(ctx context.Context) error {
	// the first idle signal may come from a poll that began before the call
	for i := 0; i < 2; i++ {
		q.mu.Lock()
		idle := q.idle
		q.mu.Unlock()
		select {
		case <-idle:
		case <-q.done:
			return q.Exception()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (q *Query) Info() QueryInfo {
	q.mu.Lock()
	defer q.mu.Unlock()
	info := QueryInfo{
		ID:           q.id,
		RunID:        q.runID,
		Name:         q.plan.name,
		Status:       q.status.String(),
		Trigger:      q.plan.trigger.String(),
		Checkpoint:   q.plan.checkpointDir,
		LastProgress: q.progress.last(),
	}
	if q.err != nil {
		info.Error = q.err.Error()
	}
	return info
}

func (q *Query) String() string {
	return fmt.Sprintf("Query[id=%s, runId=%s, status=%s]", q.id, q.runID, q.Status())
}
