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
	"time"

	"github.com/google/uuid"
)

type QueryStatus int

const (
	Defined QueryStatus = iota
	Running
	TerminatedNormally
	TerminatedWithError
	Cancelled
)

func (s QueryStatus) String() string {
	switch s {
	case Defined:
		return "DEFINED"
	case Running:
		return "RUNNING"
	case TerminatedNormally:
		return "TERMINATED_NORMALLY"
	case TerminatedWithError:
		return "TERMINATED_WITH_ERROR"
	case Cancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

func (s QueryStatus) Terminal() bool {
	return s >= TerminatedNormally
}

// Progress describes one completed micro-batch.
type Progress struct {
	ID              uuid.UUID `json:"id"`
	RunID           uuid.UUID `json:"runId"`
	Name            string    `json:"name,omitempty"`
	BatchID         int64     `json:"batchId"`
	Timestamp       time.Time `json:"timestamp"`
	NumInputFiles   int       `json:"numInputFiles"`
	NumInputRows    int64     `json:"numInputRows"`
	DurationMs      int64     `json:"durationMs"`
	NumStateRows    int       `json:"numRowsTotal"`
	NumUpdatedRows  int       `json:"numRowsUpdated"`
	NumRowsEmitted  int       `json:"numOutputRows"`
	Replayed        bool      `json:"replayed,omitempty"`
	InputRowsPerSec float64   `json:"processedRowsPerSecond"`
}

const maxRecentProgress = 100

type progressRing struct {
	items []Progress
}

func (r *progressRing) add(p Progress) {
	r.items = append(r.items, p)
	if len(r.items) > maxRecentProgress {
		r.items = r.items[len(r.items)-maxRecentProgress:]
	}
}

func (r *progressRing) last() *Progress {
	if len(r.items) == 0 {
		return nil
	}
	p := r.items[len(r.items)-1]
	return &p
}

func (r *progressRing) all() []Progress {
	out := make([]Progress, len(r.items))
	copy(out, r.items)
	return out
}

// QueryInfo is the status of a query as reported by the diagnostics ui.
type QueryInfo struct {
	ID           uuid.UUID `json:"id"`
	RunID        uuid.UUID `json:"runId"`
	Name         string    `json:"name,omitempty"`
	Status       string    `json:"status"`
	Trigger      string    `json:"trigger"`
	Checkpoint   string    `json:"checkpoint"`
	LastProgress *Progress `json:"lastProgress,omitempty"`
	Error        string    `json:"error,omitempty"`
}
