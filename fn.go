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
	"time"
)

// Input is one unit of source data, e.g. a file discovered in the watched directory.
type Input struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

type Source interface {
	Schema() Schema
	// Poll returns inputs that are not in seen, in the order they must be processed.
	Poll(ctx context.Context, seen map[string]bool) ([]Input, error)
	// Scan emits every record of the input projected onto Schema().
	Scan(ctx context.Context, input Input, emit func(Record) error) error
	Close() error
}

type Sink interface {
	AddBatch(ctx context.Context, snapshot *Snapshot) error
	Close() error
}

// Fold accumulates one record into the running value of its group.
type Fold func(acc int64, record Record) int64

type Aggregation struct {
	Name string
	Fold Fold
}

func Count() Aggregation {
	return Aggregation{
		Name: "count",
		Fold: func(acc int64, _ Record) int64 {
			return acc + 1
		},
	}
}
