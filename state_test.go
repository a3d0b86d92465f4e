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
	"math"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestStateStoreCountsPerKey(t *testing.T) {
	s := NewStateStore(StringType, Count().Fold)
	s.BeginBatch()
	for _, k := range []string{"A", "B", "A", "B", "B", "A", "B", "B"} {
		s.Add(k, Record{k})
	}
	assert.DeepEqual(t, s.Snapshot(), []Row{{Key: "A", Count: 3}, {Key: "B", Count: 5}})
	assert.Equal(t, s.Len(), 2)
	count, ok := s.Get("B")
	assert.Assert(t, ok)
	assert.Equal(t, count, int64(5))
}

func TestStateStoreUpdatedRowsAreScopedToTheBatch(t *testing.T) {
	s := NewStateStore(IntegerType, Count().Fold)
	s.BeginBatch()
	s.Add(int32(1), nil)
	s.Add(int32(2), nil)
	s.BeginBatch()
	s.Add(int32(2), nil)
	assert.DeepEqual(t, s.Updated(), []Row{{Key: int32(2), Count: 2}})
	assert.DeepEqual(t, s.Snapshot(), []Row{{Key: int32(1), Count: 1}, {Key: int32(2), Count: 2}})
}

func TestStateStoreOrdersNullsFirstAndNaNLast(t *testing.T) {
	s := NewStateStore(DoubleType, Count().Fold)
	s.BeginBatch()
	s.Add(math.NaN(), nil)
	s.Add(2.5, nil)
	s.Add(nil, nil)
	s.Add(math.NaN(), nil)
	s.Add(-1.0, nil)
	rows := s.Snapshot()
	assert.Equal(t, len(rows), 4)
	assert.Equal(t, rows[0].Key, nil)
	assert.Equal(t, rows[1].Key, -1.0)
	assert.Equal(t, rows[2].Key, 2.5)
	assert.Assert(t, math.IsNaN(rows[3].Key.(float64)))
	assert.Equal(t, rows[3].Count, int64(2))
}

func TestStateStoreRestore(t *testing.T) {
	ts := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	s := NewStateStore(TimestampType, Count().Fold)
	s.Restore([]Row{{Key: ts, Count: 4}})
	assert.Equal(t, len(s.Updated()), 0)
	s.BeginBatch()
	s.Add(ts.In(time.FixedZone("X", 3600)), nil)
	count, _ := s.Get(ts)
	assert.Equal(t, count, int64(5))
}

func TestStateStoreBinaryKeys(t *testing.T) {
	s := NewStateStore(BinaryType, Count().Fold)
	s.BeginBatch()
	s.Add([]byte{1, 2}, nil)
	s.Add([]byte{1, 2}, nil)
	assert.DeepEqual(t, s.Snapshot(), []Row{{Key: []byte{1, 2}, Count: 2}})
}
