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
	"bytes"
	"math"
	"sort"
	"time"
)

// nanKey stands in for NaN group keys, which would otherwise never match themselves in a map.
type nanKey struct{}

// StateStore holds the running aggregate of every group seen so far.
// It grows with the number of distinct keys; nothing is ever evicted.
type StateStore struct {
	keyType DataType
	fold    Fold
	values  map[interface{}]int64
	updated map[interface{}]struct{}
}

func NewStateStore(keyType DataType, fold Fold) *StateStore {
	return &StateStore{
		keyType: keyType,
		fold:    fold,
		values:  make(map[interface{}]int64),
		updated: make(map[interface{}]struct{}),
	}
}

func normalizeKey(key interface{}) interface{} {
	switch k := key.(type) {
	case []byte:
		return string(k)
	case time.Time:
		return k.UTC()
	case float32:
		if math.IsNaN(float64(k)) {
			return nanKey{}
		}
	case float64:
		if math.IsNaN(k) {
			return nanKey{}
		}
	}
	return key
}

// BeginBatch forgets which groups the previous batch touched.
func (s *StateStore) BeginBatch() {
	s.updated = make(map[interface{}]struct{})
}

func (s *StateStore) Add(key interface{}, record Record) {
	k := normalizeKey(key)
	s.values[k] = s.fold(s.values[k], record)
	s.updated[k] = struct{}{}
}

func (s *StateStore) Get(key interface{}) (int64, bool) {
	v, ok := s.values[normalizeKey(key)]
	return v, ok
}

func (s *StateStore) Len() int {
	return len(s.values)
}

// Snapshot returns every group, nulls first and then in ascending key order.
func (s *StateStore) Snapshot() []Row {
	rows := make([]Row, 0, len(s.values))
	for k, v := range s.values {
		rows = append(rows, Row{Key: s.external(k), Count: v})
	}
	sortRows(rows)
	return rows
}

// Updated returns the groups changed since the last BeginBatch.
func (s *StateStore) Updated() []Row {
	rows := make([]Row, 0, len(s.updated))
	for k := range s.updated {
		rows = append(rows, Row{Key: s.external(k), Count: s.values[k]})
	}
	sortRows(rows)
	return rows
}

// Restore replaces the whole state with the given rows.
func (s *StateStore) Restore(rows []Row) {
	s.values = make(map[interface{}]int64, len(rows))
	for _, r := range rows {
		s.values[normalizeKey(r.Key)] = r.Count
	}
	s.BeginBatch()
}

func (s *StateStore) external(k interface{}) interface{} {
	if _, ok := k.(nanKey); ok {
		if s.keyType == FloatType {
			return float32(math.NaN())
		}
		return math.NaN()
	}
	if s.keyType == BinaryType {
		if str, ok := k.(string); ok {
			return []byte(str)
		}
	}
	return k
}

func sortRows(rows []Row) {
	sort.Slice(rows, func(i, j int) bool {
		return compareKeys(rows[i].Key, rows[j].Key) < 0
	})
}

func compareKeys(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch x := a.(type) {
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case int32:
		return compareInt(int64(x), int64(b.(int32)))
	case int64:
		return compareInt(x, b.(int64))
	case float32:
		return compareFloat(float64(x), float64(b.(float32)))
	case float64:
		return compareFloat(x, b.(float64))
	case string:
		y := b.(string)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case []byte:
		return bytes.Compare(x, b.([]byte))
	case time.Time:
		y := b.(time.Time)
		switch {
		case x.Before(y):
			return -1
		case x.After(y):
			return 1
		}
		return 0
	}
	return 0
}

func compareInt(x, y int64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

// NaN sorts after every other value.
func compareFloat(x, y float64) int {
	xn, yn := math.IsNaN(x), math.IsNaN(y)
	switch {
	case xn && yn:
		return 0
	case xn:
		return 1
	case yn:
		return -1
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}
