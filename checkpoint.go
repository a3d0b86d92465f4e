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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/amient/streamcount/coder/avro"
	"github.com/amient/streamcount/coder/gzip"
	"github.com/google/uuid"
)

/**
The checkpoint directory belongs to exactly one query. Batch n is durable in three steps:
offsets/n lists the inputs of the batch before it runs, state/n.avro.gz holds the aggregation
after it ran and commits/n marks that the sink accepted it. Inputs of purged offsets are
compacted into the sources file so that they are never read again.
*/

const (
	metadataFile = "metadata"
	sourcesFile  = "sources"
	offsetsDir   = "offsets"
	commitsDir   = "commits"
	stateDir     = "state"
	stateSuffix  = ".avro.gz"
	logVersion   = 1
)

type checkpointMetadata struct {
	ID uuid.UUID `json:"id"`
}

type offsetLog struct {
	Version   int       `json:"version"`
	BatchID   int64     `json:"batchId"`
	Timestamp time.Time `json:"timestamp"`
	Inputs    []Input   `json:"inputs"`
}

type commitLog struct {
	Version   int       `json:"version"`
	BatchID   int64     `json:"batchId"`
	Timestamp time.Time `json:"timestamp"`
}

type sourcesLog struct {
	Version int      `json:"version"`
	UpTo    int64    `json:"upTo"`
	Paths   []string `json:"paths"`
}

type checkpoint struct {
	dir string
	id  uuid.UUID
}

// openCheckpoint creates the layout on first use and reads the query id on every later one.
func openCheckpoint(dir string) (*checkpoint, error) {
	for _, sub := range []string{offsetsDir, commitsDir, stateDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCheckpoint, err)
		}
	}
	c := &checkpoint{dir: dir}
	data, err := os.ReadFile(filepath.Join(dir, metadataFile))
	switch {
	case err == nil:
		var meta checkpointMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("%w: corrupted metadata in %s: %v", ErrCheckpoint, dir, err)
		}
		c.id = meta.ID
	case errors.Is(err, os.ErrNotExist):
		c.id = uuid.New()
		if err := c.writeJSON(metadataFile, checkpointMetadata{ID: c.id}); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %v", ErrCheckpoint, err)
	}
	return c, nil
}

func (c *checkpoint) batchPath(sub string, batchID int64) string {
	return filepath.Join(sub, strconv.FormatInt(batchID, 10))
}

// batches lists the batch ids present in a log directory in ascending order.
func (c *checkpoint) batches(sub string) ([]int64, error) {
	entries, err := os.ReadDir(filepath.Join(c.dir, sub))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckpoint, err)
	}
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), stateSuffix)
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if id, err := strconv.ParseInt(name, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (c *checkpoint) latest(sub string) (int64, bool, error) {
	ids, err := c.batches(sub)
	if err != nil || len(ids) == 0 {
		return -1, false, err
	}
	return ids[len(ids)-1], true, nil
}

func (c *checkpoint) writeOffsets(batchID int64, inputs []Input) error {
	return c.writeJSON(c.batchPath(offsetsDir, batchID), offsetLog{
		Version:   logVersion,
		BatchID:   batchID,
		Timestamp: time.Now().UTC(),
		Inputs:    inputs,
	})
}

func (c *checkpoint) readOffsets(batchID int64) (*offsetLog, error) {
	var entry offsetLog
	if err := c.readJSON(c.batchPath(offsetsDir, batchID), &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (c *checkpoint) writeCommit(batchID int64) error {
	return c.writeJSON(c.batchPath(commitsDir, batchID), commitLog{
		Version:   logVersion,
		BatchID:   batchID,
		Timestamp: time.Now().UTC(),
	})
}

func (c *checkpoint) writeState(batchID int64, rows []Row) error {
	entries := make([]avro.Entry, len(rows))
	for i, r := range rows {
		entries[i] = avro.Entry{Key: encodeStateKey(r.Key), Count: r.Count}
	}
	buf := new(bytes.Buffer)
	if err := avro.Encode(buf, entries); err != nil {
		return fmt.Errorf("%w: %v", ErrCheckpoint, err)
	}
	data, err := gzip.Compress(buf.Bytes())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCheckpoint, err)
	}
	return c.writeFile(c.batchPath(stateDir, batchID)+stateSuffix, data)
}

func (c *checkpoint) readState(batchID int64, keyType DataType) ([]Row, error) {
	name := c.batchPath(stateDir, batchID) + stateSuffix
	compressed, err := os.ReadFile(filepath.Join(c.dir, name))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckpoint, err)
	}
	data, err := gzip.Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupted state %s: %v", ErrCheckpoint, name, err)
	}
	entries, err := avro.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupted state %s: %v", ErrCheckpoint, name, err)
	}
	rows := make([]Row, len(entries))
	for i, e := range entries {
		rows[i] = Row{Key: decodeStateKey(e.Key, keyType), Count: e.Count}
	}
	return rows, nil
}

// compacted returns the inputs of every purged batch.
func (c *checkpoint) compacted() (*sourcesLog, error) {
	var log sourcesLog
	err := c.readJSON(sourcesFile, &log)
	if errors.Is(err, os.ErrNotExist) {
		return &sourcesLog{Version: logVersion, UpTo: -1}, nil
	}
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// purge drops every log entry older than the last retain batches.
func (c *checkpoint) purge(latest int64, retain int) error {
	threshold := latest - int64(retain)
	if threshold < 0 {
		return nil
	}
	if err := c.compact(threshold); err != nil {
		return err
	}
	for _, sub := range []string{offsetsDir, commitsDir, stateDir} {
		ids, err := c.batches(sub)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if id > threshold {
				break
			}
			name := c.batchPath(sub, id)
			if sub == stateDir {
				name += stateSuffix
			}
			if err := os.Remove(filepath.Join(c.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%w: %v", ErrCheckpoint, err)
			}
		}
	}
	return nil
}

func (c *checkpoint) compact(threshold int64) error {
	log, err := c.compacted()
	if err != nil {
		return err
	}
	ids, err := c.batches(offsetsDir)
	if err != nil {
		return err
	}
	changed := false
	for _, id := range ids {
		if id > threshold {
			break
		}
		entry, err := c.readOffsets(id)
		if err != nil {
			return err
		}
		for _, in := range entry.Inputs {
			log.Paths = append(log.Paths, in.Path)
		}
		if id > log.UpTo {
			log.UpTo = id
		}
		changed = true
	}
	if !changed {
		return nil
	}
	return c.writeJSON(sourcesFile, log)
}

func (c *checkpoint) writeJSON(name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCheckpoint, err)
	}
	return c.writeFile(name, data)
}

func (c *checkpoint) readJSON(name string, v interface{}) error {
	data, err := os.ReadFile(filepath.Join(c.dir, name))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCheckpoint, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: corrupted %s: %v", ErrCheckpoint, name, err)
	}
	return nil
}

// writeFile replaces name atomically: a reader sees either the old or the complete new content.
func (c *checkpoint) writeFile(name string, data []byte) error {
	path := filepath.Join(c.dir, name)
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCheckpoint, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrCheckpoint, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrCheckpoint, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrCheckpoint, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %v", ErrCheckpoint, err)
	}
	return nil
}

func encodeStateKey(key interface{}) interface{} {
	if t, ok := key.(time.Time); ok {
		return t.UnixMicro()
	}
	return key
}

func decodeStateKey(key interface{}, keyType DataType) interface{} {
	if micros, ok := key.(int64); ok && (keyType == DateType || keyType == TimestampType) {
		return time.UnixMicro(micros).UTC()
	}
	return key
}
