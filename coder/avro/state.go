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

// Package avro encodes aggregation state snapshots as a length-prefixed run of Avro records.
package avro

import (
	"bytes"
	"fmt"
	"io"

	"github.com/amient/avro"
)

const GroupCountSchema = `{
    "type": "record",
    "name": "GroupCount",
    "namespace": "streamcount.state",
    "fields": [
        { "name": "key", "type": ["boolean", "int", "long", "float", "double", "string", "bytes"] },
        { "name": "nullKey", "type": "boolean" },
        { "name": "count", "type": "long" }
    ]
}`

var groupCountSchema avro.Schema

func init() {
	var err error
	if groupCountSchema, err = avro.ParseSchema(GroupCountSchema); err != nil {
		panic(err)
	}
}

// Entry is one group of a snapshot. Key must be nil or one of
// bool, int32, int64, float32, float64, string, []byte.
type Entry struct {
	Key   interface{}
	Count int64
}

func Encode(w io.Writer, entries []Entry) error {
	buf := new(bytes.Buffer)
	encoder := avro.NewBinaryEncoder(buf)
	encoder.WriteLong(int64(len(entries)))
	writer := avro.NewGenericDatumWriter().SetSchema(groupCountSchema)
	for i, e := range entries {
		record := avro.NewGenericRecord(groupCountSchema)
		// the union has no null branch: the empty string and NaN would be taken for null
		if e.Key == nil {
			record.Set("key", false)
			record.Set("nullKey", true)
		} else {
			record.Set("key", e.Key)
			record.Set("nullKey", false)
		}
		record.Set("count", e.Count)
		if err := writer.Write(record, encoder); err != nil {
			return fmt.Errorf("encoding state entry %d (%v): %w", i, e.Key, err)
		}
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func Decode(data []byte) ([]Entry, error) {
	decoder := avro.NewBinaryDecoder(data)
	n, err := decoder.ReadLong()
	if err != nil {
		return nil, fmt.Errorf("reading state size: %w", err)
	}
	if n < 0 {
		return nil, fmt.Errorf("invalid state size %d", n)
	}
	reader := avro.NewDatumReader(groupCountSchema)
	entries := make([]Entry, 0, n)
	for i := int64(0); i < n; i++ {
		record := avro.NewGenericRecord(groupCountSchema)
		if err := reader.Read(record, decoder); err != nil {
			return nil, fmt.Errorf("decoding state entry %d: %w", i, err)
		}
		count, ok := record.Get("count").(int64)
		if !ok {
			return nil, fmt.Errorf("state entry %d has no count", i)
		}
		entry := Entry{Key: record.Get("key"), Count: count}
		if isNull, _ := record.Get("nullKey").(bool); isNull {
			entry.Key = nil
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
