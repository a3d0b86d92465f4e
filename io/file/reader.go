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

package file

import (
	"time"

	"github.com/amient/streamcount"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/format"
)

const (
	julianUnixEpoch = 2440588
	nanosPerDay     = int64(24 * time.Hour)
)

// projection maps leaf column indexes of one file to positions in the declared schema.
type projection struct {
	width   int
	columns map[int]column
}

type column struct {
	pos  int
	typ  streamcount.DataType
	unit *format.TimeUnit
}

func newProjection(declared streamcount.Schema, file *parquet.Schema) *projection {
	p := &projection{width: declared.Len(), columns: make(map[int]column, declared.Len())}
	for i, field := range declared.Fields {
		leaf, ok := file.Lookup(field.Name)
		if !ok {
			continue
		}
		c := column{pos: i, typ: field.Type}
		if lt := leaf.Node.Type().LogicalType(); lt != nil && lt.Timestamp != nil {
			c.unit = &lt.Timestamp.Unit
		}
		p.columns[leaf.ColumnIndex] = c
	}
	return p
}

func (p *projection) record(row parquet.Row) streamcount.Record {
	record := make(streamcount.Record, p.width)
	for _, v := range row {
		c, ok := p.columns[v.Column()]
		if !ok || v.IsNull() {
			continue
		}
		record[c.pos] = c.value(v)
	}
	return record
}

func (c column) value(v parquet.Value) interface{} {
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		if c.typ == streamcount.DateType {
			return time.Unix(int64(v.Int32())*86400, 0).UTC()
		}
		return v.Int32()
	case parquet.Int64:
		if c.unit != nil {
			return timestamp(v.Int64(), c.unit)
		}
		return v.Int64()
	case parquet.Int96:
		i := v.Int96()
		nanos := int64(uint64(i[1])<<32 | uint64(i[0]))
		days := int64(i[2]) - julianUnixEpoch
		return time.Unix(0, days*nanosPerDay+nanos).UTC()
	case parquet.Float:
		return v.Float()
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		if c.typ == streamcount.StringType {
			return string(v.ByteArray())
		}
		return append([]byte(nil), v.ByteArray()...)
	}
	return nil
}

func timestamp(v int64, unit *format.TimeUnit) time.Time {
	switch {
	case unit.Millis != nil:
		return time.UnixMilli(v).UTC()
	case unit.Micros != nil:
		return time.UnixMicro(v).UTC()
	default:
		return time.Unix(0, v).UTC()
	}
}
