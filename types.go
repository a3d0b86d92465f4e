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
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

type DataType string

const (
	BooleanType   DataType = "boolean"
	IntegerType   DataType = "integer"
	LongType      DataType = "long"
	FloatType     DataType = "float"
	DoubleType    DataType = "double"
	StringType    DataType = "string"
	BinaryType    DataType = "binary"
	DateType      DataType = "date"
	TimestampType DataType = "timestamp"
)

// Format renders a value of this type the way the console sink shows it.
func (t DataType) Format(v interface{}) string {
	if v == nil {
		return "null"
	}
	switch x := v.(type) {
	case bool:
		return strconv.FormatBool(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float32:
		return formatFloat(float64(x), 32)
	case float64:
		return formatFloat(x, 64)
	case string:
		return x
	case []byte:
		return fmt.Sprintf("%X", x)
	case time.Time:
		if t == DateType {
			return x.UTC().Format("2006-01-02")
		}
		return x.UTC().Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(v)
	}
}

func formatFloat(f float64, bits int) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	s := strconv.FormatFloat(f, 'g', -1, bits)
	if !strings.ContainsAny(s, ".eEIN") {
		s += ".0"
	}
	return s
}

type Field struct {
	Name     string
	Type     DataType
	Nullable bool
}

func (f Field) String() string {
	return fmt.Sprintf("%s: %s (nullable = %t)", f.Name, f.Type, f.Nullable)
}

// Schema is the ordered list of columns every record of a stream conforms to.
type Schema struct {
	Fields []Field
}

func (s Schema) Len() int {
	return len(s.Fields)
}

func (s Schema) FieldIndex(name string) (int, bool) {
	for i, f := range s.Fields {
		if f.Name == name {
			return i, true
		}
	}
	return -1, false
}

func (s Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

func (s Schema) Equal(other Schema) bool {
	if len(s.Fields) != len(other.Fields) {
		return false
	}
	for i := range s.Fields {
		if s.Fields[i] != other.Fields[i] {
			return false
		}
	}
	return true
}

// TreeString renders the schema as an indented tree, one column per line.
func (s Schema) TreeString() string {
	buf := new(bytes.Buffer)
	buf.WriteString("root\n")
	for _, f := range s.Fields {
		buf.WriteString(" |-- ")
		buf.WriteString(f.String())
		buf.WriteByte('\n')
	}
	return buf.String()
}

func (s Schema) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = f.Name + ":" + string(f.Type)
	}
	return "struct<" + strings.Join(parts, ",") + ">"
}

// Conform checks that data written with the given file schema can be read as s.
// Declared columns must keep their type; a nullable declared column may be absent.
// Extra columns in the file are ignored. Nothing is ever coerced.
func (s Schema) Conform(file Schema) error {
	for _, declared := range s.Fields {
		i, ok := file.FieldIndex(declared.Name)
		if !ok {
			if declared.Nullable {
				continue
			}
			return fmt.Errorf("%w: required column %q is missing", ErrSchemaMismatch, declared.Name)
		}
		if actual := file.Fields[i].Type; actual != declared.Type {
			return fmt.Errorf("%w: column %q is %s, expected %s", ErrSchemaMismatch, declared.Name, actual, declared.Type)
		}
	}
	return nil
}

// Record is a single input row laid out in the order of its stream schema.
type Record []interface{}

// Row is one group of the aggregation result.
type Row struct {
	Key   interface{}
	Count int64
}

type OutputMode string

const (
	Complete OutputMode = "complete"
	Update   OutputMode = "update"
	Append   OutputMode = "append"
)

func ParseOutputMode(s string) (OutputMode, error) {
	switch m := OutputMode(strings.ToLower(s)); m {
	case Complete, Update, Append:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown output mode %q", ErrAnalysis, s)
	}
}

// Snapshot is what a sink receives on every micro-batch boundary.
type Snapshot struct {
	BatchID   int64
	KeyColumn string
	KeyType   DataType
	Mode      OutputMode
	Rows      []Row
}

func (s *Snapshot) Columns() []string {
	return []string{s.KeyColumn, "count"}
}

// Counts returns the emitted rows keyed by their rendered group key.
func (s *Snapshot) Counts() map[string]int64 {
	counts := make(map[string]int64, len(s.Rows))
	for _, r := range s.Rows {
		counts[s.KeyType.Format(r.Key)] = r.Count
	}
	return counts
}

// Message encodes one emitted row as the JSON document published by the broker sinks.
func (s *Snapshot) Message(r Row) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		s.KeyColumn: s.jsonKey(r.Key),
		"count":     r.Count,
		"batchId":   s.BatchID,
	})
}

func (s *Snapshot) jsonKey(v interface{}) interface{} {
	switch x := v.(type) {
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return s.KeyType.Format(x)
		}
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return s.KeyType.Format(x)
		}
	case time.Time, []byte:
		return s.KeyType.Format(x)
	}
	return v
}
