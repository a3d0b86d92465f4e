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

// Package file implements the parquet format: schema inference from a sample file and a
// streaming source over a directory that new files are dropped into.
package file

import (
	"fmt"
	"os"

	"github.com/amient/streamcount"
	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"
)

type Parquet struct{}

func (p *Parquet) Name() string {
	return "parquet"
}

func (p *Parquet) InferSchema(path string, _ streamcount.Options) (streamcount.Schema, error) {
	schema, err := InferSchema(path)
	if err != nil {
		return streamcount.Schema{}, fmt.Errorf("%w: %s: %w", streamcount.ErrSchemaInference, path, err)
	}
	return schema, nil
}

func (p *Parquet) OpenStream(schema streamcount.Schema, path string, options streamcount.Options, logger zerolog.Logger) (streamcount.Source, error) {
	return NewSource(schema, path, options, logger)
}

// InferSchema reads the footer of one parquet file and maps its columns. Every inferred column
// is nullable so that later files may leave it out.
// Nested, repeated and decimal columns cannot be represented and fail the inference.
func InferSchema(path string) (streamcount.Schema, error) {
	f, pf, err := open(path)
	if err != nil {
		return streamcount.Schema{}, err
	}
	defer f.Close()
	fields := pf.Schema().Fields()
	schema := streamcount.Schema{Fields: make([]streamcount.Field, 0, len(fields))}
	for _, field := range fields {
		t, err := dataTypeOf(field)
		if err != nil {
			return streamcount.Schema{}, err
		}
		schema.Fields = append(schema.Fields, streamcount.Field{
			Name:     field.Name(),
			Type:     t,
			Nullable: true,
		})
	}
	if len(schema.Fields) == 0 {
		return streamcount.Schema{}, fmt.Errorf("file has no columns")
	}
	return schema, nil
}

// fileSchema maps every column of a file it can; the others get a type no declared column can have.
func fileSchema(pf *parquet.File) streamcount.Schema {
	fields := pf.Schema().Fields()
	schema := streamcount.Schema{Fields: make([]streamcount.Field, len(fields))}
	for i, field := range fields {
		t, err := dataTypeOf(field)
		if err != nil {
			t = streamcount.DataType("unsupported")
		}
		schema.Fields[i] = streamcount.Field{Name: field.Name(), Type: t, Nullable: field.Optional()}
	}
	return schema
}

func open(path string) (*os.File, *parquet.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("not a parquet file: %w", err)
	}
	return f, pf, nil
}

func dataTypeOf(field parquet.Field) (streamcount.DataType, error) {
	if !field.Leaf() {
		return "", fmt.Errorf("column %q: nested columns are not supported", field.Name())
	}
	if field.Repeated() {
		return "", fmt.Errorf("column %q: repeated columns are not supported", field.Name())
	}
	t := field.Type()
	lt := t.LogicalType()
	if lt != nil && lt.Decimal != nil {
		return "", fmt.Errorf("column %q: decimal columns are not supported", field.Name())
	}
	switch t.Kind() {
	case parquet.Boolean:
		return streamcount.BooleanType, nil
	case parquet.Int32:
		if lt != nil && lt.Date != nil {
			return streamcount.DateType, nil
		}
		return streamcount.IntegerType, nil
	case parquet.Int64:
		if lt != nil && lt.Timestamp != nil {
			return streamcount.TimestampType, nil
		}
		return streamcount.LongType, nil
	case parquet.Int96:
		return streamcount.TimestampType, nil
	case parquet.Float:
		return streamcount.FloatType, nil
	case parquet.Double:
		return streamcount.DoubleType, nil
	case parquet.ByteArray, parquet.FixedLenByteArray:
		if lt != nil && (lt.UTF8 != nil || lt.Enum != nil || lt.Json != nil) {
			return streamcount.StringType, nil
		}
		return streamcount.BinaryType, nil
	}
	return "", fmt.Errorf("column %q: unsupported parquet type %s", field.Name(), t)
}
