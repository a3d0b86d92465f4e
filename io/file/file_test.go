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
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/amient/streamcount"
	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/fs"
)

type yellowTrip struct {
	VendorID           int32     `parquet:"VendorID"`
	PickupDatetime     time.Time `parquet:"tpep_pickup_datetime,timestamp(microsecond)"`
	PassengerCount     *int64    `parquet:"passenger_count,optional"`
	TripDistance       float64   `parquet:"trip_distance"`
	StoreAndFwdFlag    string    `parquet:"store_and_fwd_flag"`
	PULocationID       int32     `parquet:"PULocationID"`
	FareAmount         float32   `parquet:"fare_amount"`
	CongestionSurchage *float64  `parquet:"congestion_surcharge,optional"`
	Payload            []byte    `parquet:"payload"`
	Flagged            bool      `parquet:"flagged"`
}

type narrowTrip struct {
	PULocationID int32   `parquet:"PULocationID"`
	FareAmount   float32 `parquet:"fare_amount"`
}

type nestedTrip struct {
	PULocationID int32    `parquet:"PULocationID"`
	Tags         []string `parquet:"tags,list"`
}

func writeFile[T any](t *testing.T, dir, name string, rows []T) string {
	t.Helper()
	path := filepath.Join(dir, name)
	assert.NilError(t, parquet.WriteFile(path, rows))
	return path
}

func TestInferSchema(t *testing.T) {
	dir := fs.NewDir(t, "parquet")
	path := writeFile(t, dir.Path(), "yellow.parquet", []yellowTrip{{VendorID: 1}})

	schema, err := (&Parquet{}).InferSchema(path, nil)
	assert.NilError(t, err)
	assert.DeepEqual(t, schema.Fields, []streamcount.Field{
		{Name: "VendorID", Type: streamcount.IntegerType, Nullable: true},
		{Name: "tpep_pickup_datetime", Type: streamcount.TimestampType, Nullable: true},
		{Name: "passenger_count", Type: streamcount.LongType, Nullable: true},
		{Name: "trip_distance", Type: streamcount.DoubleType, Nullable: true},
		{Name: "store_and_fwd_flag", Type: streamcount.StringType, Nullable: true},
		{Name: "PULocationID", Type: streamcount.IntegerType, Nullable: true},
		{Name: "fare_amount", Type: streamcount.FloatType, Nullable: true},
		{Name: "congestion_surcharge", Type: streamcount.DoubleType, Nullable: true},
		{Name: "payload", Type: streamcount.BinaryType, Nullable: true},
		{Name: "flagged", Type: streamcount.BooleanType, Nullable: true},
	})
}

func TestInferredColumnsMayBeMissingFromLaterFiles(t *testing.T) {
	dir := fs.NewDir(t, "input")
	samples := fs.NewDir(t, "sample")
	inferred, err := (&Parquet{}).InferSchema(writeFile(t, samples.Path(), "yellow.parquet", []yellowTrip{{VendorID: 1}}), nil)
	assert.NilError(t, err)
	path := writeFile(t, dir.Path(), "narrow.parquet", []narrowTrip{{PULocationID: 132, FareAmount: 9}})

	source, err := NewSource(inferred, dir.Path(), nil, zerolog.Nop())
	assert.NilError(t, err)
	var records []streamcount.Record
	err = source.Scan(context.Background(), streamcount.Input{Path: path}, func(r streamcount.Record) error {
		records = append(records, r)
		return nil
	})
	assert.NilError(t, err)
	assert.Equal(t, len(records), 1)
	pu, _ := inferred.FieldIndex("PULocationID")
	vendor, _ := inferred.FieldIndex("VendorID")
	assert.Equal(t, records[0][pu], int32(132))
	assert.Equal(t, records[0][vendor], nil)
}

func TestInferSchemaFailures(t *testing.T) {
	dir := fs.NewDir(t, "parquet", fs.WithFile("broken.parquet", "PAR1 this is not parquet"))
	format := &Parquet{}

	_, err := format.InferSchema(filepath.Join(dir.Path(), "missing.parquet"), nil)
	assert.Assert(t, errors.Is(err, streamcount.ErrSchemaInference))
	assert.Assert(t, errors.Is(err, os.ErrNotExist))

	_, err = format.InferSchema(filepath.Join(dir.Path(), "broken.parquet"), nil)
	assert.Assert(t, errors.Is(err, streamcount.ErrSchemaInference))

	nested := writeFile(t, dir.Path(), "nested.parquet", []nestedTrip{{PULocationID: 1, Tags: []string{"a"}}})
	_, err = format.InferSchema(nested, nil)
	assert.Assert(t, errors.Is(err, streamcount.ErrSchemaInference))
	assert.ErrorContains(t, err, "tags")
}

func TestPollListsNewFilesOldestFirst(t *testing.T) {
	dir := fs.NewDir(t, "input",
		fs.WithDir("checkpoint"),
		fs.WithFile(".hidden.parquet", ""),
		fs.WithFile("_staging.parquet", ""),
		fs.WithFile("notes.txt", ""),
	)
	older := writeFile(t, dir.Path(), "b.parquet", []narrowTrip{{PULocationID: 1}})
	newer := writeFile(t, dir.Path(), "a.parquet", []narrowTrip{{PULocationID: 2}})
	base := time.Now().Add(-time.Hour)
	assert.NilError(t, os.Chtimes(older, base, base))
	assert.NilError(t, os.Chtimes(newer, base.Add(time.Minute), base.Add(time.Minute)))

	source, err := NewSource(streamcount.Schema{}, dir.Path(), streamcount.Options{"pathglobfilter": "*.parquet"}, zerolog.Nop())
	assert.NilError(t, err)
	inputs, err := source.Poll(context.Background(), map[string]bool{})
	assert.NilError(t, err)
	assert.Equal(t, len(inputs), 2)
	assert.Equal(t, inputs[0].Path, older)
	assert.Equal(t, inputs[1].Path, newer)

	inputs, err = source.Poll(context.Background(), map[string]bool{older: true})
	assert.NilError(t, err)
	assert.Equal(t, len(inputs), 1)
	assert.Equal(t, inputs[0].Path, newer)
}

func TestNewSourceRequiresDirectory(t *testing.T) {
	dir := fs.NewDir(t, "input", fs.WithFile("file", ""))
	_, err := NewSource(streamcount.Schema{}, filepath.Join(dir.Path(), "missing"), nil, zerolog.Nop())
	assert.ErrorIs(t, err, streamcount.ErrAnalysis)
	_, err = NewSource(streamcount.Schema{}, filepath.Join(dir.Path(), "file"), nil, zerolog.Nop())
	assert.ErrorIs(t, err, streamcount.ErrAnalysis)
}

func TestScanProjectsOntoDeclaredSchema(t *testing.T) {
	dir := fs.NewDir(t, "input")
	pickup := time.Date(2025, 1, 15, 8, 30, 0, 0, time.UTC)
	passengers := int64(2)
	path := writeFile(t, dir.Path(), "yellow.parquet", []yellowTrip{
		{VendorID: 1, PickupDatetime: pickup, PassengerCount: &passengers, StoreAndFwdFlag: "N", PULocationID: 132, FareAmount: 10.5, Payload: []byte{1}},
		{VendorID: 2, PickupDatetime: pickup, StoreAndFwdFlag: "Y", PULocationID: 138, FareAmount: 7},
	})
	declared := streamcount.Schema{Fields: []streamcount.Field{
		{Name: "PULocationID", Type: streamcount.IntegerType},
		{Name: "passenger_count", Type: streamcount.LongType, Nullable: true},
		{Name: "tpep_pickup_datetime", Type: streamcount.TimestampType},
		{Name: "store_and_fwd_flag", Type: streamcount.StringType},
		{Name: "airport_fee", Type: streamcount.DoubleType, Nullable: true},
	}}
	source, err := NewSource(declared, dir.Path(), nil, zerolog.Nop())
	assert.NilError(t, err)

	var records []streamcount.Record
	err = source.Scan(context.Background(), streamcount.Input{Path: path}, func(r streamcount.Record) error {
		records = append(records, r)
		return nil
	})
	assert.NilError(t, err)
	assert.Equal(t, len(records), 2)
	assert.Equal(t, records[0][0], int32(132))
	assert.Equal(t, records[0][1], int64(2))
	assert.Assert(t, records[0][2].(time.Time).Equal(pickup))
	assert.Equal(t, records[0][3], "N")
	assert.Equal(t, records[0][4], nil)
	assert.Equal(t, records[1][0], int32(138))
	assert.Equal(t, records[1][1], nil)
}

func TestScanRejectsIncompatibleFile(t *testing.T) {
	dir := fs.NewDir(t, "input")
	path := writeFile(t, dir.Path(), "narrow.parquet", []narrowTrip{{PULocationID: 1}})
	declared := streamcount.Schema{Fields: []streamcount.Field{
		{Name: "PULocationID", Type: streamcount.LongType},
	}}
	source, err := NewSource(declared, dir.Path(), nil, zerolog.Nop())
	assert.NilError(t, err)
	err = source.Scan(context.Background(), streamcount.Input{Path: path}, func(streamcount.Record) error { return nil })
	assert.ErrorIs(t, err, streamcount.ErrSchemaMismatch)

	declared.Fields = append(declared.Fields, streamcount.Field{Name: "zone", Type: streamcount.StringType})
	declared.Fields[0].Type = streamcount.IntegerType
	source, err = NewSource(declared, dir.Path(), nil, zerolog.Nop())
	assert.NilError(t, err)
	err = source.Scan(context.Background(), streamcount.Input{Path: path}, func(streamcount.Record) error { return nil })
	assert.ErrorIs(t, err, streamcount.ErrSchemaMismatch)
}
