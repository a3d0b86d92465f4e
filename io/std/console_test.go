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

package std

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/amient/streamcount"
	"github.com/rs/zerolog"
	"gotest.tools/v3/assert"
)

func openConsole(t *testing.T, out *bytes.Buffer, options streamcount.Options) streamcount.Sink {
	t.Helper()
	sink, err := (&Console{Out: out}).OpenSink(streamcount.SinkSpec{
		Mode:    streamcount.Complete,
		Options: options,
		Logger:  zerolog.Nop(),
	})
	assert.NilError(t, err)
	return sink
}

func TestConsolePrintsBatchTable(t *testing.T) {
	out := new(bytes.Buffer)
	sink := openConsole(t, out, nil)
	assert.NilError(t, sink.AddBatch(context.Background(), &streamcount.Snapshot{
		BatchID:   0,
		KeyColumn: "PULocationID",
		KeyType:   streamcount.IntegerType,
		Rows:      []streamcount.Row{{Key: nil, Count: 2}, {Key: int32(1), Count: 10}, {Key: int32(132), Count: 7}},
	}))
	expected := `-------------------------------------------
Batch: 0
-------------------------------------------
+------------+-----+
|PULocationID|count|
+------------+-----+
|        null|    2|
|           1|   10|
|         132|    7|
+------------+-----+

`
	assert.Equal(t, out.String(), expected)
}

func TestConsoleTruncatesAndLimitsRows(t *testing.T) {
	out := new(bytes.Buffer)
	sink := openConsole(t, out, streamcount.Options{"numrows": "1"})
	assert.NilError(t, sink.AddBatch(context.Background(), &streamcount.Snapshot{
		BatchID:   7,
		KeyColumn: "zone",
		KeyType:   streamcount.StringType,
		Rows: []streamcount.Row{
			{Key: "Upper East Side North", Count: 1},
			{Key: "Astoria", Count: 4},
		},
	}))
	lines := strings.Split(out.String(), "\n")
	assert.Equal(t, lines[1], "Batch: 7")
	assert.Equal(t, lines[3], "+--------------------+-----+")
	assert.Equal(t, lines[4], "|                zone|count|")
	assert.Equal(t, lines[6], "|Upper East Side N...|    1|")
	assert.Equal(t, lines[8], "only showing top 1 row")
}

func TestConsoleWithoutTruncationAlignsLeft(t *testing.T) {
	out := new(bytes.Buffer)
	sink := openConsole(t, out, streamcount.Options{"truncate": "false"})
	assert.NilError(t, sink.AddBatch(context.Background(), &streamcount.Snapshot{
		BatchID:   1,
		KeyColumn: "zone",
		KeyType:   streamcount.StringType,
		Rows:      []streamcount.Row{{Key: "Upper East Side North", Count: 1}},
	}))
	assert.Assert(t, strings.Contains(out.String(), "|Upper East Side North|1    |\n"))
}

func TestConsoleRejectsInvalidOptions(t *testing.T) {
	_, err := (&Console{}).OpenSink(streamcount.SinkSpec{Options: streamcount.Options{"numrows": "many"}})
	assert.ErrorIs(t, err, streamcount.ErrAnalysis)
	_, err = (&Console{}).OpenSink(streamcount.SinkSpec{Options: streamcount.Options{"truncate": "maybe"}})
	assert.ErrorIs(t, err, streamcount.ErrAnalysis)
}
