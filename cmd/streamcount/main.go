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

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/amient/streamcount"
	"github.com/amient/streamcount/io"
	"github.com/rs/zerolog"
)

var (
	appName    = flag.String("app-name", "K8sPySparkStreaming", "Application name shown by the diagnostics UI")
	uiPort     = flag.Int("ui-port", streamcount.DefaultUIPort, "Diagnostics UI port, 0 picks a free one")
	inputDir   = flag.String("input", "/data", "Directory watched for new parquet files")
	checkpoint = flag.String("checkpoint", "", "Checkpoint directory (default <input>/checkpoint)")
	sample     = flag.String("sample", "", "Parquet file the schema is inferred from (default <input>/yellow_tripdata_2025-01.parquet)")
	groupBy    = flag.String("group-by", "PULocationID", "Column the running counts are grouped by")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

// job is what the launcher runs: where the data is and what it is grouped by.
type job struct {
	input      string
	checkpoint string
	sample     string
	groupBy    string
}

// withDefaults places the checkpoint and the sample inside the input directory unless set.
func (j job) withDefaults() job {
	if j.checkpoint == "" {
		j.checkpoint = filepath.Join(j.input, "checkpoint")
	}
	if j.sample == "" {
		j.sample = filepath.Join(j.input, "yellow_tripdata_2025-01.parquet")
	}
	if j.groupBy == "" {
		j.groupBy = "PULocationID"
	}
	return j
}

func main() {

	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	config := streamcount.DefaultSessionConfig(*appName)
	config.UIPort = *uiPort
	config.Logger = &logger
	config.Formats = io.Registry()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, config, job{input: *inputDir, checkpoint: *checkpoint, sample: *sample, groupBy: *groupBy}.withDefaults())
	stop()
	if err != nil {
		logger.Error().Err(err).Msg("streaming job failed")
		os.Exit(1)
	}
}

// run blocks until the query fails or ctx is cancelled, which stops the query.
func run(ctx context.Context, config streamcount.SessionConfig, j job) error {
	session, err := streamcount.NewSession(config)
	if err != nil {
		return err
	}
	defer session.Close()

	frame, err := session.Read().Format("parquet").Load(j.sample)
	if err != nil {
		return err
	}

	query, err := session.ReadStream().
		Schema(frame.Schema()).
		Format("parquet").
		Load(j.input).
		GroupBy(j.groupBy).
		Count().
		WriteStream().
		OutputMode(streamcount.Complete).
		Format("console").
		Option("checkpointLocation", j.checkpoint).
		Start(ctx)
	if err != nil {
		return err
	}
	logger := session.Logger()
	logger.Info().Str("query", query.ID().String()).Str("ui", session.UIAddr()).Msg("awaiting termination")
	return query.AwaitTermination()
}
