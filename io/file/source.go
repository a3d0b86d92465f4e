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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/amient/streamcount"
	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"
)

const readBatchSize = 256

// Source lists a directory for parquet files it has not seen yet and reads them row by row
// against the declared schema.
type Source struct {
	schema streamcount.Schema
	dir    string
	glob   string
	log    zerolog.Logger
}

func NewSource(schema streamcount.Schema, dir string, options streamcount.Options, logger zerolog.Logger) (*Source, error) {
	stat, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: path does not exist: %s", streamcount.ErrAnalysis, dir)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("%w: not a directory: %s", streamcount.ErrAnalysis, dir)
	}
	glob := options.StringOr("pathglobfilter", "")
	if glob != "" {
		if _, err := filepath.Match(glob, ""); err != nil {
			return nil, fmt.Errorf("%w: pathGlobFilter %q: %w", streamcount.ErrAnalysis, glob, err)
		}
	}
	return &Source{
		schema: schema,
		dir:    dir,
		glob:   glob,
		log:    logger.With().Str("source", dir).Logger(),
	}, nil
}

func (s *Source) Schema() streamcount.Schema {
	return s.schema
}

// Poll returns files not in seen, oldest first. Hidden files and names starting with an
// underscore are skipped so that writers can stage files before renaming them in.
func (s *Source) Poll(ctx context.Context, seen map[string]bool) ([]streamcount.Input, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.dir, err)
	}
	var inputs []streamcount.Input
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}
		if s.glob != "" {
			if ok, _ := filepath.Match(s.glob, name); !ok {
				continue
			}
		}
		path := filepath.Join(s.dir, name)
		if seen[path] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		if !info.Mode().IsRegular() {
			continue
		}
		inputs = append(inputs, streamcount.Input{Path: path, Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(inputs, func(i, j int) bool {
		if !inputs[i].ModTime.Equal(inputs[j].ModTime) {
			return inputs[i].ModTime.Before(inputs[j].ModTime)
		}
		return inputs[i].Path < inputs[j].Path
	})
	return inputs, nil
}

// Scan emits every row of the input projected onto the declared schema. Declared nullable
// columns missing from the file are emitted as nil.
func (s *Source) Scan(ctx context.Context, input streamcount.Input, emit func(streamcount.Record) error) error {
	f, pf, err := open(input.Path)
	if err != nil {
		return fmt.Errorf("%s: %w", input.Path, err)
	}
	defer f.Close()
	if err := s.schema.Conform(fileSchema(pf)); err != nil {
		return fmt.Errorf("%s: %w", input.Path, err)
	}
	projection := newProjection(s.schema, pf.Schema())
	start := time.Now()
	var rows int64
	for _, rowGroup := range pf.RowGroups() {
		n, err := s.scanRowGroup(ctx, rowGroup, projection, emit)
		rows += n
		if err != nil {
			return fmt.Errorf("%s: %w", input.Path, err)
		}
	}
	s.log.Debug().Str("file", input.Path).Int64("rows", rows).Dur("took", time.Since(start)).Msg("scanned")
	return nil
}

func (s *Source) scanRowGroup(ctx context.Context, rowGroup parquet.RowGroup, p *projection, emit func(streamcount.Record) error) (int64, error) {
	rows := rowGroup.Rows()
	defer rows.Close()
	buf := make([]parquet.Row, readBatchSize)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := rows.ReadRows(buf)
		for _, row := range buf[:n] {
			if err := emit(p.record(row)); err != nil {
				return total, err
			}
			total++
		}
		if err == io.EOF {
			return total, nil
		} else if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
	}
}

func (s *Source) Close() error {
	return nil
}
