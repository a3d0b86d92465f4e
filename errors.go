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
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrSessionInit     = errors.New("session initialisation failed")
	ErrSessionClosed   = errors.New("session is closed")
	ErrSchemaInference = errors.New("schema inference failed")
	ErrSchemaMismatch  = errors.New("schema mismatch")
	ErrCheckpoint      = errors.New("checkpoint access failed")
	ErrAnalysis        = errors.New("invalid pipeline definition")
	ErrQueryActive     = errors.New("query is already active")
	ErrSink            = errors.New("sink failed")
)

// QueryError is the terminal failure of a query, returned by AwaitTermination.
type QueryError struct {
	QueryID uuid.UUID
	RunID   uuid.UUID
	BatchID int64
	Err     error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s (run %s) terminated with error in batch %d: %v", e.QueryID, e.RunID, e.BatchID, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
