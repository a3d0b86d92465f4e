// Package memory keeps query results in named in-process tables, mostly for tests and
// interactive inspection.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/amient/streamcount"
)

// Memory is the "memory" sink format. Every query writing to it needs a query name which
// becomes the table name.
type Memory struct {
	mu     sync.Mutex
	tables map[string]*table
}

type table struct {
	rows    []streamcount.Row
	batches []int64
}

func New() *Memory {
	return &Memory{tables: make(map[string]*table)}
}

func (m *Memory) Name() string {
	return "memory"
}

func (m *Memory) OpenSink(spec streamcount.SinkSpec) (streamcount.Sink, error) {
	if spec.QueryName == "" {
		return nil, fmt.Errorf("%w: queryName must be specified for memory sink", streamcount.ErrAnalysis)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tables == nil {
		m.tables = make(map[string]*table)
	}
	if _, ok := m.tables[spec.QueryName]; !ok {
		m.tables[spec.QueryName] = &table{}
	}
	return &sink{memory: m, name: spec.QueryName, mode: spec.Mode}, nil
}

// Table returns a copy of the current contents of the named table.
func (m *Memory) Table(name string) []streamcount.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[name]
	if !ok {
		return nil
	}
	return append([]streamcount.Row(nil), t.rows...)
}

// Batches returns the ids of the batches the named table has received, in arrival order.
func (m *Memory) Batches(name string) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[name]
	if !ok {
		return nil
	}
	return append([]int64(nil), t.batches...)
}

type sink struct {
	memory *Memory
	name   string
	mode   streamcount.OutputMode
}

func (s *sink) AddBatch(_ context.Context, snapshot *streamcount.Snapshot) error {
	s.memory.mu.Lock()
	defer s.memory.mu.Unlock()
	t := s.memory.tables[s.name]
	for _, id := range t.batches {
		if id == snapshot.BatchID {
			// replayed batch that was already delivered
			return nil
		}
	}
	rows := append([]streamcount.Row(nil), snapshot.Rows...)
	if s.mode == streamcount.Complete {
		t.rows = rows
	} else {
		t.rows = append(t.rows, rows...)
	}
	t.batches = append(t.batches, snapshot.BatchID)
	return nil
}

func (s *sink) Close() error {
	return nil
}
