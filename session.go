package streamcount

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/amient/streamcount/ui"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Session is the process-wide handle of the engine. It must be closed by its creator.
type Session struct {
	config  SessionConfig
	log     zerolog.Logger
	started time.Time
	formats *formats
	metrics *engineMetrics
	ui      *ui.Server

	mu     sync.Mutex
	active map[uuid.UUID]*Query
	closed bool
}

func NewSession(config SessionConfig) (*Session, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionInit, err)
	}
	formats, err := newFormats(config.Formats)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionInit, err)
	}
	metrics, err := newEngineMetrics(config.AppName, config.MetricsInterval)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionInit, err)
	}
	s := &Session{
		config:  config,
		log:     config.logger().With().Str("app", config.AppName).Logger(),
		started: time.Now(),
		formats: formats,
		metrics: metrics,
		active:  make(map[uuid.UUID]*Query),
	}
	if config.UIEnabled {
		s.ui = ui.NewServer(ui.Config{
			Port:    config.UIPort,
			App:     ui.App{Name: config.AppName, Started: s.started},
			Queries: func() interface{} { return s.statuses() },
			Metrics: metrics.inmem.DisplayMetrics,
			Logger:  s.log,
		})
		if err := s.ui.Start(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSessionInit, err)
		}
	}
	s.log.Info().Msg("session started")
	return s, nil
}

func (s *Session) AppName() string {
	return s.config.AppName
}

func (s *Session) Logger() zerolog.Logger {
	return s.log
}

// UIAddr is the bound address of the diagnostics ui, empty when it is disabled.
func (s *Session) UIAddr() string {
	if s.ui == nil || s.ui.Addr() == nil {
		return ""
	}
	return s.ui.Addr().String()
}

func (s *Session) Read() DataReader {
	return DataReader{session: s, format: "parquet"}
}

func (s *Session) ReadStream() DataStreamReader {
	return DataStreamReader{session: s, format: "parquet"}
}

// Active returns the running queries ordered by start time.
func (s *Session) Active() []*Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	queries := make([]*Query, 0, len(s.active))
	for _, q := range s.active {
		queries = append(queries, q)
	}
	sort.Slice(queries, func(i, j int) bool {
		return queries[i].started.Before(queries[j].started)
	})
	return queries
}

func (s *Session) register(q *Query) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if other, exists := s.active[q.id]; exists {
		return fmt.Errorf("%w: query %s is running with checkpoint %s", ErrQueryActive, other.id, other.plan.checkpointDir)
	}
	s.active[q.id] = q
	return nil
}

func (s *Session) unregister(q *Query) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[q.id] == q {
		delete(s.active, q.id)
	}
}

func (s *Session) statuses() []QueryInfo {
	active := s.Active()
	infos := make([]QueryInfo, len(active))
	for i, q := range active {
		infos[i] = q.Info()
	}
	return infos
}

// Close stops every active query and releases the diagnostics ui.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	for _, q := range s.Active() {
		q.Stop()
	}
	var err error
	if s.ui != nil {
		err = s.ui.Close()
	}
	s.log.Info().Msg("session closed")
	return err
}
