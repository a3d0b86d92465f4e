package ui

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gotest.tools/v3/assert"
)

func get(t *testing.T, s *Server, path string, v interface{}) {
	t.Helper()
	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d%s", s.Addr().(*net.TCPAddr).Port, path))
	assert.NilError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.NilError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestServerEndpoints(t *testing.T) {
	started := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewServer(Config{
		Port:    0,
		App:     App{Name: "K8sPySparkStreaming", Started: started},
		Queries: func() interface{} { return []map[string]string{{"status": "RUNNING"}} },
		Metrics: func(http.ResponseWriter, *http.Request) (interface{}, error) {
			return map[string]int{"batches": 3}, nil
		},
		Logger: zerolog.Nop(),
	})
	assert.NilError(t, s.Start())
	defer s.Close()

	var app App
	get(t, s, "/api/v1/app", &app)
	assert.Equal(t, app.Name, "K8sPySparkStreaming")
	assert.Assert(t, app.Started.Equal(started))

	var queries []map[string]string
	get(t, s, "/api/v1/queries", &queries)
	assert.DeepEqual(t, queries, []map[string]string{{"status": "RUNNING"}})

	var metrics map[string]int
	get(t, s, "/metrics", &metrics)
	assert.Equal(t, metrics["batches"], 3)
}

func TestServerReportsPortConflict(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	assert.NilError(t, err)
	defer ln.Close()

	s := NewServer(Config{Port: ln.Addr().(*net.TCPAddr).Port, Logger: zerolog.Nop()})
	assert.ErrorContains(t, s.Start(), "failed to bind")
	assert.NilError(t, s.Close())
}
