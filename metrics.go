package streamcount

import (
	"time"

	gometrics "github.com/armon/go-metrics"
	"github.com/google/uuid"
)

type engineMetrics struct {
	inmem *gometrics.InmemSink
	m     *gometrics.Metrics
}

func newEngineMetrics(appName string, interval time.Duration) (*engineMetrics, error) {
	inmem := gometrics.NewInmemSink(interval, 6*interval)
	cfg := gometrics.DefaultConfig(appName)
	cfg.EnableHostname = false
	cfg.EnableRuntimeMetrics = false
	m, err := gometrics.New(cfg, inmem)
	if err != nil {
		return nil, err
	}
	return &engineMetrics{inmem: inmem, m: m}, nil
}

func (em *engineMetrics) batch(query uuid.UUID, inputRows int64, stateRows int, started time.Time) {
	labels := []gometrics.Label{{Name: "query", Value: query.String()}}
	em.m.IncrCounterWithLabels([]string{"query", "batches"}, 1, labels)
	em.m.IncrCounterWithLabels([]string{"query", "input_rows"}, float32(inputRows), labels)
	em.m.SetGaugeWithLabels([]string{"query", "state_rows"}, float32(stateRows), labels)
	em.m.MeasureSinceWithLabels([]string{"query", "batch_duration"}, started, labels)
}

func (em *engineMetrics) terminated(query uuid.UUID, status QueryStatus) {
	em.m.IncrCounterWithLabels([]string{"query", "terminated"}, 1, []gometrics.Label{
		{Name: "query", Value: query.String()},
		{Name: "status", Value: status.String()},
	})
}
