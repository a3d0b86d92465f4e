package streamcount

import (
	"fmt"
	"os"
	"time"
)

type triggerKind int

const (
	processingTime triggerKind = iota
	once
	availableNow
)

type Trigger struct {
	kind     triggerKind
	interval time.Duration
}

// ProcessingTime starts a micro-batch every interval; zero starts the next one
// as soon as the previous batch is done and new input is available.
func ProcessingTime(interval time.Duration) Trigger {
	return Trigger{kind: processingTime, interval: interval}
}

// Once processes everything available in a single batch and terminates.
func Once() Trigger {
	return Trigger{kind: once}
}

// AvailableNow processes everything available, possibly over several batches, and terminates.
func AvailableNow() Trigger {
	return Trigger{kind: availableNow}
}

func (t Trigger) String() string {
	switch t.kind {
	case once:
		return "Once"
	case availableNow:
		return "AvailableNow"
	default:
		return fmt.Sprintf("ProcessingTime(%v)", t.interval)
	}
}

const (
	defaultPollInterval       = 100 * time.Millisecond
	defaultMinBatchesToRetain = 100
)

// plan is the resolved, immutable form of a pipeline definition handed to the runner.
type plan struct {
	name               string
	sourceFormat       SourceFormat
	sourcePath         string
	schema             Schema
	sourceOptions      Options
	keyColumn          string
	keyIndex           int
	keyType            DataType
	agg                Aggregation
	sinkFormat         SinkFormat
	sinkFormatName     string
	sinkOptions        Options
	mode               OutputMode
	trigger            Trigger
	pollInterval       time.Duration
	checkpointDir      string
	tempCheckpoint     bool
	minBatchesToRetain int
	maxFilesPerTrigger int
}

func (w DataStreamWriter) resolve() (*plan, error) {
	grouped := w.agg.grouped
	stream := grouped.stream
	if stream.err != nil {
		return nil, stream.err
	}
	if grouped.err != nil {
		return nil, grouped.err
	}
	if w.agg.agg.Fold == nil {
		return nil, fmt.Errorf("%w: aggregation %q has no fold function", ErrAnalysis, w.agg.agg.Name)
	}
	switch w.mode {
	case Complete, Update:
	case Append:
		return nil, fmt.Errorf("%w: append output mode is not supported for streaming aggregations without a watermark", ErrAnalysis)
	default:
		return nil, fmt.Errorf("%w: unknown output mode %q", ErrAnalysis, w.mode)
	}
	if w.trigger.interval < 0 {
		return nil, fmt.Errorf("%w: trigger interval must not be negative", ErrAnalysis)
	}
	sourceFormat, err := stream.session.formats.source(stream.format)
	if err != nil {
		return nil, err
	}
	sinkFormat, err := stream.session.formats.sink(w.format)
	if err != nil {
		return nil, err
	}
	retain, err := w.options.Int("minBatchesToRetain", defaultMinBatchesToRetain)
	if err != nil {
		return nil, err
	}
	if retain < 1 {
		return nil, fmt.Errorf("%w: minBatchesToRetain must be at least 1", ErrAnalysis)
	}
	maxFiles, err := stream.options.Int("maxFilesPerTrigger", 0)
	if err != nil {
		return nil, err
	}
	if maxFiles < 0 {
		return nil, fmt.Errorf("%w: maxFilesPerTrigger must not be negative", ErrAnalysis)
	}
	keyIndex, _ := stream.schema.FieldIndex(grouped.key)
	p := &plan{
		name:               w.name,
		sourceFormat:       sourceFormat,
		sourcePath:         stream.path,
		schema:             stream.schema,
		sourceOptions:      stream.options,
		keyColumn:          grouped.key,
		keyIndex:           keyIndex,
		keyType:            stream.schema.Fields[keyIndex].Type,
		agg:                w.agg.agg,
		sinkFormat:         sinkFormat,
		sinkFormatName:     w.format,
		sinkOptions:        w.options,
		mode:               w.mode,
		trigger:            w.trigger,
		pollInterval:       w.pollDelay,
		minBatchesToRetain: retain,
		maxFilesPerTrigger: maxFiles,
	}
	if p.pollInterval <= 0 {
		p.pollInterval = defaultPollInterval
	}
	if dir, ok := w.options.Get("checkpointLocation"); ok && dir != "" {
		p.checkpointDir = dir
	} else {
		dir, err := os.MkdirTemp("", "streamcount-checkpoint-")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCheckpoint, err)
		}
		p.checkpointDir = dir
		p.tempCheckpoint = true
	}
	return p, nil
}
