package streamcount

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Format interface {
	Name() string
}

type SourceFormat interface {
	Format
	InferSchema(path string, options Options) (Schema, error)
	OpenStream(schema Schema, path string, options Options, logger zerolog.Logger) (Source, error)
}

type SinkFormat interface {
	Format
	OpenSink(spec SinkSpec) (Sink, error)
}

type SinkSpec struct {
	QueryName string
	Mode      OutputMode
	Options   Options
	Logger    zerolog.Logger
}

// Options are the string key/value settings of a source or sink. Keys are case-insensitive.
type Options map[string]string

func (o Options) with(key, value string) Options {
	copied := make(Options, len(o)+1)
	for k, v := range o {
		copied[k] = v
	}
	copied[strings.ToLower(key)] = value
	return copied
}

func (o Options) Get(key string) (string, bool) {
	v, ok := o[strings.ToLower(key)]
	return v, ok
}

func (o Options) StringOr(key, def string) string {
	if v, ok := o.Get(key); ok {
		return v
	}
	return def
}

func (o Options) Int(key string, def int) (int, error) {
	v, ok := o.Get(key)
	if !ok {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: option %s=%q is not an integer", ErrAnalysis, key, v)
	}
	return i, nil
}

func (o Options) Bool(key string, def bool) (bool, error) {
	v, ok := o.Get(key)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: option %s=%q is not a boolean", ErrAnalysis, key, v)
	}
	return b, nil
}

func (o Options) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := o.Get(key)
	if !ok {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: option %s=%q is not a duration", ErrAnalysis, key, v)
	}
	return d, nil
}

type formats struct {
	sources map[string]SourceFormat
	sinks   map[string]SinkFormat
}

func newFormats(list []Format) (*formats, error) {
	f := &formats{
		sources: make(map[string]SourceFormat),
		sinks:   make(map[string]SinkFormat),
	}
	for _, format := range list {
		name := strings.ToLower(format.Name())
		registered := false
		if src, ok := format.(SourceFormat); ok {
			f.sources[name] = src
			registered = true
		}
		if sink, ok := format.(SinkFormat); ok {
			f.sinks[name] = sink
			registered = true
		}
		if !registered {
			return nil, fmt.Errorf("format %q is neither a source nor a sink", name)
		}
	}
	return f, nil
}

func (f *formats) source(name string) (SourceFormat, error) {
	if src, ok := f.sources[strings.ToLower(name)]; ok {
		return src, nil
	}
	return nil, fmt.Errorf("%w: unknown source format %q", ErrAnalysis, name)
}

func (f *formats) sink(name string) (SinkFormat, error) {
	if sink, ok := f.sinks[strings.ToLower(name)]; ok {
		return sink, nil
	}
	return nil, fmt.Errorf("%w: unknown sink format %q", ErrAnalysis, name)
}
