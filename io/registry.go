// Package io lists the built-in source and sink formats.
package io

import (
	"github.com/amient/streamcount"
	"github.com/amient/streamcount/io/amqp09"
	"github.com/amient/streamcount/io/file"
	"github.com/amient/streamcount/io/kafka1"
	"github.com/amient/streamcount/io/std"
)

// Registry returns a fresh instance of every built-in format. The memory sink is not
// included because its tables belong to whoever created it.
func Registry() []streamcount.Format {
	return []streamcount.Format{
		&file.Parquet{},
		&std.Console{},
		&kafka1.Kafka{},
		&amqp09.Amqp{},
	}
}
