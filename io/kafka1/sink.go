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

package kafka1

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/amient/streamcount"
	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/rs/zerolog"
)

const (
	configPrefix  = "kafka."
	flushTimeout  = 30 * time.Second
	flushAttempts = 10
)

// Kafka is the "kafka" sink format. Options prefixed with "kafka." are passed to the
// producer without the prefix, "topic" names the destination.
type Kafka struct{}

func (k *Kafka) Name() string {
	return "kafka"
}

func (k *Kafka) OpenSink(spec streamcount.SinkSpec) (streamcount.Sink, error) {
	topic, ok := spec.Options.Get("topic")
	if !ok || topic == "" {
		return nil, fmt.Errorf("%w: option topic is required for kafka sink", streamcount.ErrAnalysis)
	}
	config := ProducerConfig(spec.Options)
	if _, ok := config["bootstrap.servers"]; !ok {
		return nil, fmt.Errorf("%w: option kafka.bootstrap.servers is required for kafka sink", streamcount.ErrAnalysis)
	}
	producer, err := kafka.NewProducer(&config)
	if err != nil {
		return nil, err
	}
	return &Sink{
		Topic:    topic,
		producer: producer,
		log:      spec.Logger.With().Str("topic", topic).Logger(),
	}, nil
}

// ProducerConfig extracts the producer settings from sink options.
func ProducerConfig(options streamcount.Options) kafka.ConfigMap {
	config := kafka.ConfigMap{"go.delivery.reports": true}
	for k, v := range options {
		if strings.HasPrefix(k, configPrefix) {
			config.SetKey(strings.TrimPrefix(k, configPrefix), v)
		}
	}
	return config
}

// Sink produces one message per emitted row keyed by the rendered group key and waits for
// every delivery report before the batch counts as written.
type Sink struct {
	Topic    string
	producer *kafka.Producer
	log      zerolog.Logger
}

func (sink *Sink) AddBatch(ctx context.Context, snapshot *streamcount.Snapshot) error {
	deliveries := make(chan kafka.Event, len(snapshot.Rows))
	for _, row := range snapshot.Rows {
		value, err := snapshot.Message(row)
		if err != nil {
			return err
		}
		message := &kafka.Message{
			TopicPartition: kafka.TopicPartition{Topic: &sink.Topic, Partition: kafka.PartitionAny},
			Key:            []byte(snapshot.KeyType.Format(row.Key)),
			Value:          value,
			Timestamp:      time.Now(),
		}
		if err := sink.producer.Produce(message, deliveries); err != nil {
			return err
		}
	}
	if err := sink.flush(); err != nil {
		return err
	}
	for i := 0; i < len(snapshot.Rows); i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-deliveries:
			if err := processKafkaEvent(e); err != nil {
				return err
			}
		}
	}
	sink.log.Debug().Int64("batch", snapshot.BatchID).Int("messages", len(snapshot.Rows)).Msg("produced")
	return nil
}

func (sink *Sink) flush() error {
	var outstanding int
	for i := 0; i < flushAttempts; i++ {
		outstanding = sink.producer.Flush(int(flushTimeout / time.Millisecond))
		if outstanding == 0 {
			return nil
		}
	}
	return fmt.Errorf("failed to flush all produced messages, outstanding: %v", outstanding)
}

func processKafkaEvent(e kafka.Event) error {
	switch ev := e.(type) {
	case *kafka.Message:
		if ev.TopicPartition.Error != nil {
			return fmt.Errorf("delivery failed: %v", ev.TopicPartition)
		}
		return nil
	case kafka.Error:
		return ev
	}
	return nil
}

func (sink *Sink) Close() error {
	sink.producer.Close()
	sink.log.Info().Msg("kafka producer shutdown")
	return nil
}
