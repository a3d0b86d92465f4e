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

package amqp09

import (
	"context"
	"fmt"

	"github.com/amient/streamcount"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Amqp is the "amqp" sink format. Options: uri (required), exchange, routingKey.
type Amqp struct{}

func (a *Amqp) Name() string {
	return "amqp"
}

func (a *Amqp) OpenSink(spec streamcount.SinkSpec) (streamcount.Sink, error) {
	uri, ok := spec.Options.Get("uri")
	if !ok || uri == "" {
		return nil, fmt.Errorf("%w: option uri is required for amqp sink", streamcount.ErrAnalysis)
	}
	sink := &Sink{
		Uri:        uri,
		Exchange:   spec.Options.StringOr("exchange", ""),
		RoutingKey: spec.Options.StringOr("routingKey", spec.QueryName),
		log:        spec.Logger.With().Str("exchange", spec.Options.StringOr("exchange", "")).Logger(),
	}
	if sink.Exchange == "" && sink.RoutingKey == "" {
		return nil, fmt.Errorf("%w: amqp sink needs an exchange or a routingKey", streamcount.ErrAnalysis)
	}
	if err := sink.connect(); err != nil {
		return nil, err
	}
	return sink, nil
}

// Sink publishes one persistent message per emitted row on a confirmed channel.
type Sink struct {
	Uri        string
	Exchange   string
	RoutingKey string
	conn       *amqp.Connection
	channel    *amqp.Channel
	log        zerolog.Logger
}

func (sink *Sink) connect() error {
	sink.log.Info().Msg("AMQP dialing")
	conn, err := amqp.Dial(sink.Uri)
	if err != nil {
		return err
	}
	go func() {
		if err := <-conn.NotifyClose(make(chan *amqp.Error, 1)); err != nil {
			sink.log.Warn().Err(err).Msg("AMQP connection closed")
		}
	}()
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}
	if err := channel.Confirm(false); err != nil {
		conn.Close()
		return fmt.Errorf("AMQP channel could not be put into confirm mode: %w", err)
	}
	sink.conn = conn
	sink.channel = channel
	return nil
}

func (sink *Sink) AddBatch(ctx context.Context, snapshot *streamcount.Snapshot) error {
	confirms := make([]*amqp.DeferredConfirmation, 0, len(snapshot.Rows))
	for _, row := range snapshot.Rows {
		body, err := snapshot.Message(row)
		if err != nil {
			return err
		}
		confirm, err := sink.channel.PublishWithDeferredConfirmWithContext(ctx, sink.Exchange, sink.RoutingKey, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    fmt.Sprintf("%d-%s", snapshot.BatchID, snapshot.KeyType.Format(row.Key)),
			Body:         body,
		})
		if err != nil {
			return err
		}
		confirms = append(confirms, confirm)
	}
	for _, confirm := range confirms {
		acked, err := confirm.WaitContext(ctx)
		if err != nil {
			return err
		}
		if !acked {
			return fmt.Errorf("AMQP broker nacked message %d of batch %d", confirm.DeliveryTag, snapshot.BatchID)
		}
	}
	sink.log.Debug().Int64("batch", snapshot.BatchID).Int("messages", len(confirms)).Msg("AMQP published")
	return nil
}

func (sink *Sink) Close() error {
	if err := sink.channel.Close(); err != nil {
		return fmt.Errorf("AMQP channel close error: %w", err)
	}
	if err := sink.conn.Close(); err != nil {
		return fmt.Errorf("AMQP connection close error: %w", err)
	}
	return nil
}
