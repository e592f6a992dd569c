/*
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

package tracing

import (
	"context"

	"github.com/opendatanode/datanode/internal/statemachine"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of the observer spans
const TracerName = "github.com/opendatanode/datanode/internal/statemachine"

// SpanName is the name of a transition span
const SpanName = "statemachine.transition"

// Observer records every matched transition as a span
// Observer 将每个匹配的状态转换记录为一个 span
type Observer struct {
	tracer trace.Tracer
}

// NewObserver creates a tracing observer
func NewObserver(tp trace.TracerProvider) *Observer {
	return &Observer{tracer: tp.Tracer(TracerName)}
}

// Trigger implements statemachine.Observer
func (o *Observer) Trigger(statemachine.Event) {}

// Transition implements statemachine.Observer
func (o *Observer) Transition(t statemachine.Transition) {
	_, span := o.tracer.Start(context.Background(), SpanName,
		trace.WithAttributes(
			attribute.String("event", t.Event.String()),
			attribute.String("from", t.Source.String()),
			attribute.String("to", t.Destination.String()),
			attribute.Bool("reentry", t.IsReentry()),
		),
	)
	span.End()
}
