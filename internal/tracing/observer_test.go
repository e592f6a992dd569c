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
	"testing"

	"github.com/opendatanode/datanode/internal/statemachine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestObserver_RecordsTransitions(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	m := statemachine.New(statemachine.StateStarting, nil)
	m.AddObserver("tracing", NewObserver(tp))

	m.Fire(statemachine.EventHealthCheckOK)
	m.Fire(statemachine.EventHealthCheckOK) // ignored, no span
	m.Fire(statemachine.EventProcessStopped)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, SpanName, spans[0].Name())

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "HEALTH_CHECK_OK", attrs["event"].AsString())
	assert.Equal(t, "STARTING", attrs["from"].AsString())
	assert.Equal(t, "AVAILABLE", attrs["to"].AsString())
}

func TestInit_Disabled(t *testing.T) {
	tp, shutdown, err := Init(context.Background(), Options{}, nil)
	require.NoError(t, err)
	require.NotNil(t, tp)
	assert.NoError(t, shutdown(context.Background()))
}
