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

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opendatanode/datanode/internal/statemachine"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestObserver_CountsTransitions(t *testing.T) {
	o := New("")
	m := statemachine.New(statemachine.StateStarting, zap.NewNop())
	m.AddObserver("metrics", o)
	o.SetState(m.State())

	m.Fire(statemachine.EventHealthCheckOK)
	m.Fire(statemachine.EventHealthCheckOK)
	m.Fire(statemachine.EventProcessRemove)

	assert.Equal(t, 2.0, testutil.ToFloat64(o.events.WithLabelValues("HEALTH_CHECK_OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.transitions.WithLabelValues("HEALTH_CHECK_OK", "STARTING", "AVAILABLE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.transitions.WithLabelValues("PROCESS_REMOVE", "AVAILABLE", "REMOVING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.state.WithLabelValues("REMOVING")))
	assert.Equal(t, 0.0, testutil.ToFloat64(o.state.WithLabelValues("AVAILABLE")))
}

func TestObserver_PanicHandler(t *testing.T) {
	o := New("test")
	m := statemachine.New(statemachine.StateStarting, nil)
	m.SetPanicHandler(o.ObserverPanic)
	m.AddObserver("broken", statemachine.ObserverFuncs{
		OnTrigger: func(statemachine.Event) { panic("boom") },
	})

	m.Fire(statemachine.EventProcessStarted)
	assert.Equal(t, 1.0, testutil.ToFloat64(o.observerPanics.WithLabelValues("broken")))
}

// TestObserver_Handler 测试 /metrics 输出包含自定义指标
func TestObserver_Handler(t *testing.T) {
	o := New("")
	failures := 2
	require.NoError(t, o.RegisterGaugeFunc("", "watchdog_failures", "Consecutive restart attempts", func() float64 {
		return float64(failures)
	}))
	assert.Error(t, o.RegisterGaugeFunc("", "watchdog_failures", "duplicate", func() float64 { return 0 }))
	o.Trigger(statemachine.EventProcessStarted)

	rec := httptest.NewRecorder()
	o.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "datanode_watchdog_failures 2")
	assert.Contains(t, body, `datanode_events_total{event="PROCESS_STARTED"} 1`)
	assert.Contains(t, body, "go_goroutines")
}
