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

// Package metrics exposes the lifecycle of the supervised process as Prometheus metrics.
// metrics 包将受监管进程的生命周期以 Prometheus 指标形式暴露。
package metrics

import (
	"fmt"
	"net/http"

	"github.com/opendatanode/datanode/internal/statemachine"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name
const DefaultNamespace = "datanode"

// Observer records state machine activity. It is registered as a state
// machine observer and its ObserverPanic method as the panic handler.
// Observer 记录状态机活动，作为状态机观察者注册，其 ObserverPanic 方法作为 panic 处理器。
type Observer struct {
	registry *prometheus.Registry

	transitions    *prometheus.CounterVec
	events         *prometheus.CounterVec
	state          *prometheus.GaugeVec
	observerPanics *prometheus.CounterVec
}

// New creates an observer on a private registry, which also carries the
// Go runtime and process collectors
// New 在私有注册表上创建观察者，注册表同时包含 Go 运行时和进程采集器
func New(namespace string) *Observer {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	o := &Observer{
		registry: reg,
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Matched state machine transitions",
		}, []string{"event", "from", "to"}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events fired on the state machine, matched or not",
		}, []string{"event"}),
		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Current process state, 1 for the active state",
		}, []string{"state"}),
		observerPanics: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observer_panics_total",
			Help:      "Panics recovered from state machine observers",
		}, []string{"observer"}),
	}
	return o
}

// SetState marks s as the current state
// SetState 将 s 标记为当前状态
func (o *Observer) SetState(s statemachine.State) {
	for _, candidate := range statemachine.AllStates() {
		value := 0.0
		if candidate == s {
			value = 1
		}
		o.state.WithLabelValues(candidate.String()).Set(value)
	}
}

// Trigger implements statemachine.Observer
func (o *Observer) Trigger(event statemachine.Event) {
	o.events.WithLabelValues(event.String()).Inc()
}

// Transition implements statemachine.Observer
func (o *Observer) Transition(t statemachine.Transition) {
	o.transitions.WithLabelValues(t.Event.String(), t.Source.String(), t.Destination.String()).Inc()
	o.SetState(t.Destination)
}

// ObserverPanic counts a recovered observer panic, matching statemachine.PanicHandler
// ObserverPanic 统计被恢复的观察者 panic，签名与 statemachine.PanicHandler 一致
func (o *Observer) ObserverPanic(observer string, _ any) {
	o.observerPanics.WithLabelValues(observer).Inc()
}

// RegisterGaugeFunc exposes a value read on every scrape, e.g. the watchdog failures
// RegisterGaugeFunc 暴露每次抓取时读取的值，例如看门狗失败次数
func (o *Observer) RegisterGaugeFunc(namespace, name, help string, f func() float64) error {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, f)
	if err := o.registry.Register(g); err != nil {
		return fmt.Errorf("failed to register gauge %s / 注册指标 %s 失败: %w", name, name, err)
	}
	return nil
}

// Registry returns the private registry
func (o *Observer) Registry() *prometheus.Registry {
	return o.registry
}

// Handler serves the registry in the Prometheus exposition format
// Handler 以 Prometheus 格式提供注册表内容
func (o *Observer) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{Registry: o.registry})
}
