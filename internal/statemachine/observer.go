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

package statemachine

import "go.uber.org/zap"

// Observer receives notifications from the state machine.
// Trigger is called for every fired event. Transition is called only when
// the event matched an entry of the transition table.
// Observer 接收状态机的通知。
// 每个触发的事件都会调用 Trigger；仅当事件命中转换表时才调用 Transition。
type Observer interface {
	Trigger(event Event)
	Transition(t Transition)
}

// ObserverFuncs adapts plain functions to the Observer interface.
// Nil fields are skipped.
// ObserverFuncs 将普通函数适配为 Observer 接口，nil 字段会被跳过。
type ObserverFuncs struct {
	OnTrigger    func(event Event)
	OnTransition func(t Transition)
}

// Trigger implements Observer
func (f ObserverFuncs) Trigger(event Event) {
	if f.OnTrigger != nil {
		f.OnTrigger(event)
	}
}

// Transition implements Observer
func (f ObserverFuncs) Transition(t Transition) {
	if f.OnTransition != nil {
		f.OnTransition(t)
	}
}

// LoggingObserver writes every transition to the logger
// LoggingObserver 将每次状态转换写入日志
type LoggingObserver struct {
	logger *zap.Logger
}

// NewLoggingObserver creates a new LoggingObserver
// NewLoggingObserver 创建新的 LoggingObserver
func NewLoggingObserver(logger *zap.Logger) *LoggingObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingObserver{logger: logger}
}

// Trigger logs fired events at debug level
func (o *LoggingObserver) Trigger(event Event) {
	o.logger.Debug("event fired / 事件已触发", zap.String("event", event.String()))
}

// Transition logs state changes at info level
func (o *LoggingObserver) Transition(t Transition) {
	o.logger.Info("state transition / 状态转换",
		zap.String("event", t.Event.String()),
		zap.String("from", t.Source.String()),
		zap.String("to", t.Destination.String()),
	)
}
