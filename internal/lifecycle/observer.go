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

package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/opendatanode/datanode/internal/statemachine"
	"go.uber.org/zap"
)

// DefaultPublishTimeout bounds a single publish
const DefaultPublishTimeout = 5 * time.Second

// Observer publishes STARTED and STOPPED when the process is started or
// stopped. Publishing runs off the dispatch goroutine.
// Observer 在进程启动或停止时发布 STARTED 和 STOPPED，发布在分发协程之外进行。
type Observer struct {
	nodeID    string
	publisher Publisher
	timeout   time.Duration
	logger    *zap.Logger
	wg        sync.WaitGroup
}

// NewObserver creates a lifecycle observer
// NewObserver 创建生命周期观察者
func NewObserver(nodeID string, publisher Publisher, logger *zap.Logger) *Observer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Observer{nodeID: nodeID, publisher: publisher, timeout: DefaultPublishTimeout, logger: logger}
}

// Trigger implements statemachine.Observer
func (o *Observer) Trigger(event statemachine.Event) {
	var trigger Trigger
	switch event {
	case statemachine.EventProcessStarted:
		trigger = TriggerStarted
	case statemachine.EventProcessStopped:
		trigger = TriggerStopped
	default:
		return
	}
	if o.publisher == nil {
		return
	}

	e := NewEvent(o.nodeID, trigger)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
		defer cancel()
		if err := o.publisher.Publish(ctx, e); err != nil {
			o.logger.Warn("failed to publish lifecycle event / 发布生命周期事件失败",
				zap.String("trigger", string(trigger)), zap.Error(err))
		}
	}()
}

// Transition implements statemachine.Observer
func (o *Observer) Transition(statemachine.Transition) {}

// Close waits for pending publishes
// Close 等待未完成的发布
func (o *Observer) Close() error {
	o.wg.Wait()
	return nil
}
