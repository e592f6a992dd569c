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

// Package lifecycle publishes data node lifecycle events to interested parties.
// lifecycle 包向关注方发布数据节点的生命周期事件。
package lifecycle

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Trigger identifies what happened to the node
// Trigger 标识节点发生了什么
type Trigger string

const (
	// TriggerRemoved is published once a removed node has stopped its process
	// TriggerRemoved 在被移除节点停止进程后发布
	TriggerRemoved Trigger = "REMOVED"
	// TriggerStarted is published when the search engine process starts
	TriggerStarted Trigger = "STARTED"
	// TriggerStopped is published when the search engine process is stopped
	TriggerStopped Trigger = "STOPPED"
)

// Event is a lifecycle notification
// Event 是生命周期通知
type Event struct {
	NodeID    string    `json:"node_id"`
	Trigger   Trigger   `json:"trigger"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent creates an event stamped with the current time
// NewEvent 创建带有当前时间戳的事件
func NewEvent(nodeID string, trigger Trigger) Event {
	return Event{NodeID: nodeID, Trigger: trigger, Timestamp: time.Now().UTC()}
}

// Publisher delivers lifecycle events
// Publisher 投递生命周期事件
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// LogPublisher writes events to the log
// LogPublisher 将事件写入日志
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a log publisher
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

// Publish implements Publisher
func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	p.logger.Info("lifecycle event / 生命周期事件",
		zap.String("node_id", event.NodeID),
		zap.String("trigger", string(event.Trigger)),
		zap.Time("timestamp", event.Timestamp),
	)
	return nil
}

// MultiPublisher fans an event out to several publishers.
// Every publisher is attempted, errors are joined.
// MultiPublisher 将事件分发给多个发布者，每个发布者都会尝试，错误会被合并。
type MultiPublisher []Publisher

// Publish implements Publisher
func (m MultiPublisher) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
