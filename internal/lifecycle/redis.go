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
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the pub/sub channel used when none is configured
// DefaultChannel 是未配置时使用的发布/订阅频道
const DefaultChannel = "datanode:lifecycle"

// RedisOptions configures the Redis publisher
// RedisOptions 配置 Redis 发布者
type RedisOptions struct {
	Addr     string
	Username string
	Password string
	DB       int
	PoolSize int
	Channel  string
	// Tracing instruments the client with OpenTelemetry
	Tracing bool
}

// RedisPublisher publishes events as JSON on a Redis channel
// RedisPublisher 以 JSON 形式将事件发布到 Redis 频道
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
	logger  *zap.Logger
}

// NewRedisPublisher connects a Redis client for publishing
// NewRedisPublisher 创建用于发布的 Redis 客户端
func NewRedisPublisher(opts RedisOptions, logger *zap.Logger) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})
	if opts.Tracing {
		if err := redisotel.InstrumentTracing(client); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to instrument redis client / 初始化 Redis 追踪失败: %w", err)
		}
	}
	return NewRedisPublisherWithClient(client, opts.Channel, logger), nil
}

// NewRedisPublisherWithClient wraps an existing client
// NewRedisPublisherWithClient 包装已有的客户端
func NewRedisPublisherWithClient(client redis.UniversalClient, channel string, logger *zap.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{client: client, channel: channel, logger: logger}
}

// Channel returns the channel events are published on
func (p *RedisPublisher) Channel() string {
	return p.channel
}

// Publish implements Publisher
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	receivers, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("failed to publish lifecycle event / 发布生命周期事件失败: %w", err)
	}
	p.logger.Debug("lifecycle event published / 生命周期事件已发布",
		zap.String("channel", p.channel),
		zap.Int64("receivers", receivers),
	)
	return nil
}

// Ping checks the connection
// Ping 检查连接
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the underlying client
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
