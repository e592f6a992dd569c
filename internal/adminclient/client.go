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

// Package adminclient talks to the administrative API of the search engine.
// adminclient 包负责与搜索引擎的管理 API 通信。
package adminclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds every request made by the HTTP client
// DefaultTimeout 限制 HTTP 客户端每个请求的时长
const DefaultTimeout = 10 * time.Second

// ErrInvalidBaseURL indicates the base URL cannot be parsed
// ErrInvalidBaseURL 表示基础 URL 无法解析
var ErrInvalidBaseURL = errors.New("invalid admin base url / 无效的管理 API 地址")

// ClusterHealth is the subset of cluster health used by the data node
// ClusterHealth 是数据节点使用的集群健康信息子集
type ClusterHealth struct {
	Status           string `json:"status"`
	RelocatingShards int    `json:"relocating_shards"`
}

// Client is the administrative capability of a running search engine
// Client 是运行中搜索引擎的管理能力
type Client interface {
	// Health returns the cluster health / 返回集群健康状态
	Health(ctx context.Context) (ClusterHealth, error)
	// GetSetting returns a cluster setting and whether it is set / 返回集群设置及其是否存在
	GetSetting(ctx context.Context, name string) (string, bool, error)
	// PutSetting writes a transient cluster setting, an empty value clears it / 写入临时集群设置，空值表示清除
	PutSetting(ctx context.Context, name, value string) (bool, error)
	// Close releases pooled connections / 释放连接池
	Close() error
}

// Error is returned when an administrative call fails
// Error 在管理调用失败时返回
type Error struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("admin %s failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("admin %s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPClient implements Client over the REST API
// HTTPClient 基于 REST API 实现 Client
type HTTPClient struct {
	baseURL    *url.URL
	httpClient *http.Client
	transport  *http.Transport
}

// NewHTTPClient creates a client for the given base URL, e.g. http://localhost:9200
// NewHTTPClient 为给定基础 URL 创建客户端，例如 http://localhost:9200
func NewHTTPClient(baseURL string, timeout time.Duration) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &HTTPClient{
		baseURL:    u,
		transport:  transport,
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
	}, nil
}

// BaseURL returns the base URL of the client
func (c *HTTPClient) BaseURL() string {
	return c.baseURL.String()
}

// Health implements Client
func (c *HTTPClient) Health(ctx context.Context) (ClusterHealth, error) {
	var health ClusterHealth
	if err := c.do(ctx, "health", http.MethodGet, "/_cluster/health", nil, nil, &health); err != nil {
		return ClusterHealth{}, err
	}
	return health, nil
}

type settingsResponse struct {
	Persistent map[string]any `json:"persistent"`
	Transient  map[string]any `json:"transient"`
}

// GetSetting implements Client. Transient values take precedence over persistent ones.
// GetSetting 实现 Client，临时设置优先于持久设置。
func (c *HTTPClient) GetSetting(ctx context.Context, name string) (string, bool, error) {
	query := url.Values{"flat_settings": []string{"true"}}
	var resp settingsResponse
	if err := c.do(ctx, "get setting", http.MethodGet, "/_cluster/settings", query, nil, &resp); err != nil {
		return "", false, err
	}
	for _, scope := range []map[string]any{resp.Transient, resp.Persistent} {
		if v, ok := scope[name]; ok && v != nil {
			return fmt.Sprint(v), true, nil
		}
	}
	return "", false, nil
}

// PutSetting implements Client
func (c *HTTPClient) PutSetting(ctx context.Context, name, value string) (bool, error) {
	var v any
	if value != "" {
		v = value
	}
	body := map[string]map[string]any{"transient": {name: v}}

	var resp struct {
		Acknowledged bool `json:"acknowledged"`
	}
	if err := c.do(ctx, "put setting", http.MethodPut, "/_cluster/settings", nil, body, &resp); err != nil {
		return false, err
	}
	return resp.Acknowledged, nil
}

// Close implements Client
func (c *HTTPClient) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, query url.Values, in, out any) error {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &Error{Op: op, Err: err}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Op: op, StatusCode: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(data)))}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return &Error{Op: op, StatusCode: resp.StatusCode, Err: err}
		}
	}
	return nil
}
