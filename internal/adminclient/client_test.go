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

package adminclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const excludeSetting = "cluster.routing.allocation.exclude._name"

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewHTTPClient(srv.URL, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewHTTPClient_InvalidURL(t *testing.T) {
	_, err := NewHTTPClient("not a url", 0)
	assert.ErrorIs(t, err, ErrInvalidBaseURL)

	c, err := NewHTTPClient("http://localhost:9200/", 0)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9200", c.BaseURL())
}

func TestHTTPClient_Health(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/_cluster/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"cluster_name":"graylog","status":"green","relocating_shards":3}`))
	})

	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ClusterHealth{Status: "green", RelocatingShards: 3}, health)
}

// TestHTTPClient_HealthError 测试非 2xx 响应被转换为 Error
func TestHTTPClient_HealthError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "cluster unavailable", http.StatusServiceUnavailable)
	})

	_, err := c.Health(context.Background())
	require.Error(t, err)
	var adminErr *Error
	require.True(t, errors.As(err, &adminErr))
	assert.Equal(t, "health", adminErr.Op)
	assert.Equal(t, http.StatusServiceUnavailable, adminErr.StatusCode)
}

func TestHTTPClient_GetSetting(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/_cluster/settings", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("flat_settings"))
		_, _ = w.Write([]byte(`{
			"persistent": {"cluster.routing.allocation.enable": "all", "` + excludeSetting + `": "old"},
			"transient": {"` + excludeSetting + `": "node-1"}
		}`))
	})

	value, ok, err := c.GetSetting(context.Background(), excludeSetting)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "node-1", value)

	value, ok, err = c.GetSetting(context.Background(), "cluster.routing.allocation.enable")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "all", value)

	_, ok, err = c.GetSetting(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHTTPClient_PutSetting(t *testing.T) {
	var bodies []map[string]map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies = append(bodies, body)
		_, _ = w.Write([]byte(`{"acknowledged":true,"persistent":{},"transient":{}}`))
	})

	ack, err := c.PutSetting(context.Background(), excludeSetting, "node-1")
	require.NoError(t, err)
	assert.True(t, ack)

	ack, err = c.PutSetting(context.Background(), excludeSetting, "")
	require.NoError(t, err)
	assert.True(t, ack)

	require.Len(t, bodies, 2)
	assert.Equal(t, "node-1", bodies[0]["transient"][excludeSetting])
	value, present := bodies[1]["transient"][excludeSetting]
	assert.True(t, present)
	assert.Nil(t, value, "an empty value clears the setting")
}

func TestHTTPClient_PutSettingNotAcknowledged(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"acknowledged":false}`))
	})

	ack, err := c.PutSetting(context.Background(), excludeSetting, "node-1")
	require.NoError(t, err)
	assert.False(t, ack)
}

func TestHTTPClient_ContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Health(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
