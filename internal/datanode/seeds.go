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

package datanode

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// UnicastHostsFile is the seed hosts file read by the search engine's file based discovery
// UnicastHostsFile 是搜索引擎基于文件的发现机制读取的种子主机文件
const UnicastHostsFile = "unicast_hosts.txt"

// SeedSource lists the cluster addresses of the active data nodes
// SeedSource 列出活跃数据节点的集群地址
type SeedSource interface {
	ClusterAddresses(ctx context.Context) ([]string, error)
}

// WriteSeedHosts writes the addresses one per line, sorted and without duplicates
// WriteSeedHosts 按行写入地址，排序并去重
func WriteSeedHosts(path string, addresses []string) error {
	seen := make(map[string]struct{}, len(addresses))
	lines := make([]string, 0, len(addresses))
	for _, a := range addresses {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		lines = append(lines, a)
	}
	sort.Strings(lines)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
