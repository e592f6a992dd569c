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

package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultActiveWindow is how recent a heartbeat must be for a node to count as active
// DefaultActiveWindow 是节点被视为活跃所需的最近心跳时间范围
const DefaultActiveWindow = time.Minute

// ErrNoLeader indicates that no node is active
// ErrNoLeader 表示没有活跃节点
var ErrNoLeader = errors.New("no active data node / 没有活跃的数据节点")

// DataNode is the registry row of a data node
// DataNode 是数据节点在注册表中的记录
type DataNode struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	NodeID         string    `gorm:"size:64;uniqueIndex;not null" json:"node_id"`
	NodeName       string    `gorm:"size:255;not null" json:"node_name"`
	Hostname       string    `gorm:"size:255" json:"hostname"`
	ClusterAddress string    `gorm:"size:255" json:"cluster_address"`
	LastSeen       time.Time `gorm:"index" json:"last_seen"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName returns the table name
func (DataNode) TableName() string {
	return "data_nodes"
}

// Registry stores data node registrations
// Registry 存储数据节点注册信息
type Registry struct {
	db     *gorm.DB
	window time.Duration
	now    func() time.Time
}

// New creates a registry on db and migrates its table
// New 在 db 上创建注册表并迁移表结构
func New(db *gorm.DB, activeWindow time.Duration) (*Registry, error) {
	if activeWindow <= 0 {
		activeWindow = DefaultActiveWindow
	}
	if err := db.AutoMigrate(&DataNode{}); err != nil {
		return nil, fmt.Errorf("failed to migrate registry / 迁移注册表失败: %w", err)
	}
	return &Registry{db: db, window: activeWindow, now: time.Now}, nil
}

// Heartbeat registers the node or refreshes its registration
// Heartbeat 注册节点或刷新其注册信息
func (r *Registry) Heartbeat(ctx context.Context, node DataNode) error {
	if node.NodeID == "" {
		return errors.New("node id is required / 需要节点 ID")
	}
	node.ID = 0
	node.LastSeen = r.now().UTC()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "node_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"node_name", "hostname", "cluster_address", "last_seen", "updated_at"}),
	}).Create(&node).Error
}

// ActiveNodes returns the nodes seen within the active window, oldest registration first
// ActiveNodes 返回活跃时间窗口内的节点，最早注册的在前
func (r *Registry) ActiveNodes(ctx context.Context) ([]DataNode, error) {
	var nodes []DataNode
	err := r.db.WithContext(ctx).
		Where("last_seen >= ?", r.now().UTC().Add(-r.window)).
		Order("id ASC").
		Find(&nodes).Error
	return nodes, err
}

// ClusterAddresses returns the sorted, distinct cluster addresses of the active nodes
// ClusterAddresses 返回活跃节点去重并排序后的集群地址
func (r *Registry) ClusterAddresses(ctx context.Context) ([]string, error) {
	nodes, err := r.ActiveNodes(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(nodes))
	addresses := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if n.ClusterAddress == "" {
			continue
		}
		if _, ok := seen[n.ClusterAddress]; ok {
			continue
		}
		seen[n.ClusterAddress] = struct{}{}
		addresses = append(addresses, n.ClusterAddress)
	}
	sort.Strings(addresses)
	return addresses, nil
}

// Leader returns the oldest active registration
// Leader 返回最早注册的活跃节点
func (r *Registry) Leader(ctx context.Context) (DataNode, error) {
	var node DataNode
	err := r.db.WithContext(ctx).
		Where("last_seen >= ?", r.now().UTC().Add(-r.window)).
		Order("id ASC").
		First(&node).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DataNode{}, ErrNoLeader
	}
	return node, err
}

// IsLeader reports whether nodeID is the leader
// IsLeader 报告 nodeID 是否为主节点
func (r *Registry) IsLeader(ctx context.Context, nodeID string) (bool, error) {
	leader, err := r.Leader(ctx)
	if errors.Is(err, ErrNoLeader) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return leader.NodeID == nodeID, nil
}

// Remove deletes the registration of nodeID
// Remove 删除 nodeID 的注册信息
func (r *Registry) Remove(ctx context.Context, nodeID string) error {
	return r.db.WithContext(ctx).Where("node_id = ?", nodeID).Delete(&DataNode{}).Error
}
