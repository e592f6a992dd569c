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

// Package registry keeps track of the data nodes of a cluster in a shared database.
// registry 包在共享数据库中记录集群的数据节点。
//
// Every node upserts its own row on a heartbeat. The active rows provide the
// seed hosts list and the oldest active registration is the leader.
// 每个节点通过心跳写入自己的记录。活跃记录提供种子主机列表，最早注册的活跃节点为主节点。
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// Database types / 数据库类型常量
const (
	DatabaseTypeSQLite   = "sqlite"
	DatabaseTypeMySQL    = "mysql"
	DatabaseTypePostgres = "postgres"
)

// DefaultSQLitePath is used when no sqlite path is configured
const DefaultSQLitePath = "./data/datanode.db"

// Options configures the database connection
// Options 配置数据库连接
type Options struct {
	Type            string
	SQLitePath      string
	DSN             string
	LogLevel        string
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime time.Duration
	// Tracing installs the OpenTelemetry gorm plugin
	Tracing bool
}

// OpenDatabase opens a gorm connection for the configured database type
// OpenDatabase 根据配置的数据库类型打开 gorm 连接
func OpenDatabase(opts Options, log *zap.Logger) (*gorm.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}

	dbType := opts.Type
	if dbType == "" {
		dbType = DatabaseTypeSQLite
	}

	var dialector gorm.Dialector
	switch dbType {
	case DatabaseTypeSQLite:
		path := opts.SQLitePath
		if path == "" {
			path = DefaultSQLitePath
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory / 创建 SQLite 目录失败: %w", err)
		}
		dialector = sqlite.Open(path)
	case DatabaseTypeMySQL:
		if opts.DSN == "" {
			return nil, fmt.Errorf("mysql dsn is required / 需要 MySQL DSN")
		}
		dialector = mysql.Open(opts.DSN)
	case DatabaseTypePostgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres dsn is required / 需要 PostgreSQL DSN")
		}
		dialector = postgres.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type / 不支持的数据库类型: %s (sqlite, mysql, postgres)", dbType)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger(opts.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect %s database / 连接 %s 数据库失败: %w", dbType, dbType, err)
	}

	if opts.Tracing {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			log.Warn("failed to install tracing plugin / 初始化追踪插件失败", zap.Error(err))
		}
	}

	if dbType != DatabaseTypeSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB / 获取底层数据库连接失败: %w", err)
		}
		if opts.MaxIdleConn > 0 {
			sqlDB.SetMaxIdleConns(opts.MaxIdleConn)
		}
		if opts.MaxOpenConn > 0 {
			sqlDB.SetMaxOpenConns(opts.MaxOpenConn)
		}
		if opts.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
		}
	}

	log.Info("connected to registry database / 已连接注册表数据库", zap.String("type", dbType))
	return db, nil
}

// gormLogger maps a level name to a gorm logger
func gormLogger(level string) logger.Interface {
	var logLevel logger.LogLevel
	switch level {
	case "silent", "":
		logLevel = logger.Silent
	case "error":
		logLevel = logger.Error
	case "warn":
		logLevel = logger.Warn
	default:
		logLevel = logger.Info
	}
	return logger.Default.LogMode(logLevel)
}
