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

// Package config provides configuration management for the data node.
// config 包提供数据节点的配置管理功能。
//
// Configuration loading priority (highest to lowest):
// 配置加载优先级（从高到低）：
// 1. Command line arguments / 命令行参数
// 2. Environment variables (DATANODE_*) / 环境变量（DATANODE_*）
// 3. Configuration file / 配置文件
// 4. Default values / 默认值
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opendatanode/datanode/internal/datanode"
	"github.com/opendatanode/datanode/internal/process"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Default configuration values
// 默认配置值
const (
	DefaultConfigPath        = "/etc/datanode/config.yaml"
	DefaultEnvPrefix         = "DATANODE"
	DefaultLogLevel          = "info"
	DefaultLogFile           = "/var/log/datanode/datanode.log"
	DefaultLogMaxSize        = 100 // MB
	DefaultLogMaxBackups     = 3
	DefaultLogMaxAge         = 7 // days
	DefaultOpenSearchBinDir  = "/usr/share/opensearch/bin"
	DefaultOpenSearchBinary  = "opensearch"
	DefaultHTTPPort          = 9200
	DefaultTransportPort     = 9300
	DefaultDatanodeHTTPPort  = 8999
	DefaultMaxFailures       = 3
	DefaultHealthInterval    = 10 * time.Second
	DefaultHealthTimeout     = 5 * time.Second
	DefaultRemovalInterval   = 10 * time.Second
	DefaultRequestTimeout    = 30 * time.Second
	DefaultStopGracePeriod   = 30 * time.Second
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultActiveWindow      = time.Minute
)

// ErrInvalidConfig is wrapped by every validation error
// ErrInvalidConfig 被所有校验错误包装
var ErrInvalidConfig = errors.New("invalid configuration / 无效的配置")

// Config represents the data node configuration
// Config 表示数据节点配置
type Config struct {
	Node       NodeConfig       `mapstructure:"node" yaml:"node"`
	OpenSearch OpenSearchConfig `mapstructure:"opensearch" yaml:"opensearch"`
	Watchdog   WatchdogConfig   `mapstructure:"watchdog" yaml:"watchdog"`
	Health     HealthConfig     `mapstructure:"health" yaml:"health"`
	Removal    RemovalConfig    `mapstructure:"removal" yaml:"removal"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Registry   RegistryConfig   `mapstructure:"registry" yaml:"registry"`
	Events     EventsConfig     `mapstructure:"events" yaml:"events"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry" yaml:"telemetry"`
	API        APIConfig        `mapstructure:"api" yaml:"api"`
}

// NodeConfig identifies this data node
// NodeConfig 标识本数据节点
type NodeConfig struct {
	// ID is the unique identifier of this node (auto-generated if empty)
	// ID 是本节点的唯一标识符（为空时自动生成）
	ID       string `mapstructure:"id" yaml:"id"`
	Name     string `mapstructure:"name" yaml:"name"`
	Hostname string `mapstructure:"hostname" yaml:"hostname"`
	// DatanodeHTTPPort is the port of the operator API
	// DatanodeHTTPPort 是运维 API 的端口
	DatanodeHTTPPort int `mapstructure:"datanode_http_port" yaml:"datanode_http_port"`
}

// OpenSearchConfig describes the supervised search engine
// OpenSearchConfig 描述受监管的搜索引擎
type OpenSearchConfig struct {
	BinDir     string `mapstructure:"bin_dir" yaml:"bin_dir"`
	Executable string `mapstructure:"executable" yaml:"executable"`
	WorkingDir string `mapstructure:"working_dir" yaml:"working_dir"`
	ConfigDir  string `mapstructure:"config_dir" yaml:"config_dir"`

	HTTPPort      int    `mapstructure:"http_port" yaml:"http_port"`
	TransportPort int    `mapstructure:"transport_port" yaml:"transport_port"`
	Scheme        string `mapstructure:"scheme" yaml:"scheme"`

	// Settings is an ordered list of key=value entries rendered as -E flags
	// Settings 是按顺序渲染为 -E 参数的 key=value 列表
	Settings []string `mapstructure:"settings" yaml:"settings"`
	// Env is a list of KEY=VALUE overrides; a list keeps the keys case sensitive
	// Env 是 KEY=VALUE 形式的覆盖列表，使用列表以保持键的大小写
	Env            []string `mapstructure:"env" yaml:"env"`
	ConflictingEnv []string `mapstructure:"conflicting_env" yaml:"conflicting_env"`

	LogsBufferSize  int           `mapstructure:"logs_buffer_size" yaml:"logs_buffer_size"`
	StartTimeout    time.Duration `mapstructure:"start_timeout" yaml:"start_timeout"`
	AdminTimeout    time.Duration `mapstructure:"admin_timeout" yaml:"admin_timeout"`
	StopGracePeriod time.Duration `mapstructure:"stop_grace_period" yaml:"stop_grace_period"`
}

// WatchdogConfig contains the automatic restart settings
// WatchdogConfig 包含自动重启设置
type WatchdogConfig struct {
	Enabled     bool `mapstructure:"enabled" yaml:"enabled"`
	MaxFailures int  `mapstructure:"max_failures" yaml:"max_failures"`
}

// HealthConfig contains the health monitor settings
type HealthConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// RemovalConfig contains the node removal settings
type RemovalConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// LogConfig contains logging settings
// LogConfig 包含日志设置
type LogConfig struct {
	// Level is the log level (debug, info, warn, error)
	// Level 是日志级别（debug, info, warn, error）
	Level string `mapstructure:"level" yaml:"level"`

	// File is the log file path, empty disables file output
	// File 是日志文件路径，为空时不输出到文件
	File string `mapstructure:"file" yaml:"file"`

	// MaxSize is the maximum size of log file in MB before rotation
	// MaxSize 是日志文件轮转前的最大大小（MB）
	MaxSize int `mapstructure:"max_size" yaml:"max_size"`

	// MaxBackups is the maximum number of old log files to retain
	// MaxBackups 是保留的旧日志文件的最大数量
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`

	// MaxAge is the maximum number of days to retain old log files
	// MaxAge 是保留旧日志文件的最大天数
	MaxAge int `mapstructure:"max_age" yaml:"max_age"`

	Compress bool `mapstructure:"compress" yaml:"compress"`
	Console  bool `mapstructure:"console" yaml:"console"`
}

// RegistryConfig contains the node registry database settings
// RegistryConfig 包含节点注册表数据库设置
type RegistryConfig struct {
	Enabled           bool          `mapstructure:"enabled" yaml:"enabled"`
	Type              string        `mapstructure:"type" yaml:"type"`
	SQLitePath        string        `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	DSN               string        `mapstructure:"dsn" yaml:"dsn"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	ActiveWindow      time.Duration `mapstructure:"active_window" yaml:"active_window"`
}

// EventsConfig contains the lifecycle event publishing settings
type EventsConfig struct {
	Redis RedisConfig `mapstructure:"redis" yaml:"redis"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	PoolSize int    `mapstructure:"pool_size" yaml:"pool_size"`
	Channel  string `mapstructure:"channel" yaml:"channel"`
}

// MetricsConfig contains the Prometheus settings
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// TelemetryConfig contains the OpenTelemetry settings
// TelemetryConfig 包含 OpenTelemetry 设置
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure    bool   `mapstructure:"insecure" yaml:"insecure"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
}

// APIConfig contains the operator API settings
type APIConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen     string `mapstructure:"listen" yaml:"listen"`
	Production bool   `mapstructure:"production" yaml:"production"`
}

// Load loads configuration from file and environment variables
// Load 从文件和环境变量加载配置
func Load(configPath string) (*Config, error) {
	return LoadWithPriority(configPath, nil)
}

// LoadWithPriority loads configuration with explicit priority handling
// LoadWithPriority 使用显式优先级处理加载配置
// Priority: cmdArgs > envVars > configFile > defaults
// 优先级：命令行参数 > 环境变量 > 配置文件 > 默认值
func LoadWithPriority(configPath string, cmdArgs map[string]any) (*Config, error) {
	v := viper.New()

	// Set default values / 设置默认值
	setDefaults(v)

	// Set config file path / 设置配置文件路径
	if configPath == "" {
		configPath = os.Getenv(DefaultEnvPrefix + "_CONFIG_PATH")
	}
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	v.SetConfigFile(configPath)

	// Enable environment variable override / 启用环境变量覆盖
	v.SetEnvPrefix(DefaultEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file / 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			// A missing file falls back to defaults / 文件不存在时使用默认值
			if _, statErr := os.Stat(v.ConfigFileUsed()); statErr == nil {
				return nil, fmt.Errorf("failed to read config file / 读取配置文件失败: %w", err)
			}
		}
	}

	// Apply command line arguments (highest priority)
	// 应用命令行参数（最高优先级）
	for key, value := range cmdArgs {
		v.Set(key, value)
	}

	return unmarshal(v)
}

// LoadFromYAML loads configuration from YAML bytes
// LoadFromYAML 从 YAML 字节加载配置
func LoadFromYAML(yamlData []byte) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadConfig(strings.NewReader(string(yamlData))); err != nil {
		return nil, fmt.Errorf("failed to parse YAML / 解析 YAML 失败: %w", err)
	}
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config / 解析配置失败: %w", err)
	}
	cfg.applyIdentityDefaults()
	return &cfg, nil
}

// applyIdentityDefaults fills the node id, name and hostname when empty
// applyIdentityDefaults 在节点 ID、名称和主机名为空时填充默认值
func (c *Config) applyIdentityDefaults() {
	if c.Node.ID == "" {
		c.Node.ID = uuid.New().String()
	}
	if c.Node.Hostname == "" {
		if h, err := os.Hostname(); err == nil {
			c.Node.Hostname = h
		}
	}
	if c.Node.Name == "" {
		c.Node.Name = c.Node.Hostname
	}
}

// setDefaults sets default configuration values
// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// Node defaults / 节点默认值
	v.SetDefault("node.id", "")
	v.SetDefault("node.name", "")
	v.SetDefault("node.hostname", "")
	v.SetDefault("node.datanode_http_port", DefaultDatanodeHTTPPort)

	// OpenSearch defaults / OpenSearch 默认值
	v.SetDefault("opensearch.bin_dir", DefaultOpenSearchBinDir)
	v.SetDefault("opensearch.executable", "")
	v.SetDefault("opensearch.working_dir", "")
	v.SetDefault("opensearch.config_dir", "")
	v.SetDefault("opensearch.http_port", DefaultHTTPPort)
	v.SetDefault("opensearch.transport_port", DefaultTransportPort)
	v.SetDefault("opensearch.scheme", datanode.DefaultScheme)
	v.SetDefault("opensearch.settings", []string{})
	v.SetDefault("opensearch.env", []string{})
	v.SetDefault("opensearch.conflicting_env", process.DefaultConflictingEnv)
	v.SetDefault("opensearch.logs_buffer_size", process.DefaultLogBufferSize)
	v.SetDefault("opensearch.start_timeout", datanode.DefaultStartTimeout)
	v.SetDefault("opensearch.admin_timeout", datanode.DefaultAdminTimeout)
	v.SetDefault("opensearch.stop_grace_period", DefaultStopGracePeriod)

	// Supervision defaults / 监管默认值
	v.SetDefault("watchdog.enabled", true)
	v.SetDefault("watchdog.max_failures", DefaultMaxFailures)
	v.SetDefault("health.interval", DefaultHealthInterval)
	v.SetDefault("health.timeout", DefaultHealthTimeout)
	v.SetDefault("removal.poll_interval", DefaultRemovalInterval)
	v.SetDefault("removal.request_timeout", DefaultRequestTimeout)

	// Log defaults / 日志默认值
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.file", DefaultLogFile)
	v.SetDefault("log.max_size", DefaultLogMaxSize)
	v.SetDefault("log.max_backups", DefaultLogMaxBackups)
	v.SetDefault("log.max_age", DefaultLogMaxAge)
	v.SetDefault("log.compress", false)
	v.SetDefault("log.console", true)

	// Registry defaults / 注册表默认值
	v.SetDefault("registry.enabled", false)
	v.SetDefault("registry.type", "sqlite")
	v.SetDefault("registry.sqlite_path", "./data/datanode.db")
	v.SetDefault("registry.dsn", "")
	v.SetDefault("registry.log_level", "silent")
	v.SetDefault("registry.heartbeat_interval", DefaultHeartbeatInterval)
	v.SetDefault("registry.active_window", DefaultActiveWindow)

	// Events defaults / 事件默认值
	v.SetDefault("events.redis.enabled", false)
	v.SetDefault("events.redis.addr", "localhost:6379")
	v.SetDefault("events.redis.db", 0)
	v.SetDefault("events.redis.pool_size", 10)
	v.SetDefault("events.redis.channel", "datanode:lifecycle")

	// Observability defaults / 可观测性默认值
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "datanode")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.service_name", "datanode")

	// API defaults / API 默认值
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.listen", fmt.Sprintf(":%d", DefaultDatanodeHTTPPort))
	v.SetDefault("api.production", true)
}

// Validate validates the configuration
// Validate 验证配置
func (c *Config) Validate() error {
	if c.Node.Name == "" {
		return fmt.Errorf("%w: node.name is required", ErrInvalidConfig)
	}
	if c.executable() == "" {
		return fmt.Errorf("%w: opensearch.executable or opensearch.bin_dir is required", ErrInvalidConfig)
	}
	for name, port := range map[string]int{
		"opensearch.http_port":      c.OpenSearch.HTTPPort,
		"opensearch.transport_port": c.OpenSearch.TransportPort,
		"node.datanode_http_port":   c.Node.DatanodeHTTPPort,
	} {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("%w: %s %d out of range", ErrInvalidConfig, name, port)
		}
	}
	if s := c.OpenSearch.Scheme; s != "" && s != "http" && s != "https" {
		return fmt.Errorf("%w: opensearch.scheme must be http or https", ErrInvalidConfig)
	}
	if _, err := process.ParseSettings(c.OpenSearch.Settings); err != nil {
		return fmt.Errorf("%w: opensearch.settings: %v", ErrInvalidConfig, err)
	}
	if _, err := parseEnv(c.OpenSearch.Env); err != nil {
		return fmt.Errorf("%w: opensearch.env: %v", ErrInvalidConfig, err)
	}
	if c.Watchdog.MaxFailures < 0 {
		return fmt.Errorf("%w: watchdog.max_failures must not be negative", ErrInvalidConfig)
	}
	if c.Health.Interval < 100*time.Millisecond {
		return fmt.Errorf("%w: health.interval must be at least 100ms", ErrInvalidConfig)
	}
	if c.Removal.PollInterval < 100*time.Millisecond {
		return fmt.Errorf("%w: removal.poll_interval must be at least 100ms", ErrInvalidConfig)
	}

	// Validate log level / 验证日志级别
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("%w: invalid log level: %s (must be debug, info, warn, or error)", ErrInvalidConfig, c.Log.Level)
	}

	if c.Registry.Enabled {
		switch c.Registry.Type {
		case "sqlite", "":
		case "mysql", "postgres":
			if c.Registry.DSN == "" {
				return fmt.Errorf("%w: registry.dsn is required for %s", ErrInvalidConfig, c.Registry.Type)
			}
		default:
			return fmt.Errorf("%w: unsupported registry.type %q", ErrInvalidConfig, c.Registry.Type)
		}
	}
	if c.Events.Redis.Enabled && c.Events.Redis.Addr == "" {
		return fmt.Errorf("%w: events.redis.addr is required when redis is enabled", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) executable() string {
	if c.OpenSearch.Executable != "" {
		return c.OpenSearch.Executable
	}
	if c.OpenSearch.BinDir == "" {
		return ""
	}
	return filepath.Join(c.OpenSearch.BinDir, DefaultOpenSearchBinary)
}

// ProcessConfig builds the immutable process configuration.
// The node name and ports come first so user settings can override them.
// ProcessConfig 构建不可变的进程配置，节点名称和端口在前，用户配置可以覆盖它们。
func (c *Config) ProcessConfig() (datanode.ProcessConfig, error) {
	if err := c.Validate(); err != nil {
		return datanode.ProcessConfig{}, err
	}
	user, _ := process.ParseSettings(c.OpenSearch.Settings)
	env, _ := parseEnv(c.OpenSearch.Env)

	settings := []process.Setting{
		{Key: "node.name", Value: c.Node.Name},
		{Key: "http.port", Value: fmt.Sprint(c.OpenSearch.HTTPPort)},
		{Key: "transport.port", Value: fmt.Sprint(c.OpenSearch.TransportPort)},
	}
	if c.Registry.Enabled && c.OpenSearch.ConfigDir != "" {
		settings = append(settings, process.Setting{Key: "discovery.seed_providers", Value: "file"})
	}
	settings = append(settings, user...)

	return datanode.ProcessConfig{
		NodeID:           c.Node.ID,
		NodeName:         c.Node.Name,
		Hostname:         c.Node.Hostname,
		Executable:       c.executable(),
		WorkingDir:       c.OpenSearch.WorkingDir,
		ConfigDir:        c.OpenSearch.ConfigDir,
		Settings:         settings,
		Env:              env,
		ConflictingEnv:   slices.Clone(c.OpenSearch.ConflictingEnv),
		LogsBufferSize:   c.OpenSearch.LogsBufferSize,
		Scheme:           c.OpenSearch.Scheme,
		HTTPPort:         c.OpenSearch.HTTPPort,
		TransportPort:    c.OpenSearch.TransportPort,
		DatanodeHTTPPort: c.Node.DatanodeHTTPPort,
		StartTimeout:     c.OpenSearch.StartTimeout,
		AdminTimeout:     c.OpenSearch.AdminTimeout,
	}, nil
}

// parseEnv parses KEY=VALUE entries
func parseEnv(entries []string) (map[string]string, error) {
	env := make(map[string]string, len(entries))
	for _, e := range entries {
		k, v, ok := strings.Cut(e, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("expected KEY=VALUE, got %q", e)
		}
		env[strings.TrimSpace(k)] = v
	}
	return env, nil
}

// String returns a string representation of the config (for debugging)
// String 返回配置的字符串表示（用于调试）
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Node.ID: %s, Node.Name: %s, OpenSearch.Executable: %s, Watchdog.MaxFailures: %d, Log.Level: %s}",
		c.Node.ID,
		c.Node.Name,
		c.executable(),
		c.Watchdog.MaxFailures,
		c.Log.Level,
	)
}

// ToYAML serializes the configuration to YAML format
// ToYAML 将配置序列化为 YAML 格式
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Equal compares two configs for equality. Nil and empty lists are equal.
// Equal 比较两个配置是否相等，nil 与空列表视为相等。
func (c *Config) Equal(other *Config) bool {
	if c == nil || other == nil {
		return c == other
	}
	a, b := *c, *other
	if !slices.Equal(a.OpenSearch.Settings, b.OpenSearch.Settings) ||
		!slices.Equal(a.OpenSearch.Env, b.OpenSearch.Env) ||
		!slices.Equal(a.OpenSearch.ConflictingEnv, b.OpenSearch.ConflictingEnv) {
		return false
	}
	a.OpenSearch.Settings, b.OpenSearch.Settings = nil, nil
	a.OpenSearch.Env, b.OpenSearch.Env = nil, nil
	a.OpenSearch.ConflictingEnv, b.OpenSearch.ConflictingEnv = nil, nil
	return reflect.DeepEqual(a, b)
}
