/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// Kind names a storage backend.
type Kind string

const (
	KindSQLite   Kind = "sqlite"
	KindPostgres Kind = "postgres"
	KindMySQL    Kind = "mysql"
)

// SupportedKinds lists the backends a manager can be built for.
var SupportedKinds = []Kind{KindSQLite, KindPostgres, KindMySQL}

// ParseKind normalizes backend aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sqlite", "sqlite3", "":
		return KindSQLite, nil
	case "postgres", "postgresql", "pg":
		return KindPostgres, nil
	case "mysql", "mariadb":
		return KindMySQL, nil
	}
	return "", fmt.Errorf("%w: %q, supported: %v", ErrUnsupportedBackend, s, SupportedKinds)
}

// UnitOfWork runs against one acquired connection.
type UnitOfWork func(ctx context.Context, conn bun.Conn) error

// Manager owns the connection pool of one backend and location.
type Manager interface {
	// Initialize opens the store and bootstraps the schema once.
	Initialize(ctx context.Context) error
	// Acquire hands fn a dedicated connection and releases it on every exit path.
	Acquire(ctx context.Context, fn UnitOfWork) error
	ExecuteQuery(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error)
	// ExecuteMany runs query once per argument set inside one transaction.
	ExecuteMany(ctx context.Context, query string, argSets [][]interface{}) error
	// Backup copies the store to path, or to "<location>.backup" when path is empty.
	Backup(ctx context.Context, path string) bool
	HealthCheck(ctx context.Context) bool
	HealthStatus(ctx context.Context) *HealthStatus
	Stats() *DBStats
	Transactions(conn bun.Conn) *TxManager
	Kind() Kind
	Location() string
	DB() *bun.DB
	Logger() Logger
	Close() error
}

// HealthStatus holds the result of a health check against the database.
type HealthStatus struct {
	Healthy       bool          `json:"healthy"`
	Connected     bool          `json:"connected"`
	ResponseTime  time.Duration `json:"response_time"`
	ActiveConns   int           `json:"active_conns"`
	IdleConns     int           `json:"idle_conns"`
	MaxOpenConns  int           `json:"max_open_conns"`
	LastError     string        `json:"last_error,omitempty"`
	LastCheckTime time.Time     `json:"last_check_time"`
}

// DBStats mirrors database/sql stats returned by the manager.
type DBStats struct {
	MaxOpenConns      int           `json:"max_open_conns"`
	OpenConns         int           `json:"open_conns"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed"`
	MaxIdleTimeClosed int64         `json:"max_idle_time_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
}

// ConnectionConfig describes how to reach a store and size its pool.
// Location is a file path for SQLite and a DSN for the server backends; when
// it is empty for a server backend the DSN is assembled from Host, Port and
// the credential fields.
type ConnectionConfig struct {
	Type                Kind          `yaml:"type" json:"type"`
	Location            string        `yaml:"location" json:"location"`
	Host                string        `yaml:"host" json:"host"`
	Port                int           `yaml:"port" json:"port"`
	Username            string        `yaml:"username" json:"username"`
	Password            string        `yaml:"password" json:"-"`
	DBName              string        `yaml:"dbname" json:"dbname"`
	SSLMode             string        `yaml:"sslmode" json:"sslmode"`
	PoolSize            int           `yaml:"pool_size" json:"pool_size"`
	MaxIdleConns        int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime     time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime     time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
	ConnectTimeout      time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	BusyTimeout         time.Duration `yaml:"busy_timeout" json:"busy_timeout"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
	EnableQueryLog      bool          `yaml:"enable_query_log" json:"enable_query_log"`
	SlowQueryTime       time.Duration `yaml:"slow_query_time" json:"slow_query_time"`
}

// LogConfig is the logging threshold, output format and destination. Output
// is "stdout" (default), "stderr", "discard" or a file path.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// Config aggregates connection and logging settings.
type Config struct {
	Connection ConnectionConfig `yaml:"connection" json:"connection"`
	Log        LogConfig        `yaml:"log" json:"log"`
}

const (
	DefaultSQLiteLocation = "data/shopping_cart.db"
	DefaultPoolSize       = 5
)

// DefaultConnectionConfig returns a SQLite connection config with sensible defaults.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Type:            KindSQLite,
		Location:        DefaultSQLiteLocation,
		PoolSize:        DefaultPoolSize,
		MaxIdleConns:    DefaultPoolSize,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute * 30,
		ConnectTimeout:  time.Second * 10,
		BusyTimeout:     time.Second * 5,
		SlowQueryTime:   time.Second * 2,
	}
}

// DefaultConfig returns the configuration used when no file is supplied.
func DefaultConfig() *Config {
	return &Config{
		Connection: *DefaultConnectionConfig(),
		Log:        LogConfig{Level: "info", Format: "text", Output: "stdout"},
	}
}
