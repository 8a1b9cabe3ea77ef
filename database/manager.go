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
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/tomoncle/cartstore/utils"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

const memoryLocation = ":memory:"

type defaultDatabaseManager struct {
	config *ConnectionConfig
	logger Logger

	mu              sync.RWMutex
	db              *bun.DB
	sqlDB           *sql.DB
	closed          bool
	bootstraps      int
	stopHealthCheck chan struct{}
	healthCheckOnce sync.Once

	// txs maps the *sql.Conn of every acquired connection to its TxManager.
	txs sync.Map
}

// NewManager returns a Manager for config. Nothing is opened until Initialize.
func NewManager(config *ConnectionConfig, logger Logger) (Manager, error) {
	if config == nil {
		config = DefaultConnectionConfig()
	}
	cfg := *config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &defaultDatabaseManager{
		config:          &cfg,
		logger:          orDefault(logger),
		stopHealthCheck: make(chan struct{}),
	}, nil
}

func (dm *defaultDatabaseManager) Initialize(ctx context.Context) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.closed {
		return ErrManagerClosed
	}
	if dm.db != nil {
		return nil
	}

	sqlDB, db, err := dm.createConnection()
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	dm.configureConnectionPool(sqlDB)

	if err = dm.prepare(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	dm.db, dm.sqlDB = db, sqlDB
	dm.bootstraps++
	if dm.config.HealthCheckInterval > 0 {
		dm.startHealthCheck()
	}
	dm.logger.Info("Database initialized", "backend", dm.config.Type, "location", dm.redactedLocation(), "pool_size", dm.config.PoolSize)
	return nil
}

// prepare pings the store and runs the schema bootstrap on one connection.
func (dm *defaultDatabaseManager) prepare(ctx context.Context, db *bun.DB) error {
	pingCtx, cancel := context.WithTimeout(ctx, dm.config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("database connection test failed: %w", err)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire bootstrap connection: %w", err)
	}
	defer conn.Close()
	if err = dm.applySessionPragmas(ctx, conn); err != nil {
		return err
	}
	if err = bootstrap(ctx, conn, dm.config.Type, dm.logger); err != nil {
		return fmt.Errorf("schema bootstrap failed: %w", err)
	}
	return nil
}

func (dm *defaultDatabaseManager) createConnection() (*sql.DB, *bun.DB, error) {
	var (
		sqlDB *sql.DB
		db    *bun.DB
		err   error
	)
	switch dm.config.Type {
	case KindMySQL:
		sqlDB, db, err = dm.createMySQLConnection()
	case KindPostgres:
		sqlDB, db, err = dm.createPostgreSQLConnection()
	case KindSQLite:
		sqlDB, db, err = dm.createSQLiteConnection()
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, dm.config.Type)
	}
	if err != nil {
		return nil, nil, err
	}

	for _, hook := range dm.queryHooks() {
		db.AddQueryHook(hook)
	}
	return sqlDB, db, nil
}

// queryHooks lists the hooks installed on a new DB. The bundebug hook is only
// added when BUNDEBUG is present in the environment.
func (dm *defaultDatabaseManager) queryHooks() []bun.QueryHook {
	var hooks []bun.QueryHook
	if _, ok := os.LookupEnv("BUNDEBUG"); ok {
		hooks = append(hooks, bundebug.NewQueryHook(bundebug.FromEnv("BUNDEBUG")))
	}
	if dm.config.EnableQueryLog {
		hooks = append(hooks, NewQueryHook(true, os.Stdout))
	}
	if dm.config.SlowQueryTime > 0 {
		hooks = append(hooks, NewSlowQueryHook(dm.config.SlowQueryTime, dm.logger))
	}
	return hooks
}

func (dm *defaultDatabaseManager) createMySQLConnection() (*sql.DB, *bun.DB, error) {
	dsn := dm.config.Location
	if dsn == "" {
		if dm.config.Host == "" {
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingLocation, KindMySQL)
		}
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC&timeout=%s",
			dm.config.Username,
			dm.config.Password,
			dm.config.Host,
			dm.config.Port,
			dm.config.DBName,
			dm.config.ConnectTimeout,
		)
	}

	sqlDB, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, nil, err
	}
	return sqlDB, bun.NewDB(sqlDB, mysqldialect.New()), nil
}

func (dm *defaultDatabaseManager) createPostgreSQLConnection() (*sql.DB, *bun.DB, error) {
	dsn := dm.config.Location
	if dsn == "" {
		if dm.config.Host == "" {
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingLocation, KindPostgres)
		}
		sslMode := dm.config.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=%d",
			dm.config.Username,
			dm.config.Password,
			dm.config.Host,
			dm.config.Port,
			dm.config.DBName,
			sslMode,
			int(dm.config.ConnectTimeout.Seconds()),
		)
	}

	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, err
	}
	return sqlDB, bun.NewDB(sqlDB, pgdialect.New()), nil
}

func (dm *defaultDatabaseManager) createSQLiteConnection() (*sql.DB, *bun.DB, error) {
	location := dm.config.Location
	if location != memoryLocation && !strings.HasPrefix(location, "file:") {
		if err := os.MkdirAll(filepath.Dir(location), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open(sqliteshim.ShimName, location)
	if err != nil {
		return nil, nil, err
	}
	return sqlDB, bun.NewDB(sqlDB, sqlitedialect.New()), nil
}

func (dm *defaultDatabaseManager) configureConnectionPool(sqlDB *sql.DB) {
	if dm.config.Type == KindSQLite && dm.config.Location == memoryLocation {
		// Every connection to :memory: is a separate database.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		return
	}
	idle := dm.config.MaxIdleConns
	if idle <= 0 || idle > dm.config.PoolSize {
		idle = dm.config.PoolSize
	}
	sqlDB.SetMaxOpenConns(dm.config.PoolSize)
	sqlDB.SetMaxIdleConns(idle)
	sqlDB.SetConnMaxLifetime(dm.config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(dm.config.ConnMaxIdleTime)
}

func (dm *defaultDatabaseManager) applySessionPragmas(ctx context.Context, conn bun.Conn) error {
	for _, pragma := range sessionPragmas(dm.config.Type, dm.config.BusyTimeout) {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return nil
}

func (dm *defaultDatabaseManager) handle() (*bun.DB, error) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	if dm.closed {
		return nil, ErrManagerClosed
	}
	if dm.db == nil {
		return nil, ErrNotInitialized
	}
	return dm.db, nil
}

func (dm *defaultDatabaseManager) Acquire(ctx context.Context, fn UnitOfWork) error {
	db, err := dm.handle()
	if err != nil {
		return err
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	txm := NewTxManager(conn, dm.logger)
	dm.txs.Store(conn.Conn, txm)
	defer func() {
		dm.txs.Delete(conn.Conn)
		if txm.Active() {
			dm.logger.Warn("Rolling back transaction left open on release")
			if rollbackErr := txm.Rollback(); rollbackErr != nil {
				dm.logger.Error("Failed to rollback transaction", "error", rollbackErr)
			}
		}
		if closeErr := conn.Close(); closeErr != nil && !errors.Is(closeErr, sql.ErrConnDone) {
			dm.logger.Warn("Failed to release connection", "error", closeErr)
		}
	}()

	if err = dm.applySessionPragmas(ctx, conn); err != nil {
		return err
	}
	return fn(ctx, conn)
}

func (dm *defaultDatabaseManager) ExecuteQuery(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	rows := make([]map[string]interface{}, 0)
	err := dm.Acquire(ctx, func(ctx context.Context, conn bun.Conn) error {
		return conn.NewRaw(query, args...).Scan(ctx, &rows)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (dm *defaultDatabaseManager) ExecuteMany(ctx context.Context, query string, argSets [][]interface{}) error {
	return dm.Acquire(ctx, func(ctx context.Context, conn bun.Conn) error {
		return dm.Transactions(conn).Transaction(ctx, func(ctx context.Context, tx bun.Tx) error {
			for i, args := range argSets {
				if _, err := tx.ExecContext(ctx, query, args...); err != nil {
					return fmt.Errorf("statement %d of %d failed: %w", i+1, len(argSets), err)
				}
			}
			return nil
		})
	})
}

func (dm *defaultDatabaseManager) Backup(ctx context.Context, path string) bool {
	if dm.config.Type != KindSQLite {
		dm.logger.Warn("Backup is only supported for sqlite", "backend", dm.config.Type)
		return false
	}
	if path == "" {
		path = dm.config.Location + ".backup"
	}
	if filepath.Clean(path) == filepath.Clean(dm.config.Location) {
		dm.logger.Error("Backup destination equals the source", "path", path)
		return false
	}

	start := time.Now()
	result := make(chan error, 1)
	go func() {
		result <- dm.copyTo(ctx, path)
	}()

	select {
	case err := <-result:
		if err != nil {
			dm.logger.Error("Backup failed", "path", path, "error", err)
			return false
		}
	case <-ctx.Done():
		dm.logger.Error("Backup abandoned", "path", path, "error", ctx.Err())
		return false
	}
	dm.logger.Info("Backup completed", "path", path, "duration", utils.Elapsed(time.Since(start)))
	return true
}

// copyTo snapshots the live database into path.tmp and renames it over path
// once complete. An existing backup at path survives a failed copy; the
// temporary file is removed.
func (dm *defaultDatabaseManager) copyTo(ctx context.Context, path string) (err error) {
	if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := backupTempPath(path)
	if rmErr := os.Remove(tmp); rmErr != nil && !os.IsNotExist(rmErr) {
		return rmErr
	}
	defer func() {
		if err == nil {
			return
		}
		if rmErr := os.Remove(tmp); rmErr != nil && !os.IsNotExist(rmErr) {
			dm.logger.Warn("Failed to remove partial backup", "path", tmp, "error", rmErr)
		}
	}()

	err = dm.Acquire(ctx, func(ctx context.Context, conn bun.Conn) error {
		_, execErr := conn.ExecContext(ctx, "VACUUM INTO ?", tmp)
		return execErr
	})
	if err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func backupTempPath(path string) string { return path + ".tmp" }

func (dm *defaultDatabaseManager) HealthCheck(ctx context.Context) bool {
	err := dm.Acquire(ctx, func(ctx context.Context, conn bun.Conn) error {
		var one int
		return conn.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	})
	if err != nil {
		dm.logger.Warn("Health check failed", "error", err)
		return false
	}
	return true
}

func (dm *defaultDatabaseManager) HealthStatus(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{LastCheckTime: start}

	db, err := dm.handle()
	if err != nil {
		status.LastError = err.Error()
		return status
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	err = db.PingContext(ctxTimeout)
	status.ResponseTime = time.Since(start)
	if err != nil {
		status.LastError = err.Error()
	} else {
		status.Healthy = true
		status.Connected = true
	}

	stats := db.DB.Stats()
	status.ActiveConns = stats.InUse
	status.IdleConns = stats.Idle
	status.MaxOpenConns = stats.MaxOpenConnections
	return status
}

func (dm *defaultDatabaseManager) startHealthCheck() {
	dm.healthCheckOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(dm.config.HealthCheckInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
					status := dm.HealthStatus(ctx)
					cancel()
					if !status.Healthy {
						dm.logger.Error("Database unhealthy", "backend", dm.config.Type, "error", status.LastError)
					}
				case <-dm.stopHealthCheck:
					return
				}
			}
		}()
	})
}

func (dm *defaultDatabaseManager) Stats() *DBStats {
	dm.mu.RLock()
	sqlDB := dm.sqlDB
	dm.mu.RUnlock()

	if sqlDB == nil {
		return &DBStats{}
	}

	stats := sqlDB.Stats()
	return &DBStats{
		MaxOpenConns:      stats.MaxOpenConnections,
		OpenConns:         stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxIdleTimeClosed: stats.MaxIdleTimeClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
	}
}

// Transactions returns the TxManager bound to conn. Connections handed out by
// Acquire share one TxManager for the whole unit of work.
func (dm *defaultDatabaseManager) Transactions(conn bun.Conn) *TxManager {
	if txm, ok := dm.txs.Load(conn.Conn); ok {
		return txm.(*TxManager)
	}
	return NewTxManager(conn, dm.logger)
}

func (dm *defaultDatabaseManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.closed {
		return nil
	}
	dm.closed = true
	close(dm.stopHealthCheck)

	if dm.db == nil {
		return nil
	}
	err := dm.db.Close()
	dm.db, dm.sqlDB = nil, nil
	if err != nil {
		dm.logger.Error("Failed to close database connection", "error", err)
		return err
	}
	dm.logger.Info("Database connection closed", "backend", dm.config.Type)
	return nil
}

func (dm *defaultDatabaseManager) Kind() Kind       { return dm.config.Type }
func (dm *defaultDatabaseManager) Location() string { return dm.config.Location }
func (dm *defaultDatabaseManager) Logger() Logger   { return dm.logger }

func (dm *defaultDatabaseManager) DB() *bun.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.db
}

// redactedLocation hides credentials embedded in a DSN.
func (dm *defaultDatabaseManager) redactedLocation() string {
	loc := dm.config.Location
	if loc == "" {
		return fmt.Sprintf("%s:%d/%s", dm.config.Host, dm.config.Port, dm.config.DBName)
	}
	if at := strings.LastIndex(loc, "@"); at >= 0 {
		if scheme := strings.Index(loc, "://"); scheme >= 0 && scheme < at {
			return loc[:scheme+3] + "***" + loc[at:]
		}
		return "***" + loc[at:]
	}
	return loc
}
