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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tomoncle/cartstore/utils"
	"gopkg.in/yaml.v3"
)

const envPrefix = "CARTSTORE_"

// LoadConfig reads a YAML file (skipped when path is empty), applies
// CARTSTORE_* environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err = yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Connection.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides configuration values from environment variables.
func (c *Config) ApplyEnv() {
	cc := &c.Connection
	if v := os.Getenv(envPrefix + "DB_BACKEND"); v != "" {
		cc.Type = Kind(v)
	}
	cc.Location = utils.EnvDefaultString(envPrefix+"DB_LOCATION", cc.Location)
	cc.Host = utils.EnvDefaultString(envPrefix+"DB_HOST", cc.Host)
	cc.Port = utils.EnvDefaultInt(envPrefix+"DB_PORT", cc.Port)
	cc.Username = utils.EnvDefaultString(envPrefix+"DB_USERNAME", cc.Username)
	cc.Password = utils.EnvDefaultString(envPrefix+"DB_PASSWORD", cc.Password)
	cc.DBName = utils.EnvDefaultString(envPrefix+"DB_NAME", cc.DBName)
	cc.SSLMode = utils.EnvDefaultString(envPrefix+"DB_SSLMODE", cc.SSLMode)
	cc.PoolSize = utils.EnvDefaultInt(envPrefix+"POOL_SIZE", cc.PoolSize)
	cc.EnableQueryLog = utils.EnvDefaultBool(envPrefix+"QUERY_LOG", cc.EnableQueryLog)
	if ms := utils.EnvDefaultInt(envPrefix+"SLOW_QUERY_MS", -1); ms >= 0 {
		cc.SlowQueryTime = time.Duration(ms) * time.Millisecond
	}
	c.Log.Level = utils.EnvDefaultString(envPrefix+"LOG_LEVEL", c.Log.Level)
	c.Log.Format = utils.EnvDefaultString(envPrefix+"LOG_FORMAT", c.Log.Format)
	c.Log.Output = utils.EnvDefaultString(envPrefix+"LOG_OUTPUT", c.Log.Output)
}

// Validate normalizes the backend kind and checks the pool-size hint.
func (c *ConnectionConfig) Validate() error {
	kind, err := ParseKind(string(c.Type))
	if err != nil {
		return err
	}
	c.Type = kind
	if c.PoolSize <= 0 {
		return fmt.Errorf("pool_size must be positive, got %d", c.PoolSize)
	}
	if kind == KindSQLite && c.Location == "" {
		c.Location = DefaultSQLiteLocation
	}
	return nil
}

// ForKind derives the connection settings for kind. The configured backend is
// returned as is; SQLite falls back to the default file; server backends
// without their own configuration fail with ErrMissingLocation.
func (c *Config) ForKind(kind Kind) (*ConnectionConfig, error) {
	if kind == "" {
		kind = c.Connection.Type
	}
	kind, err := ParseKind(string(kind))
	if err != nil {
		return nil, err
	}
	cc := c.Connection
	if kind == cc.Type {
		return &cc, cc.Validate()
	}
	if kind != KindSQLite {
		return nil, fmt.Errorf("%w: %s", ErrMissingLocation, kind)
	}
	cc.Type = KindSQLite
	cc.Location = DefaultSQLiteLocation
	return &cc, cc.Validate()
}

// ApplyLogging pushes the logging threshold, format and destination to the
// logger registry. File destinations are opened for append.
func (c *Config) ApplyLogging() error {
	w, err := logOutput(c.Log.Output)
	if err != nil {
		return err
	}
	utils.ConfigureLogFormat(c.Log.Format)
	utils.ConfigureLogLevel(c.Log.Level)
	utils.ConfigureLogOutput(w)
	return nil
}

func logOutput(output string) (io.Writer, error) {
	switch strings.ToLower(strings.TrimSpace(output)) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "discard", "none":
		return io.Discard, nil
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}
