// Copyright (c) 2022 Netskope, Inc. All rights reserved.

// Package store turns a config.ConnectionConfig into the DSN string
// internal/source and internal/sink dial with, generalized from the
// teacher's single-purpose MariaDB/Aurora DSN builder into one that covers
// every ConnectionKind a RunConfig names.
package store

import (
	"fmt"
	"time"

	"github.com/dataforge/migrator/internal/config"
)

const (
	// DefaultPoolSize and DefaultConnLifetime mirror the teacher's
	// connection-pool tuning. Nothing in this module applies them:
	// internal/source.SQLSource and internal/sink.PostgresSink keep their
	// drivers' own pool defaults.
	DefaultPoolSize     = 10
	DefaultConnLifetime = 30 * time.Minute
)

var ErrBadHostname = fmt.Errorf("store: hostname is required")

// BuildDSN returns the driver-specific DSN for conn, resolving password as
// the connection's already-resolved plaintext password (see
// internal/util.ResolveDBPassword — called by cmd/migrate before BuildDSN,
// since only the caller knows whether conn is the source or destination and
// which RetryConfig/logger to thread through Secrets Manager resolution).
func BuildDSN(conn config.ConnectionConfig, password string) (string, error) {
	switch conn.Kind {
	case config.ConnMySQL:
		return buildMySQLDSN(conn, password)
	case config.ConnPostgres:
		return buildPostgresDSN(conn, password)
	default:
		return "", fmt.Errorf("store: kind %q has no SQL DSN", conn.Kind)
	}
}

func buildMySQLDSN(conn config.ConnectionConfig, password string) (string, error) {
	if conn.Host == "" {
		return "", ErrBadHostname
	}
	host := conn.Host
	if conn.Port > 0 {
		host = fmt.Sprintf("%s:%d", conn.Host, conn.Port)
	}
	user := conn.User
	if user == "" {
		user = "root"
	}
	if password != "" {
		return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true", user, password, host, conn.Database), nil
	}
	return fmt.Sprintf("%s@tcp(%s)/%s?parseTime=true", user, host, conn.Database), nil
}

func buildPostgresDSN(conn config.ConnectionConfig, password string) (string, error) {
	if conn.Host == "" {
		return "", ErrBadHostname
	}
	port := conn.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", conn.User, password, conn.Host, port, conn.Database), nil
}
