package main

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
)

// SourceChecker validates that the MySQL primary feeding the update stream
// server is reachable and configured so the stream can actually carry
// row-level events.
type SourceChecker struct {
	host     string
	port     int
	user     string
	password string
	logger   *logrus.Logger
}

// NewSourceChecker creates a checker for the given MySQL endpoint.
func NewSourceChecker(host string, port int, user, password string, logger *logrus.Logger) *SourceChecker {
	return &SourceChecker{
		host:     host,
		port:     port,
		user:     user,
		password: password,
		logger:   logger,
	}
}

// CheckStreamPrerequisites verifies connectivity, that binary logging is
// enabled, and that the binlog format is ROW. Without ROW format the update
// stream cannot reconstruct primary-key tuples for change events.
func (c *SourceChecker) CheckStreamPrerequisites() error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/", c.user, c.password, c.host, c.port)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open MySQL connection: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to MySQL server: %w", err)
	}
	c.logger.Info("Successfully connected to source MySQL server")

	// Check if binlog is enabled
	var logBin string
	err = db.QueryRow("SHOW VARIABLES LIKE 'log_bin'").Scan(&logBin, &logBin)
	if err != nil {
		// Try alternative query
		var value string
		err = db.QueryRow("SELECT @@log_bin").Scan(&value)
		if err != nil {
			c.logger.Warn("Could not verify binlog status")
		} else if value == "0" || value == "OFF" {
			return fmt.Errorf("binary logging (log_bin) is not enabled on the source server")
		} else {
			c.logger.Info("Binary logging is enabled")
		}
	} else {
		if logBin != "ON" && logBin != "1" {
			return fmt.Errorf("binary logging (log_bin) is not enabled on the source server. Current value: %s", logBin)
		}
		c.logger.Info("Binary logging is enabled")
	}

	// Check binlog format (must be ROW for PK reconstruction)
	var binlogFormat string
	err = db.QueryRow("SHOW VARIABLES LIKE 'binlog_format'").Scan(&binlogFormat, &binlogFormat)
	if err != nil {
		var value string
		if err := db.QueryRow("SELECT @@binlog_format").Scan(&value); err == nil {
			binlogFormat = value
		}
	}

	if binlogFormat == "" {
		c.logger.Warn("Could not verify binlog format")
		return nil
	}
	if binlogFormat != "ROW" {
		return fmt.Errorf("binlog_format is set to '%s', but the update stream requires ROW format", binlogFormat)
	}
	c.logger.Info("binlog_format is set to ROW")

	return nil
}
