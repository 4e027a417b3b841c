// Package meta runs the read-only metadata queries against the source
// server: binlog inventory, server id and table columns.
package meta

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"

	"binlog2sql/internal/models"
)

// ColumnInfo is one column of a table as reported by INFORMATION_SCHEMA
type ColumnInfo struct {
	Name       string
	ColumnType string // e.g. "int(10) unsigned"
	PrimaryKey bool
}

// Unsigned reports whether COLUMN_TYPE carries the UNSIGNED attribute
func (c ColumnInfo) Unsigned() bool {
	return strings.Contains(strings.ToLower(c.ColumnType), "unsigned")
}

// Client wraps a small connection pool to the source server
type Client struct {
	db     *sql.DB
	logger *logrus.Logger

	mu      sync.Mutex
	columns map[string][]ColumnInfo // Cache column info by "database.table"
}

// DSN builds the go-sql-driver data source name
func DSN(host string, port int, user, password string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/?charset=utf8mb4&parseTime=true&loc=Local", user, password, host, port)
}

// Open connects to the server
func Open(host string, port int, user, password string, logger *logrus.Logger) (*Client, error) {
	db, err := sql.Open("mysql", DSN(host, port, user, password))
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	return NewClient(db, logger), nil
}

// NewClient wraps an existing pool
func NewClient(db *sql.DB, logger *logrus.Logger) *Client {
	return &Client{
		db:      db,
		logger:  logger,
		columns: make(map[string][]ColumnInfo),
	}
}

// Close closes the pool
func (c *Client) Close() error {
	return c.db.Close()
}

// MasterLogs returns the retained binlog files, oldest first
func (c *Client) MasterLogs(ctx context.Context) ([]models.LogFile, error) {
	rows, err := c.db.QueryContext(ctx, "SHOW MASTER LOGS")
	if err != nil {
		// MySQL 8.4 removed the MASTER spelling
		rows, err = c.db.QueryContext(ctx, "SHOW BINARY LOGS")
		if err != nil {
			return nil, fmt.Errorf("failed to query binary logs: %w", err)
		}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read binary log columns: %w", err)
	}
	if len(cols) < 2 {
		return nil, fmt.Errorf("unexpected binary log listing with %d columns", len(cols))
	}

	var logs []models.LogFile
	for rows.Next() {
		var (
			name string
			size uint64
			rest = make([]sql.RawBytes, len(cols)-2)
		)
		dest := []interface{}{&name, &size}
		for i := range rest {
			dest = append(dest, &rest[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan binary log: %w", err)
		}
		logs = append(logs, models.LogFile{Name: name, Position: uint32(size)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating binary logs: %w", err)
	}

	c.logger.Debugf("Server retains %d binlog files", len(logs))
	return logs, nil
}

// ServerID returns @@server_id. A zero id means the server is not set up
// for replication.
func (c *Client) ServerID(ctx context.Context) (uint32, error) {
	var id sql.NullInt64
	if err := c.db.QueryRowContext(ctx, "SELECT @@server_id").Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to query server_id: %w", err)
	}
	if !id.Valid || id.Int64 == 0 {
		return 0, models.NewConfigurationError("missing server_id")
	}
	return uint32(id.Int64), nil
}

// Columns returns the columns of a table in ordinal order
func (c *Client) Columns(ctx context.Context, database, table string) ([]ColumnInfo, error) {
	cacheKey := database + "." + table

	c.mu.Lock()
	cols, ok := c.columns[cacheKey]
	c.mu.Unlock()
	if ok {
		return cols, nil
	}

	query := `
		SELECT COLUMN_NAME, COLUMN_TYPE, COLUMN_KEY
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`
	rows, err := c.db.QueryContext(ctx, query, database, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query column info: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, columnType, key string
		if err := rows.Scan(&name, &columnType, &key); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		cols = append(cols, ColumnInfo{Name: name, ColumnType: columnType, PrimaryKey: key == "PRI"})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}

	c.mu.Lock()
	c.columns[cacheKey] = cols
	c.mu.Unlock()
	c.logger.Debugf("Fetched %d columns for %s.%s", len(cols), database, table)

	return cols, nil
}

// Reset drops every cached table, after DDL may have changed one
func (c *Client) Reset() {
	c.mu.Lock()
	c.columns = make(map[string][]ColumnInfo)
	c.mu.Unlock()
}
