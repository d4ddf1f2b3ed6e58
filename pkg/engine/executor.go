// Package engine runs validated SQL on the federated query engine.
// It performs no retries: faults are returned with the engine's message intact
// so callers can feed them back into generation.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/trinodb/trino-go-client/trino"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-vkg/pkg/logging"
	"github.com/ekaya-inc/ekaya-vkg/pkg/models"
)

// Executor runs one SQL statement and returns its full result.
type Executor interface {
	Execute(ctx context.Context, query string) (*models.ExecutionResult, error)
}

// ExecutionError is an engine rejection or failure. Message is the engine's
// error text, unmodified.
type ExecutionError struct {
	Message string
	Cause   error
}

func (e *ExecutionError) Error() string {
	return e.Message
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// NewExecutionError wraps err as an ExecutionError keeping its text verbatim.
func NewExecutionError(err error) *ExecutionError {
	return &ExecutionError{Message: err.Error(), Cause: err}
}

// Config holds federated engine connection settings.
type Config struct {
	ServerURL    string
	User         string
	Password     string
	Source       string
	QueryTimeout time.Duration
	MaxOpenConns int
}

// DSN builds the trino driver DSN from the config.
func (c *Config) DSN() (string, error) {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return "", fmt.Errorf("invalid engine server url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid engine server url %q: scheme and host are required", c.ServerURL)
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}

	tc := &trino.Config{
		ServerURI: u.String(),
		Source:    c.Source,
	}
	return tc.FormatDSN()
}

// TrinoExecutor runs queries over the trino database/sql driver.
type TrinoExecutor struct {
	db      *sql.DB
	timeout time.Duration
	logger  *zap.Logger
}

var _ Executor = (*TrinoExecutor)(nil)

// NewTrinoExecutor opens a pooled handle to the federated engine.
func NewTrinoExecutor(cfg *Config, logger *zap.Logger) (*TrinoExecutor, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("trino", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine connection: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	return &TrinoExecutor{
		db:      db,
		timeout: cfg.QueryTimeout,
		logger:  logger.Named("engine"),
	}, nil
}

// Ping checks the engine is reachable.
func (e *TrinoExecutor) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

// Close releases pooled engine connections.
func (e *TrinoExecutor) Close() error {
	return e.db.Close()
}

// Execute runs query and reads every row. Engine errors are returned as
// *ExecutionError.
func (e *TrinoExecutor) Execute(ctx context.Context, query string) (*models.ExecutionResult, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		e.logger.Debug("Engine rejected query",
			zap.String("sql", logging.SanitizeSQL(query)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, NewExecutionError(err)
	}
	defer rows.Close()

	result, err := readRows(rows)
	if err != nil {
		return nil, NewExecutionError(err)
	}
	result.DurationMs = time.Since(start).Milliseconds()
	return result, nil
}

// rowSource is the subset of *sql.Rows consumed by readRows.
type rowSource interface {
	ColumnTypes() ([]*sql.ColumnType, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func readRows(rows rowSource) (*models.ExecutionResult, error) {
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	columns := make([]models.ResultColumn, len(colTypes))
	for i, ct := range colTypes {
		columns[i] = models.ResultColumn{Name: ct.Name(), Type: ct.DatabaseTypeName()}
	}

	result := &models.ExecutionResult{
		Columns: columns,
		Rows:    make([][]any, 0),
	}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = normalizeValue(v)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result.RowCount = len(result.Rows)
	return result, nil
}

// normalizeValue converts driver values into JSON-friendly forms.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	default:
		return val
	}
}
