package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	_ "embed"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"modernc.org/sqlite"

	"github.com/ortelius/errata-finder/model"
)

// evrCmpFunc is the SQL function the sqlite store orders EVRs with:
// rpm_evr_cmp(epoch1, version1, release1, epoch2, version2, release2) returns -1, 0 or 1
const evrCmpFunc = "rpm_evr_cmp"

//go:embed sql/schema.sql
var sqliteSchema string

var registerOnce sync.Once
var registerErr error

// SQLiteStore reads a Spacewalk schema copy kept in a local SQLite file
type SQLiteStore struct {
	sqlStore
	db *sql.DB
}

func registerFunctions() error {
	registerOnce.Do(func() {
		registerErr = sqlite.RegisterDeterministicScalarFunction(evrCmpFunc, 6, evrCmp)
	})
	return registerErr
}

func evrCmp(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	a := model.EVR{Epoch: sqlText(args[0]), Version: deref(sqlText(args[1])), Release: deref(sqlText(args[2]))}
	b := model.EVR{Epoch: sqlText(args[3]), Version: deref(sqlText(args[4])), Release: deref(sqlText(args[5]))}
	return int64(model.CompareEVR(a, b)), nil
}

// sqlText converts a SQLite argument into an optional string; NULL becomes nil
func sqlText(v driver.Value) *string {
	var s string
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s = t
	case []byte:
		s = string(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		s = fmt.Sprint(t)
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// OpenSQLite opens (creating if needed) the SQLite database at path and makes
// sure the schema exists. ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string, timeout time.Duration, logger *zap.Logger) (*SQLiteStore, error) {
	if err := registerFunctions(); err != nil {
		return nil, fmt.Errorf("failed to register sqlite functions: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// a second connection to ":memory:" would see an empty database
	db.SetMaxOpenConns(1)

	err = retryConnect(ctx, logger, "sqlite "+path, timeout, func() error {
		return db.PingContext(ctx)
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sqlite schema: %w", err)
	}
	logger.Info("Opened sqlite database", zap.String("path", path))

	return NewSQLiteStore(db), nil
}

// NewSQLiteStore wraps an open database that already carries the schema
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{
		sqlStore: sqlStore{
			qb: newSQLiteBuilder(),
			query: func(ctx context.Context, query string, args ...interface{}) (rows, func(), error) {
				r, err := db.QueryContext(ctx, query, args...)
				if err != nil {
					return nil, nil, err
				}
				return r, func() { _ = r.Close() }, nil
			},
		},
		db: db,
	}
}

// Exec runs a statement against the database, used to load package data
func (s *SQLiteStore) Exec(ctx context.Context, query string, args ...interface{}) error {
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// Ping checks the database is still open
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
