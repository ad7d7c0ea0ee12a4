package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/lib/pq"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"tmdb-etl/models"
	"tmdb-etl/table"
	"tmdb-etl/utils"
)

// Dialect selects the SQL flavour of a store.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// maxParams bounds the bind parameters of one INSERT statement.
const maxParams = 999

// SQLStore bulk-replaces tables in SQLite or PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	logger  *utils.Logger
}

// OpenSQLStore opens a connection and pings it, retrying with back-off.
// For SQLite dsn is a file path whose directory is created if needed.
func OpenSQLStore(ctx context.Context, dialect Dialect, dsn string, retry utils.RetryConfig, logger *utils.Logger) (*SQLStore, error) {
	switch dialect {
	case SQLite:
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, eris.Wrap(&models.IOError{Path: dsn, Err: err}, "sql: create db dir")
			}
		}
	case Postgres:
	default:
		return nil, eris.Errorf("sql: unsupported dialect %q", dialect)
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, eris.Wrapf(err, "sql: open %s", dialect)
	}
	if dialect == SQLite {
		// one writer at a time; also keeps an in-memory database alive
		db.SetMaxOpenConns(1)
	}

	if retry.Logger == nil {
		retry.Logger = logger
	}
	err = retry.Do(ctx, string(dialect)+" ping", func(ctx context.Context) error {
		return db.PingContext(ctx)
	})
	if err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "sql: connect")
	}

	return &SQLStore{db: db, dialect: dialect, logger: logger}, nil
}

// BulkReplace drops the table if it exists, recreates it from t's schema
// and inserts every row, all in one transaction. On failure the
// transaction is rolled back, so the previous table is left as it was, and
// a *models.LoadError naming the table is returned.
func (s *SQLStore) BulkReplace(ctx context.Context, name string, t *table.Table) error {
	if err := s.replace(ctx, name, t); err != nil {
		return eris.Wrap(&models.LoadError{Table: name, Err: err}, "sql: bulk replace")
	}
	s.logger.Debug("[%s] replaced table %s with %d rows", s.dialect, name, t.Len())
	return nil
}

func (s *SQLStore) replace(ctx context.Context, name string, t *table.Table) error {
	if len(t.Columns()) == 0 {
		return eris.New("table has no columns")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(name)); err != nil {
		return eris.Wrap(err, "drop")
	}
	if _, err := tx.ExecContext(ctx, s.createStatement(name, t)); err != nil {
		return eris.Wrap(err, "create")
	}

	batchSize := max(1, maxParams/len(t.Columns()))
	for start := 0; start < t.Len(); start += batchSize {
		end := min(start+batchSize, t.Len())
		if err := s.insertBatch(ctx, tx, name, t, start, end); err != nil {
			return eris.Wrapf(err, "insert rows %d-%d", start, end-1)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "commit")
	}
	return nil
}

func (s *SQLStore) createStatement(name string, t *table.Table) string {
	defs := make([]string, 0, len(t.Columns()))
	for _, c := range t.Columns() {
		defs = append(defs, quoteIdent(c.Name)+" "+s.columnType(c.Type))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", quoteIdent(name), strings.Join(defs, ",\n\t"))
}

func (s *SQLStore) columnType(typ table.Type) string {
	switch typ {
	case table.Int8, table.Int16:
		if s.dialect == Postgres {
			return "SMALLINT"
		}
		return "INTEGER"
	case table.Int32:
		return "INTEGER"
	case table.Int64:
		if s.dialect == Postgres {
			return "BIGINT"
		}
		return "INTEGER"
	case table.Float32:
		return "REAL"
	case table.Float64:
		if s.dialect == Postgres {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	case table.Date:
		if s.dialect == Postgres {
			return "DATE"
		}
		return "TEXT"
	case table.Bool:
		if s.dialect == Postgres {
			return "BOOLEAN"
		}
		return "INTEGER"
	}
	return "TEXT"
}

func (s *SQLStore) insertBatch(ctx context.Context, tx *sql.Tx, name string, t *table.Table, start, end int) error {
	cols := t.Columns()
	names := make([]string, len(cols))
	for j, c := range cols {
		names[j] = quoteIdent(c.Name)
	}

	valueStrings := make([]string, 0, end-start)
	valueArgs := make([]any, 0, (end-start)*len(cols))
	n := 0
	for i := start; i < end; i++ {
		placeholders := make([]string, len(cols))
		for j, c := range cols {
			n++
			placeholders[j] = s.placeholder(n)
			arg, err := s.sqlArg(c.Value(i))
			if err != nil {
				return eris.Wrapf(err, "column %s row %d", c.Name, i)
			}
			valueArgs = append(valueArgs, arg)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		quoteIdent(name), strings.Join(names, ", "), strings.Join(valueStrings, ","))
	_, err := tx.ExecContext(ctx, query, valueArgs...)
	return err
}

func (s *SQLStore) placeholder(n int) string {
	if s.dialect == Postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// sqlArg converts a decoded table value to a driver value. Lists are stored
// as JSON text; SQLite dates as YYYY-MM-DD text.
func (s *SQLStore) sqlArg(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool, int64, float64:
		return x, nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case float32:
		return float64(x), nil
	case time.Time:
		if s.dialect == SQLite {
			return x.Format(table.DateLayout), nil
		}
		return x, nil
	case []string, []int64:
		b, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	return nil, eris.Errorf("unsupported value type %T", v)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// FetchAll returns every row of a table, in insertion order for SQLite, as
// column name to driver value maps.
func (s *SQLStore) FetchAll(ctx context.Context, name string) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(name))
	if err != nil {
		return nil, eris.Wrapf(err, "sql: fetch all from %s", name)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, eris.Wrap(err, "sql: columns")
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrap(err, "sql: scan row")
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = vals[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Count returns the number of rows in a table.
func (s *SQLStore) Count(ctx context.Context, name string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(name)).Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "sql: count %s", name)
	}
	return n, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
