package export

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"strings"

	"github.com/marcboeker/go-duckdb"

	"github.com/readtext/backend/internal/models"
)

// DefaultTableName is the table WriteFile creates in DuckDB outputs.
const DefaultTableName = "documents"

var sqlTypes = map[models.ColumnType]string{
	models.ColumnTypeString:  "VARCHAR",
	models.ColumnTypeInteger: "BIGINT",
	models.ColumnTypeNumeric: "DOUBLE",
	models.ColumnTypeBoolean: "BOOLEAN",
}

// OpenDuckDB opens (or creates) a DuckDB database file.
func OpenDuckDB(path string) (*sql.DB, error) {
	connector, err := duckdb.NewConnector(path, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA threads=4",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}
	return sql.OpenDB(connector), nil
}

// WriteDuckDB writes t into a new database file at path as table name,
// replacing any existing file. Docvar columns get their imputed SQL types
// and missing cells are NULL.
func WriteDuckDB(ctx context.Context, path, name string, t *models.ResultTable) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	db, err := OpenDuckDB(path)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, createTableSQL(name, t.Columns)); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	// Get a single connection from the pool
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	// Access the raw driver connection to use the Appender API
	err = conn.Raw(func(driverConn any) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to duckdb.Conn")
		}

		appender, err := duckdb.NewAppenderFromConn(dConn, "", name)
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		defer appender.Close()

		args := make([]driver.Value, len(t.Columns)+2)
		for i, row := range t.Rows {
			args[0] = row.DocID
			args[1] = row.Text
			for c, v := range row.Values {
				args[c+2] = v
			}
			if err := appender.AppendRow(args...); err != nil {
				return fmt.Errorf("failed to append row %d: %w", i, err)
			}
		}
		return appender.Flush()
	})
	if err != nil {
		return fmt.Errorf("appender error: %w", err)
	}
	return nil
}

func createTableSQL(name string, columns []models.Column) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (doc_id VARCHAR NOT NULL, text VARCHAR", quoteIdent(name))
	for _, c := range columns {
		fmt.Fprintf(&b, ", %s %s", quoteIdent(c.Name), sqlTypes[c.Type])
	}
	b.WriteString(")")
	return b.String()
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
