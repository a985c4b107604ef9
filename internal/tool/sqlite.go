package tool

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/agentrun-ai/agentrun/pkg/types"
)

const (
	DBSchemaToolID = "db_schema"
	DBQueryToolID  = "db_query"
)

const dbQueryMaxRows = 200

// dbPath extracts the database path from the session's kind config.
func dbPath(inv *Invocation) (string, error) {
	cfg, ok := inv.KindConfig.(types.DatabaseReaderConfig)
	if !ok {
		return "", fmt.Errorf("database tools require a database-reader session")
	}
	if _, err := os.Stat(cfg.DBPath); err != nil {
		return "", fmt.Errorf("database not found: %s", cfg.DBPath)
	}
	return cfg.DBPath, nil
}

// openReadOnly opens the sqlite database in read-only mode.
func openReadOnly(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

const dbSchemaDescription = `Returns the schema of the session's SQLite database.

Usage:
- No arguments required
- Lists tables, their column definitions and indexes`

// DBSchemaTool dumps the database schema.
type DBSchemaTool struct{}

// NewDBSchemaTool creates a new schema tool.
func NewDBSchemaTool() *DBSchemaTool { return &DBSchemaTool{} }

func (t *DBSchemaTool) ID() string             { return DBSchemaToolID }
func (t *DBSchemaTool) Description() string    { return dbSchemaDescription }
func (t *DBSchemaTool) Timeout() time.Duration { return 30 * time.Second }

func (t *DBSchemaTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {}
	}`)
}

func (t *DBSchemaTool) Execute(ctx context.Context, input json.RawMessage, inv *Invocation) (*Result, error) {
	path, err := dbPath(inv)
	if err != nil {
		return nil, err
	}

	db, err := openReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT type, name, sql FROM sqlite_master WHERE sql IS NOT NULL ORDER BY type, name`)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	defer rows.Close()

	var sb strings.Builder
	count := 0
	for rows.Next() {
		var objType, name, ddl string
		if err := rows.Scan(&objType, &name, &ddl); err != nil {
			return nil, fmt.Errorf("scan schema row: %w", err)
		}
		fmt.Fprintf(&sb, "-- %s %s\n%s;\n\n", objType, name, ddl)
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &Result{
		Output: sb.String(),
		Metadata: map[string]any{
			"objects": count,
		},
	}, nil
}

const dbQueryDescription = `Runs a read-only SQL query against the session's SQLite database.

Usage:
- Only SELECT (and WITH ... SELECT) statements are allowed
- Results are returned as tab-separated rows with a header line
- Output is truncated past 200 rows`

// DBQueryTool runs read-only queries.
type DBQueryTool struct{}

// DBQueryInput represents the input for the query tool.
type DBQueryInput struct {
	Query string `json:"query"`
}

// NewDBQueryTool creates a new query tool.
func NewDBQueryTool() *DBQueryTool { return &DBQueryTool{} }

func (t *DBQueryTool) ID() string             { return DBQueryToolID }
func (t *DBQueryTool) Description() string    { return dbQueryDescription }
func (t *DBQueryTool) Timeout() time.Duration { return 30 * time.Second }

func (t *DBQueryTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {
				"type": "string",
				"description": "The SELECT statement to run"
			}
		},
		"required": ["query"]
	}`)
}

func (t *DBQueryTool) Execute(ctx context.Context, input json.RawMessage, inv *Invocation) (*Result, error) {
	var params DBQueryInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	query := strings.TrimSpace(params.Query)
	upper := strings.ToUpper(query)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return nil, fmt.Errorf("only SELECT queries are allowed")
	}

	path, err := dbPath(inv)
	if err != nil {
		return nil, err
	}

	db, err := openReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(cols, "\t"))
	sb.WriteString("\n")

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	count := 0
	truncated := false
	for rows.Next() {
		if count >= dbQueryMaxRows {
			truncated = true
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		fields := make([]string, len(values))
		for i, v := range values {
			switch val := v.(type) {
			case nil:
				fields[i] = "NULL"
			case []byte:
				fields[i] = string(val)
			default:
				fields[i] = fmt.Sprintf("%v", val)
			}
		}
		sb.WriteString(strings.Join(fields, "\t"))
		sb.WriteString("\n")
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	output := sb.String()
	if truncated {
		output += fmt.Sprintf("... truncated to %d rows\n", dbQueryMaxRows)
	}

	return &Result{
		Output: output,
		Metadata: map[string]any{
			"rows":      count,
			"truncated": truncated,
		},
	}, nil
}
