package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/koustreak/sqlscope/internal/errs"
	"github.com/koustreak/sqlscope/internal/server/metrics"
	"github.com/koustreak/sqlscope/internal/service"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type ConnectInput struct {
	DatabasePath string `json:"database_path" jsonschema:"filesystem path of the SQLite database file"`
}

type QueryInput struct {
	SQL string `json:"sql" jsonschema:"the SQL statement to run"`
}

type ListTablesInput struct{}

type ExportInput struct {
	SQL      string `json:"sql" jsonschema:"a SELECT statement whose result is exported"`
	Filename string `json:"filename" jsonschema:"destination CSV file; relative names resolve against the export directory"`
}

func (s *Server) registerTools() error {
	if err := addTool(s, "connect_db",
		"Connect to an SQLite database file. Any previous connection is closed first.",
		func(ctx context.Context, in ConnectInput) (any, error) {
			res, err := s.svc.Connect(ctx, in.DatabasePath)
			if s.svc.Connected() {
				metrics.DatabaseConnected.Set(1)
			} else {
				metrics.DatabaseConnected.Set(0)
			}
			return res, err
		}); err != nil {
		return err
	}

	if err := addTool(s, "execute_query",
		"Execute a SQL query on the connected database. Returns rows for SELECT statements; "+
			"statements the server's guard policy does not permit are rejected without running.",
		func(ctx context.Context, in QueryInput) (any, error) {
			return s.svc.ExecuteQuery(ctx, in.SQL)
		}); err != nil {
		return err
	}

	if err := addTool(s, "list_tables",
		"List all tables in the connected database with their CREATE statements.",
		func(ctx context.Context, _ ListTablesInput) (any, error) {
			return s.svc.ListTables(ctx)
		}); err != nil {
		return err
	}

	return addTool(s, "export_to_csv",
		"Execute a SQL query and export the results to a CSV file.",
		func(ctx context.Context, in ExportInput) (any, error) {
			return s.svc.ExportToCSV(ctx, in.SQL, in.Filename)
		})
}

// addTool registers a tool whose failures are returned as the failure
// envelope rather than as protocol errors.
func addTool[In any](s *Server, name, description string, run func(context.Context, In) (any, error)) error {
	schema, err := jsonschema.For[In](nil)
	if err != nil {
		return fmt.Errorf("failed to create %s input schema: %w", name, err)
	}

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: schema,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
		start := time.Now()
		out, err := run(ctx, in)
		metrics.ToolDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

		var body json.RawMessage
		if err == nil {
			body, err = json.Marshal(out)
			if err != nil {
				err = errs.Wrap(errs.ErrKindSourceError, "result could not be encoded as JSON", err)
			}
		}
		if err != nil {
			metrics.ToolCalls.WithLabelValues(name, errs.KindOf(err).String()).Inc()
			return nil, service.Fail(err), nil
		}
		metrics.ToolCalls.WithLabelValues(name, metrics.OutcomeOK).Inc()
		return nil, body, nil
	})
	return nil
}
