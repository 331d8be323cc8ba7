package server

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/koustreak/sqlscope/internal/errs"
	"github.com/koustreak/sqlscope/internal/server/metrics"
	"github.com/koustreak/sqlscope/internal/service"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const jsonMIME = "application/json"

func (s *Server) registerResources() {
	s.mcpServer.AddResourceTemplate(&mcp.ResourceTemplate{
		Name:        "table_schema",
		URITemplate: "schema://tables/{table_name}",
		MIMEType:    jsonMIME,
		Description: "Column and foreign key information for a specific table.",
	}, s.resource("table_schema", func(ctx context.Context, table string, _ url.Values) (any, error) {
		return s.svc.TableSchema(ctx, table)
	}))

	s.mcpServer.AddResourceTemplate(&mcp.ResourceTemplate{
		Name:        "table_data",
		URITemplate: "data://tables/{table_name}{?limit,offset}",
		MIMEType:    jsonMIME,
		Description: "Rows of a specific table in primary key order, with pagination and statistics over the returned page.",
	}, s.resource("table_data", func(ctx context.Context, table string, q url.Values) (any, error) {
		limit, err := intParam(q, "limit")
		if err != nil {
			return nil, err
		}
		offset, err := intParam(q, "offset")
		if err != nil {
			return nil, err
		}
		return s.svc.TableData(ctx, table, limit, offset)
	}))

	s.mcpServer.AddResourceTemplate(&mcp.ResourceTemplate{
		Name:        "table_stats",
		URITemplate: "stats://tables/{table_name}",
		MIMEType:    jsonMIME,
		Description: "Comprehensive statistics for a specific table, computed over all of its rows.",
	}, s.resource("table_stats", func(ctx context.Context, table string, _ url.Values) (any, error) {
		return s.svc.TableStats(ctx, table)
	}))
}

type resourceFunc func(ctx context.Context, table string, query url.Values) (any, error)

// resource adapts fn into a resource handler. Failures are returned as a
// JSON error body rather than as protocol errors.
func (s *Server) resource(name string, fn resourceFunc) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := req.Params.URI

		var text []byte
		table, query, err := parseTableURI(uri)
		if err == nil {
			var body any
			if body, err = fn(ctx, table, query); err == nil {
				if text, err = json.Marshal(body); err != nil {
					err = errs.Wrap(errs.ErrKindSourceError, "result could not be encoded as JSON", err)
				}
			}
		}
		if err != nil {
			metrics.ResourceReads.WithLabelValues(name, errs.KindOf(err).String()).Inc()
			if text, err = json.Marshal(service.FailResource(err)); err != nil {
				return nil, err
			}
		} else {
			metrics.ResourceReads.WithLabelValues(name, metrics.OutcomeOK).Inc()
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      uri,
				MIMEType: jsonMIME,
				Text:     string(text),
			}},
		}, nil
	}
}

// parseTableURI splits scheme://tables/<name>?query into the table name and
// its query parameters.
func parseTableURI(uri string) (string, url.Values, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid resource URI", err)
	}
	if u.Host != "tables" {
		return "", nil, errs.Newf(errs.ErrKindInvalidInput, "unsupported resource URI %q", uri)
	}
	table := strings.TrimPrefix(u.Path, "/")
	if table == "" || strings.Contains(table, "/") {
		return "", nil, errs.Newf(errs.ErrKindInvalidInput, "resource URI %q does not name a table", uri)
	}
	return table, u.Query(), nil
}

func intParam(q url.Values, key string) (int, error) {
	v := q.Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errs.Newf(errs.ErrKindInvalidInput, "%s must be an integer, got %q", key, v)
	}
	return n, nil
}
