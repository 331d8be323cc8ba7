package service

import (
	"encoding/json"

	"github.com/koustreak/sqlscope/internal/database"
	"github.com/koustreak/sqlscope/internal/errs"
	"github.com/koustreak/sqlscope/internal/schema"
	"github.com/koustreak/sqlscope/internal/stats"
)

// Failure is the envelope every failed tool call returns.
type Failure struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorKind string `json:"error_kind"`
}

// ResourceFailure is the body of a failed resource read.
type ResourceFailure struct {
	Error     string `json:"error"`
	ErrorKind string `json:"error_kind"`
}

// Fail converts err into a failure envelope.
func Fail(err error) Failure {
	return Failure{Success: false, Error: errs.Message(err), ErrorKind: errs.KindOf(err).String()}
}

func FailResource(err error) ResourceFailure {
	return ResourceFailure{Error: errs.Message(err), ErrorKind: errs.KindOf(err).String()}
}

// Envelope returns v on success and the failure envelope otherwise.
func Envelope[T any](v T, err error) any {
	if err != nil {
		return Fail(err)
	}
	return v
}

type ConnectResult struct {
	Success      bool     `json:"success"`
	DatabasePath string   `json:"database_path"`
	TablesCount  int      `json:"tables_count"`
	Tables       []string `json:"tables"`
}

// QueryResult carries exactly one of Read or Write and marshals as that one.
type QueryResult struct {
	Read  *ReadResult
	Write *WriteResult
}

func (r *QueryResult) MarshalJSON() ([]byte, error) {
	if r.Write != nil {
		return json.Marshal(r.Write)
	}
	return json.Marshal(r.Read)
}

type ReadResult struct {
	Success              bool           `json:"success"`
	Results              []database.Row `json:"results"`
	Columns              []string       `json:"columns"`
	RowCount             int            `json:"row_count"`
	ExecutionTimeSeconds float64        `json:"execution_time_seconds"`
}

type WriteResult struct {
	Success              bool    `json:"success"`
	RowsAffected         int64   `json:"rows_affected"`
	ExecutionTimeSeconds float64 `json:"execution_time_seconds"`
}

type TablesResult struct {
	Success    bool                  `json:"success"`
	TableCount int                   `json:"table_count"`
	Tables     []schema.TableSummary `json:"tables"`
}

type ExportResult struct {
	Success              bool     `json:"success"`
	Filename             string   `json:"filename"`
	RowCount             int      `json:"row_count"`
	ColumnCount          int      `json:"column_count"`
	Columns              []string `json:"columns"`
	ExecutionTimeSeconds float64  `json:"execution_time_seconds"`
	ObjectKey            string   `json:"object_key,omitempty"`
	ObjectURL            string   `json:"object_url,omitempty"`
}

type SchemaResult struct {
	TableName   string              `json:"table_name"`
	Columns     []schema.Column     `json:"columns"`
	ForeignKeys []schema.ForeignKey `json:"foreign_keys"`
	ColumnCount int                 `json:"column_count"`
}

// DataResult is one page of a table. Statistics cover this page only.
type DataResult struct {
	TableName  string                            `json:"table_name"`
	Columns    []string                          `json:"columns"`
	SampleData []database.Row                    `json:"sample_data"`
	SampleSize int                               `json:"sample_size"`
	TotalRows  int64                             `json:"total_rows"`
	Limit      int                               `json:"limit"`
	Offset     int                               `json:"offset"`
	HasMore    bool                              `json:"has_more"`
	NextOffset *int                              `json:"next_offset"`
	Statistics map[string]stats.ColumnStatistics `json:"statistics"`
}

type StatsResult struct {
	TableName        string                            `json:"table_name"`
	TotalRows        int64                             `json:"total_rows"`
	ColumnCount      int                               `json:"column_count"`
	Columns          []string                          `json:"columns"`
	TableSizeBytes   *int64                            `json:"table_size_bytes,omitempty"`
	IndexCount       *int                              `json:"index_count,omitempty"`
	Sampled          bool                              `json:"sampled"`
	SampledRows      int                               `json:"sampled_rows,omitempty"`
	ColumnStatistics map[string]stats.ColumnStatistics `json:"column_statistics"`
}

func byColumn(all []stats.ColumnStatistics) map[string]stats.ColumnStatistics {
	m := make(map[string]stats.ColumnStatistics, len(all))
	for _, cs := range all {
		m[cs.Column] = cs
	}
	return m
}
