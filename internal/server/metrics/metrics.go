package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const OutcomeOK = "ok"

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sqlscope_build_info",
			Help: "Build information of the sqlscope server",
		},
		[]string{"version", "commit", "date"},
	)

	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlscope_tool_calls_total",
			Help: "MCP tool calls by tool and outcome (ok or error kind)",
		},
		[]string{"tool", "outcome"},
	)

	ToolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlscope_tool_duration_seconds",
			Help:    "Duration of MCP tool calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	ResourceReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlscope_resource_reads_total",
			Help: "MCP resource reads by resource and outcome (ok or error kind)",
		},
		[]string{"resource", "outcome"},
	)

	DatabaseConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sqlscope_database_connected",
			Help: "1 while a database is connected",
		},
	)
)
