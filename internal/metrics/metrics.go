// Package metrics defines the prometheus collectors shared by the
// spyglass pipeline and its serving surfaces.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "spyglass_build_info",
		Help: "Build information of the spyglass binary.",
	}, []string{"version", "commit", "date"})

	ResearchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spyglass_research_requests_total", Help: "Total pipeline invocations.",
	}, []string{"result"})
	ResearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "spyglass_research_duration_seconds",
		Help:    "End-to-end pipeline invocation duration.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	LLMCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spyglass_llm_calls_total", Help: "Total LLM completion calls.",
	}, []string{"stage", "result"})

	SearchCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spyglass_search_calls_total", Help: "Total web search provider calls.",
	}, []string{"provider", "result"})
	SearchCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spyglass_search_cache_hits_total", Help: "Search queries served from the TTL cache.",
	})

	PageFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spyglass_page_fetches_total", Help: "Page fetch outcomes.",
	}, []string{"result"})
	PagesBlocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spyglass_pages_blocked_total", Help: "Result URLs skipped by the fetch blocklist.",
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spyglass_http_requests_total", Help: "Total HTTP requests served.",
	}, []string{"method", "endpoint", "status"})
	HTTPRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "spyglass_http_request_duration_seconds",
		Help:    "HTTP request duration.",
		Buckets: prometheus.DefBuckets,
	})

	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spyglass_mcp_tool_calls_total", Help: "Total MCP tool calls.",
	}, []string{"tool", "result"})
	ToolCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "spyglass_mcp_tool_call_duration_seconds",
		Help:    "MCP tool call duration.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"tool"})
	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spyglass_mcp_auth_failures_total", Help: "Total MCP auth failures.",
	}, []string{"reason"})
)
