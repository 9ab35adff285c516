package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Research task metrics
	TasksSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_research_tasks_submitted_total",
			Help: "Total number of research tasks submitted to the provider",
		},
		[]string{"backend"},
	)

	TaskSubmitRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deep_research_task_submit_retries_total",
			Help: "Total number of retried task submissions",
		},
	)

	TasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_research_tasks_completed_total",
			Help: "Total number of research tasks by terminal status",
		},
		[]string{"backend", "status"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deep_research_task_duration_seconds",
			Help:    "Wall-clock research duration in seconds",
			Buckets: []float64{30, 60, 120, 300, 600, 900, 1200, 1800, 3600},
		},
		[]string{"backend"},
	)

	TaskPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_research_task_polls_total",
			Help: "Total number of status polls by outcome",
		},
		[]string{"outcome"},
	)

	TaskCancellations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_research_task_cancellations_total",
			Help: "Best-effort cancellations issued after a timeout",
		},
		[]string{"result"},
	)

	Citations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deep_research_citations",
			Help:    "Number of citations per completed report",
			Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
		},
	)

	// Clarification metrics
	ClarificationsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_research_clarifications_started_total",
			Help: "Clarification requests by outcome",
		},
		[]string{"outcome"},
	)

	ClarificationFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_research_clarification_fallbacks_total",
			Help: "Times triage or enrichment degraded to a safe default",
		},
		[]string{"agent"},
	)

	// Session metrics
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deep_research_sessions_created_total",
			Help: "Total number of clarification sessions created",
		},
	)

	SessionCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deep_research_session_cache_hits_total",
			Help: "Total number of session lookups that found a session",
		},
	)

	SessionCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deep_research_session_cache_misses_total",
			Help: "Total number of session lookups that missed",
		},
	)

	SessionCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deep_research_session_cache_size",
			Help: "Current number of clarification sessions held in memory",
		},
	)

	SessionCacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_research_session_cache_evictions_total",
			Help: "Total number of sessions evicted",
		},
		[]string{"reason"},
	)

	// Rate limiter metrics
	RateLimitWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deep_research_rate_limit_wait_seconds",
			Help:    "Time spent waiting for rate limiter tokens",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
	)

	RateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deep_research_rate_limit_rejections_total",
			Help: "Acquire calls refused because the bucket was empty",
		},
	)

	// Webhook metrics
	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_research_webhook_deliveries_total",
			Help: "Completion callbacks by result",
		},
		[]string{"result"},
	)

	// Tool surface metrics
	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_research_tool_calls_total",
			Help: "MCP tool invocations by tool and outcome",
		},
		[]string{"tool", "outcome"},
	)

	ToolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deep_research_tool_duration_seconds",
			Help:    "MCP tool call duration in seconds",
			Buckets: []float64{0.1, 1, 10, 60, 300, 900, 1800, 3600},
		},
		[]string{"tool"},
	)

	// Web search metrics
	SearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_research_search_requests_total",
			Help: "Web search requests issued by the local backend, by outcome",
		},
		[]string{"outcome"},
	)

	// Prompt template metrics
	PromptReloads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deep_research_prompt_reloads_total",
			Help: "Prompt cache invalidations triggered by file changes",
		},
	)
)
