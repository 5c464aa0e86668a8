package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Paint rejection reasons (label values for PaintsRejected).
const (
	RejectInvalid = "invalid"
	RejectUnauth  = "unauth"
	RejectWindow  = "outside_window"
	RejectTooFast = "too_fast"
)

// Strike kinds (label values for Strikes).
const (
	StrikeTrash     = "trash"
	StrikeFastPaint = "fast_paint"
)

// Prometheus metrics, scraped from GET /metrics.
var (
	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paintboard_connections_total",
		Help: "Total WebSocket connections accepted",
	})

	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paintboard_connections_active",
		Help: "Currently open WebSocket connections",
	})

	AuthResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paintboard_auth_total",
		Help: "Authentication attempts by result",
	}, []string{"result"})

	PaintsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paintboard_paints_accepted_total",
		Help: "Paint operations admitted to the canvas",
	})

	PaintsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paintboard_paints_rejected_total",
		Help: "Paint operations rejected, by reason",
	}, []string{"reason"})

	Strikes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paintboard_strikes_total",
		Help: "Misbehavior strikes recorded, by kind",
	}, []string{"kind"})

	DeltasPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paintboard_deltas_published_total",
		Help: "Deltas published to the broadcast hub",
	})

	DeltasDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paintboard_deltas_dropped_total",
		Help: "Deltas dropped because a subscriber buffer was full",
	})

	SnapshotsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paintboard_snapshots_sent_total",
		Help: "Snapshot frames sent to clients",
	})

	SnapshotBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "paintboard_snapshot_bytes",
		Help:    "Compressed snapshot frame size",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
	})

	BoardFlushRows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paintboard_board_flush_rows_total",
		Help: "Changed cells upserted by the board saver",
	})

	BoardFlushFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paintboard_board_flush_failures_total",
		Help: "Board saver chunks that failed to upsert",
	})

	ActionsFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paintboard_actions_flushed_total",
		Help: "Paint actions inserted by the action saver",
	})

	ActionsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paintboard_actions_dropped_total",
		Help: "Paint actions dropped after a failed insert",
	})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
