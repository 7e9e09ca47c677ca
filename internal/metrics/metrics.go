// Package metrics provides Prometheus instrumentation for the auction engine.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atmx/auction-engine/internal/model"
)

var (
	// CommitsTotal counts accepted commitments.
	CommitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_commits_total",
		Help: "Total number of accepted commitments",
	})

	// RevealsTotal counts accepted reveals, partitioned by whether a
	// priority bid was attached.
	RevealsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_reveals_total",
		Help: "Total number of accepted reveals",
	}, []string{"priority"})

	// SettlementsTotal counts settled batches.
	SettlementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_settlements_total",
		Help: "Total number of settled batches",
	})

	// OrdersPerBatch tracks the number of revealed orders in each settled batch.
	OrdersPerBatch = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "auction_orders_per_batch",
		Help:    "Revealed orders per settled batch",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100, 250},
	})

	// RevealRate tracks the share of commitments revealed per settled batch.
	RevealRate = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "auction_reveal_rate",
		Help:    "Revealed / committed ratio per settled batch",
		Buckets: []float64{0.1, 0.25, 0.5, 0.75, 0.9, 1.0},
	})

	// SlashesTotal counts slashed commitments.
	SlashesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_slashes_total",
		Help: "Total number of slashed commitments",
	})

	// SlashedValue tracks cumulative forfeited deposits in base units.
	SlashedValue = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_slashed_value_total",
		Help: "Cumulative slashed deposit value in base units",
	})

	// CurrentBatch is the id of the batch currently open.
	CurrentBatch = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "auction_current_batch",
		Help: "Id of the currently open batch",
	})

	// PhaseDuration tracks the configured window lengths of the open batch.
	PhaseDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "auction_phase_duration_seconds",
		Help: "Commit and reveal window lengths of the open batch",
	}, []string{"phase"})

	// KeeperActions counts keeper ticks by action and outcome.
	KeeperActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_keeper_actions_total",
		Help: "Keeper actions by type and result",
	}, []string{"action", "result"})

	// CrossChainMessages counts inbound cross-chain messages by kind and result.
	CrossChainMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_crosschain_messages_total",
		Help: "Inbound cross-chain messages by kind and result",
	}, []string{"kind", "result"})

	// ReplayRejections counts cross-chain messages rejected as replays.
	ReplayRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_crosschain_replay_rejections_total",
		Help: "Cross-chain messages rejected because they were already processed",
	})

	// ArchiveUploads counts settled batch uploads by result.
	ArchiveUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_archive_uploads_total",
		Help: "Settled batch archive uploads by result",
	}, []string{"result"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "auction_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "auction_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// RecordEvent updates engine metrics from an engine event. Register it with
// Engine.Subscribe.
func RecordEvent(ev model.Event) {
	switch ev.Type {
	case model.EventCommitSubmitted:
		CommitsTotal.Inc()
	case model.EventOrderRevealed:
		priority := "false"
		if b := ev.Batch; b != nil && len(b.RevealedOrders) > 0 && b.RevealedOrders[len(b.RevealedOrders)-1].HasPriority() {
			priority = "true"
		}
		RevealsTotal.WithLabelValues(priority).Inc()
	case model.EventBatchSettled:
		SettlementsTotal.Inc()
		if b := ev.Batch; b != nil {
			OrdersPerBatch.Observe(float64(len(b.RevealedOrders)))
			if b.CommitCount > 0 {
				RevealRate.Observe(float64(len(b.RevealedOrders)) / float64(b.CommitCount))
			}
		}
	case model.EventBatchOpened:
		if b := ev.Batch; b != nil {
			CurrentBatch.Set(float64(b.ID))
			PhaseDuration.WithLabelValues("commit").Set(b.CommitDuration.Seconds())
			PhaseDuration.WithLabelValues("reveal").Set(b.RevealDuration.Seconds())
		}
	case model.EventCommitmentSlashed:
		SlashesTotal.Inc()
		if c := ev.Commitment; c != nil {
			SlashedValue.Add(c.Deposit.InexactFloat64())
		}
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
