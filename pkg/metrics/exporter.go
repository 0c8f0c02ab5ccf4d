package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/harveybc/prediction-provider-sub000/pkg/models"
	"github.com/harveybc/prediction-provider-sub000/pkg/store"
)

// MarketplaceExporter exports Prometheus metrics for the marketplace node.
// Point-in-time gauges are derived from the store on each scrape; operation
// counters accumulate in a dedicated registry.
type MarketplaceExporter struct {
	store     store.Store
	startTime time.Time

	registry   *promclient.Registry
	operations *promclient.CounterVec
	payments   promclient.Counter
	paymentSum promclient.Counter
}

// NewMarketplaceExporter creates a new Prometheus exporter
func NewMarketplaceExporter(s store.Store) *MarketplaceExporter {
	registry := promclient.NewRegistry()

	operations := promclient.NewCounterVec(promclient.CounterOpts{
		Name: "marketplace_operations_total",
		Help: "Total marketplace operations by type and outcome",
	}, []string{"operation", "outcome"})

	payments := promclient.NewCounter(promclient.CounterOpts{
		Name: "marketplace_payments_total",
		Help: "Total number of evaluator payments",
	})

	paymentSum := promclient.NewCounter(promclient.CounterOpts{
		Name: "marketplace_payment_amount_total",
		Help: "Cumulative evaluator payment amount",
	})

	registry.MustRegister(operations, payments, paymentSum)

	return &MarketplaceExporter{
		store:      s,
		startTime:  time.Now(),
		registry:   registry,
		operations: operations,
		payments:   payments,
		paymentSum: paymentSum,
	}
}

// RecordOperation records an operation outcome
func (e *MarketplaceExporter) RecordOperation(op, outcome string) {
	e.operations.WithLabelValues(op, outcome).Inc()
}

// RecordPayment records a completed payment
func (e *MarketplaceExporter) RecordPayment(amount float64) {
	e.payments.Inc()
	e.paymentSum.Add(amount)
}

// ServeHTTP serves Prometheus-compatible metrics at /metrics
func (e *MarketplaceExporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	jobs, err := e.store.ListJobs(store.JobFilter{})
	if err != nil {
		http.Error(w, fmt.Sprintf("Error collecting job metrics: %v", err), http.StatusInternalServerError)
		return
	}

	jobsByStatus := map[string]int{}
	for _, status := range []models.JobStatus{
		models.JobStatusPending, models.JobStatusProcessing,
		models.JobStatusCompleted, models.JobStatusFailed,
		models.JobStatusCancelled,
	} {
		jobsByStatus[string(status)] = 0
	}

	queueLength := 0
	activeJobs := 0
	owners := map[string]bool{}
	for _, job := range jobs {
		jobsByStatus[string(job.Status)]++
		owners[job.OwnerID] = true
		switch job.Status {
		case models.JobStatusPending:
			queueLength++
			activeJobs++
		case models.JobStatusProcessing:
			activeJobs++
		}
	}

	fmt.Fprintf(w, "# HELP marketplace_jobs_total Total number of jobs by status\n")
	fmt.Fprintf(w, "# TYPE marketplace_jobs_total gauge\n")
	for _, status := range []string{"pending", "processing", "completed", "failed", "cancelled"} {
		fmt.Fprintf(w, "marketplace_jobs_total{status=\"%s\"} %d\n", status, jobsByStatus[status])
	}

	fmt.Fprintf(w, "\n# HELP marketplace_queue_length Number of jobs in the pending queue\n")
	fmt.Fprintf(w, "# TYPE marketplace_queue_length gauge\n")
	fmt.Fprintf(w, "marketplace_queue_length %d\n", queueLength)

	fmt.Fprintf(w, "\n# HELP marketplace_active_jobs Number of pending plus processing jobs\n")
	fmt.Fprintf(w, "# TYPE marketplace_active_jobs gauge\n")
	fmt.Fprintf(w, "marketplace_active_jobs %d\n", activeJobs)

	fmt.Fprintf(w, "\n# HELP marketplace_owners_total Number of distinct job owners seen\n")
	fmt.Fprintf(w, "# TYPE marketplace_owners_total gauge\n")
	fmt.Fprintf(w, "marketplace_owners_total %d\n", len(owners))

	fmt.Fprintf(w, "\n# HELP marketplace_uptime_seconds Node uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE marketplace_uptime_seconds gauge\n")
	fmt.Fprintf(w, "marketplace_uptime_seconds %.0f\n", time.Since(e.startTime).Seconds())

	// Append the registered counters
	fmt.Fprintf(w, "\n")
	metricFamilies, err := e.registry.Gather()
	if err != nil {
		fmt.Fprintf(w, "# Error gathering Prometheus metrics: %v\n", err)
		return
	}

	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, mf := range metricFamilies {
		if err := encoder.Encode(mf); err != nil {
			fmt.Fprintf(w, "# Error encoding metric %s: %v\n", mf.GetName(), err)
		}
	}
	w.Write(buf.Bytes())
}
