package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsIngestedTotal counts records accepted by the ingestion
	// pipeline, labelled by record kind (capture, game, session).
	RecordsIngestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collector_records_ingested_total",
		Help: "The total number of records accepted by the ingestion pipeline",
	}, []string{"kind"})

	// IngestErrorsTotal counts ingestion failures, labelled by record kind.
	IngestErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collector_ingest_errors_total",
		Help: "The total number of ingestion failures at the persistence boundary",
	}, []string{"kind"})

	// CaptureQueriesTotal counts capture listing queries.
	CaptureQueriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collector_capture_queries_total",
		Help: "The total number of capture listing queries served",
	})
)
