package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RostersProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollbook_rosters_processed_total",
			Help: "Rosters read and derived, by outcome",
		},
		[]string{"status"},
	)

	RosterErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollbook_roster_errors_total",
			Help: "Rosters rejected, by error category",
		},
		[]string{"category"},
	)

	RecordsDerived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollbook_records_derived_total",
			Help: "Student records derived",
		},
		[]string{"course"},
	)

	DeriveLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rollbook_roster_derive_seconds",
			Help:    "Time to read and derive one roster",
			Buckets: prometheus.DefBuckets,
		},
	)

	FTPFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollbook_ftp_fetches_total",
			Help: "Roster downloads from the FTP drop, by outcome",
		},
		[]string{"status"},
	)
)
