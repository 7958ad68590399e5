package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatledger_messages_appended_total",
		Help: "Messages appended to the ledger, by sender.",
	}, []string{"sender"})

	messagesDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatledger_messages_deleted_total",
		Help: "Messages removed from the ledger.",
	})

	snapshotsImported = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatledger_snapshots_imported_total",
		Help: "Snapshot import operations applied.",
	})

	storeFaults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatledger_store_faults_total",
		Help: "Serialization or storage faults surfaced by the store.",
	})
)
