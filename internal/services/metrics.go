package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// ingested counts newly created rows per collection. Overwrites of an
	// existing raw record are not counted.
	ingested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_ingested_total",
			Help: "Total number of documents newly stored, by collection.",
		},
		[]string{"collection"},
	)

	// pruned counts rows removed by retention per collection.
	pruned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_pruned_total",
			Help: "Total number of documents removed by retention, by collection.",
		},
		[]string{"collection"},
	)
)

// Collection label values.
const (
	collectionNews      = "origin_news"
	collectionTopics    = "news_categorized"
	collectionMaterials = "learning_materials"
)

func init() {
	prometheus.MustRegister(ingested, pruned)
}
