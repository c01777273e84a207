package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	chunksServed  prometheus.Counter
	savesAccepted prometheus.Counter
	savesRejected *prometheus.CounterVec
	articlesDone  *prometheus.CounterVec
	tokensCleaned prometheus.Counter
}

func newMetrics(reg *prometheus.Registry) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		chunksServed: factory.NewCounter(prometheus.CounterOpts{
			Name: "transpipe_chunks_served_total",
			Help: "Chunks delivered to the translating agent.",
		}),
		savesAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "transpipe_saves_accepted_total",
			Help: "Translations accepted and persisted.",
		}),
		savesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "transpipe_saves_rejected_total",
			Help: "Save attempts rejected, by failing check.",
		}, []string{"code"}),
		articlesDone: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "transpipe_articles_finished_total",
			Help: "Articles leaving the queue, by outcome.",
		}, []string{"outcome"}),
		tokensCleaned: factory.NewCounter(prometheus.CounterOpts{
			Name: "transpipe_tokens_cleaned_total",
			Help: "Validation tokens removed by the cleanup job.",
		}),
	}
}
