package imagenotify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics, registered on the default registry.
var (
	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagenotify_uploads_total",
			Help: "Image uploads handled, by result",
		},
		[]string{"result"},
	)

	messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagenotify_worker_messages_total",
			Help: "Queue messages handled by the worker, by result",
		},
		[]string{"result"},
	)

	batchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "imagenotify_worker_batch_size",
			Help:    "Messages received per queue drain",
			Buckets: []float64{0, 1, 2, 5, 10},
		},
	)
)
