// Package metrics exposes the Prometheus collectors of the ticketing
// service. Collectors register themselves on the default registry at init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BookingsTotal counts booking requests by outcome (confirmed, rejected).
	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_bookings_total",
			Help: "Total booking requests by outcome",
		},
		[]string{"outcome"},
	)

	// TicketsSoldTotal counts individual ticket units sold.
	TicketsSoldTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketing_tickets_sold_total",
			Help: "Total ticket units sold",
		},
	)

	CancellationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketing_cancellations_total",
			Help: "Total bookings cancelled",
		},
	)

	RefundsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketing_refunds_total",
			Help: "Total bookings refunded",
		},
	)

	CheckInsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketing_checkins_total",
			Help: "Total attendee check-ins",
		},
	)

	// RequestDuration is the HTTP request latency, labelled by method and
	// response status class.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ticketing_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)
)
