// Package metrics registers the prometheus collectors for the reservation
// engine. Collectors are registered once via promauto and shared by the HTTP
// layer and the background schedulers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts handled HTTP requests by method, route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reserva_http_requests_total",
			Help: "Handled HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration observes request latency by route.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reserva_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// ReservationsCreated counts successful slot claims.
	ReservationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reserva_reservations_created_total",
			Help: "Successfully claimed reservation slots.",
		},
	)

	// BookingConflicts counts booking attempts lost to an existing claim.
	BookingConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reserva_booking_conflicts_total",
			Help: "Booking attempts rejected because the slot was already claimed.",
		},
	)

	// AutoConfirmations counts pending reservations promoted to confirmed,
	// labelled by which path performed the promotion (timer or sweep).
	AutoConfirmations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reserva_auto_confirmations_total",
			Help: "Reservations auto-confirmed after the configured delay.",
		},
		[]string{"source"},
	)

	// ReservationsExpired counts reservations retired by the sweeper.
	ReservationsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reserva_reservations_expired_total",
			Help: "Reservations expired by the sweeper.",
		},
	)

	// TablesExpired counts tables whose availability fully passed.
	TablesExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reserva_tables_expired_total",
			Help: "Tables expired by the sweeper.",
		},
	)

	// SweepDuration observes the wall time of a full sweep cycle.
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reserva_sweep_duration_seconds",
			Help:    "Duration of expiration sweep cycles.",
			Buckets: prometheus.DefBuckets,
		},
	)
)
