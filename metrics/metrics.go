// Package metrics holds the Prometheus collectors shared by the server modules.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chess"

var (
	RoomsLive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rooms_live",
		Help:      "Rooms currently held by the registry.",
	})

	RoomsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rooms_closed_total",
		Help:      "Rooms removed from the registry, by final status.",
	}, []string{"status"})

	MovesApplied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "moves_applied_total",
		Help:      "Accepted chess moves.",
	})

	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Denied actions, by kind.",
	}, []string{"kind"})

	Deposits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deposits_total",
		Help:      "Deposit verifications, by result.",
	}, []string{"result"})

	Transfers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transfers_total",
		Help:      "Outbound transfer attempts, by kind and result.",
	}, []string{"kind", "result"})

	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connected_clients",
		Help:      "Open WebSocket connections.",
	})
)
