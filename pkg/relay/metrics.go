// Copyright 2024-2026 Aiku AI

package relay

import "github.com/prometheus/client_golang/prometheus"

// Relay directions used as metric labels.
const (
	directionToTelegram = "discord_to_telegram"
	directionToDiscord  = "telegram_to_discord"
)

// Metrics holds the relay's Prometheus collectors.
type Metrics struct {
	relayed      *prometheus.CounterVec
	failed       *prometheus.CounterVec
	skipped      *prometheus.CounterVec
	staleRemoved prometheus.Counter
	evicted      prometheus.Counter
	pairs        prometheus.Gauge
	links        prometheus.Gauge
}

// NewMetrics creates the relay collectors and registers them with reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridge",
			Name:      "relayed_total",
			Help:      "Events relayed to the other platform.",
		}, []string{"direction", "kind"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridge",
			Name:      "relay_failures_total",
			Help:      "Events that could not be relayed.",
		}, []string{"direction", "kind"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridge",
			Name:      "skipped_total",
			Help:      "Inbound events that were deliberately not relayed.",
		}, []string{"reason"}),
		staleRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bridge",
			Name:      "stale_pairs_removed_total",
			Help:      "Message pairs dropped because the counterpart was gone.",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bridge",
			Name:      "evicted_pairs_total",
			Help:      "Message pairs evicted from the correlation store.",
		}),
		pairs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bridge",
			Name:      "correlation_pairs",
			Help:      "Message pairs currently held.",
		}),
		links: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bridge",
			Name:      "identity_links",
			Help:      "Linked Discord users.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.relayed, m.failed, m.skipped, m.staleRemoved, m.evicted, m.pairs, m.links)
	}
	return m
}
