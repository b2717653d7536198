package storage

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	recoveryBackup = "backup"
	recoveryReset  = "reset"

	sourceLocal  = "local"
	sourceRemote = "remote"
)

type metrics struct {
	writes        *prometheus.CounterVec
	recoveries    *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		writes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "library_store_writes_total",
				Help: "Committed changes per key.",
			},
			[]string{"key"},
		),
		recoveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "library_store_recoveries_total",
				Help: "Corrupt entries restored from backup or reset.",
			},
			[]string{"outcome"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "library_store_notifications_total",
				Help: "Change notifications delivered, by origin.",
			},
			[]string{"source"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.writes, m.recoveries, m.notifications)
	}
	return m
}

func metricKey(key string) string {
	if key == AllKeys {
		return "*"
	}
	return strings.TrimPrefix(key, backupPrefix)
}
