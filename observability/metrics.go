package observability

import (
	"errors"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BurnLedgerMetrics wraps the collectors tracking ledger commands and pool
// health.
type BurnLedgerMetrics struct {
	commands    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	rejections  *prometheus.CounterVec
	itemsBurned prometheus.Counter
	payouts     *prometheus.CounterVec
	poolBalance *prometheus.GaugeVec
	bonusClock  prometheus.Gauge
}

var (
	burnLedgerOnce     sync.Once
	burnLedgerRegistry *BurnLedgerMetrics
)

// BurnLedger returns the lazily registered ledger metrics.
func BurnLedger() *BurnLedgerMetrics {
	burnLedgerOnce.Do(func() {
		burnLedgerRegistry = &BurnLedgerMetrics{
			commands: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "burnledger",
				Subsystem: "ledger",
				Name:      "commands_total",
				Help:      "Ledger commands segmented by command and outcome.",
			}, []string{"command", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "burnledger",
				Subsystem: "ledger",
				Name:      "command_duration_seconds",
				Help:      "Latency distribution for ledger commands including the state commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"command"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "burnledger",
				Subsystem: "ledger",
				Name:      "rejections_total",
				Help:      "Rejected ledger commands segmented by command and reason.",
			}, []string{"command", "reason"}),
			itemsBurned: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "burnledger",
				Subsystem: "settlement",
				Name:      "items_burned_total",
				Help:      "Items destroyed by committed settlements.",
			}),
			payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "burnledger",
				Subsystem: "settlement",
				Name:      "payout_amount_total",
				Help:      "Reward amount paid out by committed settlements per pool.",
			}, []string{"pool"}),
			poolBalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "burnledger",
				Subsystem: "pool",
				Name:      "balance",
				Help:      "Reward balance currently held by each pool.",
			}, []string{"pool"}),
			bonusClock: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "burnledger",
				Subsystem: "ledger",
				Name:      "bonus_clock_seconds",
				Help:      "Unix time the hourly bonus last restarted.",
			}),
		}
		prometheus.MustRegister(
			burnLedgerRegistry.commands,
			burnLedgerRegistry.latency,
			burnLedgerRegistry.rejections,
			burnLedgerRegistry.itemsBurned,
			burnLedgerRegistry.payouts,
			burnLedgerRegistry.poolBalance,
			burnLedgerRegistry.bonusClock,
		)
	})
	return burnLedgerRegistry
}

// ObserveCommand records the outcome and latency of a ledger command. reason
// classifies failures and should come from a fixed set so label cardinality
// stays bounded.
func (m *BurnLedgerMetrics) ObserveCommand(command string, duration time.Duration, err error, reason string) {
	if m == nil {
		return
	}
	command = normalizeLabel(command)
	outcome := "success"
	if err != nil {
		outcome = "error"
		m.rejections.WithLabelValues(command, normalizeLabel(reason)).Inc()
	}
	m.commands.WithLabelValues(command, outcome).Inc()
	m.latency.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordSettlement tracks a committed settlement.
func (m *BurnLedgerMetrics) RecordSettlement(items int, payouts map[string]*big.Int) {
	if m == nil {
		return
	}
	if items > 0 {
		m.itemsBurned.Add(float64(items))
	}
	for pool, amount := range payouts {
		if amount == nil || amount.Sign() <= 0 {
			continue
		}
		m.payouts.WithLabelValues(normalizeLabel(pool)).Add(bigToFloat(amount))
	}
}

// SetPoolBalance publishes the balance of a pool.
func (m *BurnLedgerMetrics) SetPoolBalance(pool string, balance *big.Int) {
	if m == nil {
		return
	}
	m.poolBalance.WithLabelValues(normalizeLabel(pool)).Set(bigToFloat(balance))
}

// ResetPools drops every pool balance series, e.g. after the pool set was
// replaced.
func (m *BurnLedgerMetrics) ResetPools() {
	if m == nil {
		return
	}
	m.poolBalance.Reset()
}

// SetBonusClock publishes the bonus clock.
func (m *BurnLedgerMetrics) SetBonusClock(ts uint64) {
	if m == nil {
		return
	}
	m.bonusClock.Set(float64(ts))
}

// Reason labels a sentinel error for the rejections counter.
type Reason struct {
	Label string
	Err   error
}

// Classify returns the label of the first reason matching err, or "other".
func Classify(err error, reasons []Reason) string {
	if err == nil {
		return ""
	}
	for _, reason := range reasons {
		if errors.Is(err, reason.Err) {
			return reason.Label
		}
	}
	return "other"
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
