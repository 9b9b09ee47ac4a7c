package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CounterSink decouples its users (internal/scheduler) from a concrete
// Prometheus type: callers increment a named error kind through this
// interface rather than through MacCollector, so unit tests can supply an
// in-memory sink instead of standing up a registry.
type CounterSink interface {
	IncError(kind string)
	ObserveSuperframeDuration(seconds float64)
}

// NoopSink drops every increment and observation; the zero value is ready
// to use.
type NoopSink struct{}

func (NoopSink) IncError(string)                   {}
func (NoopSink) ObserveSuperframeDuration(float64) {}

// errorKinds enumerates every stable error-kind label named in spec
// section 7, so a single CounterVec can serve all of them.
var errorKinds = []string{
	"ModcodMismatch", "CarrierOverflow", "UnknownTerminal",
	"FifoFull", "UdpShortRead", "CounterGap", "CrcMismatch",
	"SlotCollision", "MaxRetransmissions", "OutOfSlots",
	"SuperframeOverrun", "StackTimeout", "UnderAllocated",
	"MissingParam", "BadValue", "UnknownModcod", "DuplicateTalId",
	"TalIdIsNcc", "UnknownCategory", "FmtFileLooped",
}

// MacCollector exposes Prometheus counters, a histogram, and gauges for
// the MAC-layer error kinds (spec section 7) and the GW-wide DAMA
// aggregate probes (spec section 9).
type MacCollector struct {
	gatherer prometheus.Gatherer

	ErrorsTotal         *prometheus.CounterVec
	SuperframeDurations prometheus.Histogram

	DamaGwRbdcRequestKbps prometheus.Gauge
	DamaGwRbdcAllocKbps   prometheus.Gauge
	DamaGwVbdcRequestPkt  prometheus.Gauge
	DamaGwVbdcAllocPkt    prometheus.Gauge
	DamaGwFcaAllocKbps    prometheus.Gauge
}

// NewMacCollector registers MAC-layer Prometheus metrics against reg,
// defaulting to the global registry when nil.
func NewMacCollector(reg prometheus.Registerer) (*MacCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	errorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mac_errors_total",
		Help: "Total number of MAC-layer errors, labeled by error kind.",
	}, []string{"kind"})
	errorsTotal, err := registerCounterVec(reg, errorsTotal, "mac_errors_total")
	if err != nil {
		return nil, err
	}
	// Pre-create every known label so /metrics always exposes a zero
	// series for kinds that haven't fired yet.
	for _, kind := range errorKinds {
		errorsTotal.WithLabelValues(kind)
	}

	superframeDurations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mac_superframe_duration_seconds",
		Help:    "Wall-clock time spent running one return-link superframe (CollectRequests through Emit).",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	}), "mac_superframe_duration_seconds")
	if err != nil {
		return nil, err
	}

	rbdcReq, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dama_gw_rbdc_request_kbps",
		Help: "GW-wide aggregate RBDC request rate across all terminals, this superframe.",
	}), "dama_gw_rbdc_request_kbps")
	if err != nil {
		return nil, err
	}
	rbdcAlloc, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dama_gw_rbdc_alloc_kbps",
		Help: "GW-wide aggregate RBDC allocated rate across all terminals, this superframe.",
	}), "dama_gw_rbdc_alloc_kbps")
	if err != nil {
		return nil, err
	}
	vbdcReq, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dama_gw_vbdc_request_pkt",
		Help: "GW-wide aggregate VBDC requested packets across all terminals, this superframe.",
	}), "dama_gw_vbdc_request_pkt")
	if err != nil {
		return nil, err
	}
	vbdcAlloc, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dama_gw_vbdc_alloc_pkt",
		Help: "GW-wide aggregate VBDC allocated packets across all terminals, this superframe.",
	}), "dama_gw_vbdc_alloc_pkt")
	if err != nil {
		return nil, err
	}
	fcaAlloc, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dama_gw_fca_alloc_kbps",
		Help: "GW-wide aggregate FCA allocated rate across all terminals, this superframe.",
	}), "dama_gw_fca_alloc_kbps")
	if err != nil {
		return nil, err
	}

	return &MacCollector{
		gatherer:              gatherer,
		ErrorsTotal:           errorsTotal,
		SuperframeDurations:   superframeDurations,
		DamaGwRbdcRequestKbps: rbdcReq,
		DamaGwRbdcAllocKbps:   rbdcAlloc,
		DamaGwVbdcRequestPkt:  vbdcReq,
		DamaGwVbdcAllocPkt:    vbdcAlloc,
		DamaGwFcaAllocKbps:    fcaAlloc,
	}, nil
}

// Gatherer returns the Prometheus gatherer backing this collector.
func (c *MacCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// IncError implements CounterSink.
func (c *MacCollector) IncError(kind string) {
	if c == nil || c.ErrorsTotal == nil {
		return
	}
	c.ErrorsTotal.WithLabelValues(kind).Inc()
}

// ObserveSuperframeDuration implements CounterSink.
func (c *MacCollector) ObserveSuperframeDuration(seconds float64) {
	if c == nil || c.SuperframeDurations == nil {
		return
	}
	c.SuperframeDurations.Observe(seconds)
}

// SetDamaAggregates publishes one superframe's GW-wide DAMA totals.
func (c *MacCollector) SetDamaAggregates(rbdcRequestKbps, rbdcAllocKbps, fcaAllocKbps float64, vbdcRequestPkt, vbdcAllocPkt uint32) {
	if c == nil {
		return
	}
	if c.DamaGwRbdcRequestKbps != nil {
		c.DamaGwRbdcRequestKbps.Set(rbdcRequestKbps)
	}
	if c.DamaGwRbdcAllocKbps != nil {
		c.DamaGwRbdcAllocKbps.Set(rbdcAllocKbps)
	}
	if c.DamaGwVbdcRequestPkt != nil {
		c.DamaGwVbdcRequestPkt.Set(float64(vbdcRequestPkt))
	}
	if c.DamaGwVbdcAllocPkt != nil {
		c.DamaGwVbdcAllocPkt.Set(float64(vbdcAllocPkt))
	}
	if c.DamaGwFcaAllocKbps != nil {
		c.DamaGwFcaAllocKbps.Set(fcaAllocKbps)
	}
}
