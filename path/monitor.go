package path

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultUpdateInterval is the spec default metrics computation interval.
const DefaultUpdateInterval = 1 * time.Second

// DefaultRTTEMAAlpha is the EMA smoothing constant for RTT updates:
// new = alpha*sample + (1-alpha)*old.
const DefaultRTTEMAAlpha = 0.1

// DefaultBandwidthMbps is the baseline bandwidth estimate used when no
// measurement is available, matching original_source's
// path_monitor.cpp calculate_metrics() placeholder.
const DefaultBandwidthMbps = 10.0

// RTTSampler is an injected capability producing an RTT sample in
// milliseconds, if one is currently available. The spec leaves the sample
// source (piggybacked timestamp vs. dedicated probe) unspecified; the
// default Monitor never has a sample available.
type RTTSampler func() (ms float64, ok bool)

// Publisher is the capability a Monitor uses to push metrics to the
// scheduler, without holding a back-reference to it (spec.md §9: "inject
// it as a capability... breaks any cycle").
type Publisher func(ip string, port int, m Metrics)

// Monitor periodically recomputes one Path's metrics and publishes them.
type Monitor struct {
	p        *Path
	interval time.Duration
	alpha    float64
	sample   RTTSampler
	publish  Publisher
	log      *logrus.Entry

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewMonitor constructs a Monitor for p. sample may be nil, in which case
// RTT is never updated from a live measurement.
func NewMonitor(p *Path, interval time.Duration, sample RTTSampler, publish Publisher, log *logrus.Entry) *Monitor {
	if interval <= 0 {
		interval = DefaultUpdateInterval
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Monitor{
		p:        p,
		interval: interval,
		alpha:    DefaultRTTEMAAlpha,
		sample:   sample,
		publish:  publish,
		log:      log.WithField("component", "path_monitor").WithField("path", p.Key()),
	}
}

// Start begins the monitor's background loop. Calling Start on an already
// running Monitor is a no-op.
func (m *Monitor) Start() {
	if !m.running.CompareAndSwap(false, true) {
		m.log.Warn("monitor already running")
		return
	}
	m.stopCh = make(chan struct{})
	m.wg.Add(1)
	go m.loop()
	m.log.Info("monitor started")
}

// Stop signals the loop to exit and waits for it to do so.
func (m *Monitor) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	close(m.stopCh)
	m.wg.Wait()
	m.log.Info("monitor stopped")
}

func (m *Monitor) loop() {
	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			m.log.WithField("panic", r).Error("monitor loop panicked, exiting")
		}
	}()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-m.stopCh:
			return
		case now := <-ticker.C:
			if now.Sub(last) >= m.interval {
				m.tick()
				last = now
			}
		}
	}
}

func (m *Monitor) tick() {
	func() {
		defer func() {
			if r := recover(); r != nil {
				m.log.WithField("panic", r).Error("monitor tick panicked")
			}
		}()
		next := m.calculate()
		m.p.SetMetrics(next)
		if m.publish != nil {
			m.publish(m.p.IP(), m.p.Port(), next)
		}
	}()
}

func (m *Monitor) calculate() Metrics {
	counters := m.p.Counters()
	cur := m.p.Metrics()

	total := counters.PacketsSent + counters.PacketsReceived
	lossRate := 0.0
	if total > 0 {
		lossRate = float64(counters.PacketsLost) / float64(total)
	}

	rtt := cur.RTTMillis
	if m.sample != nil {
		if s, ok := m.sample(); ok {
			if rtt > 0 {
				rtt = m.alpha*s + (1-m.alpha)*rtt
			} else {
				rtt = s
			}
		}
	}

	bandwidth := cur.BandwidthMbps
	if bandwidth <= 0 {
		bandwidth = DefaultBandwidthMbps
	}

	return Metrics{RTTMillis: rtt, LossRate: lossRate, BandwidthMbps: bandwidth}
}
