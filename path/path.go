// Package path models one multipath UDP destination: its identity, live
// metrics, and traffic counters. A Monitor (monitor.go) periodically
// recomputes a Path's metrics and publishes them to the scheduler.
package path

import (
	"net"
	"strconv"
	"sync"
)

// Metrics is the set of per-path measurements consumed by scheduling
// strategies.
type Metrics struct {
	RTTMillis     float64
	LossRate      float64
	BandwidthMbps float64
}

// Counters are the raw traffic counters a Path accumulates.
type Counters struct {
	PacketsSent     uint64
	PacketsReceived uint64
	PacketsLost     uint64
}

// Snapshot is an immutable, lock-free-to-read copy of a Path's state.
type Snapshot struct {
	IP       string
	Port     int
	Metrics  Metrics
	Counters Counters
	Active   bool
}

// Path is a remote (ip, port) destination used as one of several parallel
// UDP links. All fields are guarded by mu; callers interact with it only
// through the exported methods.
type Path struct {
	mu       sync.Mutex
	ip       string
	port     int
	metrics  Metrics
	counters Counters
	active   bool
}

// New creates a Path, active by default per spec.md §3's Path lifecycle.
func New(ip string, port int) *Path {
	return &Path{ip: ip, port: port, active: true}
}

// Key returns the (ip, port) identity string used as a map key everywhere a
// path is looked up by identity.
func (p *Path) Key() string {
	return net.JoinHostPort(p.ip, strconv.Itoa(p.port))
}

// IP returns the path's remote IP.
func (p *Path) IP() string { return p.ip }

// Port returns the path's remote port.
func (p *Path) Port() int { return p.port }

// IncrementSent increments the sent-packet counter.
func (p *Path) IncrementSent() {
	p.mu.Lock()
	p.counters.PacketsSent++
	p.mu.Unlock()
}

// IncrementLost increments the lost-packet counter (queue-full drops,
// socket errors).
func (p *Path) IncrementLost() {
	p.mu.Lock()
	p.counters.PacketsLost++
	p.mu.Unlock()
}

// RecordReceipt increments the received-packet counter and is the signal
// used by the scheduler to reactivate a path that had gone inactive.
func (p *Path) RecordReceipt() {
	p.mu.Lock()
	p.counters.PacketsReceived++
	p.mu.Unlock()
}

// Counters returns a copy of the current traffic counters.
func (p *Path) Counters() Counters {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counters
}

// SetMetrics overwrites the path's current metrics (called by a Monitor).
func (p *Path) SetMetrics(m Metrics) {
	p.mu.Lock()
	p.metrics = m
	p.mu.Unlock()
}

// Metrics returns a copy of the path's current metrics.
func (p *Path) Metrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}

// SetActive sets the path's liveness flag. Liveness decisions are owned by
// the scheduler (spec.md §4.5), not by Path or Monitor themselves.
func (p *Path) SetActive(active bool) {
	p.mu.Lock()
	p.active = active
	p.mu.Unlock()
}

// IsActive reports the path's current liveness flag.
func (p *Path) IsActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Snapshot returns an immutable copy of the path's full state.
func (p *Path) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		IP:       p.ip,
		Port:     p.port,
		Metrics:  p.metrics,
		Counters: p.counters,
		Active:   p.active,
	}
}
