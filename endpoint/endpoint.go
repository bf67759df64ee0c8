// Package endpoint implements one UDP socket per multipath path: a
// non-blocking send, a background receive loop with source-address
// filtering, and a bounded receive queue drained via PollReceive.
package endpoint

import (
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	mpath "github.com/vidmesh/mpfec/path"
)

// DefaultReceiveQueueCapacity is the spec default per-endpoint queue bound.
const DefaultReceiveQueueCapacity = 1024

// readDeadline bounds each ReadFromUDP call so the receive loop can observe
// stopCh promptly, standing in for a non-blocking socket + short sleep
// (spec.md §4.4, §5's "check running flag at least every 10ms").
const readDeadline = 10 * time.Millisecond

// ErrClosed is returned by Send once the endpoint has been stopped.
var ErrClosed = errors.New("endpoint: closed")

// Endpoint owns one UDP socket bound to an OS-chosen ephemeral port,
// pre-configured with a single remote address.
type Endpoint struct {
	path     *mpath.Path
	conn     *net.UDPConn
	wireSize int
	pollCap  int

	remoteMu   sync.RWMutex
	remoteAddr *net.UDPAddr

	recvMu    sync.Mutex
	recvQueue [][]byte
	queueCap  int

	overflowCount atomic.Uint64
	sendDropCount atomic.Uint64
	recvErrCount  atomic.Uint64

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	log     *logrus.Entry
}

// New binds a UDP socket on an OS-chosen ephemeral port and configures the
// endpoint's fixed remote address. Bind failure is fatal (spec.md §4.4).
func New(p *mpath.Path, wireSize, queueCap int, log *logrus.Entry) (*Endpoint, error) {
	if queueCap <= 0 {
		queueCap = DefaultReceiveQueueCapacity
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	remoteAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(p.IP(), strconv.Itoa(p.Port())))
	if err != nil {
		return nil, err
	}

	// A loopback remote is reached only from a loopback source, so bind
	// there; LocalAddr then reports an address a loopback peer can target.
	var localAddr *net.UDPAddr
	if remoteAddr.IP.IsLoopback() {
		localAddr = &net.UDPAddr{IP: remoteAddr.IP}
	}
	conn, err := net.ListenUDP("udp", localAddr)
	if err != nil {
		return nil, err
	}

	return &Endpoint{
		path:       p,
		remoteAddr: remoteAddr,
		conn:       conn,
		wireSize:   wireSize,
		pollCap:    64,
		queueCap:   queueCap,
		log:        log.WithField("component", "endpoint").WithField("remote", p.Key()),
	}, nil
}

// LocalAddr returns the OS-chosen local address the endpoint's socket is
// bound to, letting tests wire two endpoints to each other over loopback.
func (e *Endpoint) LocalAddr() *net.UDPAddr {
	return e.conn.LocalAddr().(*net.UDPAddr)
}

// SetRemoteAddr updates the configured remote address, e.g. once an
// ephemeral peer port becomes known (loopback test wiring, or a future
// port-renegotiation flow). Safe to call before or after Start.
func (e *Endpoint) SetRemoteAddr(addr *net.UDPAddr) {
	e.remoteMu.Lock()
	defer e.remoteMu.Unlock()
	e.remoteAddr = addr
}

func (e *Endpoint) remote() *net.UDPAddr {
	e.remoteMu.RLock()
	defer e.remoteMu.RUnlock()
	return e.remoteAddr
}

// Start launches the background receive loop.
func (e *Endpoint) Start() {
	if !e.running.CompareAndSwap(false, true) {
		return
	}
	e.stopCh = make(chan struct{})
	e.wg.Add(1)
	go e.receiveLoop()
	e.log.Info("endpoint started")
}

// Stop signals the receive loop to exit, waits for it, and closes the
// socket. On an endpoint that was never started it only closes the socket.
func (e *Endpoint) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		e.conn.Close()
		return
	}
	close(e.stopCh)
	e.wg.Wait()
	e.conn.Close()
	e.log.Info("endpoint stopped")
}

// Send transmits b to the configured remote address, best-effort. Socket
// errors other than a transient full-buffer condition are logged and
// counted; the endpoint remains alive (spec.md §4.4, §7).
func (e *Endpoint) Send(b []byte) {
	if !e.running.Load() {
		e.sendDropCount.Add(1)
		return
	}
	_, err := e.conn.WriteToUDP(b, e.remote())
	if err != nil {
		e.sendDropCount.Add(1)
		e.path.IncrementLost()
		e.log.WithError(err).Debug("send dropped")
		return
	}
	e.path.IncrementSent()
}

// PollReceive drains up to max queued datagrams (or the endpoint's per-poll
// cap of 64 if max <= 0), oldest first.
func (e *Endpoint) PollReceive(max int) [][]byte {
	if max <= 0 {
		max = e.pollCap
	}
	e.recvMu.Lock()
	defer e.recvMu.Unlock()

	if len(e.recvQueue) == 0 {
		return nil
	}
	n := max
	if n > len(e.recvQueue) {
		n = len(e.recvQueue)
	}
	out := e.recvQueue[:n]
	e.recvQueue = e.recvQueue[n:]
	return out
}

// OverflowCount returns the number of receive-queue overflow drops.
func (e *Endpoint) OverflowCount() uint64 { return e.overflowCount.Load() }

// SendDropCount returns the number of dropped sends.
func (e *Endpoint) SendDropCount() uint64 { return e.sendDropCount.Load() }

// RecvErrorCount returns the number of non-timeout socket read errors.
func (e *Endpoint) RecvErrorCount() uint64 { return e.recvErrCount.Load() }

func (e *Endpoint) receiveLoop() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.log.WithField("panic", r).Error("receive loop panicked, exiting")
		}
	}()

	buf := make([]byte, e.wireSize)
	for {
		select {
		case <-e.stopCh:
			return
		default:
		}

		e.conn.SetReadDeadline(time.Now().Add(readDeadline))
		n, addr, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if !e.running.Load() {
				return
			}
			e.recvErrCount.Add(1)
			e.log.WithError(err).Debug("receive error")
			continue
		}

		if !sameHost(addr, e.remote()) {
			// Peer identity is the remote tuple (spec.md §4.4); drop
			// datagrams from anyone else.
			continue
		}

		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		e.enqueue(pkt)
	}
}

func (e *Endpoint) enqueue(pkt []byte) {
	e.recvMu.Lock()
	defer e.recvMu.Unlock()
	if len(e.recvQueue) >= e.queueCap {
		e.recvQueue = e.recvQueue[1:]
		e.overflowCount.Add(1)
	}
	e.recvQueue = append(e.recvQueue, pkt)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func sameHost(a, b *net.UDPAddr) bool {
	return a.IP.Equal(b.IP) && a.Port == b.Port
}
