// Package supervisor owns the QBT socket lifetime: server selection,
// connect-with-timeout, the authenticator and watchdog that ride along
// with a live connection, and the backoff-governed reconnect loop.
package supervisor

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"

	"github.com/wxmesh/byteblaster/pkg/auth"
	"github.com/wxmesh/byteblaster/pkg/metrics"
	"github.com/wxmesh/byteblaster/pkg/protocol"
	"github.com/wxmesh/byteblaster/pkg/serverlist"
	"github.com/wxmesh/byteblaster/pkg/watchdog"
)

// Defaults mirror spec.md's configuration table.
const (
	DefaultReconnectDelay    = 5 * time.Second
	DefaultConnectionTimeout = 10 * time.Second
)

const maxBackoffSleep = 60 * time.Second
const failureBackoffCap = 2 * time.Second

// Options configures a Supervisor.
type Options struct {
	Email             string
	ReconnectDelay    time.Duration
	ConnectionTimeout time.Duration
	WatchdogTimeout   time.Duration
	MaxExceptions     int
}

// SegmentHandler receives every data block the decoder emits, valid or
// not; checksum validity is carried on the frame.
type SegmentHandler func(protocol.DataBlockFrame)

// ServerListHandler receives every server-list frame the decoder emits,
// after the supervisor has applied it to its own ServerList manager.
type ServerListHandler func(protocol.ServerListFrame)

// Supervisor drives the reconnect loop described in spec.md §4.2: obtain a
// server, connect with timeout, run authenticator+watchdog+decoder until
// disconnect, then back off and retry.
type Supervisor struct {
	opts       Options
	serverList *serverlist.Manager
	metrics    *metrics.Registry
	onSegment  SegmentHandler
	onServers  ServerListHandler
	log        *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	connected atomic.Bool

	connMu sync.Mutex
	conn   net.Conn
}

// New constructs a Supervisor. serverList must be non-nil; metrics may be
// nil if the embedding program does not want instrumentation.
func New(opts Options, serverList *serverlist.Manager, reg *metrics.Registry, onSegment SegmentHandler, onServers ServerListHandler) *Supervisor {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.ConnectionTimeout <= 0 {
		opts.ConnectionTimeout = DefaultConnectionTimeout
	}
	if opts.WatchdogTimeout <= 0 {
		opts.WatchdogTimeout = watchdog.DefaultTimeout
	}
	if opts.MaxExceptions <= 0 {
		opts.MaxExceptions = watchdog.DefaultMaxExceptions
	}
	return &Supervisor{
		opts:       opts,
		serverList: serverList,
		metrics:    reg,
		onSegment:  onSegment,
		onServers:  onServers,
		log:        slog.Default().With("service", "[SUP]"),
	}
}

// Start spawns the reconnect loop. Returns ErrAlreadyRunning if already
// started.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go s.loop(loopCtx)
	return nil
}

// Stop cancels the reconnect loop, closes any live connection, and waits
// up to timeout for the loop to unwind. Idempotent.
func (s *Supervisor) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.closeConn()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return context.DeadlineExceeded
	}
}

// IsRunning reports whether the reconnect loop is active.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// IsConnected reports whether a live socket is currently established.
func (s *Supervisor) IsConnected() bool {
	return s.connected.Load()
}

// ServerCount returns the server-list manager's combined pool size.
func (s *Supervisor) ServerCount() int {
	return s.serverList.ServerCount()
}

func (s *Supervisor) closeConn() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

func (s *Supervisor) loop(ctx context.Context) {
	defer s.wg.Done()

	// b computes the actual per-attempt sleep duration on its exponential
	// curve (Min=ReconnectDelay, doubling, capped at Max); spec.md §4.2's
	// literal per-branch caps are then reconciled against that computed
	// value with min(), so the curve always governs the sleep but never
	// exceeds what the spec mandates.
	b := &backoff.Backoff{
		Min:    s.opts.ReconnectDelay,
		Max:    maxBackoffSleep,
		Factor: 2,
	}

	for {
		if ctx.Err() != nil {
			return
		}

		addr, err := s.serverList.GetNextServer()
		if err != nil {
			if !sleepCtx(ctx, s.opts.ReconnectDelay) {
				return
			}
			continue
		}

		if s.metrics != nil {
			s.metrics.ReconnectAttempts.Inc()
		}

		dialCtx, dialCancel := context.WithTimeout(ctx, s.opts.ConnectionTimeout)
		conn, err := (&net.Dialer{}).DialContext(dialCtx, "tcp", addr.String())
		dialCancel()
		if err != nil {
			s.log.Warn("connect failed", "server", addr.String(), "error", err)
			curveDuration := b.Duration()
			serverCount := s.serverList.ServerCount()
			if serverCount > 0 && int(b.Attempt()) >= 2*serverCount {
				if !sleepCtx(ctx, minDuration(s.opts.ReconnectDelay*4, maxBackoffSleep)) {
					return
				}
				b.Reset()
				s.serverList.ResetIndex()
			} else {
				if !sleepCtx(ctx, minDuration(curveDuration, failureBackoffCap)) {
					return
				}
			}
			continue
		}

		b.Reset()
		s.runConnection(ctx, conn)
	}
}

// connSender adapts a net.Conn to auth.Sender.
type connSender struct{ conn net.Conn }

func (c connSender) Send(data []byte) error {
	_, err := c.conn.Write(data)
	return err
}

func (s *Supervisor) runConnection(ctx context.Context, conn net.Conn) {
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	s.connected.Store(true)
	defer func() {
		s.connected.Store(false)
		s.connMu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.connMu.Unlock()
		conn.Close()
	}()

	authn, err := auth.New(s.opts.Email)
	if err != nil {
		s.log.Error("invalid authenticator configuration", "error", err)
		return
	}

	connCtx, connCancel := context.WithCancel(ctx)
	defer connCancel()

	wd := watchdog.New(s.opts.WatchdogTimeout, s.opts.MaxExceptions, func(reason error) {
		s.log.Warn("watchdog closed connection", "reason", reason)
		if s.metrics != nil {
			s.metrics.WatchdogTrips.Inc()
		}
		connCancel()
	})
	wd.Start()
	defer wd.Stop()

	dec := protocol.NewDecoder(conn.RemoteAddr().String(), func(f protocol.Frame) {
		switch frame := f.(type) {
		case protocol.DataBlockFrame:
			if !frame.ChecksumOK && s.metrics != nil {
				s.metrics.ChecksumFailures.Inc()
			}
			if s.metrics != nil {
				s.metrics.FramesDecoded.WithLabelValues("data_block").Inc()
			}
			if s.onSegment != nil {
				s.onSegment(frame)
			}
		case protocol.ServerListFrame:
			if s.metrics != nil {
				s.metrics.FramesDecoded.WithLabelValues("server_list").Inc()
			}
			if err := s.serverList.UpdateFromFrameContent(frame.Raw); err != nil {
				s.log.Warn("failed to apply server list frame", "error", err)
			}
			if s.onServers != nil {
				s.onServers(frame)
			}
		}
	})
	dec.OnError(func(err error) {
		if s.metrics != nil {
			s.metrics.ProtocolResyncs.Inc()
		}
		wd.OnException()
	})

	if err := authn.Start(connSender{conn: conn}, func(error) { wd.OnException() }); err != nil {
		s.log.Warn("authenticator failed to start", "error", err)
		return
	}
	defer authn.Stop()

	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			wd.OnDataReceived()
			dec.Feed(buf[:n])
		}
		if err != nil {
			s.log.Debug("connection closed", "error", err)
			return
		}
		if connCtx.Err() != nil {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
