// Package byteblaster is the public entrypoint for the EMWIN/ByteBlaster
// Quick Block Transfer client: it ties the server-list manager, connection
// supervisor, file assembler and dispatcher into one subscribe/start/stop
// surface.
package byteblaster

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/wxmesh/byteblaster/pkg/assembler"
	"github.com/wxmesh/byteblaster/pkg/metrics"
	"github.com/wxmesh/byteblaster/pkg/protocol"
	"github.com/wxmesh/byteblaster/pkg/serverlist"
	"github.com/wxmesh/byteblaster/pkg/supervisor"
)

// Options configures a Client. Zero values for every field but Email fall
// back to spec-mandated defaults.
type Options struct {
	// Email is required; it is embedded in the logon message.
	Email string
	// ServerListPath is where the server pool is persisted. Defaults to
	// "servers.json".
	ServerListPath string
	// EnablePersistence toggles load/save of ServerListPath. Defaults to
	// true.
	EnablePersistence *bool
	// ShuffleOnLoad randomizes server ordering after loading.
	ShuffleOnLoad bool
	// WatchdogTimeout is the idle-data threshold. Defaults to 20s.
	WatchdogTimeout time.Duration
	// MaxExceptions is the error-count threshold. Defaults to 10.
	MaxExceptions int
	// ReconnectDelay is the base delay between connection attempts.
	// Defaults to 5s.
	ReconnectDelay time.Duration
	// ConnectionTimeout is the TCP connect timeout. Defaults to 10s.
	ConnectionTimeout time.Duration
	// DuplicateCacheSize bounds the assembler's recent-completions FIFO.
	// Defaults to 100.
	DuplicateCacheSize int
}

// Client is the EMWIN/QBT streaming receiver's public surface.
type Client struct {
	serverList *serverlist.Manager
	assembler  *assembler.Assembler
	dispatcher *assembler.Dispatcher
	supervisor *supervisor.Supervisor
	metrics    *metrics.Registry
}

// New validates opts and constructs a Client. Fails fast on an empty
// email.
func New(opts Options) (*Client, error) {
	email := strings.TrimSpace(opts.Email)
	if email == "" {
		return nil, ErrEmailRequired
	}

	enablePersistence := true
	if opts.EnablePersistence != nil {
		enablePersistence = *opts.EnablePersistence
	}

	sl := serverlist.New(serverlist.Options{
		PersistPath:       opts.ServerListPath,
		EnablePersistence: enablePersistence,
		ShuffleOnLoad:     opts.ShuffleOnLoad,
	})

	reg := metrics.New()
	dispatcher := assembler.NewDispatcher()
	dispatcher.SetMetrics(reg)
	asm := assembler.New(dispatcher, opts.DuplicateCacheSize)
	asm.SetMetrics(reg)

	sup := supervisor.New(supervisor.Options{
		Email:             email,
		ReconnectDelay:    opts.ReconnectDelay,
		ConnectionTimeout: opts.ConnectionTimeout,
		WatchdogTimeout:   opts.WatchdogTimeout,
		MaxExceptions:     opts.MaxExceptions,
	}, sl, reg, func(f protocol.DataBlockFrame) {
		asm.HandleSegment(f.Segment)
	}, nil)

	return &Client{
		serverList: sl,
		assembler:  asm,
		dispatcher: dispatcher,
		supervisor: sup,
		metrics:    reg,
	}, nil
}

// Subscribe registers handler to receive every completed file.
func (c *Client) Subscribe(handler assembler.Subscriber) {
	c.dispatcher.Subscribe(handler)
}

// Unsubscribe removes handler. No-op if absent.
func (c *Client) Unsubscribe(handler assembler.Subscriber) {
	c.dispatcher.Unsubscribe(handler)
}

// Start begins the connection supervisor's reconnect loop.
func (c *Client) Start(ctx context.Context) error {
	return c.supervisor.Start(ctx)
}

// Stop requests graceful shutdown, waiting up to timeout.
func (c *Client) Stop(timeout time.Duration) error {
	return c.supervisor.Stop(timeout)
}

// IsRunning reports whether the reconnect loop is active.
func (c *Client) IsRunning() bool {
	return c.supervisor.IsRunning()
}

// IsConnected reports whether a live socket is currently established.
func (c *Client) IsConnected() bool {
	return c.supervisor.IsConnected()
}

// ServerCount returns the combined size of the current server pool.
func (c *Client) ServerCount() int {
	return c.supervisor.ServerCount()
}

// CurrentServerList returns a copy of the regular and satellite server
// lists currently in use.
func (c *Client) CurrentServerList() (servers, satServers []string) {
	for _, a := range c.serverList.Servers() {
		servers = append(servers, a.String())
	}
	for _, a := range c.serverList.SatServers() {
		satServers = append(satServers, a.String())
	}
	return servers, satServers
}

// MetricsHandler returns an http.Handler serving this client's Prometheus
// metrics. The embedding program mounts it; the client never listens on a
// socket itself.
func (c *Client) MetricsHandler() http.Handler {
	return c.metrics.Handler()
}
