// Package serverlist manages the persistent, shuffled, round-robin pool of
// QBT servers a client may connect to.
package serverlist

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/wxmesh/byteblaster/pkg/protocol"
)

const persistedVersion = "1.0"

// Options configures a Manager.
type Options struct {
	// PersistPath is where the server list is loaded from and saved to.
	PersistPath string
	// EnablePersistence toggles load-from-disk and save-to-disk.
	EnablePersistence bool
	// ShuffleOnLoad randomizes ordering after loading, to spread client
	// pressure across the pool.
	ShuffleOnLoad bool
}

// Manager owns the current server list, a round-robin cursor over it, and
// optional JSON persistence.
type Manager struct {
	opts Options
	log  *slog.Logger

	mu         sync.Mutex
	servers    []protocol.ServerAddr
	satServers []protocol.ServerAddr
	cursor     int
	receivedAt time.Time
}

// New constructs a Manager, loading from PersistPath if enabled and
// present, falling back to built-in defaults otherwise. A missing or
// malformed persisted file never errors.
func New(opts Options) *Manager {
	if opts.PersistPath == "" {
		opts.PersistPath = "servers.json"
	}
	m := &Manager{
		opts: opts,
		log:  slog.Default().With("service", "[SL]"),
	}
	m.load()
	return m
}

func (m *Manager) load() {
	if m.opts.EnablePersistence {
		if doc, err := readPersisted(m.opts.PersistPath); err == nil {
			m.servers = doc.servers
			m.satServers = doc.satServers
			m.receivedAt = doc.receivedAt
			m.maybeShuffle()
			return
		} else {
			m.log.Debug("no usable persisted server list, using defaults", "path", m.opts.PersistPath, "error", err)
		}
	}
	m.servers = protocol.DefaultServers()
	m.satServers = protocol.DefaultSatServers()
	m.receivedAt = time.Time{}
	m.maybeShuffle()
}

func (m *Manager) maybeShuffle() {
	if !m.opts.ShuffleOnLoad {
		return
	}
	rand.Shuffle(len(m.servers), func(i, j int) { m.servers[i], m.servers[j] = m.servers[j], m.servers[i] })
	rand.Shuffle(len(m.satServers), func(i, j int) { m.satServers[i], m.satServers[j] = m.satServers[j], m.satServers[i] })
}

// GetNextServer returns the server at the current cursor position and
// advances the cursor, wrapping modulo the total server count.
func (m *Manager) GetNextServer() (protocol.ServerAddr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.combinedLocked()
	if len(all) == 0 {
		return protocol.ServerAddr{}, ErrNoServers
	}
	if m.cursor >= len(all) {
		m.cursor = m.cursor % len(all)
	}
	next := all[m.cursor]
	m.cursor = (m.cursor + 1) % len(all)
	return next, nil
}

// ResetIndex sets the cursor back to 0.
func (m *Manager) ResetIndex() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursor = 0
}

// ServerCount returns the combined size of the regular and satellite
// pools.
func (m *Manager) ServerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.servers) + len(m.satServers)
}

// Servers returns a copy of the current regular server list.
func (m *Manager) Servers() []protocol.ServerAddr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]protocol.ServerAddr{}, m.servers...)
}

// SatServers returns a copy of the current satellite server list.
func (m *Manager) SatServers() []protocol.ServerAddr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]protocol.ServerAddr{}, m.satServers...)
}

func (m *Manager) combinedLocked() []protocol.ServerAddr {
	out := make([]protocol.ServerAddr, 0, len(m.servers)+len(m.satServers))
	out = append(out, m.servers...)
	out = append(out, m.satServers...)
	return out
}

// UpdateFromFrameContent replaces both server lists from the raw content of
// a wire ServerList frame. The cursor is not reset. Persists if configured.
func (m *Manager) UpdateFromFrameContent(content string) error {
	list, err := protocol.ParseServerListContent(content)
	if err != nil {
		return fmt.Errorf("serverlist: %w", err)
	}

	m.mu.Lock()
	m.servers = list.Servers
	m.satServers = list.SatServers
	m.receivedAt = time.Now().UTC()
	m.maybeShuffle()
	m.mu.Unlock()

	if m.opts.EnablePersistence {
		if err := m.save(); err != nil {
			m.log.Warn("failed to persist server list", "error", err)
		}
	}
	return nil
}

type persistedDoc struct {
	Servers    []string `json:"servers"`
	SatServers []string `json:"sat_servers"`
	ReceivedAt string   `json:"received_at"`
	Version    string   `json:"version"`
}

type loadedServerList struct {
	servers    []protocol.ServerAddr
	satServers []protocol.ServerAddr
	receivedAt time.Time
}

func readPersisted(path string) (loadedServerList, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return loadedServerList{}, err
	}
	var doc persistedDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return loadedServerList{}, err
	}

	servers, err := parseAddrList(doc.Servers)
	if err != nil {
		return loadedServerList{}, err
	}
	satServers, err := parseAddrList(doc.SatServers)
	if err != nil {
		return loadedServerList{}, err
	}

	receivedAt, _ := time.Parse(time.RFC3339, doc.ReceivedAt)
	return loadedServerList{servers: servers, satServers: satServers, receivedAt: receivedAt}, nil
}

func parseAddrList(entries []string) ([]protocol.ServerAddr, error) {
	out := make([]protocol.ServerAddr, 0, len(entries))
	for _, e := range entries {
		addr, err := protocol.ParseServer(e)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// save writes the current server list to PersistPath as JSON.
func (m *Manager) save() error {
	m.mu.Lock()
	doc := persistedDoc{
		Servers:    addrStrings(m.servers),
		SatServers: addrStrings(m.satServers),
		ReceivedAt: m.receivedAt.UTC().Format(time.RFC3339),
		Version:    persistedVersion,
	}
	path := m.opts.PersistPath
	m.mu.Unlock()

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

// Save persists the current server list regardless of EnablePersistence.
// Exposed for callers that want explicit control over when writes happen.
func (m *Manager) Save() error {
	return m.save()
}

func addrStrings(addrs []protocol.ServerAddr) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}
