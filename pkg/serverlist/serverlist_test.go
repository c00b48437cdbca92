package serverlist

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUsesDefaultsWithoutPersistence(t *testing.T) {
	m := New(Options{})
	assert.Len(t, m.Servers(), 4)
	assert.Empty(t, m.SatServers())
}

func TestGetNextServerCyclesAndWraps(t *testing.T) {
	m := New(Options{})
	count := m.ServerCount()
	require.Greater(t, count, 0)

	seen := make([]string, 0, count*2)
	for i := 0; i < count*2; i++ {
		addr, err := m.GetNextServer()
		require.NoError(t, err)
		seen = append(seen, addr.String())
	}
	assert.Equal(t, seen[:count], seen[count:])
}

func TestResetIndex(t *testing.T) {
	m := New(Options{})
	first, err := m.GetNextServer()
	require.NoError(t, err)
	_, err = m.GetNextServer()
	require.NoError(t, err)

	m.ResetIndex()
	again, err := m.GetNextServer()
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestUpdateFromFrameContentReplacesLists(t *testing.T) {
	m := New(Options{})
	err := m.UpdateFromFrameContent(`/ServerList/host1.example:2211|host2.example:2211\ServerList\/SatServers/sat1.example:3000\SatServers\`)
	require.NoError(t, err)

	servers := m.Servers()
	require.Len(t, servers, 2)
	assert.Equal(t, "host1.example", servers[0].Host)

	sat := m.SatServers()
	require.Len(t, sat, 1)
	assert.Equal(t, "sat1.example", sat[0].Host)
}

func TestUpdateFromFrameContentMultipleSatServers(t *testing.T) {
	m := New(Options{})
	err := m.UpdateFromFrameContent(`/ServerList/host1.example:2211\ServerList\/SatServers/sat1.example:3000+sat2.example:3001\SatServers\`)
	require.NoError(t, err)

	sat := m.SatServers()
	require.Len(t, sat, 2)
	assert.Equal(t, "sat1.example", sat[0].Host)
	assert.Equal(t, "sat2.example", sat[1].Host)
}

func TestUpdateFromFrameContentRejectsGarbage(t *testing.T) {
	m := New(Options{})
	err := m.UpdateFromFrameContent("not a server list at all")
	assert.Error(t, err)
	assert.Len(t, m.Servers(), 4)
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "servers.json")

	m := New(Options{PersistPath: path, EnablePersistence: true})
	err := m.UpdateFromFrameContent("/ServerList/round.example:2211")
	require.NoError(t, err)

	reloaded := New(Options{PersistPath: path, EnablePersistence: true})
	servers := reloaded.Servers()
	require.Len(t, servers, 1)
	assert.Equal(t, "round.example", servers[0].Host)
	assert.Equal(t, 2211, servers[0].Port)
}

func TestMissingPersistFileFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing.json")

	m := New(Options{PersistPath: path, EnablePersistence: true})
	assert.Len(t, m.Servers(), 4)
}
