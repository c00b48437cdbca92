package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServerListContentSimpleForm(t *testing.T) {
	list, err := ParseServerListContent("/ServerList/host1.example:2211|host2.example:2211")
	require.NoError(t, err)
	require.Len(t, list.Servers, 2)
	assert.Equal(t, "host1.example", list.Servers[0].Host)
	assert.Equal(t, "host2.example", list.Servers[1].Host)
	assert.Empty(t, list.SatServers)
}

func TestParseServerListContentFullFormSingleSatServer(t *testing.T) {
	list, err := ParseServerListContent(`/ServerList/host1.example:2211\ServerList\/SatServers/sat1.example:3000\SatServers\`)
	require.NoError(t, err)
	require.Len(t, list.Servers, 1)
	require.Len(t, list.SatServers, 1)
	assert.Equal(t, "sat1.example", list.SatServers[0].Host)
}

// Regular entries are "|"-delimited; satellite entries are "+"-delimited,
// per spec §6. A satellite section carrying more than one server must not
// be parsed as a single pipe-delimited entry.
func TestParseServerListContentFullFormMultipleSatServersArePlusDelimited(t *testing.T) {
	list, err := ParseServerListContent(`/ServerList/host1.example:2211\ServerList\/SatServers/sat1.example:3000+sat2.example:3001+sat3.example:3002\SatServers\`)
	require.NoError(t, err)
	require.Len(t, list.SatServers, 3)
	assert.Equal(t, "sat1.example", list.SatServers[0].Host)
	assert.Equal(t, 3000, list.SatServers[0].Port)
	assert.Equal(t, "sat2.example", list.SatServers[1].Host)
	assert.Equal(t, 3001, list.SatServers[1].Port)
	assert.Equal(t, "sat3.example", list.SatServers[2].Host)
	assert.Equal(t, 3002, list.SatServers[2].Port)
}

func TestParseServerListContentRejectsGarbage(t *testing.T) {
	_, err := ParseServerListContent("not a server list at all")
	assert.ErrorIs(t, err, ErrServerListUnparseable)
}
