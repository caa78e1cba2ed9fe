package options

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bridgeerrors "github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/errors"
	pkgoptions "github.com/lakasli/TCP-VDA5050-bridge-server/pkg/options"
)

func newOptions() *BridgeOptions {
	o := NewBridgeOptions()
	o.FleetOptions.DefaultManufacturer = "SEER"
	o.FleetOptions.Vehicles = []pkgoptions.VehicleOptions{
		{SerialNumber: "AGV-1", Address: "10.0.0.1"},
		{SerialNumber: "AGV-2", Address: "10.0.0.2:19206"},
	}
	return o
}

func TestValidate(t *testing.T) {
	o := newOptions()
	require.NoError(t, o.Complete())
	assert.NoError(t, o.Validate())

	o.TCPOptions.Mode = "passive"
	o.FleetOptions.Vehicles = nil
	assert.Error(t, o.Validate())
}

func TestRegistry(t *testing.T) {
	o := newOptions()
	require.NoError(t, o.Complete())

	registry, err := o.Registry()
	require.NoError(t, err)
	assert.Equal(t, 2, registry.Len())

	v, ok := registry.BySerial("AGV-2")
	require.True(t, ok)
	assert.Equal(t, "SEER", v.Manufacturer)
}

func TestRoutingTableFollowsPorts(t *testing.T) {
	o := newOptions()
	o.TCPOptions.Ports.Movement = 29206

	table, err := o.RoutingTable()
	require.NoError(t, err)

	m, err := table.Lookup("translate")
	require.NoError(t, err)
	assert.Equal(t, 29206, m.Port)
	assert.Contains(t, table.Features(), "factsheetRequest")
}

func TestRoutingTableFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mappings:
  - action: softEmc
    port: 19210
    messageType: 6004
    payloadFormat: booleanField
    blockingType: NONE
    parameters:
      - {name: status, type: boolean, required: true}
`), 0o600))

	o := newOptions()
	o.RoutingOptions.File = path
	table, err := o.RoutingTable()
	require.NoError(t, err)
	assert.Len(t, table.Mappings(), 1)

	o.RoutingOptions.Features = []string{"translate"}
	_, err = o.RoutingTable()
	assert.Error(t, err)

	o.RoutingOptions.Features = []string{"softEmc"}
	table, err = o.RoutingTable()
	require.NoError(t, err)
	assert.Equal(t, []string{"softEmc"}, table.Features())
	_, err = table.Lookup("translate")
	var rerr *bridgeerrors.RoutingError
	assert.ErrorAs(t, err, &rerr)
}
