package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/fleet"
	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/routing"
	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/options"
)

type fakeSource struct {
	ready    error
	vehicles []fleet.Status
}

func (f *fakeSource) Ready() error { return f.ready }

func (f *fakeSource) Vehicles() []fleet.Status { return f.vehicles }

func (f *fakeSource) Vehicle(serial string) (fleet.Status, bool) {
	for _, v := range f.vehicles {
		if v.SerialNumber == serial {
			return v, true
		}
	}
	return fleet.Status{}, false
}

func (f *fakeSource) Routes() []routing.Mapping { return routing.DefaultMappings() }

func newTestServer(src *fakeSource) http.Handler {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("# metrics")) })
	return NewServer(options.NewHttpOptions(), src, metrics).Handler()
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestProbes(t *testing.T) {
	src := &fakeSource{ready: errors.New("mqtt not connected")}
	h := newTestServer(src)

	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)

	rec := get(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "mqtt not connected")

	src.ready = nil
	assert.Equal(t, http.StatusOK, get(t, h, "/readyz").Code)
	assert.Equal(t, "# metrics", get(t, h, "/metrics").Body.String())
}

func TestVehicleEndpoints(t *testing.T) {
	src := &fakeSource{vehicles: []fleet.Status{
		{Identity: fleet.Identity{Manufacturer: "SEER", SerialNumber: "AGV-01"}, ConnectionState: "ONLINE", QueueDepth: 2},
		{Identity: fleet.Identity{Manufacturer: "SEER", SerialNumber: "AGV-02"}, ConnectionState: "UNKNOWN"},
	}}
	h := newTestServer(src)

	rec := get(t, h, "/api/v1/vehicles")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []fleet.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	rec = get(t, h, "/api/v1/vehicles/AGV-01")
	require.Equal(t, http.StatusOK, rec.Code)
	var one fleet.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.Equal(t, "ONLINE", one.ConnectionState)
	assert.Equal(t, 2, one.QueueDepth)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/vehicles/AGV-99").Code)
}

func TestRoutesEndpoint(t *testing.T) {
	h := newTestServer(&fakeSource{})

	rec := get(t, h, "/api/v1/routes")
	require.Equal(t, http.StatusOK, rec.Code)
	var routes []routing.Mapping
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &routes))
	assert.Len(t, routes, len(routing.DefaultMappings()))
	assert.Equal(t, "reloc", routes[0].Action)
}
