package configprotocol

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daqkit/daqrun/component"
	"github.com/daqkit/daqrun/coreevent"
	"github.com/daqkit/daqrun/coreobjects"
	"github.com/daqkit/daqrun/functionblock"
)

// TestHealthEndpointReportsSessionCount only exercises the plain HTTP
// surface, grounded on whitaker-io-machine's app.Test(req, -1) pattern
// (pipe_test.go, builder_test.go); the websocket upgrade path needs a real
// client handshake this harness cannot drive without running the binary.
func TestHealthEndpointReportsSessionCount(t *testing.T) {
	bus := coreevent.NewBus()
	tm := coreobjects.NewTypeManager(bus)
	fbCtx := functionblock.NewContext(tm, bus)
	root := component.NewFolder("dev", "IDevice", tm, bus)

	dsp := NewDispatcher(root, fbCtx.Modules, fbCtx, tm, bus)
	auth := NewStaticAuthenticator()
	srv := NewServer(dsp, auth, nil)

	req, err := http.NewRequest(http.MethodGet, "/health", nil)
	require.NoError(t, err)

	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, float64(0), body["sessions"])
}
