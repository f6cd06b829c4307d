package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Daovouslabs/wsgateway-go/internal/broker"
	"github.com/Daovouslabs/wsgateway-go/internal/gateway"
)

// startTestServer runs a gateway over an in-memory bus behind an
// httptest server.
func startTestServer(t *testing.T, config Config) (*httptest.Server, *gateway.Bridge, *Server) {
	t.Helper()

	bus := broker.NewMemoryBus()
	bridge, err := gateway.New(gateway.NewConfig("gw"), bus.Client())
	require.NoError(t, err)
	require.NoError(t, bridge.Startup(context.Background()))

	srv := NewServer(bridge, config, nil, nil)
	ts := httptest.NewServer(srv.routes(nil))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = bridge.Shutdown(ctx)
		ts.Close()
	})
	return ts, bridge, srv
}

func wsURL(ts *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?" + query
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	ws, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readJSON(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, ws.ReadJSON(&msg))
	return msg
}

func TestServer_Info(t *testing.T) {
	ts, _, _ := startTestServer(t, Config{NoAuth: true})

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var info map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "wsgateway", info["service"])
	assert.Equal(t, "gw", info["channel"])
	assert.Equal(t, "active", info["state"])
}

func TestServer_Health(t *testing.T) {
	ts, bridge, _ := startTestServer(t, Config{NoAuth: true})

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, bridge.Shutdown(ctx))

	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_WebSocketRoundTrip(t *testing.T) {
	ts, bridge, _ := startTestServer(t, Config{NoAuth: true})

	// The subscriber's pattern must match the broker channel name, since
	// the channel doubles as the routing topic.
	subscriber := dial(t, wsURL(ts, "id=sub&topic=gw"), nil)
	publisher := dial(t, wsURL(ts, "id=pub"), nil)

	// Both sessions must be registered before the publish goes out.
	require.Eventually(t, func() bool {
		return bridge.ConnectionCount() == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, publisher.WriteJSON(map[string]any{"topic": "room1", "x": 1}))

	msg := readJSON(t, subscriber)
	assert.Equal(t, "send", msg["type"])
	assert.Equal(t, "room1", msg["topic"])
	assert.Equal(t, float64(1), msg["x"])
}

func TestServer_WebSocketBroadcastTagging(t *testing.T) {
	ts, bridge, _ := startTestServer(t, Config{NoAuth: true})

	subscriber := dial(t, wsURL(ts, "id=sub&topic=gw"), nil)
	publisher := dial(t, wsURL(ts, "id=pub"), nil)
	require.Eventually(t, func() bool {
		return bridge.ConnectionCount() == 2
	}, 2*time.Second, 10*time.Millisecond)

	// No topic field: the gateway tags the payload as a broadcast.
	require.NoError(t, publisher.WriteJSON(map[string]any{"x": 1}))

	msg := readJSON(t, subscriber)
	assert.Equal(t, "broadcast", msg["type"])
	assert.Nil(t, msg["topic"])
}

func TestServer_WebSocketDisconnectCleansRegistry(t *testing.T) {
	ts, bridge, _ := startTestServer(t, Config{NoAuth: true})

	ws := dial(t, wsURL(ts, "id=c1&topic=gw"), nil)
	require.Eventually(t, func() bool {
		return bridge.ConnectionCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	ws.Close()

	require.Eventually(t, func() bool {
		return bridge.ConnectionCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_WebSocketRequiresAuth(t *testing.T) {
	ts, _, srv := startTestServer(t, Config{SecretKey: "test-secret"})

	// No token: the upgrade is refused.
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "id=c1"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// With a minted token the connection goes through; the client id
	// falls back to the token's client_id.
	token, _, err := srv.Auth().GenerateToken("client-7")
	require.NoError(t, err)

	ws := dial(t, wsURL(ts, "token="+token), nil)
	defer ws.Close()
}

func TestServer_DuplicateConnectionID(t *testing.T) {
	ts, bridge, _ := startTestServer(t, Config{NoAuth: true})

	first := dial(t, wsURL(ts, "id=dup"), nil)
	defer first.Close()
	require.Eventually(t, func() bool {
		return bridge.ConnectionCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The second session upgrades but is closed immediately by the
	// gateway; registration never happens.
	second, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "id=dup"), nil)
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = second.ReadMessage()
	require.Error(t, err)
	assert.Equal(t, 1, bridge.ConnectionCount())
}
