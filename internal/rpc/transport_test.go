package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeStdio(t *testing.T) {
	d := newTestDispatcher(t)

	input := strings.Join([]string{
		`{"jsonrpc":"2.0","method":"echo","params":{"n":1},"id":1}`,
		``,
		`garbage`,
		`{"jsonrpc":"2.0","method":"nope","id":2}`,
	}, "\n") + "\n"

	var out bytes.Buffer
	err := ServeStdio(context.Background(), d, strings.NewReader(input), &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)

	var first, second, third Response
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &third))

	assert.Nil(t, first.Error)
	assert.Equal(t, json.RawMessage(`1`), first.ID)

	require.NotNil(t, second.Error)
	assert.Equal(t, -32600, second.Error.Code)
	assert.Equal(t, json.RawMessage(`null`), second.ID)

	require.NotNil(t, third.Error)
	assert.Equal(t, -32601, third.Error.Code)
	assert.Equal(t, json.RawMessage(`2`), third.ID)
}

func TestServeStdioCancelled(t *testing.T) {
	d := newTestDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	input := `{"jsonrpc":"2.0","method":"echo","id":1}` + "\n"
	var out bytes.Buffer
	err := ServeStdio(ctx, d, strings.NewReader(input), &out)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, out.String())
}

func newTestHTTPServer(t *testing.T) (*httptest.Server, *HTTPServer) {
	t.Helper()
	async := NewAsync(newTestDispatcher(t), 4)
	s := NewHTTPServer(":0", async, NewMetrics())
	ts := httptest.NewServer(s.srv.Handler)
	t.Cleanup(ts.Close)
	return ts, s
}

func postRPC(t *testing.T, url, body string) (*http.Response, Response) {
	t.Helper()
	httpResp, err := http.Post(url+"/rpc", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer httpResp.Body.Close()

	var resp Response
	require.NoError(t, json.NewDecoder(httpResp.Body).Decode(&resp))
	return httpResp, resp
}

func TestHTTPTransport(t *testing.T) {
	ts, _ := newTestHTTPServer(t)

	httpResp, resp := postRPC(t, ts.URL, `{"jsonrpc":"2.0","method":"echo","params":{"a":1},"id":9}`)
	assert.Equal(t, http.StatusOK, httpResp.StatusCode)
	assert.Nil(t, resp.Error)

	httpResp, resp = postRPC(t, ts.URL, `{"jsonrpc":"2.0","method":"missing_thing","id":9}`)
	assert.Equal(t, http.StatusNotFound, httpResp.StatusCode)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32001, resp.Error.Code)

	httpResp, resp = postRPC(t, ts.URL, `{broken`)
	assert.Equal(t, http.StatusBadRequest, httpResp.StatusCode)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32600, resp.Error.Code)
}

func TestHTTPHealthAndMetrics(t *testing.T) {
	ts, _ := newTestHTTPServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebSocketTransport(t *testing.T) {
	ts, _ := newTestHTTPServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, httpResp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if httpResp != nil {
		httpResp.Body.Close()
	}
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"jsonrpc":"2.0","method":"echo","params":{"x":true},"id":1}`)))

	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Nil(t, resp.Error)
	assert.Equal(t, json.RawMessage(`1`), resp.ID)

	// A second envelope on the same connection.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"jsonrpc":"2.0","method":"nope","id":2}`)))
	_, raw, err = conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
}
