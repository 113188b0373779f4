package server

import (
	"context"
	"encoding/json"
	"image"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jordanella.com/linemod/internal/detection"
	"jordanella.com/linemod/internal/logging"
	"jordanella.com/linemod/internal/testutil"
)

func newTestServer() *Server {
	status := func() map[string]any {
		return map[string]any{"objects": 2, "templates": 5}
	}
	config := func() map[string]any {
		return map[string]any{"threshold": 90.0}
	}
	return New(":0", status, config, logging.Discard())
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 || rec.Body.String() != "ok" {
		t.Fatalf("unexpected response: %d %q", rec.Code, rec.Body.String())
	}
}

func TestHandleStatus(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest("GET", "/status", nil)
	rec := httptest.NewRecorder()
	srv.handleStatus(rec, req)

	if rec.Code != 200 {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["templates"].(float64) != 5 {
		t.Fatalf("unexpected templates: %v", payload["templates"])
	}
	if payload["ws_clients"].(float64) != 0 {
		t.Fatalf("unexpected ws_clients: %v", payload["ws_clients"])
	}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func TestWebsocketReceivesConfigAndBroadcasts(t *testing.T) {
	srv := newTestServer()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dial(t, ts.URL)

	var hello map[string]any
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "config", hello["type"])
	assert.Equal(t, 90.0, hello["threshold"])
	assert.Equal(t, 1, srv.ClientCount())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages := make(chan any, 1)
	go srv.Broadcast(ctx, messages)

	messages <- NewFrameMessage(3, []detection.Result{{
		ObjectID:    "cup",
		Location:    image.Pt(4, 8),
		Score:       97,
		Rotation:    testutil.IdentityRotation(),
		Translation: testutil.Translation(0, 0, 1),
	}})

	var msg struct {
		Type    string `json:"type"`
		Frame   int    `json:"frame"`
		Results []struct {
			ObjectID    string    `json:"object_id"`
			X           int       `json:"x"`
			Translation []float64 `json:"translation"`
		} `json:"results"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "detections", msg.Type)
	assert.Equal(t, 3, msg.Frame)
	require.Len(t, msg.Results, 1)
	assert.Equal(t, "cup", msg.Results[0].ObjectID)
	assert.Equal(t, 4, msg.Results[0].X)
	assert.Equal(t, []float64{0, 0, 1}, msg.Results[0].Translation)
}

func TestWebsocketStatusRequest(t *testing.T) {
	srv := newTestServer()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dial(t, ts.URL)
	var hello map[string]any
	require.NoError(t, conn.ReadJSON(&hello))

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "status_request"}))
	var status map[string]any
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, "status", status["type"])
	assert.Equal(t, 2.0, status["objects"])
	assert.Equal(t, 1.0, status["ws_clients"])
}

func TestFrameMessageNeverHasNullResults(t *testing.T) {
	data, err := json.Marshal(NewFrameMessage(0, nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"detections","frame":0,"results":[]}`, string(data))
}
