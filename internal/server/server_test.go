package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"codeberg.org/nexustouch/perfd/internal/errors"
	"codeberg.org/nexustouch/perfd/internal/logger"
	"codeberg.org/nexustouch/perfd/internal/perf"
	"codeberg.org/nexustouch/perfd/internal/server"
	"codeberg.org/nexustouch/perfd/internal/session"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	hub     *server.Hub
	metrics *server.Metrics
	reg     *prometheus.Registry
	ts      *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	policy := perf.DefaultPolicy()
	policy.InitialDelay = time.Hour

	reg := prometheus.NewRegistry()
	metrics := server.NewMetrics(reg)
	hub := server.NewHub(server.HubOptions{
		Policy:      policy,
		InitialMode: perf.ModeAuto,
		Metrics:     metrics,
	})
	srv := server.New("127.0.0.1:0", hub, reg, metrics, nopLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &fixture{hub: hub, metrics: metrics, reg: reg, ts: ts}
}

func (f *fixture) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn, kind string) session.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var m session.Message
		require.NoError(t, conn.ReadJSON(&m))
		if m.Type == kind {
			return m
		}
	}
}

func closeConn(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	conn.Close()
}

func TestSessionWebsocket(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "/v1/session")
	defer closeConn(t, conn)

	hello := readMessage(t, conn, session.MessageHello)
	assert.Equal(t, perf.ModeFull, hello.Mode)
	assert.Equal(t, perf.ModeAuto, hello.Selected)
	assert.NotEmpty(t, hello.Session)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`garbage`)))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "pointerdown", "at": 10, "id": 1}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "pointerup", "at": 260, "id": 1}))

	snap := readMessage(t, conn, session.MessageSnapshot)
	require.NotNil(t, snap.Snapshot)
	assert.Equal(t, 250*time.Millisecond, snap.Snapshot.TouchLatency.Last)

	mode := readMessage(t, conn, session.MessageMode)
	assert.Equal(t, perf.ModeMinimal, mode.Mode)
	assert.Equal(t, perf.ReasonLatencySpike, mode.Reason)

	assert.Equal(t, 1, f.hub.Len())
	body := scrape(t, f)
	assert.Contains(t, body, "perfd_sessions 1")
	assert.Contains(t, body, `perfd_mode_changes_total{reason="latency_spike",to="minimal"} 1`)
	assert.Contains(t, body, `perfd_active_mode{mode="minimal"} 1`)
	assert.Contains(t, body, `perfd_active_mode{mode="full"} 0`)
	assert.Contains(t, body, "perfd_touch_latency_ms_count 1")
	assert.Contains(t, body, "perfd_malformed_events_total 1")

	closeConn(t, conn)
	assert.Eventually(t, func() bool { return f.hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return strings.Contains(scrape(t, f), "perfd_sessions 0")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSessionRejectsUnknownMode(t *testing.T) {
	f := newFixture(t)
	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/v1/session?mode=turbo"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionInitialModeFromQuery(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "/v1/session?mode=reduced")
	defer closeConn(t, conn)

	hello := readMessage(t, conn, session.MessageHello)
	assert.Equal(t, perf.ModeReduced, hello.Mode)
	assert.Equal(t, perf.ModeReduced, hello.Selected)
}

func TestObserveStream(t *testing.T) {
	f := newFixture(t)
	observer := f.dial(t, "/v1/observe")
	defer closeConn(t, observer)

	client := f.dial(t, "/v1/session")
	hello := readMessage(t, client, session.MessageHello)

	require.NoError(t, client.WriteJSON(map[string]any{"type": "select", "at": 0, "mode": "minimal"}))
	readMessage(t, client, session.MessageMode)

	seen := readMessage(t, observer, session.MessageHello)
	assert.Equal(t, hello.Session, seen.Session)
	change := readMessage(t, observer, session.MessageMode)
	assert.Equal(t, hello.Session, change.Session)
	assert.Equal(t, perf.ModeMinimal, change.Mode)
	assert.Equal(t, perf.ReasonSelected, change.Reason)

	closeConn(t, client)
	closed := readMessage(t, observer, session.MessageClosed)
	assert.Equal(t, hello.Session, closed.Session)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	var body struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal([]byte(get(t, f, "/healthz")), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Zero(t, body.Sessions)
}

func TestHubUpdatePolicyReachesNewSessions(t *testing.T) {
	f := newFixture(t)

	p := perf.DefaultPolicy()
	p.InitialDelay = time.Hour
	p.SpikeLatency = time.Second
	f.hub.UpdatePolicy(p)

	conn := f.dial(t, "/v1/session")
	defer closeConn(t, conn)
	readMessage(t, conn, session.MessageHello)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "pointerdown", "at": 0, "id": 1}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "pointerup", "at": 300, "id": 1}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "select", "at": 301, "mode": "reduced"}))

	m := readMessage(t, conn, session.MessageMode)
	assert.Equal(t, perf.ReasonSelected, m.Reason, "300ms is below the reloaded spike threshold")
}

func get(t *testing.T, f *fixture, path string) string {
	t.Helper()
	resp, err := http.Get(f.ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func scrape(t *testing.T, f *fixture) string {
	return get(t, f, "/metrics")
}

func nopLogger() logger.Logger {
	return logger.Nop()
}

func TestRunStopsOnCancel(t *testing.T) {
	reg := prometheus.NewRegistry()
	hub := server.NewHub(server.HubOptions{Policy: perf.DefaultPolicy()})
	srv := server.New("127.0.0.1:0", hub, reg, nil, nopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunReportsListenError(t *testing.T) {
	hub := server.NewHub(server.HubOptions{})
	srv := server.New("256.0.0.1:bad", hub, prometheus.NewRegistry(), nil, nopLogger())

	err := srv.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrListen))
}
