package networking

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minigolf/engine/internal/course"
	"minigolf/engine/internal/input"
	"minigolf/engine/internal/logging"
	"minigolf/engine/internal/physics"
	"minigolf/engine/internal/shot"
)

func startHub(t *testing.T, cfg HubConfig) (*Hub, *shot.Session, *httptest.Server) {
	t.Helper()
	session, err := shot.NewSession(physics.DefaultConfig(), course.Reference())
	require.NoError(t, err)
	hub := NewHub(cfg, session, input.NewGate(input.GateConfig{}, logging.NewTestLogger()), logging.NewTestLogger())
	session.AddSink(hub)
	server := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	return hub, session, server
}

func dial(t *testing.T, server *httptest.Server, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	return websocket.DefaultDialer.Dial(url, header)
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHubStreamsSessionAndAppliesCommands(t *testing.T) {
	hub, session, server := startHub(t, HubConfig{})
	conn, _, err := dial(t, server, nil)
	require.NoError(t, err)
	defer conn.Close()

	//1.- The first message is the current session state.
	env := readEnvelope(t, conn)
	require.Equal(t, MessageSnapshot, env.Type)
	assert.Equal(t, session.ID(), env.Snapshot.SessionID)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"aim_left"}`)))
	env = readEnvelope(t, conn)
	require.Equal(t, MessageSnapshot, env.Type)
	assert.InDelta(t, shot.AngleStep, env.Snapshot.Aim.Azimuth, 1e-12)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"moonwalk"}`)))
	env = readEnvelope(t, conn)
	require.Equal(t, MessageError, env.Type)
	assert.Contains(t, env.Error, "unknown command")

	//2.- A hit is announced as an event and each tick as a frame.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"hit"}`)))
	env = readEnvelope(t, conn)
	require.Equal(t, MessageEvent, env.Type)
	assert.Equal(t, shot.EventHit, env.Event.Type)

	session.Step()
	env = readEnvelope(t, conn)
	require.Equal(t, MessageFrame, env.Type)
	assert.Equal(t, 1, env.Frame.Tick)

	//3.- Hitting again mid-flight reports the session error to the sender.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"hit"}`)))
	env = readEnvelope(t, conn)
	require.Equal(t, MessageError, env.Type)
	assert.Equal(t, shot.ErrShotInProgress.Error(), env.Error)

	stats := hub.Stats()
	assert.Equal(t, 1, stats.Clients)
	assert.GreaterOrEqual(t, stats.Broadcasts, int64(3))
}

func TestHubRejectsBeyondCapacity(t *testing.T) {
	_, _, server := startHub(t, HubConfig{MaxClients: 1})
	first, _, err := dial(t, server, nil)
	require.NoError(t, err)
	defer first.Close()
	readEnvelope(t, first)

	_, resp, err := dial(t, server, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHubCapHoldsUnderConcurrentUpgrades(t *testing.T) {
	hub, _, server := startHub(t, HubConfig{MaxClients: 2})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			url := "ws" + strings.TrimPrefix(server.URL, "http")
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err == nil {
				t.Cleanup(func() { conn.Close() })
			}
		}()
	}
	wg.Wait()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, hub.Stats().Clients, 2)
}

func TestHubAdmitRefusesAtCapacity(t *testing.T) {
	hub := NewHub(HubConfig{MaxClients: 1}, nil, nil, logging.NewTestLogger())
	assert.True(t, hub.admit(&client{id: "a"}))
	assert.False(t, hub.admit(&client{id: "b"}))
	assert.Equal(t, 1, hub.Stats().Clients)
}

func TestHubChecksOrigin(t *testing.T) {
	_, _, server := startHub(t, HubConfig{AllowedOrigins: []string{"https://golf.example"}})

	_, resp, err := dial(t, server, http.Header{"Origin": []string{"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := dial(t, server, http.Header{"Origin": []string{"https://golf.example"}})
	require.NoError(t, err)
	conn.Close()
}

func TestBandwidthRegulatorSkipsOverBudget(t *testing.T) {
	now := time.Unix(0, 0)
	regulator := NewBandwidthRegulator(100, func() time.Time { return now })

	assert.True(t, regulator.Allow("a", 60))
	assert.False(t, regulator.Allow("a", 50))
	now = now.Add(500 * time.Millisecond)
	assert.True(t, regulator.Allow("a", 50))
	assert.True(t, regulator.Allow("", 1000))

	usage := regulator.Usage()["a"]
	assert.Equal(t, int64(110), usage.SentBytes)
	assert.Equal(t, int64(1), usage.Denied)
	assert.InDelta(t, 40, usage.AvailableBytes, 1e-9)

	regulator.Forget("a")
	assert.Empty(t, regulator.Usage())
}
