package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpcgo "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"minigolf/engine/internal/config"
	rpc "minigolf/engine/internal/grpc"
	"minigolf/engine/internal/logging"
	"minigolf/engine/internal/physics"
	"minigolf/engine/internal/shot"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	defaults := physics.DefaultConfig()
	return &config.Config{
		Address:         "127.0.0.1:0",
		GRPCAddress:     "127.0.0.1:0",
		AdminToken:      "operator",
		MaxPayloadBytes: config.DefaultMaxPayloadBytes,
		PingInterval:    config.DefaultPingInterval,
		MaxClients:      config.DefaultMaxClients,
		TickHz:          240,
		MaxShotTicks:    30,
		ReplayDir:       t.TempDir(),
		ReplayMaxShots:  config.DefaultReplayMaxShots,
		ReplayMaxAge:    config.DefaultReplayMaxAge,
		Gravity:         defaults.Gravity,
		BounceFactor:    defaults.BounceFactor,
		FrictionFactor:  defaults.FrictionFactor,
		MaxLaunchSpeed:  defaults.MaxLaunchSpeed,
	}
}

func TestServerPlaysShotEndToEnd(t *testing.T) {
	srv, err := newServer(testConfig(t), logging.NewTestLogger())
	require.NoError(t, err)

	httpListener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	grpcListener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.serve(ctx, httpListener, grpcListener) }()

	base := "http://" + httpListener.Addr().String()

	//1.- Hit through the operator endpoint and let the tick loop finish the stroke.
	req, err := http.NewRequest(http.MethodPost, base+"/command", strings.NewReader(`{"type":"hit"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer operator")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/state")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var snapshot shot.Snapshot
		if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
			return false
		}
		return snapshot.Shot == 1 && !snapshot.InMotion && snapshot.Tick == 30
	}, 5*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool { return srv.recorder.Stats().Bundles == 1 }, time.Second, 10*time.Millisecond)

	//2.- The RPC surface simulates independently of the live session.
	conn, err := grpcgo.NewClient(grpcListener.Addr().String(), grpcgo.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	in, err := structpb.NewStruct(map[string]any{"max_ticks": 10.0})
	require.NoError(t, err)
	out, err := rpc.NewClient(conn).Simulate(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, float64(10), out.GetFields()["ticks"].GetNumberValue())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.False(t, srv.recorder.Stats().Recording)
}

func TestNewServerRejectsInvalidPhysics(t *testing.T) {
	cfg := testConfig(t)
	cfg.BounceFactor = 1.5
	_, err := newServer(cfg, logging.NewTestLogger())
	assert.ErrorContains(t, err, "physics")
}
