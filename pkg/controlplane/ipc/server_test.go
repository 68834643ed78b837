package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/mfcd/pkg/controlplane"
	"github.com/marmos91/mfcd/pkg/mrt/fakemrt"
)

func startTestServer(t *testing.T) (socketPath string, stop func()) {
	t.Helper()
	dir := t.TempDir()
	socketPath = filepath.Join(dir, "mfc_daemon.sock")
	statePath := filepath.Join(dir, "state.json")

	engine := fakemrt.New()
	ifaces := map[string]uint32{"veth-in": 10, "veth-out": 11}
	c := controlplane.NewWithResolver(engine, func(name string) (uint32, error) {
		idx, ok := ifaces[name]
		if !ok {
			return 0, fmt.Errorf("no such interface: %s", name)
		}
		return idx, nil
	})
	srv := New(socketPath, "", statePath, c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Start(ctx)
	}()

	// Give the listener a moment to bind before the first dial.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if conn, err := net.DialTimeout("unix", socketPath, 50*time.Millisecond); err == nil {
			conn.Close()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	return socketPath, func() {
		cancel()
		<-done
	}
}

func roundTrip(t *testing.T, socketPath string, req request) response {
	t.Helper()
	conn, err := net.DialTimeout("unix", socketPath, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	data, err := json.Marshal(req)
	require.NoError(t, err)
	_, err = conn.Write(data)
	require.NoError(t, err)

	buf := make([]byte, maxRequestBytes)
	n, err := conn.Read(buf)
	require.NoError(t, err)

	var resp response
	require.NoError(t, json.Unmarshal(buf[:n], &resp))
	return resp
}

func marshalPayload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestAddShowDelOverSocket(t *testing.T) {
	socketPath, stop := startTestServer(t)
	defer stop()

	addResp := roundTrip(t, socketPath, request{
		Action: ActionAddMFC,
		Payload: marshalPayload(t, addMFCPayload{
			Source: "10.0.1.10", Group: "239.10.20.30", IIF: "veth-in", OIFs: []string{"veth-out"},
		}),
	})
	assert.Equal(t, "success", addResp.Status)

	showResp := roundTrip(t, socketPath, request{Action: ActionShow})
	require.Equal(t, "success", showResp.Status)
	require.NotNil(t, showResp.Payload)
	assert.Len(t, showResp.Payload.MFCRules, 1)
	assert.Len(t, showResp.Payload.VIFMap, 2)

	delResp := roundTrip(t, socketPath, request{
		Action:  ActionDelMFC,
		Payload: marshalPayload(t, delMFCPayload{Source: "10.0.1.10", Group: "239.10.20.30"}),
	})
	assert.Equal(t, "success", delResp.Status)

	showResp = roundTrip(t, socketPath, request{Action: ActionShow})
	assert.Len(t, showResp.Payload.MFCRules, 0)
	assert.Len(t, showResp.Payload.VIFMap, 0)
}

func TestUnknownActionReturnsError(t *testing.T) {
	socketPath, stop := startTestServer(t)
	defer stop()

	resp := roundTrip(t, socketPath, request{Action: "BOGUS"})
	assert.Equal(t, "error", resp.Status)
}

func TestDryRunAddDoesNotMutateState(t *testing.T) {
	socketPath, stop := startTestServer(t)
	defer stop()

	resp := roundTrip(t, socketPath, request{
		Action: ActionAddMFC,
		Payload: marshalPayload(t, addMFCPayload{
			Source: "10.0.1.10", Group: "239.10.20.30", IIF: "veth-in", OIFs: []string{"veth-out"}, DryRun: true,
		}),
	})
	assert.Equal(t, "success", resp.Status)

	showResp := roundTrip(t, socketPath, request{Action: ActionShow})
	assert.Len(t, showResp.Payload.MFCRules, 0)
}
