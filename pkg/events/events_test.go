package events

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulator(t *testing.T) {
	sim := NewSimulator(42)

	tests := []struct {
		name     string
		make     func() Event
		wantType string
		severity string
	}{
		{name: "failed login", make: sim.FailedLogin, wantType: "failed_login", severity: SeverityMedium},
		{name: "brute force", make: sim.BruteForce, wantType: "brute_force", severity: SeverityHigh},
		{name: "exfiltration", make: sim.Exfiltration, wantType: "data_exfiltration", severity: SeverityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := tt.make()
			assert.Equal(t, tt.wantType, ev.Type)
			assert.Equal(t, tt.severity, ev.Severity)
			assert.NotEmpty(t, ev.User)
			assert.NotNil(t, net.ParseIP(ev.IP), "ip %q must parse", ev.IP)
			assert.WithinDuration(t, time.Now().UTC(), ev.Timestamp, time.Minute)
		})
	}
}

func TestHubBroadcastToClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		NewClient(hub, conn)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	// Wait until the hub has processed the registration.
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	want := New("failed_login", "192.0.2.10", "USER_101", SeverityMedium, "test event")
	hub.Broadcast(want)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var got Event
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, want.Type, got.Type)
	assert.Equal(t, want.IP, got.IP)
	assert.Equal(t, want.User, got.User)
	assert.Equal(t, want.Message, got.Message)
}

func TestHubUnregisterOnDisconnect(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		NewClient(hub, conn)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
