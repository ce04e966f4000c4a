package stream

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEndpoint(t *testing.T, streamID string) (*Endpoint, *Hub) {
	t.Helper()
	hub := NewHub(nil)
	ep, err := NewEndpoint(hub, streamID, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ep.Close() })
	return ep, hub
}

// dialEndpoint connects to the endpoint the way a child process would.
func dialEndpoint(t *testing.T, ep *Endpoint) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", ep.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendJSON(t *testing.T, conn net.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, WriteFrame(conn, data))
}

func TestEndpoint_DeliversFrames(t *testing.T) {
	t.Parallel()
	ep, hub := newTestEndpoint(t, "spectrum")
	sub := hub.Subscribe("spectrum")
	defer sub.Cancel()

	conn := dialEndpoint(t, ep)
	sendJSON(t, conn, map[string]any{"payload": map[string]any{"db": -3.5}})

	select {
	case msg := <-sub.Messages():
		assert.Equal(t, "spectrum", msg.StreamID)
		assert.Equal(t, map[string]any{"db": -3.5}, msg.Payload)
	case <-time.After(5 * time.Second):
		t.Fatal("frame was not delivered")
	}
}

func TestEndpoint_OrderPreserved(t *testing.T) {
	t.Parallel()
	ep, hub := newTestEndpoint(t, "scope")
	sub := hub.SubscribeBuffered("scope", 2000)
	defer sub.Cancel()

	conn := dialEndpoint(t, ep)
	const count = 1000
	for i := range count {
		sendJSON(t, conn, map[string]any{"seq": i})
	}

	for i := range count {
		select {
		case msg := <-sub.Messages():
			payload, ok := msg.Payload.(map[string]any)
			require.True(t, ok)
			require.Equal(t, float64(i), payload["seq"], "frame %d out of order", i)
		case <-time.After(5 * time.Second):
			t.Fatalf("frame %d never arrived", i)
		}
	}
}

func TestEndpoint_MalformedFrameDoesNotKillConnection(t *testing.T) {
	t.Parallel()
	ep, hub := newTestEndpoint(t, "scope")
	sub := hub.Subscribe("scope")
	defer sub.Cancel()

	conn := dialEndpoint(t, ep)
	require.NoError(t, WriteFrame(conn, []byte("not json")))
	sendJSON(t, conn, map[string]any{"payload": 1})

	// The bad frame is dropped; the good one behind it still arrives.
	select {
	case msg := <-sub.Messages():
		assert.Equal(t, float64(1), msg.Payload)
	case <-time.After(5 * time.Second):
		t.Fatal("valid frame after a malformed one was lost")
	}
}

func TestEndpoint_OversizedFrameDropsConnection(t *testing.T) {
	t.Parallel()
	ep, hub := newTestEndpoint(t, "scope")
	sub := hub.Subscribe("scope")
	defer sub.Cancel()

	conn := dialEndpoint(t, ep)
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], MaxFrameSize+1)
	_, err := conn.Write(header[:])
	require.NoError(t, err)

	// The endpoint closes the poisoned connection; a reconnect works.
	assert.Eventually(t, func() bool {
		one := make([]byte, 1)
		_ = conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		_, readErr := conn.Read(one)
		return readErr != nil
	}, 5*time.Second, 50*time.Millisecond, "connection should be closed by the endpoint")

	fresh := dialEndpoint(t, ep)
	sendJSON(t, fresh, map[string]any{"payload": "recovered"})
	select {
	case msg := <-sub.Messages():
		assert.Equal(t, "recovered", msg.Payload)
	case <-time.After(5 * time.Second):
		t.Fatal("endpoint did not accept a new connection")
	}
}

func TestEndpoint_MultipleConnections(t *testing.T) {
	t.Parallel()
	ep, hub := newTestEndpoint(t, "scope")
	sub := hub.SubscribeBuffered("scope", 64)
	defer sub.Cancel()

	for i := range 3 {
		conn := dialEndpoint(t, ep)
		sendJSON(t, conn, map[string]any{"payload": fmt.Sprintf("conn%d", i)})
	}

	seen := make(map[any]bool)
	for range 3 {
		select {
		case msg := <-sub.Messages():
			seen[msg.Payload] = true
		case <-time.After(5 * time.Second):
			t.Fatal("frame missing")
		}
	}
	assert.Len(t, seen, 3)
}

func TestEndpoint_Close(t *testing.T) {
	t.Parallel()
	hub := NewHub(nil)
	ep, err := NewEndpoint(hub, "scope", nil)
	require.NoError(t, err)

	conn := dialEndpoint(t, ep)
	require.NoError(t, ep.Close())

	// Live connections are torn down with the endpoint.
	one := make([]byte, 1)
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, readErr := conn.Read(one)
	assert.Error(t, readErr)

	// A second close changes nothing, and says so.
	require.ErrorIs(t, ep.Close(), ErrEndpointClosed)

	_, dialErr := net.DialTimeout("tcp", ep.Addr(), 500*time.Millisecond)
	if dialErr == nil {
		t.Error("endpoint still accepting after Close")
	}
}
