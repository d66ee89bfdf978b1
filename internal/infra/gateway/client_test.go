package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRoomCode(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		want    string
		wantErr bool
	}{
		{name: "lowercase normalized", code: "abcd", want: "ABCD"},
		{name: "whitespace trimmed", code: " xk42 ", want: "XK42"},
		{name: "too short", code: "abc", wantErr: true},
		{name: "too long", code: "abcde", wantErr: true},
		{name: "empty", code: "", wantErr: true},
		{name: "punctuation rejected", code: "ab-d", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeRoomCode(tt.code)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidRoomCode))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChannelName(t *testing.T) {
	assert.Equal(t, "sonos_ABCD", ChannelName("ABCD"))
}

var upgrader = websocket.Upgrader{}

// newGameServer runs a fake game server whose handler drives one
// websocket session.
func newGameServer(t *testing.T, session func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ws", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		session(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(serverURL string) Config {
	return Config{
		ServerURL:   serverURL,
		RoomCode:    "ABCD",
		ClientID:    "test-client",
		JoinTimeout: 2 * time.Second,
	}
}

func TestClient_JoinHandshake(t *testing.T) {
	joined := make(chan joinPayload, 1)
	srv := newGameServer(t, func(conn *websocket.Conn) {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		require.Equal(t, EventJoin, msg.Event)

		var jp joinPayload
		require.NoError(t, json.Unmarshal(msg.Data, &jp))
		joined <- jp

		require.NoError(t, conn.WriteJSON(Message{Event: EventJoined}))

		// Keep the session open until the client closes.
		_, _, _ = conn.ReadMessage()
	})

	client, err := Dial(context.Background(), testConfig(srv.URL))
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Join())

	jp := <-joined
	assert.Equal(t, "ABCD", jp.RoomCode)
	assert.Equal(t, "sonos_ABCD", jp.Channel)
	assert.Equal(t, "test-client", jp.ClientID)
}

func TestClient_JoinRejected(t *testing.T) {
	srv := newGameServer(t, func(conn *websocket.Conn) {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		data, _ := json.Marshal(errorPayload{Message: "room not found"})
		require.NoError(t, conn.WriteJSON(Message{Event: EventError, Data: data}))
	})

	client, err := Dial(context.Background(), testConfig(srv.URL))
	require.NoError(t, err)
	defer client.Close()

	err = client.Join()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrJoinRejected))
	assert.Contains(t, err.Error(), "room not found")
}

func TestClient_ReadEvents(t *testing.T) {
	srv := newGameServer(t, func(conn *websocket.Conn) {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		require.NoError(t, conn.WriteJSON(Message{Event: EventJoined}))

		data, _ := json.Marshal(map[string]any{"sound": "meeting"})
		require.NoError(t, conn.WriteJSON(Message{Event: EventPlay, Data: data}))
	})

	client, err := Dial(context.Background(), testConfig(srv.URL))
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Join())

	msg, err := client.Read()
	require.NoError(t, err)
	assert.Equal(t, EventPlay, msg.Event)
	assert.JSONEq(t, `{"sound":"meeting"}`, string(msg.Data))

	// Server closed the session after one event; the next read reports
	// transport loss.
	_, err = client.Read()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
}

func TestClient_DialRefused(t *testing.T) {
	_, err := Dial(context.Background(), testConfig("http://127.0.0.1:1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
}

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "https to wss", in: "https://party.example.com", want: "wss://party.example.com/ws"},
		{name: "http to ws", in: "http://localhost:8080", want: "ws://localhost:8080/ws"},
		{name: "explicit path kept", in: "https://party.example.com/socket", want: "wss://party.example.com/socket"},
		{name: "bad scheme", in: "ftp://party.example.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := websocketURL(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
