// Package gateway provides the websocket connection to the game server.
package gateway

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"
)

// Errors
var (
	ErrTransport       = errors.New("transport failure")
	ErrJoinRejected    = errors.New("server rejected room join")
	ErrInvalidRoomCode = errors.New("invalid room code")
)

// Event names on the wire.
const (
	EventJoin   = "sonos_join"
	EventJoined = "sonos_joined"
	EventError  = "sonos_error"
	EventPlay   = "play_sound"
	EventLoop   = "loop_sound"
	EventStop   = "stop_sound"
)

// Message is the JSON envelope every frame carries. Fields beyond the
// recognized ones are ignored.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// joinPayload is sent to subscribe to the room-scoped channel.
type joinPayload struct {
	RoomCode string `json:"room_code"`
	Channel  string `json:"channel"`
	ClientID string `json:"client_id"`
}

// errorPayload is the body of a sonos_error frame.
type errorPayload struct {
	Message string `json:"message"`
}

// NormalizeRoomCode uppercases and validates a user-supplied room code.
// Codes are exactly four alphanumeric characters.
func NormalizeRoomCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 4 {
		return "", errors.Wrapf(ErrInvalidRoomCode, "%q: must be 4 characters", code)
	}
	for _, c := range code {
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return "", errors.Wrapf(ErrInvalidRoomCode, "%q: letters and digits only", code)
		}
	}
	return code, nil
}

// ChannelName returns the room-scoped channel the connector subscribes to.
func ChannelName(roomCode string) string {
	return "sonos_" + roomCode
}

// Config holds one connection's parameters.
type Config struct {
	ServerURL   string        // http(s) server address, converted to ws(s)
	RoomCode    string        // normalized 4-character code
	ClientID    string        // connector instance ID sent with the join
	JoinTimeout time.Duration // how long to wait for the join ack
}

// Client is a single websocket connection lifetime. Reconnection is the
// supervisor's concern; a failed client is discarded and re-dialed.
type Client struct {
	conn *websocket.Conn
	cfg  Config
}

// Dial establishes the transport connection.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	wsURL, err := websocketURL(cfg.ServerURL)
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(ErrTransport, "dial %s: %v (HTTP %d)", wsURL, err, resp.StatusCode)
		}
		return nil, errors.Wrapf(ErrTransport, "dial %s: %v", wsURL, err)
	}

	return &Client{conn: conn, cfg: cfg}, nil
}

// Join subscribes to the room channel and waits for the server's ack.
// Frames other than the ack received while waiting are dropped; the
// room is not live until the server confirms it anyway.
func (c *Client) Join() error {
	payload, err := json.Marshal(joinPayload{
		RoomCode: c.cfg.RoomCode,
		Channel:  ChannelName(c.cfg.RoomCode),
		ClientID: c.cfg.ClientID,
	})
	if err != nil {
		return errors.Wrap(err, "failed to marshal join payload")
	}
	if err := c.conn.WriteJSON(Message{Event: EventJoin, Data: payload}); err != nil {
		return errors.Wrapf(ErrTransport, "join write: %v", err)
	}

	timeout := c.cfg.JoinTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	deadline := time.Now().Add(timeout)

	for {
		_ = c.conn.SetReadDeadline(deadline)
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return errors.Wrapf(ErrTransport, "waiting for join ack: %v", err)
		}

		switch msg.Event {
		case EventJoined:
			_ = c.conn.SetReadDeadline(time.Time{})
			return nil
		case EventError:
			var ep errorPayload
			_ = json.Unmarshal(msg.Data, &ep)
			if ep.Message == "" {
				ep.Message = "unknown error"
			}
			return errors.Wrapf(ErrJoinRejected, "room %s: %s", c.cfg.RoomCode, ep.Message)
		default:
			zlog.Debug().Msgf("gateway: dropping %q frame received before join ack", msg.Event)
		}
	}
}

// Read blocks for the next inbound frame. Any error means the
// transport is lost and the client must be discarded.
func (c *Client) Read() (Message, error) {
	var msg Message
	if err := c.conn.ReadJSON(&msg); err != nil {
		return Message{}, errors.Wrapf(ErrTransport, "read: %v", err)
	}
	return msg, nil
}

// Close tears the connection down after a best-effort close frame.
func (c *Client) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

// websocketURL converts the configured server address to its websocket
// endpoint.
func websocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", errors.Wrapf(ErrTransport, "invalid server URL %q: %v", serverURL, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", errors.Wrapf(ErrTransport, "invalid server URL %q: unsupported scheme", serverURL)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}
