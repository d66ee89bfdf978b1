package sonos

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siacavazzi/amogus-sonos-connector/internal/domain/device"
)

type recordedCall struct {
	path   string
	action string
	body   string
}

// newTestServer runs a fake speaker endpoint recording SOAP calls.
func newTestServer(t *testing.T, status int) (*httptest.Server, *[]recordedCall) {
	t.Helper()
	calls := &[]recordedCall{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*calls = append(*calls, recordedCall{
			path:   r.URL.Path,
			action: r.Header.Get("SOAPACTION"),
			body:   string(body),
		})
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

func testClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(map[string]any{"timeout_ms": 1000})
	require.NoError(t, err)
	return c
}

func TestClient_PlaySequence(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK)
	dev := device.Device{Name: "Kitchen", Address: strings.TrimPrefix(srv.URL, "http://")}

	c := testClient(t)
	require.NoError(t, c.Play(context.Background(), dev, "https://assets.example.com/meeting.mp3", true))

	require.Len(t, *calls, 3)

	setURI := (*calls)[0]
	assert.Equal(t, "/MediaRenderer/AVTransport/Control", setURI.path)
	assert.Equal(t, `"urn:schemas-upnp-org:service:AVTransport:1#SetAVTransportURI"`, setURI.action)
	assert.Contains(t, setURI.body, "<CurrentURI>https://assets.example.com/meeting.mp3</CurrentURI>")

	setMode := (*calls)[1]
	assert.Equal(t, `"urn:schemas-upnp-org:service:AVTransport:1#SetPlayMode"`, setMode.action)
	assert.Contains(t, setMode.body, "<NewPlayMode>REPEAT_ONE</NewPlayMode>")

	play := (*calls)[2]
	assert.Equal(t, `"urn:schemas-upnp-org:service:AVTransport:1#Play"`, play.action)
}

func TestClient_PlayOneShotUsesNormalMode(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK)
	dev := device.Device{Address: strings.TrimPrefix(srv.URL, "http://")}

	c := testClient(t)
	require.NoError(t, c.Play(context.Background(), dev, "https://assets.example.com/dead.mp3", false))
	require.Len(t, *calls, 3)
	assert.Contains(t, (*calls)[1].body, "<NewPlayMode>NORMAL</NewPlayMode>")
}

func TestClient_SetVolumeClamped(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK)
	dev := device.Device{Address: strings.TrimPrefix(srv.URL, "http://")}

	c := testClient(t)
	require.NoError(t, c.SetVolume(context.Background(), dev, 150))

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, "/MediaRenderer/RenderingControl/Control", call.path)
	assert.Equal(t, `"urn:schemas-upnp-org:service:RenderingControl:1#SetVolume"`, call.action)
	assert.Contains(t, call.body, "<DesiredVolume>100</DesiredVolume>")
}

func TestClient_UPnPFault(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusInternalServerError)
	dev := device.Device{Address: strings.TrimPrefix(srv.URL, "http://")}

	c := testClient(t)
	err := c.Stop(context.Background(), dev)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCommandFailed))
}

func TestClient_UnreachableDevice(t *testing.T) {
	c := testClient(t)
	err := c.Ping(context.Background(), device.Device{Address: "127.0.0.1:1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCommandFailed))
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, 1400, c.port)
	assert.Equal(t, "10.0.0.5:1400", c.hostPort("10.0.0.5"))
	assert.Equal(t, "10.0.0.5:1401", c.hostPort("10.0.0.5:1401"))
}

func TestNew_BadSettings(t *testing.T) {
	_, err := New(map[string]any{"port": "not-a-number"})
	assert.Error(t, err)
}
