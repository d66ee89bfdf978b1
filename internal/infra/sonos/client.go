// Package sonos provides the UPnP control adapter for Sonos speakers.
package sonos

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/siacavazzi/amogus-sonos-connector/internal/domain/device"
)

// ErrCommandFailed marks a per-device command failure. It is contained
// at the registry boundary and never propagated as fatal.
var ErrCommandFailed = errors.New("device command failed")

const (
	avTransportService = "urn:schemas-upnp-org:service:AVTransport:1"
	avTransportPath    = "/MediaRenderer/AVTransport/Control"
	renderingService   = "urn:schemas-upnp-org:service:RenderingControl:1"
	renderingPath      = "/MediaRenderer/RenderingControl/Control"
	playModeRepeat     = "REPEAT_ONE"
	playModeNormal     = "NORMAL"
)

// Options is the control adapter configuration, decoded from the
// free-form control.settings config map.
type Options struct {
	Port      int `yaml:"port" mapstructure:"port" default:"1400" validate:"gte=1,lte=65535"`
	TimeoutMs int `yaml:"timeout_ms" mapstructure:"timeout_ms" default:"5000" validate:"gte=100"`
}

// Client speaks the Sonos UPnP control protocol over HTTP. A single
// client serves every speaker; calls are addressed by device.
type Client struct {
	httpClient *http.Client
	port       int
	scheme     string // overridable for tests
}

// New creates a client from a settings map.
func New(settings map[string]any) (*Client, error) {
	var opts Options
	if err := mapstructure.Decode(settings, &opts); err != nil {
		return nil, errors.Wrap(err, "failed to decode control settings")
	}
	if err := defaults.Set(&opts); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(opts); err != nil {
		return nil, errors.Wrap(err, "invalid control settings")
	}

	return &Client{
		httpClient: &http.Client{Timeout: time.Duration(opts.TimeoutMs) * time.Millisecond},
		port:       opts.Port,
		scheme:     "http",
	}, nil
}

// Play makes the speaker fetch and play the given audio URL. A looping
// play sets REPEAT_ONE so the track restarts until explicitly stopped.
func (c *Client) Play(ctx context.Context, dev device.Device, url string, loop bool) error {
	if err := c.soap(ctx, dev, avTransportPath, avTransportService, "SetAVTransportURI",
		"<CurrentURI>"+xmlEscape(url)+"</CurrentURI><CurrentURIMetaData></CurrentURIMetaData>"); err != nil {
		return err
	}

	mode := playModeNormal
	if loop {
		mode = playModeRepeat
	}
	if err := c.soap(ctx, dev, avTransportPath, avTransportService, "SetPlayMode",
		"<NewPlayMode>"+mode+"</NewPlayMode>"); err != nil {
		return err
	}

	return c.soap(ctx, dev, avTransportPath, avTransportService, "Play", "<Speed>1</Speed>")
}

// Stop halts playback on the speaker.
func (c *Client) Stop(ctx context.Context, dev device.Device) error {
	return c.soap(ctx, dev, avTransportPath, avTransportService, "Stop", "")
}

// SetVolume sets the master channel volume, clamped to 0-100.
func (c *Client) SetVolume(ctx context.Context, dev device.Device, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return c.soap(ctx, dev, renderingPath, renderingService, "SetVolume",
		"<Channel>Master</Channel><DesiredVolume>"+strconv.Itoa(percent)+"</DesiredVolume>")
}

// Ping checks the speaker is reachable and answering transport queries.
func (c *Client) Ping(ctx context.Context, dev device.Device) error {
	return c.soap(ctx, dev, avTransportPath, avTransportService, "GetTransportInfo", "")
}

// soap issues one UPnP action against the device's control endpoint.
func (c *Client) soap(ctx context.Context, dev device.Device, path, service, action, args string) error {
	body := fmt.Sprintf(
		`<?xml version="1.0" encoding="utf-8"?>`+
			`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">`+
			`<s:Body><u:%s xmlns:u="%s"><InstanceID>0</InstanceID>%s</u:%s></s:Body></s:Envelope>`,
		action, service, args, action)

	endpoint := c.scheme + "://" + c.hostPort(dev.Address) + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(body))
	if err != nil {
		return errors.Wrapf(ErrCommandFailed, "%s: building request: %v", action, err)
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPACTION", fmt.Sprintf(`"%s#%s"`, service, action))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(ErrCommandFailed, "%s on %s: %v", action, dev, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		fault, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		zlog.Debug().Msgf("sonos: %s on %s returned %d: %s", action, dev, resp.StatusCode, fault)
		return errors.Wrapf(ErrCommandFailed, "%s on %s: HTTP %d", action, dev, resp.StatusCode)
	}
	return nil
}

// hostPort appends the control port when the address has none.
func (c *Client) hostPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(c.port))
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
