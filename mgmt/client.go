/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package mgmt is the typed management facade built on top of coap,
// cbor and sid: Ping, Identify, YANG CRUD+RPC, firmware update and the
// vendor save/reset operations a VelocityDRIVE-SP device exposes.
package mgmt

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/runzeroinc/velctl/cbor"
	"github.com/runzeroinc/velctl/coap"
	"github.com/runzeroinc/velctl/mgmt/fwver"
	"github.com/runzeroinc/velctl/sid"
	"github.com/runzeroinc/velctl/transport"
)

// ConnState is the client's connection lifecycle state.
type ConnState int32

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Disconnecting
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return "?"
	}
}

// Model identifies the switch family a device reports.
type Model int

const (
	Unknown Model = iota
	LAN9662
	LAN9668
	LAN9692
)

func (m Model) String() string {
	switch m {
	case LAN9662:
		return "LAN9662"
	case LAN9668:
		return "LAN9668"
	case LAN9692:
		return "LAN9692"
	default:
		return "Unknown"
	}
}

func modelForPortCount(n int) Model {
	switch n {
	case 2:
		return LAN9662
	case 8:
		return LAN9668
	case 12:
		return LAN9692
	default:
		return Unknown
	}
}

// DeviceInfo is the result of Identify.
type DeviceInfo struct {
	Model           Model
	PortCount       int
	Checksum        uint64
	FirmwareVersion string
}

// SupportsBlock2 is a non-fatal capability hint derived from
// FirmwareVersion; an unparsed version just yields false rather than
// an error, since devices remain the authority on what they accept.
func (d DeviceInfo) SupportsBlock2() bool {
	return fwver.Supports(d.FirmwareVersion, fwver.CapabilityBlock2)
}

const (
	pathYANGLibraryChecksum = "ietf-constrained-yang-library:yang-library/checksum"
	pathInterfaces          = "ietf-interfaces:interfaces"
	pathFirmwareVersion     = "mchp-velocitysp-system:system/firmware-version"

	pathFirmwareUpgrade = "mchp-velocitysp-firmware:firmware-upgrade"
	pathSaveConfig      = "mchp-velocitysp-system:system/save-config"
	pathReset           = "mchp-velocitysp-system:system/reset"
)

// Client is the management facade over one device connection.
type Client struct {
	eng *coap.Engine
	tbl *sid.Table
	log *logrus.Entry

	engineOpts []coap.Option
	state      atomic.Int32
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithLogger attaches a logrus entry used for connection-lifecycle
// and RPC warnings.
func WithLogger(log *logrus.Entry) Option {
	return func(c *Client) { c.log = log }
}

// WithEngineOptions passes through coap.Engine options (retry policy,
// metrics sink) at construction time.
func WithEngineOptions(opts ...coap.Option) Option {
	return func(c *Client) { c.engineOpts = append(c.engineOpts, opts...) }
}

// New builds a Client over transport t, using tbl to resolve YANG
// paths to SIDs for CBOR encoding. The connection starts Disconnected;
// call Connect to ping the device and transition to Connected.
func New(t transport.Transport, tbl *sid.Table, opts ...Option) *Client {
	c := &Client{
		tbl: tbl,
		log: logrus.WithField("component", "mgmt.client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.eng = coap.NewEngine(t, append([]coap.Option{coap.WithLogger(c.log)}, c.engineOpts...)...)
	return c
}

// State reports the client's current connection state.
func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Client) setState(s ConnState) {
	c.state.Store(int32(s))
}

// Connect transitions Disconnected -> Connecting -> Connected, the
// latter requiring a successful Ping.
func (c *Client) Connect(ctx context.Context) error {
	c.setState(Connecting)
	if err := c.Ping(ctx); err != nil {
		c.setState(Disconnected)
		return err
	}
	c.setState(Connected)
	return nil
}

// Disconnect transitions Connected -> Disconnecting -> Disconnected
// and releases the underlying transport.
func (c *Client) Disconnect() error {
	c.setState(Disconnecting)
	err := c.eng.Close()
	c.setState(Disconnected)
	return err
}

// Ping issues a MUP1 ping and succeeds on a matching reply within 2s.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.eng.Ping(ctx)
}

// Identify reads the YANG library checksum and interface list and
// infers the device model from its populated port count. An
// unrecognised port count yields Model Unknown rather than an error.
func (c *Client) Identify(ctx context.Context) (DeviceInfo, error) {
	var info DeviceInfo

	checksumResp, err := c.yangGet(ctx, pathYANGLibraryChecksum)
	if err != nil {
		return info, fmt.Errorf("mgmt: identify checksum: %w", err)
	}
	if v, ok := toUint64(checksumResp); ok {
		info.Checksum = v
	}

	ifResp, err := c.yangGet(ctx, pathInterfaces)
	if err != nil {
		return info, fmt.Errorf("mgmt: identify interfaces: %w", err)
	}
	info.PortCount = countInterfaces(ifResp)
	info.Model = modelForPortCount(info.PortCount)

	fwResp, err := c.yangGet(ctx, pathFirmwareVersion)
	if err != nil {
		return info, fmt.Errorf("mgmt: identify firmware version: %w", err)
	}
	if v, ok := fwResp.(string); ok {
		info.FirmwareVersion = v
	}

	return info, nil
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case uint32:
		return uint64(n), true
	case int64:
		if n >= 0 {
			return uint64(n), true
		}
	}
	return 0, false
}

func countInterfaces(v any) int {
	m, ok := v.(interface{ Len() int })
	if !ok {
		return 0
	}
	return m.Len()
}

// YANGGet issues a CoAP GET for path, decoding the response body with
// the client's SID table.
func (c *Client) YANGGet(ctx context.Context, path string) (any, error) {
	return c.yangGet(ctx, path)
}

func (c *Client) yangGet(ctx context.Context, path string) (any, error) {
	accept := uint16(coap.ContentYANGDataCBOR)
	resp, err := c.eng.Do(ctx, coap.Request{
		Method:      coap.CodeGet,
		Path:        path,
		Accept:      &accept,
		Confirmable: true,
	})
	if err != nil {
		return nil, err
	}
	return c.decode(resp.Payload)
}

// YANGSet issues a CoAP PUT for path carrying value, validated against
// the SID table's declared datatype before being sent.
func (c *Client) YANGSet(ctx context.Context, path string, value any) error {
	if err := c.tbl.Validate(path, value); err != nil {
		return fmt.Errorf("mgmt: yang-set %s: %w", path, err)
	}
	payload, err := c.encode(value)
	if err != nil {
		return fmt.Errorf("mgmt: yang-set %s: encode: %w", path, err)
	}
	format := uint16(coap.ContentYANGDataCBOR)
	_, err = c.eng.Do(ctx, coap.Request{
		Method:        coap.CodePut,
		Path:          path,
		Payload:       payload,
		ContentFormat: &format,
		Confirmable:   true,
	})
	return err
}

// YANGDelete issues a CoAP DELETE for path.
func (c *Client) YANGDelete(ctx context.Context, path string) error {
	_, err := c.eng.Do(ctx, coap.Request{Method: coap.CodeDelete, Path: path, Confirmable: true})
	return err
}

// YANGRPC issues a CoAP POST for path (an RPC/action resource)
// carrying params, returning the decoded response body.
func (c *Client) YANGRPC(ctx context.Context, path string, params any) (any, error) {
	payload, err := c.encode(params)
	if err != nil {
		return nil, fmt.Errorf("mgmt: yang-rpc %s: encode: %w", path, err)
	}
	format := uint16(coap.ContentYANGDataCBOR)
	resp, err := c.eng.Do(ctx, coap.Request{
		Method:        coap.CodePost,
		Path:          path,
		Payload:       payload,
		ContentFormat: &format,
		Confirmable:   true,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Payload) == 0 {
		return nil, nil
	}
	return c.decode(resp.Payload)
}

// FirmwareUpdate streams blob to the vendor firmware-upgrade resource
// via Block1. progress, if non-nil, is called once with (total, total)
// after the device has accepted the whole image; no per-block progress
// is reported, and progress is not called when the transfer fails.
func (c *Client) FirmwareUpdate(ctx context.Context, blob []byte, progress func(sent, total int)) error {
	format := uint16(coap.ContentCBOR)
	total := len(blob)
	_, err := c.eng.Do(ctx, coap.Request{
		Method:        coap.CodePut,
		Path:          pathFirmwareUpgrade,
		Payload:       blob,
		ContentFormat: &format,
		Confirmable:   true,
	})
	if err == nil && progress != nil {
		progress(total, total)
	}
	return err
}

// SaveConfig persists the device's running configuration.
func (c *Client) SaveConfig(ctx context.Context) error {
	_, err := c.eng.Do(ctx, coap.Request{Method: coap.CodePost, Path: pathSaveConfig, Confirmable: true})
	return err
}

// Reset reboots the device.
func (c *Client) Reset(ctx context.Context) error {
	_, err := c.eng.Do(ctx, coap.Request{Method: coap.CodePost, Path: pathReset, Confirmable: true})
	return err
}

func (c *Client) encode(v any) ([]byte, error) {
	return cbor.NewEncoder(c.tbl).Encode(v)
}

func (c *Client) decode(b []byte) (any, error) {
	return cbor.NewDecoder(c.tbl).Decode(b)
}
