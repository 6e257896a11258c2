/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package mgmt

import (
	"context"
	"net"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/runzeroinc/velctl/cbor"
	"github.com/runzeroinc/velctl/coap"
	"github.com/runzeroinc/velctl/mup1"
	"github.com/runzeroinc/velctl/sid"
)

// readFrame blocks until one complete MUP1 frame has been read from conn.
func readFrame(t *testing.T, conn net.Conn) mup1.Frame {
	t.Helper()
	p := mup1.NewParser()
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		assert.NilError(t, err)
		frames := p.Feed(buf[:n])
		if len(frames) > 0 {
			return frames[0]
		}
	}
}

func writeGetResponse(t *testing.T, conn net.Conn, req *coap.Message, payload cbor.Value, tbl *sid.Table) {
	t.Helper()
	body, err := cbor.NewEncoder(tbl).Encode(payload)
	assert.NilError(t, err)
	resp := &coap.Message{
		Version:   1,
		Type:      coap.TypeACK,
		Code:      coap.CodeContent,
		MessageID: req.MessageID,
		Token:     req.Token,
		Payload:   body,
	}
	b, err := coap.Encode(resp)
	assert.NilError(t, err)
	_, err = conn.Write(mup1.Encode(mup1.TypeCoAP, b))
	assert.NilError(t, err)
}

func TestClientPing(t *testing.T) {
	clientConn, deviceConn := net.Pipe()
	c := New(clientConn, sid.Default)
	defer c.Disconnect()

	done := make(chan struct{})
	go func() {
		defer close(done)
		frame := readFrame(t, deviceConn)
		assert.Equal(t, frame.Type, mup1.TypePing)
		_, err := deviceConn.Write(mup1.Encode(mup1.TypePing, nil))
		assert.NilError(t, err)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NilError(t, c.Ping(ctx))
	<-done
}

func TestClientConnectTransitionsState(t *testing.T) {
	clientConn, deviceConn := net.Pipe()
	c := New(clientConn, sid.Default)
	defer c.Disconnect()

	assert.Equal(t, c.State(), Disconnected)

	go func() {
		readFrame(t, deviceConn)
		deviceConn.Write(mup1.Encode(mup1.TypePing, nil))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NilError(t, c.Connect(ctx))
	assert.Equal(t, c.State(), Connected)
}

func TestClientIdentifyInfersModel(t *testing.T) {
	clientConn, deviceConn := net.Pipe()
	c := New(clientConn, sid.Default)
	defer c.Disconnect()

	responses := []cbor.Value{
		uint64(12345),           // yang-library checksum
		ifacesWithCount(8),      // ietf-interfaces:interfaces, 8 ports -> LAN9668
		"1.2.3",                 // firmware-version
	}

	go func() {
		for _, r := range responses {
			frame := readFrame(t, deviceConn)
			req, err := coap.Decode(frame.Payload)
			assert.NilError(t, err)
			assert.Equal(t, req.Code, coap.CodeGet)
			writeGetResponse(t, deviceConn, req, r, sid.Default)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	info, err := c.Identify(ctx)
	assert.NilError(t, err)
	assert.Equal(t, info.Checksum, uint64(12345))
	assert.Equal(t, info.PortCount, 8)
	assert.Equal(t, info.Model, LAN9668)
	assert.Equal(t, info.FirmwareVersion, "1.2.3")
	assert.Equal(t, info.SupportsBlock2(), true)
}

func ifacesWithCount(n int) *cbor.Map {
	m := cbor.NewMap()
	for i := 0; i < n; i++ {
		m.Set(int64(i), cbor.NewMap())
	}
	return m
}

func TestClientYANGSetValidatesDatatype(t *testing.T) {
	clientConn, _ := net.Pipe()
	c := New(clientConn, sid.Default)
	defer c.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.YANGSet(ctx, "/mchp-velocitysp-system:system/firmware-version", 42)
	assert.ErrorContains(t, err, "expected string")
}

func TestModelForPortCount(t *testing.T) {
	cases := []struct {
		ports int
		want  Model
	}{
		{2, LAN9662},
		{8, LAN9668},
		{12, LAN9692},
		{4, Unknown},
	}
	for _, tc := range cases {
		assert.Equal(t, modelForPortCount(tc.ports), tc.want)
	}
}
