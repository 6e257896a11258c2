/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package coap

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/runzeroinc/velctl/mup1"
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

func writeResponse(t *testing.T, conn net.Conn, req *Message, code Code, payload []byte, extraOpts func(*Options)) {
	t.Helper()
	resp := &Message{
		Version:   1,
		Type:      TypeACK,
		Code:      code,
		MessageID: req.MessageID,
		Token:     req.Token,
		Payload:   payload,
	}
	if extraOpts != nil {
		extraOpts(&resp.Options)
	}
	b, err := Encode(resp)
	assert.NilError(t, err)
	frame := mup1.Encode(mup1.TypeCoAP, b)
	_, err = conn.Write(frame)
	assert.NilError(t, err)
}

func TestEngineSimpleGet(t *testing.T) {
	client, device := net.Pipe()
	eng := NewEngine(client)
	defer eng.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		frame := readFrame(t, device)
		req, err := Decode(frame.Payload)
		assert.NilError(t, err)
		assert.Equal(t, req.Code, CodeGet)
		writeResponse(t, device, req, CodeContent, []byte("device-info"), nil)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := eng.Do(ctx, Request{Method: CodeGet, Path: "ietf-interfaces:interfaces", Confirmable: true})
	assert.NilError(t, err)
	assert.DeepEqual(t, resp.Payload, []byte("device-info"))
	<-done
}

func TestEngineClientErrorMapped(t *testing.T) {
	client, device := net.Pipe()
	eng := NewEngine(client)
	defer eng.Close()

	go func() {
		frame := readFrame(t, device)
		req, _ := Decode(frame.Payload)
		writeResponse(t, device, req, CodeNotFound, nil, nil)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := eng.Do(ctx, Request{Method: CodeGet, Path: "no/such/path", Confirmable: true})
	var clientErr *ClientError
	assert.Assert(t, errors.As(err, &clientErr))
	assert.Equal(t, clientErr.Code, CodeNotFound)
}

func TestEngineBlock2Reassembly(t *testing.T) {
	client, device := net.Pipe()
	eng := NewEngine(client)
	defer eng.Close()

	full := make([]byte, 600)
	for i := range full {
		full[i] = byte(i)
	}
	block := BlockOption{SZX: DefaultBlockSZX}
	size := block.Size()

	go func() {
		for num := uint32(0); ; num++ {
			frame := readFrame(t, device)
			req, err := Decode(frame.Payload)
			assert.NilError(t, err)

			start := int(num) * size
			end := start + size
			more := end < len(full)
			if end > len(full) {
				end = len(full)
			}
			b := BlockOption{Num: num, More: more, SZX: DefaultBlockSZX}
			writeResponse(t, device, req, CodeContent, full[start:end], func(o *Options) {
				o.Add(OptionBlock2, b.Encode())
			})
			if !more {
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := eng.Do(ctx, Request{Method: CodeGet, Path: "big", Confirmable: true})
	assert.NilError(t, err)
	assert.DeepEqual(t, resp.Payload, full)
}

func TestEngineRetransmitsOnTimeout(t *testing.T) {
	client, device := net.Pipe()
	eng := NewEngine(client, WithRetryPolicy(20*time.Millisecond, 5))
	defer eng.Close()

	// the device ignores the first request entirely (simulating a lost
	// frame) and only answers the retransmitted copy.
	go func() {
		readFrame(t, device)
		frame := readFrame(t, device)
		req, err := Decode(frame.Payload)
		assert.NilError(t, err)
		writeResponse(t, device, req, CodeContent, []byte("ok"), nil)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := eng.Do(ctx, Request{Method: CodeGet, Path: "x", Confirmable: true})
	assert.NilError(t, err)
	assert.DeepEqual(t, resp.Payload, []byte("ok"))
}

func TestEngineTimesOutAfterRetryBudget(t *testing.T) {
	client, device := net.Pipe()
	eng := NewEngine(client, WithRetryPolicy(10*time.Millisecond, 2))
	defer eng.Close()

	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := device.Read(buf); err != nil {
				return // engine closed the transport, nothing left to read.
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := eng.Do(ctx, Request{Method: CodeGet, Path: "x", Confirmable: true})
	assert.ErrorIs(t, err, ErrTimeout)
}
